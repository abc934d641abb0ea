// Package gitrepo keeps the saved revisions of each note as commits in a
// per-note git repository.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"marginalia/api/internal/revdiff"
)

const (
	contentFile = "note.md"
	mainBranch  = "main"
)

var (
	ErrInvalidID = errors.New("invalid note id")
	ErrNoHistory = errors.New("note has no history")
)

var noteIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidNoteID reports whether id is safe to use as a repository name.
func ValidNoteID(id string) bool {
	return noteIDPattern.MatchString(id)
}

// Commit describes one saved revision.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
}

type Service struct {
	baseDir string
	author  string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		author:  "Marginalia",
		locks:   make(map[string]*sync.Mutex),
	}
}

// SaveRevision commits tagged as the note's content. A revision identical
// to the head is not committed again.
func (s *Service) SaveRevision(_ context.Context, noteID, label, tagged string) error {
	if !ValidNoteID(noteID) {
		return ErrInvalidID
	}
	lock := s.noteLock(noteID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(noteID)
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, contentFile), []byte(tagged+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return fmt.Errorf("git add content: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	message := "Save note"
	if label != "" {
		message = "Save " + label
	}
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.author,
			Email: "marginalia@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit content: %w", err)
	}
	return nil
}

// History lists a note's revisions, newest first.
func (s *Service) History(noteID string, limit int) ([]Commit, error) {
	if !ValidNoteID(noteID) {
		return nil, ErrInvalidID
	}
	lock := s.noteLock(noteID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(noteID)
	if errors.Is(err, ErrNoHistory) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the note text saved in the given revision.
func (s *Service) ContentAt(noteID, hash string) (string, error) {
	if !ValidNoteID(noteID) {
		return "", ErrInvalidID
	}
	lock := s.noteLock(noteID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(noteID)
	if err != nil {
		return "", err
	}
	commitObj, err := commitAt(repo, hash)
	if err != nil {
		return "", err
	}
	return readContent(commitObj)
}

// Compare diffs two saved revisions of a note.
func (s *Service) Compare(noteID, fromHash, toHash string, opts revdiff.Options) (revdiff.Result, error) {
	from, err := s.ContentAt(noteID, fromHash)
	if err != nil {
		return revdiff.Result{}, err
	}
	to, err := s.ContentAt(noteID, toHash)
	if err != nil {
		return revdiff.Result{}, err
	}
	return revdiff.Diff(from, to, opts), nil
}

func (s *Service) repoPath(noteID string) string {
	return filepath.Join(s.baseDir, noteID)
}

func (s *Service) noteLock(noteID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[noteID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[noteID] = lock
	return lock
}

func (s *Service) open(noteID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(noteID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(noteID string) (*git.Repository, error) {
	repo, err := s.open(noteID)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrNoHistory) {
		return nil, err
	}

	path := s.repoPath(noteID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", mainBranch, err)
	}
	return repo, nil
}

func commitAt(repo *git.Repository, hash string) (*object.Commit, error) {
	var resolved plumbing.Hash
	if hash == "" || hash == "HEAD" {
		ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
		if err != nil {
			return nil, ErrNoHistory
		}
		resolved = ref.Hash()
	} else {
		h, err := resolveHash(repo, hash)
		if err != nil {
			return nil, err
		}
		resolved = h
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return commitObj, nil
}

func readContent(commitObj *object.Commit) (string, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	text, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	if n := len(text); n > 0 && text[n-1] == '\n' {
		text = text[:n-1]
	}
	return text, nil
}

func toCommit(commitObj *object.Commit) Commit {
	c := Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
	if stats, err := commitObj.Stats(); err == nil {
		for _, st := range stats {
			c.Added += st.Addition
			c.Removed += st.Deletion
		}
	}
	return c
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
