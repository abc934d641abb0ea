package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"marginalia/api/internal/revdiff"
)

func TestNoteRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	ctx := context.Background()

	first := "# Standup\n[ai] met with Klaus about shiba rollout"
	if err := svc.SaveRevision(ctx, "note-1", "Standup", first); err != nil {
		t.Fatalf("SaveRevision() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "note-1", contentFile)); err != nil {
		t.Fatalf("content file missing: %v", err)
	}

	second := "# Standup\n[user] met with Klaus about SHIVA rollout"
	if err := svc.SaveRevision(ctx, "note-1", "Standup", second); err != nil {
		t.Fatalf("SaveRevision() error = %v", err)
	}

	history, err := svc.History("note-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d entries, want 2", len(history))
	}
	if history[0].Message != "Save Standup" || history[0].Author != "Marginalia" {
		t.Errorf("head commit = %+v", history[0])
	}
	if history[0].Added != 1 || history[0].Removed != 1 {
		t.Errorf("head stats = +%d -%d, want +1 -1", history[0].Added, history[0].Removed)
	}

	got, err := svc.ContentAt("note-1", history[1].Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if got != first {
		t.Errorf("ContentAt(first) = %q, want %q", got, first)
	}
	head, err := svc.ContentAt("note-1", "HEAD")
	if err != nil {
		t.Fatalf("ContentAt(HEAD) error = %v", err)
	}
	if head != second {
		t.Errorf("ContentAt(HEAD) = %q, want %q", head, second)
	}

	diff, err := svc.Compare("note-1", history[1].Hash, history[0].Hash, revdiff.Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(diff.Suggestions) != 1 || diff.Suggestions[0] != "SHIVA" {
		t.Errorf("Compare() suggestions = %v, want [SHIVA]", diff.Suggestions)
	}
}

func TestSaveRevisionSkipsUnchangedContent(t *testing.T) {
	svc := New(t.TempDir())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.SaveRevision(ctx, "note-1", "", "[user] same"); err != nil {
			t.Fatalf("SaveRevision() #%d error = %v", i, err)
		}
	}
	history, err := svc.History("note-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Message != "Save note" {
		t.Errorf("History() = %+v, want one commit", history)
	}
}

func TestHistoryOfUnknownNote(t *testing.T) {
	svc := New(t.TempDir())
	history, err := svc.History("never-saved", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History() = %+v, want empty", history)
	}
	if _, err := svc.ContentAt("never-saved", "HEAD"); !errors.Is(err, ErrNoHistory) {
		t.Errorf("ContentAt() error = %v, want ErrNoHistory", err)
	}
}

func TestInvalidNoteIDs(t *testing.T) {
	svc := New(t.TempDir())
	for _, id := range []string{"", "../escape", "a/b", ".hidden", strings.Repeat("x", 200)} {
		if err := svc.SaveRevision(context.Background(), id, "", "x"); !errors.Is(err, ErrInvalidID) {
			t.Errorf("SaveRevision(%q) error = %v, want ErrInvalidID", id, err)
		}
	}
	if !ValidNoteID("note_1-A") {
		t.Error("ValidNoteID(note_1-A) = false")
	}
}

func TestConcurrentSaveRevision(t *testing.T) {
	svc := New(t.TempDir())
	ctx := context.Background()

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			text := fmt.Sprintf("[user] revision %02d", idx)
			if err := svc.SaveRevision(ctx, "note-1", "Concurrent", text); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("SaveRevision() concurrent error = %v", err)
		}
	}

	history, err := svc.History("note-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d commits in history, got %d", writers, len(history))
	}

	head, err := svc.ContentAt("note-1", "")
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if !strings.HasPrefix(head, "[user] revision ") {
		t.Fatalf("unexpected head content after concurrent saves: %q", head)
	}
}
