package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"marginalia/api/internal/config"
	"marginalia/api/internal/document"
	"marginalia/api/internal/export"
	"marginalia/api/internal/gitrepo"
	"marginalia/api/internal/revdiff"
	"marginalia/api/internal/search"
	"marginalia/api/internal/session"
	"marginalia/api/internal/store"
	"marginalia/api/internal/vocab"
)

// NoteStore holds the latest saved text of every note and the suggestion
// table. Implemented by store.SQLStore.
type NoteStore interface {
	SaveRevision(ctx context.Context, noteID, label, tagged string) error
	GetNote(ctx context.Context, noteID string) (store.Note, error)
	ListNotes(ctx context.Context, limit int) ([]store.Note, error)
	AddSuggestion(ctx context.Context, sg vocab.Suggestion) error
	ListSuggestions(ctx context.Context, limit int) ([]vocab.Suggestion, error)
	Ping(ctx context.Context) error
}

// HistoryStore keeps every saved revision. Implemented by gitrepo.Service.
type HistoryStore interface {
	SaveRevision(ctx context.Context, noteID, label, tagged string) error
	History(noteID string, limit int) ([]gitrepo.Commit, error)
	ContentAt(noteID, hash string) (string, error)
	Compare(noteID, fromHash, toHash string, opts revdiff.Options) (revdiff.Result, error)
}

// SearchIndex is implemented by search.Service.
type SearchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	RevisionSaved(ctx context.Context, noteID, label, tagged string)
	AddSuggestion(ctx context.Context, sg vocab.Suggestion) error
}

// VocabStore is a suggestion sink that can list what it received, newest
// first. Implemented by vocab.RedisStore.
type VocabStore interface {
	vocab.Sink
	List(ctx context.Context, limit int) ([]vocab.Suggestion, error)
}

// Publisher uploads export results. Implemented by export.Publisher.
type Publisher interface {
	Publish(ctx context.Context, noteID string, res *export.Result) (*export.Published, error)
}

// Deps are the collaborators of a Service. Only Notes is required.
type Deps struct {
	Notes     NoteStore
	History   HistoryStore
	Search    SearchIndex
	Vocab     VocabStore
	Publisher Publisher
	PDF       export.PDFRenderer
}

type Service struct {
	notes     NoteStore
	history   HistoryStore
	search    SearchIndex
	vocab     VocabStore
	publisher Publisher
	exports   *export.Service
	sessions  *session.Manager
	diff      revdiff.Options
	serialize document.SerializeOptions
}

// DiffOptions maps the tuning settings onto revdiff options.
func DiffOptions(cfg config.Config) revdiff.Options {
	opts := revdiff.Options{
		OverlapThreshold: cfg.OverlapThreshold,
		MaxPerRevision:   cfg.MaxSuggestions,
		MaxPerPair:       cfg.MaxSuggestionsLine,
	}
	if cfg.Matcher == "optimal" {
		threshold := cfg.OverlapThreshold
		if threshold <= 0 {
			threshold = revdiff.DefaultOverlapThreshold
		}
		opts.Matcher = revdiff.OptimalMatcher{Threshold: threshold}
	}
	return opts
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		notes:     deps.Notes,
		history:   deps.History,
		search:    deps.Search,
		vocab:     deps.Vocab,
		publisher: deps.Publisher,
		diff:      DiffOptions(cfg),
		serialize: document.SerializeOptions{TagHeadings: cfg.TagHeadings},
	}

	persisters := session.Persisters{deps.Notes}
	if deps.History != nil {
		persisters = append(persisters, deps.History)
	}
	sinks := vocab.Sinks{deps.Notes}
	var observers []session.Observer
	if deps.Vocab != nil {
		sinks = append(sinks, deps.Vocab)
	}
	if deps.Search != nil {
		sinks = append(sinks, deps.Search)
		observers = append(observers, deps.Search)
	}

	s.sessions = session.NewManager(session.Options{
		Debounce:  cfg.SaveDebounce,
		Diff:      s.diff,
		Serialize: s.serialize,
		Persister: persisters,
		Sink:      sinks,
		Observers: observers,
	})
	s.exports = export.NewService(export.SourceFunc(s.loadNote), deps.PDF)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.notes.Ping(ctx)
}

// Shutdown saves and closes every open note.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.sessions.CloseAll(ctx)
}

// Conversion

func (s *Service) Parse(tagged string) *document.Node {
	return document.Parse(tagged)
}

func (s *Service) Serialize(root *document.Node, tagHeadings bool) (string, error) {
	if root == nil {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "doc is required", nil)
	}
	if root.Type != document.TypeDoc {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "doc must be a doc node", map[string]any{"type": root.Type})
	}
	opts := s.serialize
	opts.TagHeadings = opts.TagHeadings || tagHeadings
	return document.SerializeWith(root, opts), nil
}

func (s *Service) ImportMarkdown(markdown string) (*document.Node, string) {
	root := document.FromMarkdown([]byte(markdown))
	return root, document.SerializeWith(root, s.serialize)
}

// PairView is a modified pair with its inline changes.
type PairView struct {
	revdiff.Pair
	Changes []revdiff.Change `json:"changes"`
}

type DiffView struct {
	Matches     []revdiff.Match `json:"matches"`
	Pairs       []PairView      `json:"pairs"`
	Inserted    []revdiff.Line  `json:"inserted"`
	Deleted     []revdiff.Line  `json:"deleted"`
	Suggestions []string        `json:"suggestions"`
}

func newDiffView(res revdiff.Result) DiffView {
	view := DiffView{
		Matches:     nonNilSlice(res.Matches),
		Pairs:       make([]PairView, 0, len(res.Pairs)),
		Inserted:    nonNilSlice(res.Inserted),
		Deleted:     nonNilSlice(res.Deleted),
		Suggestions: nonNilSlice(res.Suggestions),
	}
	for _, p := range res.Pairs {
		view.Pairs = append(view.Pairs, PairView{Pair: p, Changes: p.Changes()})
	}
	return view
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func (s *Service) Diff(oldRevision, newRevision string) DiffView {
	return newDiffView(revdiff.Diff(oldRevision, newRevision, s.diff))
}

// Sessions

func validateNoteID(id string) error {
	if !gitrepo.ValidNoteID(id) {
		return domainError(http.StatusUnprocessableEntity, "INVALID_NOTE_ID", "note id must be 1-128 letters, digits, '-' or '_'", map[string]any{"id": id})
	}
	return nil
}

// OpenNote opens a note session. When tagged is nil the last saved text is
// loaded from the store; a note never saved starts empty.
func (s *Service) OpenNote(ctx context.Context, id, label string, tagged *string) (session.Snapshot, error) {
	if err := validateNoteID(id); err != nil {
		return session.Snapshot{}, err
	}
	if d, err := s.sessions.Get(id); err == nil {
		if label != "" {
			d.SetLabel(label)
		}
		return d.Snapshot(), nil
	}

	text := ""
	if tagged != nil {
		text = *tagged
	} else {
		note, err := s.notes.GetNote(ctx, id)
		switch {
		case err == nil:
			text = note.Tagged
			if label == "" {
				label = note.Label
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return session.Snapshot{}, fmt.Errorf("load note %s: %w", id, err)
		}
	}

	d, _ := s.sessions.Open(id, label, text)
	return d.Snapshot(), nil
}

func (s *Service) NoteSnapshot(id string) (session.Snapshot, error) {
	d, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return d.Snapshot(), nil
}

// EditNote applies an interactive edit; the note is saved after the
// debounce window.
func (s *Service) EditNote(id, nodeID, text string) (session.Snapshot, error) {
	if strings.TrimSpace(nodeID) == "" {
		return session.Snapshot{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "nodeId is required", nil)
	}
	d, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if _, err := d.Edit(nodeID, text); err != nil {
		return session.Snapshot{}, err
	}
	return d.Snapshot(), nil
}

// ReplaceContent swaps the whole note text without provenance promotion.
func (s *Service) ReplaceContent(ctx context.Context, id, tagged string) (session.Snapshot, error) {
	d, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := d.Replace(ctx, tagged); err != nil {
		return d.Snapshot(), fmt.Errorf("replace note %s: %w", id, err)
	}
	return d.Snapshot(), nil
}

func (s *Service) FlushNote(ctx context.Context, id string) (session.Snapshot, error) {
	d, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := d.Flush(ctx); err != nil {
		return d.Snapshot(), fmt.Errorf("flush note %s: %w", id, err)
	}
	return d.Snapshot(), nil
}

func (s *Service) CloseNote(ctx context.Context, id string) error {
	return s.sessions.Close(ctx, id)
}

func (s *Service) OpenNotes() []string {
	return s.sessions.IDs()
}

// Saved notes

func (s *Service) ListNotes(ctx context.Context, limit int) ([]store.Note, error) {
	notes, err := s.notes.ListNotes(ctx, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, err
	}
	return nonNilSlice(notes), nil
}

func (s *Service) History(id string, limit int) ([]gitrepo.Commit, error) {
	if err := validateNoteID(id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, errHistoryDisabled
	}
	commits, err := s.history.History(id, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, err
	}
	return nonNilSlice(commits), nil
}

// CompareRevisions diffs two saved revisions of a note.
func (s *Service) CompareRevisions(id, from, to string) (DiffView, error) {
	if err := validateNoteID(id); err != nil {
		return DiffView{}, err
	}
	if s.history == nil {
		return DiffView{}, errHistoryDisabled
	}
	if strings.TrimSpace(from) == "" {
		return DiffView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from is required", nil)
	}
	res, err := s.history.Compare(id, from, to, s.diff)
	if err != nil {
		return DiffView{}, err
	}
	return newDiffView(res), nil
}

var errHistoryDisabled = domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history not configured", nil)

// loadNote resolves export content. The latest version of an open note
// includes edits not saved yet.
func (s *Service) loadNote(ctx context.Context, id, version string) (export.Note, error) {
	if err := validateNoteID(id); err != nil {
		return export.Note{}, err
	}
	if version != "" && version != "latest" {
		if s.history == nil {
			return export.Note{}, errHistoryDisabled
		}
		tagged, err := s.history.ContentAt(id, version)
		if err != nil {
			return export.Note{}, err
		}
		label := ""
		if note, err := s.notes.GetNote(ctx, id); err == nil {
			label = note.Label
		}
		return export.Note{ID: id, Label: label, Tagged: tagged}, nil
	}

	if d, err := s.sessions.Get(id); err == nil {
		snap := d.Snapshot()
		updated := snap.SavedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		return export.Note{ID: id, Label: snap.Label, Tagged: snap.Tagged, UpdatedAt: updated}, nil
	}

	note, err := s.notes.GetNote(ctx, id)
	if err != nil {
		return export.Note{}, err
	}
	return export.Note{ID: note.ID, Label: note.Label, Tagged: note.Tagged, UpdatedAt: note.UpdatedAt}, nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exports.Export(ctx, req)
}

// Publish renders an export and uploads it to the object store.
func (s *Service) Publish(ctx context.Context, req export.Request) (*export.Published, error) {
	if s.publisher == nil {
		return nil, export.ErrPublishingDisabled
	}
	res, err := s.exports.Export(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.publisher.Publish(ctx, req.NoteID, res)
}

// Vocabulary and search

// Suggestions lists recent vocabulary suggestions, from Redis when it is
// configured and from the SQL table otherwise.
func (s *Service) Suggestions(ctx context.Context, limit int) ([]vocab.Suggestion, error) {
	limit = clampLimit(limit, 50, 500)
	if s.vocab != nil {
		items, err := s.vocab.List(ctx, limit)
		if err == nil {
			return nonNilSlice(items), nil
		}
		log.Printf("app: vocab list failed, using sql: %v", err)
	}
	items, err := s.notes.ListSuggestions(ctx, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(items), nil
}

func (s *Service) Search(ctx context.Context, text, filterType string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	rtyp := search.ResultType(filterType)
	switch rtyp {
	case "", search.ResultNote, search.ResultSuggestion:
	default:
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be note or suggestion", nil)
	}
	if offset < 0 {
		offset = 0
	}
	q := search.Query{Text: text, FilterType: rtyp, Limit: clampLimit(limit, 20, 100), Offset: offset}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, q), nil
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
