// Package session keeps the open notes of a process: their editable trees,
// the last persisted text of each, and the debounced save that diffs new
// revisions against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"marginalia/api/internal/document"
	"marginalia/api/internal/revdiff"
	"marginalia/api/internal/vocab"
)

var (
	ErrNotOpen = errors.New("note is not open")
	ErrClosed  = errors.New("note session is closed")
)

// State is the lifecycle position of an open note.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateEditing
	StateSaving
	StateDiffed
	StateClosed
)

var stateNames = [...]string{"unloaded", "loaded", "editing", "saving", "diffed", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// flushTimeout bounds a save started by the debounce timer, which has no
// caller context.
const flushTimeout = 30 * time.Second

// Document is one open note. All methods are safe for concurrent use.
type Document struct {
	id    string
	label string
	cfg   *Options

	mu       sync.Mutex
	editor   *document.Editor
	baseline string
	state    State
	dirty    bool
	timer    *time.Timer
	gen      uint64
	lastDiff *revdiff.Result
	savedAt  time.Time
	lastErr  error
}

// Snapshot is a consistent copy of a document's state.
type Snapshot struct {
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	State    State           `json:"state"`
	Dirty    bool            `json:"dirty"`
	Tagged   string          `json:"tagged"`
	Baseline string          `json:"baseline"`
	Doc      *document.Node  `json:"doc"`
	LastDiff *revdiff.Result `json:"lastDiff,omitempty"`
	SavedAt  time.Time       `json:"savedAt,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newDocument(id, label, tagged string, cfg *Options) *Document {
	d := &Document{id: id, label: label, cfg: cfg, state: StateUnloaded}
	d.editor = document.NewEditor(document.Parse(tagged))
	d.baseline = tagged
	d.state = StateLoaded
	return d
}

func (d *Document) ID() string { return d.id }

func (d *Document) Label() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.label
}

func (d *Document) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Baseline returns the last persisted tagged text.
func (d *Document) Baseline() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline
}

// Snapshot copies the current state, including the serialized tree.
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := Snapshot{
		ID:       d.id,
		Label:    d.label,
		State:    d.state,
		Dirty:    d.dirty,
		Baseline: d.baseline,
		LastDiff: d.lastDiff,
		SavedAt:  d.savedAt,
	}
	if d.lastErr != nil {
		snap.Error = d.lastErr.Error()
	}
	if d.editor != nil {
		snap.Doc = d.editor.Root().Clone()
		snap.Tagged = d.serializeLocked()
	}
	return snap
}

// SetLabel renames the note for the suggestions it produces from now on.
func (d *Document) SetLabel(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.label = label
}

// Edit applies an interactive edit to a node: text is parsed as inline
// markup, provenance promotion applies, and a save is scheduled. It returns
// the node that was promoted, if any.
func (d *Document) Edit(nodeID, text string) (*document.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return nil, ErrClosed
	}

	promoted, err := d.editor.InteractiveEdit(nodeID, document.ParseInline(text))
	if err != nil {
		return nil, fmt.Errorf("edit node %s: %w", nodeID, err)
	}
	d.dirty = true
	d.state = StateEditing
	d.scheduleLocked()
	if promoted != nil {
		return promoted.Clone(), nil
	}
	return nil, nil
}

// Replace installs generated tagged text. Pending edits are saved first so
// their corrections are not lost; the new text is then persisted as the
// baseline without promotion or suggestions.
func (d *Document) Replace(ctx context.Context, tagged string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return ErrClosed
	}

	d.stopTimerLocked()
	if d.dirty {
		if err := d.flushLocked(ctx); err != nil {
			return err
		}
	}

	d.editor.ProgrammaticReplace(document.Parse(tagged))
	text := d.serializeLocked()
	d.dirty = true
	d.state = StateSaving
	if err := d.cfg.persister().SaveRevision(ctx, d.id, d.label, text); err != nil {
		d.state = StateEditing
		d.lastErr = err
		return fmt.Errorf("save note %s: %w", d.id, err)
	}
	d.baseline = text
	d.dirty = false
	d.lastErr = nil
	d.lastDiff = nil
	d.savedAt = d.cfg.now()
	d.state = StateLoaded
	d.notifyLocked(ctx, text)
	return nil
}

// Flush saves pending edits now instead of waiting for the timer.
func (d *Document) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return ErrClosed
	}
	d.stopTimerLocked()
	if !d.dirty {
		return nil
	}
	return d.flushLocked(ctx)
}

// Close cancels the pending timer and saves outstanding edits. If that save
// fails the document stays open.
func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return nil
	}
	d.stopTimerLocked()
	if d.dirty {
		if err := d.flushLocked(ctx); err != nil {
			return err
		}
	}
	d.state = StateClosed
	d.editor = nil
	return nil
}

func (d *Document) scheduleLocked() {
	d.stopTimerLocked()
	gen := d.gen
	d.timer = time.AfterFunc(d.cfg.debounce(), func() { d.fire(gen) })
}

func (d *Document) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Document) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || !d.dirty || d.state == StateClosed {
		return
	}
	d.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := d.flushLocked(ctx); err != nil {
		log.Printf("session: save %s: %v", d.id, err)
	}
}

// flushLocked serializes the tree, persists it, diffs it against the
// baseline and hands the corrections to the sink.
func (d *Document) flushLocked(ctx context.Context) error {
	d.state = StateSaving
	text := d.serializeLocked()
	if err := d.cfg.persister().SaveRevision(ctx, d.id, d.label, text); err != nil {
		d.state = StateEditing
		d.lastErr = err
		return fmt.Errorf("save note %s: %w", d.id, err)
	}

	result := revdiff.Diff(d.baseline, text, d.cfg.Diff)
	d.sinkLocked(ctx, result.Suggestions)

	d.baseline = text
	d.dirty = false
	d.lastErr = nil
	d.lastDiff = &result
	d.savedAt = d.cfg.now()
	d.state = StateDiffed
	d.notifyLocked(ctx, text)
	return nil
}

func (d *Document) sinkLocked(ctx context.Context, words []string) {
	if d.cfg.Sink == nil {
		return
	}
	for _, word := range words {
		s := vocab.Suggestion{
			Word:        word,
			SourceLabel: d.label,
			SourceID:    d.id,
			CreatedAt:   d.cfg.now(),
		}
		if err := d.cfg.Sink.AddSuggestion(ctx, s); err != nil {
			log.Printf("session: suggestion %q from %s: %v", word, d.id, err)
		}
	}
}

func (d *Document) notifyLocked(ctx context.Context, text string) {
	for _, o := range d.cfg.Observers {
		o.RevisionSaved(ctx, d.id, d.label, text)
	}
}

func (d *Document) serializeLocked() string {
	return document.SerializeWith(d.editor.Root(), d.cfg.Serialize)
}
