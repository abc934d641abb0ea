package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"marginalia/api/internal/document"
	"marginalia/api/internal/revdiff"
	"marginalia/api/internal/vocab"
)

// DefaultDebounce is how long a note must sit idle after an edit before it
// is saved.
const DefaultDebounce = 1500 * time.Millisecond

// Persister stores a saved revision of a note.
type Persister interface {
	SaveRevision(ctx context.Context, noteID, label, tagged string) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, noteID, label, tagged string) error

func (f PersisterFunc) SaveRevision(ctx context.Context, noteID, label, tagged string) error {
	return f(ctx, noteID, label, tagged)
}

// Persisters saves to each persister in order and stops at the first
// failure.
type Persisters []Persister

func (ps Persisters) SaveRevision(ctx context.Context, noteID, label, tagged string) error {
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.SaveRevision(ctx, noteID, label, tagged); err != nil {
			return err
		}
	}
	return nil
}

// Observer is told about every revision that was persisted. It must not
// block.
type Observer interface {
	RevisionSaved(ctx context.Context, noteID, label, tagged string)
}

// Options configures every document a Manager opens.
type Options struct {
	Debounce  time.Duration
	Diff      revdiff.Options
	Serialize document.SerializeOptions
	Persister Persister
	Sink      vocab.Sink
	Observers []Observer
	Now       func() time.Time
}

func (o *Options) debounce() time.Duration {
	if o.Debounce <= 0 {
		return DefaultDebounce
	}
	return o.Debounce
}

func (o *Options) persister() Persister {
	if o.Persister == nil {
		return Persisters(nil)
	}
	return o.Persister
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// Manager is the table of open notes, keyed by note id.
type Manager struct {
	opts Options

	mu   sync.Mutex
	docs map[string]*Document
}

func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, docs: make(map[string]*Document)}
}

// Open loads tagged as the note's persisted text. Opening a note that is
// already open returns the existing document untouched apart from its
// label.
func (m *Manager) Open(id, label, tagged string) (*Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		if label != "" {
			d.SetLabel(label)
		}
		return d, false
	}
	d := newDocument(id, label, tagged, &m.opts)
	m.docs[id] = d
	return d, true
}

// Get returns an open note.
func (m *Manager) Get(id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotOpen
	}
	return d, nil
}

// IDs lists open notes in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close flushes and forgets a note. A note whose final save fails stays
// open so its edits are not lost.
func (m *Manager) Close(ctx context.Context, id string) error {
	d, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := d.Close(ctx); err != nil {
		return fmt.Errorf("close note %s: %w", id, err)
	}
	m.mu.Lock()
	if m.docs[id] == d {
		delete(m.docs, id)
	}
	m.mu.Unlock()
	return nil
}

// CloseAll closes every open note, for shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.IDs() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrNotOpen) {
			log.Printf("session: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
