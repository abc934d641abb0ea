package search

import (
	"context"
	"log"
	"time"

	"marginalia/api/internal/store"
	"marginalia/api/internal/vocab"
)

// Fallback answers note searches when Meilisearch is not available.
type Fallback interface {
	SearchNotes(ctx context.Context, query string, limit int) ([]store.NoteHit, error)
}

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	meili    *Meili
	fallback Fallback
	now      func() time.Time
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback, now: time.Now}
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to SQL. The
// fallback only knows about notes.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexing() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		log.Printf("search: meilisearch error, falling back to sql: %v", err)
	}

	empty := Response{Results: []Result{}, Query: q.Text, Backend: "sql"}
	if s.fallback == nil || q.FilterType == ResultSuggestion {
		return empty
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	hits, err := s.fallback.SearchNotes(ctx, q.Text, q.Offset+limit)
	if err != nil {
		log.Printf("search: sql fallback error: %v", err)
		return empty
	}
	if q.Offset >= len(hits) {
		return empty
	}
	hits = hits[q.Offset:]

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Type:    ResultNote,
			ID:      hit.ID,
			Title:   hit.Label,
			Snippet: hit.Snippet,
			NoteID:  hit.ID,
		})
	}
	return Response{Results: results, Total: len(results), Query: q.Text, Backend: "sql"}
}

// RevisionSaved indexes a saved note (fire-and-forget to Meilisearch).
func (s *Service) RevisionSaved(_ context.Context, noteID, label, tagged string) {
	if !s.indexing() {
		return
	}
	record := NewNoteRecord(noteID, label, tagged, s.now())
	go func() {
		if err := s.meili.IndexNote(record); err != nil {
			log.Printf("search: index note %s: %v", noteID, err)
		}
	}()
}

// AddSuggestion indexes a vocabulary suggestion (fire-and-forget to
// Meilisearch). It never fails so it can sit among other sinks.
func (s *Service) AddSuggestion(_ context.Context, sg vocab.Suggestion) error {
	if !s.indexing() || sg.Key() == "" {
		return nil
	}
	record := NewSuggestionRecord(sg)
	go func() {
		if err := s.meili.IndexSuggestion(record); err != nil {
			log.Printf("search: index suggestion %q: %v", sg.Word, err)
		}
	}()
	return nil
}

// DeleteNote removes a note from the search index (fire-and-forget).
func (s *Service) DeleteNote(id string) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.DeleteNote(id); err != nil {
			log.Printf("search: delete note %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the given notes to Meilisearch. Called at startup.
func (s *Service) ReindexAll(notes []store.Note) {
	if !s.indexing() || len(notes) == 0 {
		return
	}
	records := make([]NoteRecord, 0, len(notes))
	for _, n := range notes {
		records = append(records, NewNoteRecord(n.ID, n.Label, n.Tagged, n.UpdatedAt))
	}
	if err := s.meili.IndexNotes(records); err != nil {
		log.Printf("search: reindex notes: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
