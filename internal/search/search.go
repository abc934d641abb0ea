// Package search indexes saved notes and vocabulary suggestions in
// Meilisearch, falling back to a plain SQL search when it is unavailable.
package search

import (
	"encoding/hex"
	"strings"
	"time"

	"marginalia/api/internal/document"
	"marginalia/api/internal/revdiff"
	"marginalia/api/internal/vocab"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNote       ResultType = "note"
	ResultSuggestion ResultType = "suggestion"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	NoteID  string     `json:"noteId"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// NoteRecord is the data we index for a note. Text is the note without
// provenance markers or list and heading syntax.
type NoteRecord struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	UpdatedAt int64  `json:"updatedAt"`
}

// SuggestionRecord is the data we index for a vocabulary suggestion.
type SuggestionRecord struct {
	ID          string `json:"id"`
	Word        string `json:"word"`
	SourceLabel string `json:"sourceLabel"`
	SourceID    string `json:"sourceId"`
}

// NewNoteRecord builds the index record for a saved note.
func NewNoteRecord(noteID, label, tagged string, updatedAt time.Time) NoteRecord {
	lines := revdiff.SplitLines(tagged)
	text := make([]string, 0, len(lines))
	for _, line := range lines {
		content := document.PlainText(document.ParseInline(document.LineContent(line)))
		if content = strings.TrimSpace(content); content != "" {
			text = append(text, content)
		}
	}
	return NoteRecord{
		ID:        noteID,
		Label:     label,
		Text:      strings.Join(text, "\n"),
		UpdatedAt: updatedAt.UnixMilli(),
	}
}

// NewSuggestionRecord builds the index record for a suggestion. Index ids
// only allow a restricted alphabet, so the lower-cased word is hex encoded.
func NewSuggestionRecord(s vocab.Suggestion) SuggestionRecord {
	return SuggestionRecord{
		ID:          hex.EncodeToString([]byte(s.Key())),
		Word:        s.Word,
		SourceLabel: s.SourceLabel,
		SourceID:    s.SourceID,
	}
}
