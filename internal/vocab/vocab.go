// Package vocab holds custom-vocabulary suggestions produced by the
// correction detector and the sinks that store them.
package vocab

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Suggestion is a word the user typed over a misheard transcription,
// offered for the custom vocabulary.
type Suggestion struct {
	Word        string    `json:"word"`
	SourceLabel string    `json:"sourceLabel"`
	SourceID    string    `json:"sourceId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Key is the case-insensitive identity of a suggestion.
func (s Suggestion) Key() string {
	return strings.ToLower(strings.TrimSpace(s.Word))
}

// Sink receives suggestions. Implementations must treat a word they
// already hold as a no-op.
type Sink interface {
	AddSuggestion(ctx context.Context, s Suggestion) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s Suggestion) error

func (f SinkFunc) AddSuggestion(ctx context.Context, s Suggestion) error {
	return f(ctx, s)
}

// Sinks fans a suggestion out to every sink and joins their errors.
type Sinks []Sink

func (ss Sinks) AddSuggestion(ctx context.Context, s Suggestion) error {
	var errs []error
	for _, sink := range ss {
		if sink == nil {
			continue
		}
		if err := sink.AddSuggestion(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
