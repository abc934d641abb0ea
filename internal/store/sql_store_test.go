package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marginalia/api/internal/vocab"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(ctx, db, dialect); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	s := NewSQLStore(db, dialect)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, _, err := Open(context.Background(), "mysql://localhost/db"); err == nil {
		t.Error("Open(mysql) error = nil, want unsupported")
	}
}

func TestSaveRevisionAndGetNote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetNote(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetNote(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.SaveRevision(ctx, "note-1", "Standup", "[ai] first"); err != nil {
		t.Fatalf("SaveRevision() error = %v", err)
	}
	if err := s.SaveRevision(ctx, "note-1", "Standup 3/1", "[user] second"); err != nil {
		t.Fatalf("SaveRevision() error = %v", err)
	}

	n, err := s.GetNote(ctx, "note-1")
	if err != nil {
		t.Fatalf("GetNote() error = %v", err)
	}
	if n.Label != "Standup 3/1" || n.Tagged != "[user] second" || n.Revision != 2 {
		t.Errorf("GetNote() = %+v", n)
	}
	if !n.UpdatedAt.After(n.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", n.UpdatedAt, n.CreatedAt)
	}
}

func TestListNotesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveRevision(ctx, id, id, "[user] "+id); err != nil {
			t.Fatal(err)
		}
	}
	notes, err := s.ListNotes(ctx, 2)
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	if len(notes) != 2 || notes[0].ID != "c" || notes[1].ID != "b" {
		t.Errorf("ListNotes() = %+v, want c then b", notes)
	}
}

func TestSearchNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.SaveRevision(ctx, "n1", "Standup", "[user] met with Klaus about SHIVA rollout"))
	must(s.SaveRevision(ctx, "n2", "Pricing", "[ai] discussed pricing with Acme"))
	must(s.SaveRevision(ctx, "n3", "Odd", "[user] 100% done_ish"))

	tests := []struct {
		query string
		want  []string
	}{
		{"shiva", []string{"n1"}},
		{"PRICING", []string{"n2"}},
		{"standup", []string{"n1"}},
		{"%", []string{"n3"}},
		{"_", []string{"n3"}},
		{"nothing", nil},
		{"  ", nil},
	}
	for _, tt := range tests {
		hits, err := s.SearchNotes(ctx, tt.query, 10)
		if err != nil {
			t.Fatalf("SearchNotes(%q) error = %v", tt.query, err)
		}
		var got []string
		for _, h := range hits {
			got = append(got, h.ID)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("SearchNotes(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, sg := range []vocab.Suggestion{
		{Word: "SHIVA", SourceLabel: "Standup", SourceID: "n1"},
		{Word: "Acme", SourceLabel: "Pricing", SourceID: "n2"},
		{Word: "shiva", SourceLabel: "Later", SourceID: "n3"},
		{Word: " "},
	} {
		if err := s.AddSuggestion(ctx, sg); err != nil {
			t.Fatalf("AddSuggestion(%q) error = %v", sg.Word, err)
		}
	}

	got, err := s.ListSuggestions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSuggestions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListSuggestions() = %+v, want 2", got)
	}
	if got[0].Word != "Acme" || got[1].Word != "SHIVA" || got[1].SourceLabel != "Standup" {
		t.Errorf("ListSuggestions() = %+v", got)
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("alpha ", 40) + "needle " + strings.Repeat("omega ", 40)
	got := Snippet(long, "NEEDLE", 60)
	if !strings.Contains(got, "needle") {
		t.Errorf("Snippet() = %q, want it to contain needle", got)
	}
	if !strings.HasPrefix(got, "…") || !strings.HasSuffix(got, "…") {
		t.Errorf("Snippet() = %q, want ellipses on both sides", got)
	}
	if got := Snippet("short  text", "x", 60); got != "short text" {
		t.Errorf("Snippet(short) = %q", got)
	}
}
