package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marginalia/api/internal/vocab"
)

var ErrNotFound = errors.New("not found")

// SQLStore persists notes and vocabulary suggestions in Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) q(query string) string {
	return rebind(s.dialect, query)
}

// SaveRevision upserts the latest text of a note and bumps its revision.
func (s *SQLStore) SaveRevision(ctx context.Context, noteID, label, tagged string) error {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO notes (id, label, tagged, revision, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			label = excluded.label,
			tagged = excluded.tagged,
			revision = notes.revision + 1,
			updated_at = excluded.updated_at
	`), noteID, label, tagged, now, now)
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

func (s *SQLStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	var (
		n                    Note
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, label, tagged, revision, created_at, updated_at
		FROM notes WHERE id = ?
	`), noteID).Scan(&n.ID, &n.Label, &n.Tagged, &n.Revision, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note: %w", err)
	}
	n.CreatedAt = time.UnixMilli(createdAt).UTC()
	n.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return n, nil
}

// ListNotes returns notes, most recently saved first.
func (s *SQLStore) ListNotes(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, label, tagged, revision, created_at, updated_at
		FROM notes ORDER BY updated_at DESC, id LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var (
			n                    Note
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&n.ID, &n.Label, &n.Tagged, &n.Revision, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt = time.UnixMilli(createdAt).UTC()
		n.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		items = append(items, n)
	}
	return items, rows.Err()
}

// SearchNotes is a plain substring search over labels and text, used when
// no search index is configured.
func (s *SQLStore) SearchNotes(ctx context.Context, query string, limit int) ([]NoteHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []NoteHit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, label, tagged, updated_at
		FROM notes
		WHERE LOWER(label) LIKE ? ESCAPE '\' OR LOWER(tagged) LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, id
		LIMIT ?
	`), pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()

	hits := make([]NoteHit, 0)
	for rows.Next() {
		var (
			hit       NoteHit
			tagged    string
			updatedAt int64
		)
		if err := rows.Scan(&hit.ID, &hit.Label, &tagged, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan note hit: %w", err)
		}
		hit.Snippet = Snippet(tagged, query, 160)
		hit.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// AddSuggestion records a vocabulary suggestion; a word already recorded,
// in any case, is left as it is.
func (s *SQLStore) AddSuggestion(ctx context.Context, sg vocab.Suggestion) error {
	key := sg.Key()
	if key == "" {
		return nil
	}
	createdAt := sg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO suggestions (word_key, word, source_label, source_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (word_key) DO NOTHING
	`), key, strings.TrimSpace(sg.Word), sg.SourceLabel, sg.SourceID, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("add suggestion: %w", err)
	}
	return nil
}

// ListSuggestions returns suggestions, newest first.
func (s *SQLStore) ListSuggestions(ctx context.Context, limit int) ([]vocab.Suggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT word, source_label, source_id, created_at
		FROM suggestions ORDER BY created_at DESC, word_key LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	items := make([]vocab.Suggestion, 0)
	for rows.Next() {
		var (
			sg        vocab.Suggestion
			createdAt int64
		)
		if err := rows.Scan(&sg.Word, &sg.SourceLabel, &sg.SourceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		sg.CreatedAt = time.UnixMilli(createdAt).UTC()
		items = append(items, sg)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Snippet returns up to width bytes of text around the first
// case-insensitive occurrence of query, on rune boundaries.
func Snippet(text, query string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= width {
		return text
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if idx < 0 {
		idx = 0
	}
	start := idx - width/3
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(text) {
		end = len(text)
		start = max(0, end-width)
	}
	for start > 0 && !utf8RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8RuneStart(text[end]) {
		end++
	}
	out := text[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
