package store

import "time"

// Note is the latest saved revision of a note.
type Note struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Tagged    string    `json:"tagged"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteHit is a note matched by a text search.
type NoteHit struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Snippet   string    `json:"snippet"`
	UpdatedAt time.Time `json:"updatedAt"`
}
