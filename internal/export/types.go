// Package export renders notes to HTML and PDF and publishes the results
// to an object store.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML   Format = "html"
	FormatPDF    Format = "pdf"
	FormatTagged Format = "txt"
)

// ParseFormat maps a query value to a Format. Empty means HTML.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatTagged:
		return FormatTagged, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	NoteID  string
	Version string // empty or "latest" for the saved head, else a revision hash
	Format  Format
	// HideProvenance drops the user/ai highlighting from HTML and PDF.
	HideProvenance bool
}

// Note is the content an export is rendered from.
type Note struct {
	ID        string
	Label     string
	Tagged    string
	UpdatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates note content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat is returned for formats other than html, pdf and txt.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPublishingDisabled is returned when no object store is configured.
	ErrPublishingDisabled = errors.New("export publishing not configured")
)
