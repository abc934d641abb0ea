package export

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"marginalia/api/internal/document"
)

// Source loads note content for export. version is empty or "latest" for
// the current text, otherwise a revision hash.
type Source interface {
	LoadNote(ctx context.Context, id, version string) (Note, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id, version string) (Note, error)

func (f SourceFunc) LoadNote(ctx context.Context, id, version string) (Note, error) {
	return f(ctx, id, version)
}

// Service provides note export functionality
type Service struct {
	source Source
	pdf    PDFRenderer
}

// NewService creates a new export service. A nil renderer uses headless Chrome.
func NewService(source Source, pdf PDFRenderer) *Service {
	if pdf == nil {
		pdf = ChromePDF
	}
	return &Service{source: source, pdf: pdf}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	switch req.Format {
	case "":
		req.Format = FormatHTML
	case FormatHTML, FormatPDF, FormatTagged:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	note, err := s.source.LoadNote(ctx, req.NoteID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("load note: %w", err)
	}
	if strings.TrimSpace(note.Tagged) == "" {
		return nil, ErrContentUnavailable
	}

	title := note.Label
	if strings.TrimSpace(title) == "" {
		title = note.ID
	}
	base := sanitizeFilename(title)

	if req.Format == FormatTagged {
		return &Result{
			Data:     []byte(note.Tagged),
			Filename: base + ".txt",
			MimeType: "text/plain; charset=utf-8",
		}, nil
	}

	page, err := RenderNote(note, !req.HideProvenance)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	if req.Format == FormatHTML {
		return &Result{
			Data:     []byte(page),
			Filename: base + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	}

	data, err := s.pdf(ctx, page)
	if err != nil {
		if errors.Is(err, ErrPDFDependencyMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: base + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// RenderNote parses the note's tagged text and renders a full HTML page.
func RenderNote(note Note, highlight bool) (string, error) {
	root := document.Parse(note.Tagged)
	user, ai := ProvenanceCounts(root)

	title := note.Label
	if strings.TrimSpace(title) == "" {
		title = note.ID
	}

	return RenderNoteHTML(TemplateData{
		Title:       title,
		ContentHTML: template.HTML(TreeToHTML(root, HTMLOptions{Provenance: highlight})),
		UpdatedAt:   note.UpdatedAt,
		UserBlocks:  user,
		AIBlocks:    ai,
		Highlight:   highlight,
	})
}
