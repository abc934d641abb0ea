package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"marginalia/api/internal/document"
	"marginalia/api/internal/export"
	"marginalia/api/internal/gitrepo"
	"marginalia/api/internal/session"
	"marginalia/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	apiKeyHash string
	router     chi.Router
}

// NewHTTPServer builds the API router. An empty apiKeyHash leaves the note
// routes open.
func NewHTTPServer(service *Service, corsOrigin, apiKeyHash string) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, apiKeyHash: apiKeyHash}
	s.setupRoutes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withMiddleware)
	r.Use(preflight)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Post("/api/convert/parse", s.handleParse)
	r.Post("/api/convert/serialize", s.handleSerialize)
	r.Post("/api/convert/markdown", s.handleMarkdown)
	r.Post("/api/diff", s.handleDiff)

	r.Group(func(r chi.Router) {
		r.Use(apiKeyAuth(s.apiKeyHash))

		r.Get("/api/notes", s.handleListNotes)
		r.Get("/api/sessions", s.handleListSessions)
		r.Route("/api/notes/{noteID}", func(r chi.Router) {
			r.Post("/open", s.handleOpenNote)
			r.Get("/", s.handleGetNote)
			r.Post("/edits", s.handleEditNote)
			r.Put("/content", s.handleReplaceContent)
			r.Post("/flush", s.handleFlushNote)
			r.Delete("/session", s.handleCloseNote)
			r.Get("/history", s.handleHistory)
			r.Get("/compare", s.handleCompare)
			r.Get("/export", s.handleExport)
			r.Post("/publish", s.handlePublish)
		})
		r.Get("/api/suggestions", s.handleSuggestions)
		r.Get("/api/search", s.handleSearch)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	s.router = r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Conversion

func (s *HTTPServer) handleParse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tagged string `json:"tagged"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc": s.service.Parse(body.Tagged)})
}

func (s *HTTPServer) handleSerialize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Doc         *document.Node `json:"doc"`
		TagHeadings bool           `json:"tagHeadings"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	tagged, err := s.service.Serialize(body.Doc, body.TagHeadings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tagged": tagged})
}

func (s *HTTPServer) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Markdown string `json:"markdown"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	doc, tagged := s.service.ImportMarkdown(body.Markdown)
	writeJSON(w, http.StatusOK, map[string]any{"doc": doc, "tagged": tagged})
}

func (s *HTTPServer) handleDiff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Old string `json:"old"`
		New string `json:"new"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Diff(body.Old, body.New))
}

// Note sessions

func (s *HTTPServer) handleListNotes(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	notes, err := s.service.ListNotes(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"open": s.service.OpenNotes()})
}

func (s *HTTPServer) handleOpenNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Label  string  `json:"label"`
		Tagged *string `json:"tagged"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	snap, err := s.service.OpenNote(r.Context(), chi.URLParam(r, "noteID"), strings.TrimSpace(body.Label), body.Tagged)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleGetNote(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.NoteSnapshot(chi.URLParam(r, "noteID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleEditNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NodeID string `json:"nodeId"`
		Text   string `json:"text"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	snap, err := s.service.EditNote(chi.URLParam(r, "noteID"), body.NodeID, body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleReplaceContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tagged string `json:"tagged"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	snap, err := s.service.ReplaceContent(r.Context(), chi.URLParam(r, "noteID"), body.Tagged)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleFlushNote(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.FlushNote(r.Context(), chi.URLParam(r, "noteID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleCloseNote(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseNote(r.Context(), chi.URLParam(r, "noteID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History and export

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	commits, err := s.service.History(chi.URLParam(r, "noteID"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": commits})
}

func (s *HTTPServer) handleCompare(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	view, err := s.service.CompareRevisions(chi.URLParam(r, "noteID"), strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func exportRequest(r *http.Request) (export.Request, error) {
	query := r.URL.Query()
	format, err := export.ParseFormat(strings.TrimSpace(query.Get("format")))
	if err != nil {
		return export.Request{}, err
	}
	hide, _ := strconv.ParseBool(query.Get("hideProvenance"))
	return export.Request{
		NoteID:         chi.URLParam(r, "noteID"),
		Version:        strings.TrimSpace(query.Get("version")),
		Format:         format,
		HideProvenance: hide,
	}, nil
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := exportRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.service.Export(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	req, err := exportRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	published, err := s.service.Publish(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, published)
}

// Vocabulary and search

func (s *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	items, err := s.service.Suggestions(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": items})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}
	query := r.URL.Query()
	payload, err := s.service.Search(r.Context(), query.Get("q"), strings.TrimSpace(query.Get("type")), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Plumbing

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("app: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, code, message, details)
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// RequestID returns the id the access log recorded for ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// maxBodyBytes caps JSON request bodies, including the unauthenticated
// conversion and diff endpoints.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error(), nil)
		return
	}
	writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, session.ErrNotOpen), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound, "NOTE_NOT_OPEN", "Note is not open", nil
	case errors.Is(err, document.ErrNodeNotFound):
		return http.StatusNotFound, "NODE_NOT_FOUND", "Node not found", nil
	case errors.Is(err, document.ErrNotEditable):
		return http.StatusUnprocessableEntity, "NODE_NOT_EDITABLE", "Node has no editable text", nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gitrepo.ErrNoHistory), errors.Is(err, export.ErrContentUnavailable):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, gitrepo.ErrInvalidID):
		return http.StatusUnprocessableEntity, "INVALID_NOTE_ID", "Invalid note id", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html, pdf or txt", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, export.ErrPublishingDisabled):
		return http.StatusServiceUnavailable, "PUBLISH_UNAVAILABLE", "Export publishing not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
