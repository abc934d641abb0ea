package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"marginalia/api/internal/document"
)

func para(p document.Provenance, spans ...document.Span) *document.Node {
	return &document.Node{Type: document.TypeParagraph, Provenance: p, Content: spans}
}

func item(p document.Provenance, text string, nested ...*document.Node) *document.Node {
	children := []*document.Node{{Type: document.TypeParagraph, Content: []document.Span{{Text: text}}}}
	return &document.Node{Type: document.TypeListItem, Provenance: p, Children: append(children, nested...)}
}

func TestTreeToHTML(t *testing.T) {
	tests := []struct {
		name     string
		root     *document.Node
		opts     HTMLOptions
		expected string
	}{
		{
			name:     "nil input",
			root:     nil,
			expected: "",
		},
		{
			name:     "simple paragraph",
			root:     &document.Node{Type: document.TypeDoc, Children: []*document.Node{para(document.ProvenanceUser, document.Span{Text: "Hello world"})}},
			expected: "<p>Hello world</p>\n",
		},
		{
			name: "heading with provenance",
			root: &document.Node{Type: document.TypeDoc, Children: []*document.Node{
				{Type: document.TypeHeading, Level: 2, Provenance: document.ProvenanceAI, Content: []document.Span{{Text: "Section"}}},
			}},
			opts:     HTMLOptions{Provenance: true},
			expected: "<h2 class=\"prov-ai\">Section</h2>\n",
		},
		{
			name: "out of range heading level",
			root: &document.Node{Type: document.TypeDoc, Children: []*document.Node{
				{Type: document.TypeHeading, Level: 9, Content: []document.Span{{Text: "Deep"}}},
			}},
			expected: "<h2>Deep</h2>\n",
		},
		{
			name:     "bold and italic text",
			root:     para("", document.Span{Text: "Bold and italic", Bold: true, Italic: true}),
			expected: "<p><strong><em>Bold and italic</em></strong></p>\n",
		},
		{
			name:     "escapes text",
			root:     para("", document.Span{Text: "a < b & c"}),
			expected: "<p>a &lt; b &amp; c</p>\n",
		},
		{
			name:     "missing provenance defaults to user",
			root:     para("", document.Span{Text: "x"}),
			opts:     HTMLOptions{Provenance: true},
			expected: "<p class=\"prov-user\">x</p>\n",
		},
		{
			name: "nested lists",
			root: &document.Node{Type: document.TypeBulletList, Children: []*document.Node{
				item(document.ProvenanceUser, "a",
					&document.Node{Type: document.TypeOrderedList, Start: 3, Children: []*document.Node{item(document.ProvenanceAI, "b")}}),
			}},
			opts:     HTMLOptions{Provenance: true},
			expected: "<ul>\n<li class=\"prov-user\">a\n<ol start=\"3\">\n<li class=\"prov-ai\">b</li>\n</ol>\n</li>\n</ul>\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TreeToHTML(tt.root, tt.opts); got != tt.expected {
				t.Errorf("TreeToHTML() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProvenanceCounts(t *testing.T) {
	root := document.Parse("# Standup\n[ai] met with Klaus\n[user] - follow up\n  [ai] - pricing\n[user] wrap up")
	user, ai := ProvenanceCounts(root)
	// heading inherits ai from the line below it
	if user != 2 || ai != 3 {
		t.Errorf("ProvenanceCounts() = (%d, %d), want (2, 3)", user, ai)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple Title", "Simple-Title"},
		{"Title with special chars!@#$%", "Title-with-special-chars"},
		{"", "note"},
		{"!!!", "note"},
		{"snake_case-and-dash", "snake_case-and-dash"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"<p>", "%3Cp%3E"},
		{"a-b_c.d~e", "a-b_c.d~e"},
		{"é", "%C3%A9"},
	}

	for _, tt := range tests {
		if got := percentEncodeForDataURL(tt.input); got != tt.expected {
			t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatHTML, false},
		{"html", FormatHTML, false},
		{"pdf", FormatPDF, false},
		{"txt", FormatTagged, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.input, got, err)
		}
	}
}

var standupNote = Note{
	ID:        "n1",
	Label:     "Weekly Standup",
	Tagged:    "# Standup\n[ai] met with **Klaus**\n[user] - follow up",
	UpdatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
}

func staticSource(n Note, err error) Source {
	return SourceFunc(func(context.Context, string, string) (Note, error) {
		return n, err
	})
}

func TestExportHTML(t *testing.T) {
	svc := NewService(staticSource(standupNote, nil), nil)

	res, err := svc.Export(context.Background(), Request{NoteID: "n1", Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Weekly-Standup.html" || !strings.HasPrefix(res.MimeType, "text/html") {
		t.Errorf("result = %q %q", res.Filename, res.MimeType)
	}
	html := string(res.Data)
	for _, want := range []string{
		"<title>Weekly Standup</title>",
		`<p class="prov-ai">met with <strong>Klaus</strong></p>`,
		`<li class="prov-user">follow up</li>`,
		"Mar 1, 2024 09:30",
		"1 written, 2 generated",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}

	res, err = svc.Export(context.Background(), Request{NoteID: "n1", Format: FormatHTML, HideProvenance: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.Contains(string(res.Data), "prov-ai") {
		t.Error("HideProvenance still rendered provenance classes")
	}
}

func TestExportTaggedAndPDF(t *testing.T) {
	var rendered string
	svc := NewService(staticSource(standupNote, nil), func(_ context.Context, html string) ([]byte, error) {
		rendered = html
		return []byte("%PDF-1.4"), nil
	})

	res, err := svc.Export(context.Background(), Request{NoteID: "n1", Format: FormatTagged})
	if err != nil {
		t.Fatalf("Export(txt) error = %v", err)
	}
	if string(res.Data) != standupNote.Tagged || res.Filename != "Weekly-Standup.txt" {
		t.Errorf("txt export = %q %q", res.Data, res.Filename)
	}

	res, err = svc.Export(context.Background(), Request{NoteID: "n1", Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if string(res.Data) != "%PDF-1.4" || res.MimeType != "application/pdf" || res.Filename != "Weekly-Standup.pdf" {
		t.Errorf("pdf export = %+v", res)
	}
	if !strings.Contains(rendered, "<title>Weekly Standup</title>") {
		t.Error("pdf renderer did not receive the note page")
	}
}

func TestExportErrors(t *testing.T) {
	missing := errors.New("not found")
	tests := []struct {
		name    string
		source  Source
		pdf     PDFRenderer
		format  Format
		wantErr error
	}{
		{"unsupported format", staticSource(standupNote, nil), nil, "docx", ErrUnsupportedFormat},
		{"source error", staticSource(Note{}, missing), nil, FormatHTML, missing},
		{"empty note", staticSource(Note{ID: "n1", Tagged: "  \n"}, nil), nil, FormatHTML, ErrContentUnavailable},
		{
			"pdf dependency missing",
			staticSource(standupNote, nil),
			func(context.Context, string) ([]byte, error) { return nil, ErrPDFDependencyMissing },
			FormatPDF,
			ErrPDFDependencyMissing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.source, tt.pdf)
			_, err := svc.Export(context.Background(), Request{NoteID: "n1", Format: tt.format})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Export() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

type fakeObjectStore struct {
	exists     bool
	madeBucket string
	putKey     string
	putBody    []byte
	putType    string
	putErr     error
}

func (f *fakeObjectStore) BucketExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeObjectStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.madeBucket = bucket
	return nil
}

func (f *fakeObjectStore) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return minio.UploadInfo{}, err
	}
	f.putKey = key
	f.putBody = buf.Bytes()
	f.putType = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func (f *fakeObjectStore) PresignedGetObject(_ context.Context, bucket, key string, _ time.Duration, params url.Values) (*url.URL, error) {
	return &url.URL{Scheme: "https", Host: "s3.test", Path: "/" + bucket + "/" + key, RawQuery: params.Encode()}, nil
}

func TestPublisher(t *testing.T) {
	fake := &fakeObjectStore{}
	pub, err := newPublisher(context.Background(), fake, "exports")
	if err != nil {
		t.Fatalf("newPublisher() error = %v", err)
	}
	if fake.madeBucket != "exports" {
		t.Errorf("bucket not created, got %q", fake.madeBucket)
	}
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	pub.now = func() time.Time { return now }

	res := &Result{Data: []byte("<html></html>"), Filename: "Standup.html", MimeType: "text/html; charset=utf-8"}
	got, err := pub.Publish(context.Background(), "n1", res)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	wantKey := "notes/n1/20240301T093000Z-Standup.html"
	if got.Key != wantKey || fake.putKey != wantKey {
		t.Errorf("key = %q, want %q", got.Key, wantKey)
	}
	if string(fake.putBody) != "<html></html>" || fake.putType != res.MimeType || got.Size != int64(len(res.Data)) {
		t.Errorf("upload = %q %q size %d", fake.putBody, fake.putType, got.Size)
	}
	if !strings.Contains(got.URL, "response-content-disposition") {
		t.Errorf("URL = %q, want content disposition param", got.URL)
	}
	if !got.ExpiresAt.Equal(now.Add(DefaultLinkExpiry)) {
		t.Errorf("ExpiresAt = %v", got.ExpiresAt)
	}

	fake.putErr = errors.New("denied")
	if _, err := pub.Publish(context.Background(), "n1", res); err == nil {
		t.Error("Publish() with failing upload returned nil error")
	}

	var nilPub *Publisher
	if _, err := nilPub.Publish(context.Background(), "n1", res); !errors.Is(err, ErrPublishingDisabled) {
		t.Errorf("nil Publish() error = %v", err)
	}
}

func TestPublisherExistingBucket(t *testing.T) {
	fake := &fakeObjectStore{exists: true}
	if _, err := newPublisher(context.Background(), fake, "exports"); err != nil {
		t.Fatalf("newPublisher() error = %v", err)
	}
	if fake.madeBucket != "" {
		t.Errorf("existing bucket recreated")
	}
}
