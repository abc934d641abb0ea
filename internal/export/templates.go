package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var noteTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/note.html")
	if err != nil {
		noteTemplate = template.Must(template.New("note").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	noteTemplate = template.Must(template.New("note").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for note template rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	UpdatedAt   time.Time
	UserBlocks  int
	AIBlocks    int
	// Highlight enables the provenance stylesheet.
	Highlight bool
}

// RenderNoteHTML renders the note template with provided data
func RenderNoteHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := noteTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
