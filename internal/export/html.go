package export

import (
	"fmt"
	"html"
	"strings"

	"marginalia/api/internal/document"
)

// HTMLOptions controls tree rendering.
type HTMLOptions struct {
	// Provenance adds a prov-user / prov-ai class to every attributed block.
	Provenance bool
}

// TreeToHTML renders a document tree as an HTML fragment.
func TreeToHTML(root *document.Node, opts HTMLOptions) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, root, opts)
	return b.String()
}

func renderNode(b *strings.Builder, node *document.Node, opts HTMLOptions) {
	switch node.Type {
	case document.TypeDoc:
		renderChildren(b, node, opts)
	case document.TypeParagraph:
		fmt.Fprintf(b, "<p%s>%s</p>\n", provAttr(node.Provenance, opts), renderSpans(node.Content))
	case document.TypeHeading:
		level := node.Level
		if level < 1 || level > 4 {
			level = 2
		}
		fmt.Fprintf(b, "<h%d%s>%s</h%d>\n", level, provAttr(node.Provenance, opts), renderSpans(node.Content), level)
	case document.TypeBulletList:
		b.WriteString("<ul>\n")
		renderChildren(b, node, opts)
		b.WriteString("</ul>\n")
	case document.TypeOrderedList:
		if node.Start > 1 {
			fmt.Fprintf(b, "<ol start=\"%d\">\n", node.Start)
		} else {
			b.WriteString("<ol>\n")
		}
		renderChildren(b, node, opts)
		b.WriteString("</ol>\n")
	case document.TypeListItem:
		fmt.Fprintf(b, "<li%s>", provAttr(itemProvenance(node), opts))
		para := node.Paragraph()
		if para != nil {
			b.WriteString(renderSpans(para.Content))
		}
		nested := false
		for _, child := range node.Children {
			if child == para {
				continue
			}
			if !nested {
				b.WriteString("\n")
				nested = true
			}
			renderNode(b, child, opts)
		}
		b.WriteString("</li>\n")
	default:
		renderChildren(b, node, opts)
	}
}

func renderChildren(b *strings.Builder, node *document.Node, opts HTMLOptions) {
	for _, child := range node.Children {
		renderNode(b, child, opts)
	}
}

func itemProvenance(item *document.Node) document.Provenance {
	if item.Provenance != "" {
		return item.Provenance
	}
	if para := item.Paragraph(); para != nil {
		return para.Provenance
	}
	return ""
}

func provAttr(p document.Provenance, opts HTMLOptions) string {
	if !opts.Provenance {
		return ""
	}
	return fmt.Sprintf(` class="prov-%s"`, p.OrDefault())
}

// renderSpans renders inline spans with formatting marks
func renderSpans(spans []document.Span) string {
	var b strings.Builder
	for _, span := range spans {
		if span.Text == "" {
			continue
		}
		text := html.EscapeString(span.Text)
		if span.Italic {
			text = "<em>" + text + "</em>"
		}
		if span.Bold {
			text = "<strong>" + text + "</strong>"
		}
		b.WriteString(text)
	}
	return b.String()
}

// ProvenanceCounts tallies attributed blocks by provenance. A list item
// counts once; its own paragraph is not counted again.
func ProvenanceCounts(root *document.Node) (user, ai int) {
	document.Walk(root, func(n, parent *document.Node) bool {
		var p document.Provenance
		switch {
		case n.Type == document.TypeListItem:
			p = itemProvenance(n)
		case n.IsTextBlock() && (parent == nil || parent.Type != document.TypeListItem):
			p = n.Provenance
		default:
			return true
		}
		if p.OrDefault() == document.ProvenanceAI {
			ai++
		} else {
			user++
		}
		return true
	})
	return user, ai
}
