package document

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"marginalia/api/internal/util"
)

// FromMarkdown imports a plain markdown note. Everything in it is user
// authored. Headings deeper than level 4 are clamped, thematic breaks are
// dropped, and block types the tree has no node for become paragraphs.
func FromMarkdown(src []byte) *Node {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	root := &Node{ID: util.NewID("doc"), Type: TypeDoc}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		root.Children = append(root.Children, importBlock(n, src)...)
	}
	return root
}

func importBlock(n ast.Node, src []byte) []*Node {
	switch node := n.(type) {
	case *ast.Heading:
		level := node.Level
		if level > 4 {
			level = 4
		}
		return []*Node{{
			ID:         util.NewID("n"),
			Type:       TypeHeading,
			Level:      level,
			Provenance: ProvenanceUser,
			Content:    importInline(node, src),
		}}
	case *ast.List:
		return []*Node{importList(node, src)}
	case *ast.ThematicBreak:
		return nil
	case *ast.Blockquote:
		var out []*Node
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			out = append(out, importBlock(c, src)...)
		}
		return out
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		var out []*Node
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			line := strings.TrimRight(string(segment.Value(src)), "\r\n")
			if strings.TrimSpace(line) == "" {
				continue
			}
			out = append(out, userParagraph([]Span{{Text: line}}))
		}
		return out
	default:
		content := importInline(n, src)
		if len(content) == 0 {
			return nil
		}
		return []*Node{userParagraph(content)}
	}
}

func importList(list *ast.List, src []byte) *Node {
	out := &Node{ID: util.NewID("n"), Type: TypeBulletList}
	if list.IsOrdered() {
		out.Type = TypeOrderedList
		if list.Start > 1 {
			out.Start = list.Start
		}
	}
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		item := &Node{ID: util.NewID("n"), Type: TypeListItem, Provenance: ProvenanceUser}
		var para *Node
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			if nested, ok := c.(*ast.List); ok {
				item.Children = append(item.Children, importList(nested, src))
				continue
			}
			content := importInline(c, src)
			if para == nil {
				para = &Node{ID: util.NewID("n"), Type: TypeParagraph}
				item.Children = append([]*Node{para}, item.Children...)
			} else if len(content) > 0 && len(para.Content) > 0 {
				para.Content = append(para.Content, Span{Text: " "})
			}
			para.Content = normalizeSpans(append(para.Content, content...))
		}
		if para == nil {
			item.Children = append([]*Node{{ID: util.NewID("n"), Type: TypeParagraph}}, item.Children...)
		}
		out.Children = append(out.Children, item)
	}
	return out
}

func importInline(n ast.Node, src []byte) []Span {
	var spans []Span
	collectInline(n, src, false, false, &spans)
	return normalizeSpans(spans)
}

func collectInline(n ast.Node, src []byte, bold, italic bool, out *[]Span) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			*out = append(*out, Span{Text: string(node.Segment.Value(src)), Bold: bold, Italic: italic})
			if node.SoftLineBreak() || node.HardLineBreak() {
				*out = append(*out, Span{Text: " "})
			}
		case *ast.String:
			*out = append(*out, Span{Text: string(node.Value), Bold: bold, Italic: italic})
		case *ast.Emphasis:
			if node.Level >= 2 {
				collectInline(node, src, true, italic, out)
			} else {
				collectInline(node, src, bold, true, out)
			}
		case *ast.AutoLink:
			*out = append(*out, Span{Text: string(node.Label(src)), Bold: bold, Italic: italic})
		default:
			collectInline(c, src, bold, italic, out)
		}
	}
}

func userParagraph(content []Span) *Node {
	return &Node{ID: util.NewID("n"), Type: TypeParagraph, Provenance: ProvenanceUser, Content: normalizeSpans(content)}
}
