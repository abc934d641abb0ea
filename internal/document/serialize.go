package document

import (
	"strconv"
	"strings"
)

// SerializeOptions controls tagged-text output.
type SerializeOptions struct {
	// TagHeadings writes an explicit provenance marker on heading lines.
	// Without it, heading provenance is recomputed by inheritance when the
	// text is parsed again.
	TagHeadings bool
}

// Serialize renders the tree as tagged text, one line per leaf.
func Serialize(root *Node) string {
	return SerializeWith(root, SerializeOptions{})
}

// SerializeWith renders the tree as tagged text using opts. Missing
// provenance becomes user and an out-of-range heading level becomes 2.
func SerializeWith(root *Node, opts SerializeOptions) string {
	s := &serializer{opts: opts}
	s.block(root, 0)
	return strings.Join(s.lines, "\n")
}

type serializer struct {
	opts  SerializeOptions
	lines []string
}

func (s *serializer) block(n *Node, depth int) {
	if n == nil {
		return
	}
	switch n.Type {
	case TypeHeading:
		text := FormatInline(n.Content)
		if text == "" {
			return
		}
		level := n.Level
		if level < 1 || level > 4 {
			level = 2
		}
		prefix := strings.Repeat("#", level) + " "
		if s.opts.TagHeadings {
			prefix = tagToken(n.Provenance) + " " + prefix
		}
		s.lines = append(s.lines, prefix+escapeBody(prefix, text, kindHeading))
	case TypeParagraph:
		text := FormatInline(n.Content)
		if text == "" {
			return
		}
		prefix := tagToken(n.Provenance) + " "
		s.lines = append(s.lines, prefix+escapeBody(prefix, text, kindParagraph))
	case TypeBulletList, TypeOrderedList:
		s.list(n, depth)
	case TypeListItem:
		s.item(n, "-", depth)
	default:
		for _, child := range n.Children {
			s.block(child, depth)
		}
	}
}

func (s *serializer) list(list *Node, depth int) {
	ordinal := list.Start
	if ordinal <= 0 {
		ordinal = 1
	}
	for _, child := range list.Children {
		if child.Type != TypeListItem {
			s.block(child, depth)
			continue
		}
		marker := "-"
		if list.Type == TypeOrderedList {
			marker = strconv.Itoa(ordinal) + "."
			ordinal++
		}
		s.item(child, marker, depth)
	}
}

func (s *serializer) item(item *Node, marker string, depth int) {
	para := item.Paragraph()
	prov := item.Provenance
	if prov == "" && para != nil {
		prov = para.Provenance
	}

	line := strings.Repeat("  ", depth) + tagToken(prov) + " " + marker
	if para != nil {
		if text := FormatInline(para.Content); text != "" {
			kind := kindBullet
			if marker != "-" {
				kind = kindOrdered
			}
			line += " "
			line += escapeBody(line, text, kind)
		}
	}
	s.lines = append(s.lines, line)

	for _, child := range item.Children {
		switch {
		case child == para:
		case child.IsList():
			s.list(child, depth+1)
		default:
			s.block(child, depth+1)
		}
	}
}

// escapeBody prefixes text with a backslash when the line would otherwise
// parse back as another kind or lose leading characters, e.g. a paragraph
// reading "---" or "3. step".
func escapeBody(prefix, text string, kind lineKind) string {
	tl := classifyLine(prefix + text)
	if tl.kind == kind && tl.body == strings.TrimRight(text, " \t\r") {
		return text
	}
	return `\` + text
}
