package document

import (
	"strings"

	"marginalia/api/internal/util"
)

// Parse builds a document tree from tagged text. It never fails: lines it
// cannot classify become paragraphs with user provenance, and indentation
// anomalies are placed as close to the written structure as possible.
func Parse(text string) *Node {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]taggedLine, 0, len(raw))
	for _, r := range raw {
		line := classifyLine(r)
		if line.kind == kindBlank || line.kind == kindRule {
			continue
		}
		lines = append(lines, line)
	}
	inheritHeadingProvenance(lines)

	b := newTreeBuilder()
	for _, line := range lines {
		b.add(line)
	}
	return b.root
}

// inheritHeadingProvenance gives each untagged heading the provenance of
// the nearest following tagged line, or user when there is none.
func inheritHeadingProvenance(lines []taggedLine) {
	next := ProvenanceUser
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].tagged {
			next = lines[i].provenance
			continue
		}
		if lines[i].kind == kindHeading {
			lines[i].provenance = next
		}
	}
}

type listFrame struct {
	list  *Node
	depth int
}

// treeBuilder places lines with an explicit stack of open lists, one frame
// per nesting level, instead of recursing per indentation level.
type treeBuilder struct {
	root  *Node
	stack []listFrame
}

func newTreeBuilder() *treeBuilder {
	return &treeBuilder{root: &Node{ID: util.NewID("doc"), Type: TypeDoc}}
}

func (b *treeBuilder) add(line taggedLine) {
	switch line.kind {
	case kindHeading:
		b.stack = b.stack[:0]
		b.root.Children = append(b.root.Children, &Node{
			ID:         util.NewID("n"),
			Type:       TypeHeading,
			Level:      line.level,
			Provenance: line.provenance,
			Content:    ParseInline(line.body),
		})
	case kindBullet, kindOrdered:
		b.addItem(line)
	default:
		b.stack = b.stack[:0]
		b.root.Children = append(b.root.Children, &Node{
			ID:         util.NewID("n"),
			Type:       TypeParagraph,
			Provenance: line.provenance,
			Content:    ParseInline(line.body),
		})
	}
}

func (b *treeBuilder) addItem(line taggedLine) {
	listType := TypeBulletList
	if line.kind == kindOrdered {
		listType = TypeOrderedList
	}
	item := &Node{
		ID:         util.NewID("n"),
		Type:       TypeListItem,
		Provenance: line.provenance,
		Children: []*Node{{
			ID:      util.NewID("n"),
			Type:    TypeParagraph,
			Content: ParseInline(line.body),
		}},
	}

	depth := line.indent
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].depth > depth {
		b.stack = b.stack[:len(b.stack)-1]
	}

	if len(b.stack) == 0 {
		// No open parent list: the line starts a list at base level.
		b.openList(listType, line, depth, nil).Children = []*Node{item}
		return
	}

	top := b.stack[len(b.stack)-1]
	switch {
	case top.depth == depth && top.list.Type == listType:
		top.list.Children = append(top.list.Children, item)
	case top.depth == depth:
		b.stack = b.stack[:len(b.stack)-1]
		var parent *Node
		if len(b.stack) > 0 {
			parent = lastItem(b.stack[len(b.stack)-1].list)
		}
		b.openList(listType, line, depth, parent).Children = []*Node{item}
	case len(b.stack) >= MaxNestingDepth:
		top.list.Children = append(top.list.Children, item)
	default:
		b.openList(listType, line, depth, lastItem(top.list)).Children = []*Node{item}
	}
}

// openList creates a list, attaches it under parent (or the document root
// when parent is nil) and pushes it on the stack.
func (b *treeBuilder) openList(listType NodeType, line taggedLine, depth int, parent *Node) *Node {
	list := &Node{ID: util.NewID("n"), Type: listType}
	if listType == TypeOrderedList && line.ordinal > 1 {
		list.Start = line.ordinal
	}
	if parent == nil {
		b.root.Children = append(b.root.Children, list)
	} else {
		parent.Children = append(parent.Children, list)
	}
	b.stack = append(b.stack, listFrame{list: list, depth: depth})
	return list
}

func lastItem(list *Node) *Node {
	return list.Children[len(list.Children)-1]
}
