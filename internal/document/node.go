// Package document converts between tagged note text and the editable
// document tree, and applies provenance promotion on interactive edits.
package document

import "strings"

// Provenance marks content as written by the user or generated by the model.
type Provenance string

const (
	ProvenanceUser Provenance = "user"
	ProvenanceAI   Provenance = "ai"
)

// NodeType identifies the kind of node in the document tree.
type NodeType string

const (
	TypeDoc         NodeType = "doc"
	TypeHeading     NodeType = "heading"
	TypeParagraph   NodeType = "paragraph"
	TypeBulletList  NodeType = "bulletList"
	TypeOrderedList NodeType = "orderedList"
	TypeListItem    NodeType = "listItem"
)

// MaxNestingDepth bounds list nesting on input with runaway indentation.
const MaxNestingDepth = 32

// Node is one node of the document tree. Headings and paragraphs carry
// Content; the doc, lists and list items carry Children. A list item holds
// one paragraph followed by zero or more nested lists, and the provenance
// of a list item lives on the item, not on its paragraph.
type Node struct {
	ID         string     `json:"id,omitempty"`
	Type       NodeType   `json:"type"`
	Level      int        `json:"level,omitempty"`
	Start      int        `json:"start,omitempty"`
	Provenance Provenance `json:"provenance,omitempty"`
	Content    []Span     `json:"content,omitempty"`
	Children   []*Node    `json:"children,omitempty"`
}

// Span is a run of inline text with uniform formatting.
type Span struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// ParseProvenance maps a tag token to a provenance. ok is false for
// anything other than user or ai.
func ParseProvenance(value string) (Provenance, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ProvenanceUser):
		return ProvenanceUser, true
	case string(ProvenanceAI):
		return ProvenanceAI, true
	default:
		return "", false
	}
}

// OrDefault returns p, or user when p is unset or unknown.
func (p Provenance) OrDefault() Provenance {
	if p == ProvenanceAI {
		return ProvenanceAI
	}
	return ProvenanceUser
}

// IsList reports whether the node is a bullet or ordered list.
func (n *Node) IsList() bool {
	return n != nil && (n.Type == TypeBulletList || n.Type == TypeOrderedList)
}

// IsTextBlock reports whether the node holds inline content directly.
func (n *Node) IsTextBlock() bool {
	return n != nil && (n.Type == TypeHeading || n.Type == TypeParagraph)
}

// Paragraph returns the text paragraph of a list item, or nil.
func (n *Node) Paragraph() *Node {
	if n == nil || n.Type != TypeListItem {
		return nil
	}
	for _, child := range n.Children {
		if child.Type == TypeParagraph {
			return child
		}
	}
	return nil
}

// Text returns the plain text of the node's own content.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	if n.Type == TypeListItem {
		return n.Paragraph().Text()
	}
	return PlainText(n.Content)
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of that node.
func Walk(n *Node, fn func(node, parent *Node) bool) {
	walk(n, nil, fn)
}

func walk(n, parent *Node, fn func(node, parent *Node) bool) {
	if n == nil {
		return
	}
	if !fn(n, parent) {
		return
	}
	for _, child := range n.Children {
		walk(child, n, fn)
	}
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Content != nil {
		c.Content = append([]Span(nil), n.Content...)
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}
