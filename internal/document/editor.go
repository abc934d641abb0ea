package document

import (
	"errors"

	"marginalia/api/internal/util"
)

var (
	// ErrNodeNotFound indicates an edit referenced a node the tree does not contain.
	ErrNodeNotFound = errors.New("document node not found")
	// ErrNotEditable indicates the node holds no inline text.
	ErrNotEditable = errors.New("document node not editable")
)

// Editor owns one document tree and applies edits to it. Interactive
// edits promote AI-attributed content to user provenance in the same
// call; programmatic replacement and suppressed edits never do.
type Editor struct {
	root     *Node
	nodes    map[string]*Node
	parents  map[string]*Node
	suppress int
}

// NewEditor indexes root for editing. A nil root starts an empty document.
func NewEditor(root *Node) *Editor {
	e := &Editor{}
	e.reset(root)
	return e
}

// Root returns the current tree.
func (e *Editor) Root() *Node {
	return e.root
}

// Node looks up a node by id.
func (e *Editor) Node(id string) (*Node, bool) {
	n, ok := e.nodes[id]
	return n, ok
}

// InteractiveEdit replaces the inline content of nodeID. When the smallest
// enclosing taggable node (paragraph, list item or heading) is attributed
// to the model, it is promoted to user and returned.
func (e *Editor) InteractiveEdit(nodeID string, content []Span) (*Node, error) {
	n, ok := e.nodes[nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}

	target := n
	if n.Type == TypeListItem {
		target = n.Paragraph()
		if target == nil {
			target = &Node{ID: util.NewID("n"), Type: TypeParagraph}
			n.Children = append([]*Node{target}, n.Children...)
			e.nodes[target.ID] = target
			e.parents[target.ID] = n
		}
	}
	if !target.IsTextBlock() {
		return nil, ErrNotEditable
	}
	target.Content = normalizeSpans(content)

	if e.suppress > 0 {
		return nil, nil
	}
	return e.promote(target), nil
}

// ProgrammaticReplace swaps in a whole new tree, e.g. freshly generated
// content. Provenance is taken as given.
func (e *Editor) ProgrammaticReplace(root *Node) {
	e.reset(root)
}

// Suppress runs fn with promotion disabled, for bulk edits that must keep
// the attribution they were given.
func (e *Editor) Suppress(fn func() error) error {
	e.suppress++
	defer func() { e.suppress-- }()
	return fn()
}

func (e *Editor) promote(n *Node) *Node {
	for cur := n; cur != nil; cur = e.parents[cur.ID] {
		if !taggable(cur) {
			continue
		}
		if cur.Provenance == "" {
			continue
		}
		if cur.Provenance != ProvenanceAI {
			return nil
		}
		cur.Provenance = ProvenanceUser
		return cur
	}
	return nil
}

func taggable(n *Node) bool {
	return n.Type == TypeParagraph || n.Type == TypeListItem || n.Type == TypeHeading
}

func (e *Editor) reset(root *Node) {
	if root == nil {
		root = &Node{ID: util.NewID("doc"), Type: TypeDoc}
	}
	e.root = root
	e.nodes = make(map[string]*Node)
	e.parents = make(map[string]*Node)
	Walk(root, func(node, parent *Node) bool {
		if node.ID == "" {
			node.ID = util.NewID("n")
		}
		e.nodes[node.ID] = node
		if parent != nil {
			e.parents[node.ID] = parent
		}
		return true
	})
}
