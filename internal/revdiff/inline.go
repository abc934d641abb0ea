package revdiff

import "github.com/sergi/go-diff/diffmatchpatch"

// ChangeOp is the kind of an intra-line change.
type ChangeOp string

const (
	OpEqual  ChangeOp = "equal"
	OpInsert ChangeOp = "insert"
	OpDelete ChangeOp = "delete"
)

// Change is one run of an intra-line diff.
type Change struct {
	Op   ChangeOp `json:"op"`
	Text string   `json:"text"`
}

// Changes returns the character-level edit script turning the old line of
// the pair into the new one, cleaned up to word-ish boundaries.
func (p Pair) Changes() []Change {
	return LineChanges(p.Old.Text, p.New.Text)
}

// LineChanges diffs two single lines.
func LineChanges(oldLine, newLine string) []Change {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldLine, newLine, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	out := make([]Change, 0, len(diffs))
	for _, d := range diffs {
		var op ChangeOp
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		default:
			op = OpEqual
		}
		out = append(out, Change{Op: op, Text: d.Text})
	}
	return out
}
