// Package revdiff compares two revisions of tagged note text: it aligns
// unchanged lines, pairs up modified lines, and spots likely vocabulary
// corrections inside them.
package revdiff

import "strings"

// Match is one line present, byte for byte, in both revisions.
type Match struct {
	OldIndex int `json:"oldIndex"`
	NewIndex int `json:"newIndex"`
}

// Line is a line of one revision together with its position.
type Line struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// SplitLines splits a revision into lines. An empty revision has no lines.
func SplitLines(revision string) []string {
	if revision == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(revision, "\r\n", "\n"), "\n")
}

// MaxAlignCells bounds the dynamic-programming table Align builds for the
// region between the common prefix and suffix. When the region is larger,
// only the prefix and suffix are matched and every line between them is
// reported as unmatched.
var MaxAlignCells = 4_000_000

// Align returns a longest common subsequence of old and new as increasing
// index pairs. Lines must be equal exactly to match. Inputs whose changed
// region exceeds MaxAlignCells get a prefix and suffix alignment only.
func Align(oldLines, newLines []string) []Match {
	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	matches := make([]Match, 0, prefix+suffix)
	for i := 0; i < prefix; i++ {
		matches = append(matches, Match{OldIndex: i, NewIndex: i})
	}
	a := oldLines[prefix : len(oldLines)-suffix]
	b := newLines[prefix : len(newLines)-suffix]
	var middle []Match
	if len(a) > 0 && len(b) > 0 && len(a) <= MaxAlignCells/len(b) {
		middle = lcs(a, b)
	}
	for _, m := range middle {
		matches = append(matches, Match{OldIndex: m.OldIndex + prefix, NewIndex: m.NewIndex + prefix})
	}
	for i := suffix; i > 0; i-- {
		matches = append(matches, Match{OldIndex: len(oldLines) - i, NewIndex: len(newLines) - i})
	}
	return matches
}

// lcs is the textbook dynamic program: cell (i, j) holds the LCS length of
// a[i:] and b[j:], walked forward from (0,0) to recover the pairs. The
// table is one flat int32 slice of (m+1)*(n+1) cells.
func lcs(a, b []string) []Match {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}
	width := n + 1
	table := make([]int32, (m+1)*width)
	at := func(i, j int) int32 { return table[i*width+j] }
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				table[i*width+j] = at(i+1, j+1) + 1
			case at(i+1, j) >= at(i, j+1):
				table[i*width+j] = at(i+1, j)
			default:
				table[i*width+j] = at(i, j+1)
			}
		}
	}

	out := make([]Match, 0, at(0, 0))
	for i, j := 0, 0; i < m && j < n; {
		switch {
		case a[i] == b[j]:
			out = append(out, Match{OldIndex: i, NewIndex: j})
			i++
			j++
		case at(i+1, j) >= at(i, j+1):
			i++
		default:
			j++
		}
	}
	return out
}

// Unmatched returns the old and new lines not covered by matches.
func Unmatched(oldLines, newLines []string, matches []Match) (oldOnly, newOnly []Line) {
	usedOld := make(map[int]bool, len(matches))
	usedNew := make(map[int]bool, len(matches))
	for _, m := range matches {
		usedOld[m.OldIndex] = true
		usedNew[m.NewIndex] = true
	}
	for i, text := range oldLines {
		if !usedOld[i] {
			oldOnly = append(oldOnly, Line{Index: i, Text: text})
		}
	}
	for j, text := range newLines {
		if !usedNew[j] {
			newOnly = append(newOnly, Line{Index: j, Text: text})
		}
	}
	return oldOnly, newOnly
}
