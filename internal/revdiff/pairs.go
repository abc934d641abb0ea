package revdiff

import (
	"regexp"
	"strings"

	"marginalia/api/internal/document"
)

// DefaultOverlapThreshold is the word-overlap score a candidate pair must
// exceed to count as a modification rather than an insert plus a delete.
// It has not been tuned against real edits.
const DefaultOverlapThreshold = 0.3

// Pair is an old and a new line judged to be the same logical line.
type Pair struct {
	Old   Line    `json:"old"`
	New   Line    `json:"new"`
	Score float64 `json:"score"`
}

// Matcher pairs unmatched new lines with unmatched old lines. Each old
// line is used at most once. Returned pairs are ordered by new line index.
type Matcher interface {
	Match(oldLines, newLines []Line) []Pair
}

var overlapToken = regexp.MustCompile(`[a-z0-9]+`)

// Jaccard scores the word overlap of two lines: shared lowercase
// alphanumeric tokens over all distinct tokens. Provenance and structural
// markers are not words and are ignored. Two lines without tokens score
// zero.
func Jaccard(a, b string) float64 {
	return jaccardSets(tokenSet(a), tokenSet(b))
}

func tokenSet(line string) map[string]struct{} {
	tokens := overlapToken.FindAllString(strings.ToLower(document.LineContent(line)), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for token := range a {
		if _, ok := b[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// GreedyMatcher walks new lines in order and gives each the best old line
// still unused. It is not globally optimal: an early new line can take an
// old line a later one fits better. Ties go to the first old line seen.
type GreedyMatcher struct {
	Threshold float64
}

// Match implements Matcher.
func (g GreedyMatcher) Match(oldLines, newLines []Line) []Pair {
	oldSets := make([]map[string]struct{}, len(oldLines))
	for i, line := range oldLines {
		oldSets[i] = tokenSet(line.Text)
	}
	used := make([]bool, len(oldLines))

	var pairs []Pair
	for _, nl := range newLines {
		newSet := tokenSet(nl.Text)
		best, bestScore := -1, 0.0
		for i := range oldLines {
			if used[i] {
				continue
			}
			score := jaccardSets(oldSets[i], newSet)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 || bestScore <= g.Threshold {
			continue
		}
		used[best] = true
		pairs = append(pairs, Pair{Old: oldLines[best], New: nl, Score: bestScore})
	}
	return pairs
}
