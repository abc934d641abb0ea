package revdiff

import "strings"

// Result describes how a new revision differs from an old one.
type Result struct {
	Matches     []Match  `json:"matches"`
	Pairs       []Pair   `json:"pairs"`
	Inserted    []Line   `json:"inserted"`
	Deleted     []Line   `json:"deleted"`
	Suggestions []string `json:"suggestions"`
}

// Diff aligns the two revisions, pairs modified lines and collects
// correction suggestions from the pairs in new-line order, de-duplicated
// case-insensitively and capped per revision.
func Diff(oldRevision, newRevision string, opts Options) Result {
	opts = opts.withDefaults()
	oldLines, newLines := SplitLines(oldRevision), SplitLines(newRevision)

	res := Result{Matches: Align(oldLines, newLines)}
	oldOnly, newOnly := Unmatched(oldLines, newLines, res.Matches)
	res.Pairs = opts.Matcher.Match(oldOnly, newOnly)

	pairedOld := make(map[int]bool, len(res.Pairs))
	pairedNew := make(map[int]bool, len(res.Pairs))
	for _, p := range res.Pairs {
		pairedOld[p.Old.Index] = true
		pairedNew[p.New.Index] = true
	}
	for _, line := range oldOnly {
		if !pairedOld[line.Index] {
			res.Deleted = append(res.Deleted, line)
		}
	}
	for _, line := range newOnly {
		if !pairedNew[line.Index] {
			res.Inserted = append(res.Inserted, line)
		}
	}

	res.Suggestions = suggestions(res.Pairs, opts)
	return res
}

// Suggest is Diff reduced to the suggestion words.
func Suggest(oldRevision, newRevision string, opts Options) []string {
	return Diff(oldRevision, newRevision, opts).Suggestions
}

func suggestions(pairs []Pair, opts Options) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range pairs {
		for _, w := range DetectCorrections(p.Old.Text, p.New.Text, opts) {
			lower := strings.ToLower(w)
			if seen[lower] {
				continue
			}
			seen[lower] = true
			out = append(out, w)
			if len(out) == opts.MaxPerRevision {
				return out
			}
		}
	}
	return out
}
