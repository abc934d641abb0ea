package revdiff

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"marginalia/api/internal/document"
)

// Limits for correction suggestions. Like the overlap threshold, these are
// starting points rather than tuned values.
const (
	DefaultMaxPerPair     = 5
	DefaultMaxPerRevision = 5
	DefaultMinWordLength  = 3
	DefaultMaxWordLength  = 30
)

// Options configures pairing and correction detection. Zero fields take
// the package defaults.
type Options struct {
	OverlapThreshold float64
	MaxPerPair       int
	MaxPerRevision   int
	MinWordLength    int
	MaxWordLength    int
	// Matcher pairs modified lines. Defaults to GreedyMatcher.
	Matcher Matcher
	// IsCandidate decides whether an added word looks like a vocabulary
	// correction. Defaults to "starts with an upper-case letter".
	IsCandidate func(word string) bool
}

// DefaultOptions returns the package defaults.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.OverlapThreshold <= 0 {
		o.OverlapThreshold = DefaultOverlapThreshold
	}
	if o.MaxPerPair <= 0 {
		o.MaxPerPair = DefaultMaxPerPair
	}
	if o.MaxPerRevision <= 0 {
		o.MaxPerRevision = DefaultMaxPerRevision
	}
	if o.MinWordLength <= 0 {
		o.MinWordLength = DefaultMinWordLength
	}
	if o.MaxWordLength <= 0 {
		o.MaxWordLength = DefaultMaxWordLength
	}
	if o.Matcher == nil {
		o.Matcher = GreedyMatcher{Threshold: o.OverlapThreshold}
	}
	if o.IsCandidate == nil {
		o.IsCandidate = Capitalized
	}
	return o
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*(?:['-][A-Za-z0-9]+)*`)

var stopWords = toSet(
	"the", "a", "an", "and", "or", "but", "if", "then", "so", "than",
	"to", "of", "in", "on", "at", "by", "for", "with", "from", "about",
	"as", "into", "is", "are", "was", "were", "be", "been", "it", "its",
	"this", "that", "these", "those", "we", "you", "he", "she", "they",
	"i", "our", "your", "their", "not", "no", "yes", "do", "did", "will",
	"would", "can", "could", "should", "have", "has", "had",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsStopWord reports whether word is a common function word that is never
// suggested.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// Capitalized reports whether word starts with an upper-case letter.
func Capitalized(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

// DetectCorrections returns words added in newLine that likely correct a
// misheard term in oldLine. A line that only gained words yields nothing.
// Provenance markers and list or heading markers are ignored.
func DetectCorrections(oldLine, newLine string, opts Options) []string {
	opts = opts.withDefaults()

	oldWords := lowerSet(words(document.LineContent(oldLine)))
	newWords := words(document.LineContent(newLine))
	newSet := lowerSet(newWords)

	removed := false
	for w := range oldWords {
		if _, ok := newSet[w]; !ok {
			removed = true
			break
		}
	}
	if !removed {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, w := range newWords {
		lower := strings.ToLower(w)
		if _, ok := oldWords[lower]; ok || seen[lower] {
			continue
		}
		seen[lower] = true
		if !acceptWord(w, opts) {
			continue
		}
		out = append(out, w)
		if len(out) == opts.MaxPerPair {
			break
		}
	}
	return out
}

func acceptWord(w string, opts Options) bool {
	if IsStopWord(w) {
		return false
	}
	n := utf8.RuneCountInString(w)
	if n < opts.MinWordLength || n > opts.MaxWordLength {
		return false
	}
	return opts.IsCandidate(w)
}

func words(line string) []string {
	return wordPattern.FindAllString(line, -1)
}

func lowerSet(ws []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}
