package document

import (
	"regexp"
	"strconv"
	"strings"
)

type lineKind int

const (
	kindBlank lineKind = iota
	kindRule
	kindHeading
	kindBullet
	kindOrdered
	kindParagraph
)

// taggedLine is one source line after the provenance marker has been
// stripped and the structural marker recognised.
type taggedLine struct {
	indent     int
	kind       lineKind
	provenance Provenance
	tagged     bool
	level      int
	ordinal    int
	body       string
}

var (
	tagPattern     = regexp.MustCompile(`^(?:\*\*|__)?\[(?i:(user|ai))\](?:\*\*|__)?`)
	headingPattern = regexp.MustCompile(`^(#{1,4})[ \t]+(.*)$`)
	bulletPattern  = regexp.MustCompile(`^-(?:[ \t]+(.*))?$`)
	orderedPattern = regexp.MustCompile(`^(\d{1,9})\.(?:[ \t]+(.*))?$`)
)

// SplitTag removes a leading provenance marker from a line body. ok is
// false when the line carries no marker.
func SplitTag(line string) (Provenance, string, bool) {
	match := tagPattern.FindStringSubmatchIndex(line)
	if match == nil {
		return "", line, false
	}
	prov, _ := ParseProvenance(line[match[2]:match[3]])
	return prov, line[match[1]:], true
}

// LineContent returns the text of a tagged line without indentation,
// provenance marker or structural marker.
func LineContent(raw string) string {
	return classifyLine(raw).body
}

func classifyLine(raw string) taggedLine {
	line := strings.TrimRight(raw, " \t\r")
	spaces, rest := splitIndent(line)

	tl := taggedLine{provenance: ProvenanceUser}
	if prov, after, ok := SplitTag(rest); ok {
		tl.provenance, tl.tagged = prov, true
		after = strings.TrimPrefix(after, " ")
		extra, trimmed := splitIndent(after)
		spaces += extra
		rest = trimmed
	}
	tl.indent = spaces / 2
	if tl.indent > MaxNestingDepth {
		tl.indent = MaxNestingDepth
	}

	switch {
	case rest == "":
		tl.kind = kindBlank
		return tl
	case isRule(rest):
		tl.kind = kindRule
		return tl
	}

	if m := headingPattern.FindStringSubmatch(rest); m != nil && strings.TrimSpace(m[2]) != "" {
		tl.kind = kindHeading
		tl.level = len(m[1])
		tl.body = m[2]
		tl.splitInnerTag()
		tl.body = unescapeBody(tl.body)
		return tl
	}
	if m := bulletPattern.FindStringSubmatch(rest); m != nil {
		tl.kind = kindBullet
		tl.body = m[1]
	} else if m := orderedPattern.FindStringSubmatch(rest); m != nil {
		tl.kind = kindOrdered
		tl.ordinal, _ = strconv.Atoi(m[1])
		tl.body = m[2]
	} else {
		tl.kind = kindParagraph
		tl.body = unescapeBody(rest)
		return tl
	}
	tl.splitInnerTag()
	tl.body = unescapeBody(tl.body)
	return tl
}

// splitInnerTag picks up a provenance marker written after the heading or
// list marker, as generated text sometimes does.
func (tl *taggedLine) splitInnerTag() {
	if tl.tagged {
		return
	}
	prov, after, ok := SplitTag(tl.body)
	if !ok {
		return
	}
	after = strings.TrimLeft(after, " \t")
	if tl.kind == kindHeading && after == "" {
		return
	}
	tl.provenance, tl.tagged = prov, true
	tl.body = after
}

// unescapeBody drops the backslash Serialize puts in front of text that
// would otherwise read as a marker. `\*` is left for ParseInline.
func unescapeBody(body string) string {
	if strings.HasPrefix(body, `\`) && !strings.HasPrefix(body, `\*`) {
		return body[1:]
	}
	return body
}

// splitIndent counts leading indentation in spaces, a tab counting as two.
func splitIndent(line string) (int, string) {
	spaces := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			spaces++
		case '\t':
			spaces += 2
		default:
			return spaces, line[i:]
		}
	}
	return spaces, ""
}

// isRule reports whether the line is three or more of one of -, * or _,
// optionally separated by spaces.
func isRule(line string) bool {
	compact := strings.ReplaceAll(line, " ", "")
	if len(compact) < 3 {
		return false
	}
	first := compact[0]
	if first != '-' && first != '*' && first != '_' {
		return false
	}
	for i := 1; i < len(compact); i++ {
		if compact[i] != first {
			return false
		}
	}
	return true
}

func tagToken(p Provenance) string {
	return "[" + string(p.OrDefault()) + "]"
}
