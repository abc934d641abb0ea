package document

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseInline splits one line of text into bold/italic spans. A run of one,
// two or three asterisks toggles italic, bold, or both; a run only opens
// when followed by non-space and only closes when preceded by non-space.
// `\*` is a literal asterisk. Unbalanced markup yields a single literal span.
func ParseInline(text string) []Span {
	if text == "" {
		return nil
	}
	spans, ok := parseInline(text)
	if !ok {
		return []Span{{Text: strings.ReplaceAll(text, `\*`, "*")}}
	}
	return spans
}

func parseInline(text string) ([]Span, bool) {
	var (
		out          []Span
		buf          strings.Builder
		bold, italic bool
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, Span{Text: buf.String(), Bold: bold, Italic: italic})
		buf.Reset()
	}

	for i := 0; i < len(text); {
		c := text[i]
		if c == '\\' && i+1 < len(text) && text[i+1] == '*' {
			buf.WriteByte('*')
			i += 2
			continue
		}
		if c != '*' {
			buf.WriteByte(c)
			i++
			continue
		}

		j := i
		for j < len(text) && text[j] == '*' {
			j++
		}
		canOpen := j < len(text) && !spaceAtStart(text[j:])
		canClose := i > 0 && !spaceAtEnd(text[:i])
		nextBold, nextItalic, ok := toggleMarks(j-i, bold, italic, canOpen, canClose)
		if ok {
			flush()
			bold, italic = nextBold, nextItalic
		} else {
			buf.WriteString(text[i:j])
		}
		i = j
	}
	flush()

	if bold || italic {
		return nil, false
	}
	return normalizeSpans(out), true
}

func toggleMarks(run int, bold, italic, canOpen, canClose bool) (bool, bool, bool) {
	switch run {
	case 1:
		if italic && canClose {
			return bold, false, true
		}
		if !italic && canOpen {
			return bold, true, true
		}
	case 2:
		if bold && canClose {
			return false, italic, true
		}
		if !bold && canOpen {
			return true, italic, true
		}
	case 3:
		switch {
		case bold && italic && canClose:
			return false, false, true
		case !bold && !italic && canOpen:
			return true, true, true
		case bold != italic && canOpen && canClose:
			return !bold, !italic, true
		}
	}
	return bold, italic, false
}

// FormatInline renders spans back to inline markup such that ParseInline
// of the result yields the same text and formatting. Literal asterisks are
// escaped only when the unescaped form would be misread.
func FormatInline(spans []Span) string {
	spans = normalizeSpans(spans)
	if len(spans) == 0 {
		return ""
	}
	plain := formatSpans(spans, false)
	if sameRendering(ParseInline(plain), spans) {
		return plain
	}
	return formatSpans(spans, true)
}

func formatSpans(spans []Span, escape bool) string {
	var b strings.Builder
	bold, italic := false, false
	for idx, span := range spans {
		text := span.Text
		if escape {
			text = strings.ReplaceAll(text, "*", `\*`)
		}

		opening := (span.Bold && !bold) || (span.Italic && !italic)
		if opening {
			trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
			b.WriteString(text[:len(text)-len(trimmed)])
			text = trimmed
		}
		b.WriteString(closeMarks(bold && !span.Bold, italic && !span.Italic))
		b.WriteString(openMarks(span.Bold && !bold, span.Italic && !italic))
		bold, italic = span.Bold, span.Italic

		var next Span
		if idx+1 < len(spans) {
			next = spans[idx+1]
		}
		closing := (bold && !next.Bold) || (italic && !next.Italic)
		if closing {
			trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
			b.WriteString(trimmed)
			b.WriteString(closeMarks(bold && !next.Bold, italic && !next.Italic))
			b.WriteString(text[len(trimmed):])
			bold = bold && next.Bold
			italic = italic && next.Italic
			continue
		}
		b.WriteString(text)
	}
	return b.String()
}

func openMarks(bold, italic bool) string {
	switch {
	case bold && italic:
		return "***"
	case bold:
		return "**"
	case italic:
		return "*"
	}
	return ""
}

func closeMarks(bold, italic bool) string {
	return openMarks(bold, italic)
}

// normalizeSpans drops empty spans, strips formatting from whitespace-only
// spans and merges neighbours with equal formatting.
func normalizeSpans(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, span := range spans {
		if span.Text == "" {
			continue
		}
		if strings.TrimSpace(span.Text) == "" {
			span.Bold, span.Italic = false, false
		}
		if n := len(out); n > 0 && out[n-1].Bold == span.Bold && out[n-1].Italic == span.Italic {
			out[n-1].Text += span.Text
			continue
		}
		out = append(out, span)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sameRendering compares text and the formatting of every non-space rune,
// ignoring which span surrounding whitespace was attributed to.
func sameRendering(a, b []Span) bool {
	if PlainText(a) != PlainText(b) {
		return false
	}
	ma, mb := runeMarks(a), runeMarks(b)
	if len(ma) != len(mb) {
		return false
	}
	for i := range ma {
		if ma[i] != mb[i] {
			return false
		}
	}
	return true
}

func runeMarks(spans []Span) []uint8 {
	var marks []uint8
	for _, span := range spans {
		var m uint8
		if span.Bold {
			m |= 1
		}
		if span.Italic {
			m |= 2
		}
		for _, r := range span.Text {
			if unicode.IsSpace(r) {
				continue
			}
			marks = append(marks, m)
		}
	}
	return marks
}

// PlainText concatenates span text without markup.
func PlainText(spans []Span) string {
	var b strings.Builder
	for _, span := range spans {
		b.WriteString(span.Text)
	}
	return b.String()
}

func spaceAtStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func spaceAtEnd(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}
