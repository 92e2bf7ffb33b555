package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text before chunking: CRLF and CR become LF,
// control characters are dropped, runs of spaces and tabs inside a line collapse
// to one space, and more than one blank line collapses to a single paragraph break.
// Line and paragraph structure is preserved for the splitter.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	space := false
	for _, r := range text {
		switch {
		case r == '\n':
			newlines++
			space = false
		case r == ' ' || r == '\t' || unicode.IsSpace(r):
			space = true
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			continue
		default:
			if b.Len() > 0 {
				switch {
				case newlines >= 2:
					b.WriteString("\n\n")
				case newlines == 1:
					b.WriteByte('\n')
				case space:
					b.WriteByte(' ')
				}
			}
			newlines = 0
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
