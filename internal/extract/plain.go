package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as string without a UTF-8 byte order mark.
// Invalid UTF-8 sequences are replaced with the replacement character.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	return strings.TrimPrefix(s, "\ufeff"), nil
}
