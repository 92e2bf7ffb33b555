package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/manabu/internal/models"
)

// Splitter is a recursive character splitter. Lengths are measured in runes.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter. overlap must be in [0, chunkSize).
// The separators are tried in order; "" (or running out of separators) means raw character slicing.
func NewSplitter(chunkSize, overlap int, separators []string) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrValidation, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", models.ErrValidation, overlap, chunkSize)
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: append([]string(nil), separators...),
	}, nil
}

// Split returns the ordered chunks of text. Output depends only on the input and
// the splitter settings.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator, rest, ok := pickSeparator(text, separators)
	if !ok {
		return s.slice(text)
	}

	var chunks, pending []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending)...)
			pending = nil
		}
		chunks = append(chunks, s.split(piece, rest)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending)...)
	}
	return chunks
}

// pickSeparator returns the first separator present in text and the separators after it.
// An empty separator, or none matching, reports ok=false.
func pickSeparator(text string, separators []string) (string, []string, bool) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil, false
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:], true
		}
	}
	return "", nil, false
}

// splitKeepSeparator splits text on sep, keeping each separator at the start of the following piece.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

// merge packs pieces into chunks of at most chunkSize runes, carrying trailing pieces
// totalling at most overlap runes into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks, window []string
	total := 0
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > s.chunkSize && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.overlap || (total+n > s.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// slice cuts text into windows of chunkSize runes with stride chunkSize-overlap;
// the last window ends at the end of text.
func (s *Splitter) slice(text string) []string {
	runes := []rune(text)
	if len(runes) <= s.chunkSize {
		return []string{text}
	}
	step := s.chunkSize - s.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
