package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// BERT special token IDs shared by the MiniLM vocabularies.
const (
	tokenPAD = 0
	tokenUNK = 100
	tokenCLS = 101
	tokenSEP = 102
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs, used when no vocabulary is configured.
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	words := strings.Fields(text)
	ids := make([]int64, len(words))
	for i, w := range words {
		ids[i] = int64(HashString(w)%30000) + 1000
	}
	return frame(ids, maxTokens)
}

// WordPieceTokenizer implements BERT uncased tokenization over a vocab.txt vocabulary:
// lower-casing, whitespace and punctuation splitting, then greedy longest-match word pieces.
type WordPieceTokenizer struct {
	vocab       map[string]int64
	maxWordRune int
}

// LoadWordPieceTokenizer reads a vocab.txt file (one token per line; the line number is the ID).
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()
	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return NewWordPieceTokenizer(vocab), nil
}

// NewWordPieceTokenizer builds a tokenizer over an in-memory vocabulary.
func NewWordPieceTokenizer(vocab map[string]int64) *WordPieceTokenizer {
	return &WordPieceTokenizer{vocab: vocab, maxWordRune: 100}
}

// Tokenize returns [CLS] pieces... [SEP], padded or truncated to maxTokens.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	var ids []int64
	for _, word := range basicTokens(text) {
		ids = append(ids, t.pieces(word)...)
		if len(ids) >= maxTokens {
			break
		}
	}
	return frame(ids, maxTokens)
}

func (t *WordPieceTokenizer) pieces(word string) []int64 {
	runes := []rune(word)
	if len(runes) > t.maxWordRune {
		return []int64{tokenUNK}
	}
	var out []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		found := int64(-1)
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int64{tokenUNK}
		}
		out = append(out, found)
		start = end
	}
	return out
}

// basicTokens lower-cases text, drops accents and control characters and splits on
// whitespace and punctuation, keeping punctuation as separate tokens.
func basicTokens(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsControl(r) || unicode.Is(unicode.Mn, r):
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// frame wraps ids in [CLS]/[SEP], truncates to maxTokens and pads with zeros.
func frame(ids []int64, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	if len(ids) > maxTokens-2 {
		ids = ids[:maxTokens-2]
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	inputIDs[0] = tokenCLS
	copy(inputIDs[1:], ids)
	inputIDs[len(ids)+1] = tokenSEP
	for i := 0; i < len(ids)+2; i++ {
		attentionMask[i] = 1
	}
	for i := len(ids) + 2; i < maxTokens; i++ {
		inputIDs[i] = tokenPAD
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
