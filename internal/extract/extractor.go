// Package extract turns uploaded study material into plain text for chunking.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/manabu/internal/models"
)

// extractFunc converts file bytes to text.
type extractFunc func(content []byte) (string, error)

var extractors = map[string]extractFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".pptx": extractPPTX,
	".xlsx": extractExcel,
	".txt":  extractPlain,
	".md":   extractPlain,
}

// SupportedExtensions returns the handled file extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supported reports whether ext (with leading dot, any case) can be extracted.
func Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(ext)]
	return ok
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(ext) {
		return "", unsupported(ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unsupported extensions
// and undecodable content return models.ErrValidation.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	fn, ok := extractors[ext]
	if !ok {
		return "", unsupported(ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return text, nil
}

func unsupported(ext string) error {
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Errorf("%w: unsupported file type %s (supported: %s)",
		models.ErrValidation, ext, strings.Join(SupportedExtensions(), " "))
}
