package models

import (
	"fmt"
	"strings"
)

// Category is an exam type. Each category owns its own vector index and corpus.
type Category string

// Default exam categories.
const (
	CategoryNEET Category = "NEET"
	CategoryJEE  Category = "JEE"
)

// DefaultCategories is used when the configuration does not list any.
var DefaultCategories = []Category{CategoryNEET, CategoryJEE}

// ParseCategory matches s case-insensitively against allowed and returns the canonical value.
func ParseCategory(s string, allowed []Category) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: exam type is required", ErrValidation)
	}
	for _, c := range allowed {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown exam type %q (supported: %s)", ErrValidation, s, joinCategories(allowed))
}

// CategoriesFromStrings converts configured names to categories, dropping blanks and duplicates.
func CategoriesFromStrings(names []string) []Category {
	seen := make(map[string]bool, len(names))
	out := make([]Category, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToUpper(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Category(n))
	}
	return out
}

func joinCategories(cs []Category) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
