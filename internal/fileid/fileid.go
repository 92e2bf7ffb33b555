// Package fileid derives deterministic source IDs for ingested files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/hyperjump/manabu/internal/models"
)

const prefix = "file:"

// SourceID returns a stable ID for a file ingested into category. The same cleaned
// path in the same category always yields the same ID, so re-ingestion can be detected.
func SourceID(category models.Category, absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(string(category))))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return prefix + hex.EncodeToString(h.Sum(nil))
}
