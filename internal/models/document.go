// Package models defines the data structures shared by the ingestion, retrieval and generation pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Chunk is a passage of an ingested document. Position is its index within the
// category corpus and doubles as its identity in the vector index.
// Chunks are immutable once appended.
type Chunk struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
	Subject  string `json:"subject"`
	Position int    `json:"position"`
}

// DocumentRecord is the persistence log entry written once per ingested document.
type DocumentRecord struct {
	ID              string    `json:"id"`
	SourceID        string    `json:"source_id,omitempty"`
	Filename        string    `json:"filename"`
	Category        Category  `json:"exam_type"`
	Subject         string    `json:"subject"`
	UploadTimestamp time.Time `json:"upload_date"`
	ChunkCount      int       `json:"chunk_count"`
	Processed       bool      `json:"processed"`
}

// IngestRequest is the input for ingesting one document's text.
type IngestRequest struct {
	Text     string   `json:"text"`
	Filename string   `json:"filename"`
	Category Category `json:"exam_type"`
	Subject  string   `json:"subject"`
	// SourceID identifies the file a document came from, when known.
	SourceID string `json:"-"`
}

// Validate checks the request against the allowed categories and canonicalises the category.
func (r *IngestRequest) Validate(categories []Category) error {
	c, err := ParseCategory(string(r.Category), categories)
	if err != nil {
		return err
	}
	r.Category = c
	r.Filename = strings.TrimSpace(r.Filename)
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Filename == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if r.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: document text is empty", ErrValidation)
	}
	return nil
}

// IngestResult reports how many chunks an ingestion appended.
type IngestResult struct {
	Filename      string `json:"filename,omitempty"`
	ChunksCreated int    `json:"chunks_created"`
}
