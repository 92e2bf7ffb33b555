package models

import "errors"

// Error kinds returned by the RAG pipeline. Callers distinguish them with errors.Is.
var (
	// ErrValidation marks malformed input (unknown category, difficulty, question type, bad config).
	ErrValidation = errors.New("validation error")
	// ErrNotFound means retrieval produced no relevant chunks.
	ErrNotFound = errors.New("no relevant study material found")
	// ErrService marks a failed embedding or completion call. Retriable by the caller.
	ErrService = errors.New("upstream service error")
	// ErrParse means a model response did not match the expected structured shape.
	ErrParse = errors.New("malformed model output")
	// ErrDesync means a vector index position has no corpus entry.
	ErrDesync = errors.New("vector index and corpus out of sync")
)
