package models

import "time"

// RetrievalResult is a retrieved chunk with its relevance score in (0, 1].
type RetrievalResult struct {
	Chunk          Chunk   `json:"chunk"`
	RelevanceScore float64 `json:"relevance_score"`
	Distance       float64 `json:"distance"`
}

// Source is a citation preview returned with an answer.
type Source struct {
	Preview        string  `json:"content"`
	Filename       string  `json:"filename"`
	Subject        string  `json:"subject"`
	RelevanceScore float64 `json:"relevance_score"`
}

// AnswerResult is the response to an answered query.
type AnswerResult struct {
	Answer         string   `json:"answer"`
	Confidence     float64  `json:"confidence"`
	Sources        []Source `json:"sources"`
	ProcessingTime int64    `json:"processing_time_ms"`
	// Verified is false when the verification pass judged the answer unsupported
	// or could not complete.
	Verified bool `json:"verified"`
}

// Interaction is the persistence log entry for one answered query.
type Interaction struct {
	ID                    string    `json:"id"`
	Query                 string    `json:"query"`
	Answer                string    `json:"response"`
	Category              Category  `json:"exam_type"`
	Timestamp             time.Time `json:"timestamp"`
	Confidence            float64   `json:"confidence"`
	HallucinationDetected bool      `json:"hallucination_detected"`
}

// Question is a generated practice question. Its JSON field names are a contract
// with downstream consumers.
type Question struct {
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	Difficulty    Difficulty   `json:"difficulty"`
	Topic         string       `json:"topic"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation"`
}

// Stats summarises one category.
type Stats struct {
	Category           Category `json:"exam_type"`
	DocumentsProcessed int64    `json:"documents_processed"`
	TotalQueries       int64    `json:"total_queries"`
	AverageConfidence  float64  `json:"average_confidence"`
	IndexSize          int      `json:"index_size"`
}

// PassageHit is a keyword search match over ingested passages.
type PassageHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
