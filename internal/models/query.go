package models

import (
	"fmt"
	"strings"
)

// Difficulty of a generated practice question.
type Difficulty string

// Supported difficulties.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionType of a generated practice question.
type QuestionType string

// Supported question types.
const (
	QuestionMCQ       QuestionType = "MCQ"
	QuestionNumerical QuestionType = "numerical"
	QuestionTheory    QuestionType = "theory"
)

// Question count bounds for a single generation request.
const (
	DefaultQuestionCount = 5
	MaxQuestionCount     = 20
)

// ParseDifficulty validates a difficulty name (case-insensitive).
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown difficulty %q (supported: easy, medium, hard)", ErrValidation, s)
}

// ParseQuestionType validates a question type name (case-insensitive).
func ParseQuestionType(s string) (QuestionType, error) {
	for _, t := range []QuestionType{QuestionMCQ, QuestionNumerical, QuestionTheory} {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown question type %q (supported: MCQ, numerical, theory)", ErrValidation, s)
}

// AnswerRequest asks for a grounded answer to a study question.
type AnswerRequest struct {
	Query    string   `json:"query"`
	Category Category `json:"exam_type"`
	Subject  string   `json:"subject,omitempty"`
}

// Validate checks the request against the allowed categories and canonicalises the category.
func (r *AnswerRequest) Validate(categories []Category) error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrValidation)
	}
	c, err := ParseCategory(string(r.Category), categories)
	if err != nil {
		return err
	}
	r.Category = c
	r.Subject = strings.TrimSpace(r.Subject)
	return nil
}

// QuestionRequest asks for generated practice questions on a topic.
type QuestionRequest struct {
	Category     Category     `json:"exam_type"`
	Subject      string       `json:"subject"`
	Topic        string       `json:"topic"`
	Difficulty   Difficulty   `json:"difficulty"`
	QuestionType QuestionType `json:"question_type"`
	Count        int          `json:"count,omitempty"`
}

// Validate checks enumerations and bounds, canonicalises them and sets the default count.
func (r *QuestionRequest) Validate(categories []Category) error {
	c, err := ParseCategory(string(r.Category), categories)
	if err != nil {
		return err
	}
	r.Category = c
	r.Subject = strings.TrimSpace(r.Subject)
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Subject == "" || r.Topic == "" {
		return fmt.Errorf("%w: subject and topic are required", ErrValidation)
	}
	if r.Difficulty == "" {
		r.Difficulty = DifficultyMedium
	}
	if r.Difficulty, err = ParseDifficulty(string(r.Difficulty)); err != nil {
		return err
	}
	if r.QuestionType == "" {
		r.QuestionType = QuestionMCQ
	}
	if r.QuestionType, err = ParseQuestionType(string(r.QuestionType)); err != nil {
		return err
	}
	if r.Count == 0 {
		r.Count = DefaultQuestionCount
	}
	if r.Count < 1 || r.Count > MaxQuestionCount {
		return fmt.Errorf("%w: count must be between 1 and %d", ErrValidation, MaxQuestionCount)
	}
	return nil
}
