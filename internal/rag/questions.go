package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/manabu/internal/llm"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/pkg/utils"
	"go.uber.org/zap"
)

// QuestionGenerator creates practice questions from retrieved study material.
type QuestionGenerator struct {
	retriever  Retriever
	completer  llm.Completer
	categories []models.Category
	settings   Settings
	logger     *zap.Logger
}

// NewQuestionGenerator creates a QuestionGenerator.
func NewQuestionGenerator(retriever Retriever, completer llm.Completer, categories []models.Category, settings Settings, logger *zap.Logger) *QuestionGenerator {
	return &QuestionGenerator{
		retriever:  retriever,
		completer:  completer,
		categories: categories,
		settings:   settings,
		logger:     utils.OrNop(logger),
	}
}

// Generate returns between 1 and req.Count questions on req.Topic. The model output
// is validated in full; any schema violation fails the whole request with ErrParse.
func (q *QuestionGenerator) Generate(ctx context.Context, req models.QuestionRequest) ([]models.Question, error) {
	if err := req.Validate(q.categories); err != nil {
		return nil, err
	}
	results := q.retriever.Retrieve(ctx, req.Subject+" "+req.Topic, req.Category, q.settings.QuestionTopK)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w for %s %s", models.ErrNotFound, req.Subject, req.Topic)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := q.completer.Complete(ctx,
		questionSystemPrompt(req.Category),
		questionUserPrompt(req, results),
		q.settings.QuestionMaxTokens,
		q.settings.QuestionTemperature,
	)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	questions, err := ParseQuestions(raw, req)
	if err != nil {
		q.logger.Warn("Model returned malformed questions",
			zap.String("category", string(req.Category)),
			zap.Int("output_length", len(raw)),
			zap.Error(err))
		return nil, err
	}
	return questions, nil
}

type rawQuestionSet struct {
	Questions *[]rawQuestion `json:"questions"`
}

// rawQuestion uses pointers so missing fields can be told apart from empty ones.
type rawQuestion struct {
	Question      *string  `json:"question"`
	Type          *string  `json:"type"`
	Difficulty    *string  `json:"difficulty"`
	Topic         *string  `json:"topic"`
	Options       []string `json:"options"`
	CorrectAnswer *string  `json:"correct_answer"`
	Explanation   *string  `json:"explanation"`
}

// ParseQuestions validates a model reply of the form {"questions": [...]}. A single
// surrounding Markdown code fence is tolerated. Errors wrap models.ErrParse and name
// the offending question and field, never the reply itself.
func ParseQuestions(raw string, req models.QuestionRequest) ([]models.Question, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFence(raw))))
	var set rawQuestionSet
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: reply is not a JSON question object", models.ErrParse)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected content after the question object", models.ErrParse)
	}
	if set.Questions == nil {
		return nil, fmt.Errorf("%w: missing field \"questions\"", models.ErrParse)
	}
	items := *set.Questions
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no questions returned", models.ErrParse)
	}
	if req.Count > 0 && len(items) > req.Count {
		return nil, fmt.Errorf("%w: %d questions returned, at most %d requested", models.ErrParse, len(items), req.Count)
	}

	out := make([]models.Question, len(items))
	for i, item := range items {
		q, err := item.validate()
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", models.ErrParse, i, err)
		}
		out[i] = q
	}
	return out, nil
}

func (r rawQuestion) validate() (models.Question, error) {
	required := []struct {
		name  string
		value *string
	}{
		{"question", r.Question},
		{"type", r.Type},
		{"difficulty", r.Difficulty},
		{"topic", r.Topic},
		{"correct_answer", r.CorrectAnswer},
		{"explanation", r.Explanation},
	}
	for _, f := range required {
		if f.value == nil {
			return models.Question{}, fmt.Errorf("missing field %q", f.name)
		}
		if strings.TrimSpace(*f.value) == "" {
			return models.Question{}, fmt.Errorf("empty field %q", f.name)
		}
	}
	qt, err := models.ParseQuestionType(*r.Type)
	if err != nil {
		return models.Question{}, fmt.Errorf("field \"type\" is not a known question type")
	}
	diff, err := models.ParseDifficulty(*r.Difficulty)
	if err != nil {
		return models.Question{}, fmt.Errorf("field \"difficulty\" is not a known difficulty")
	}
	var options []string
	for j, o := range r.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return models.Question{}, fmt.Errorf("empty option %d", j)
		}
		options = append(options, o)
	}
	if qt == models.QuestionMCQ && len(options) < 2 {
		return models.Question{}, fmt.Errorf("field \"options\" needs at least 2 entries for MCQ")
	}
	return models.Question{
		Question:      strings.TrimSpace(*r.Question),
		Type:          qt,
		Difficulty:    diff,
		Topic:         strings.TrimSpace(*r.Topic),
		Options:       options,
		CorrectAnswer: strings.TrimSpace(*r.CorrectAnswer),
		Explanation:   strings.TrimSpace(*r.Explanation),
	}, nil
}

// stripFence removes one surrounding ``` or ```json fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
