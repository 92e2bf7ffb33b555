package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/manabu/internal/models"
)

const validMCQ = `{"questions": [
  {"question": "Which organelle produces ATP?", "type": "MCQ", "difficulty": "easy", "topic": "Cell",
   "options": ["Nucleus", "Mitochondria", "Golgi body", "Ribosome"],
   "correct_answer": "Mitochondria", "explanation": "Oxidative phosphorylation happens in mitochondria."}
]}`

func mcqRequest(count int) models.QuestionRequest {
	return models.QuestionRequest{
		Category: models.CategoryNEET, Subject: "Biology", Topic: "Cell",
		Difficulty: models.DifficultyEasy, QuestionType: models.QuestionMCQ, Count: count,
	}
}

func TestParseQuestions_Valid(t *testing.T) {
	for name, raw := range map[string]string{
		"plain":      validMCQ,
		"json fence": "```json\n" + validMCQ + "\n```",
		"bare fence": "```\n" + validMCQ + "\n```",
	} {
		t.Run(name, func(t *testing.T) {
			qs, err := ParseQuestions(raw, mcqRequest(5))
			if err != nil {
				t.Fatalf("ParseQuestions: %v", err)
			}
			if len(qs) != 1 {
				t.Fatalf("got %d questions", len(qs))
			}
			q := qs[0]
			if q.Type != models.QuestionMCQ || q.Difficulty != models.DifficultyEasy || q.CorrectAnswer != "Mitochondria" || len(q.Options) != 4 {
				t.Errorf("unexpected question: %+v", q)
			}
		})
	}
}

func TestParseQuestions_NumericalWithoutOptions(t *testing.T) {
	raw := `{"questions":[{"question":"A 2 kg mass accelerates at 3 m/s^2. Force?","type":"numerical","difficulty":"Medium","topic":"Laws of motion","correct_answer":"6 N","explanation":"F = ma"}]}`
	qs, err := ParseQuestions(raw, models.QuestionRequest{Count: 1})
	if err != nil {
		t.Fatal(err)
	}
	if qs[0].Type != models.QuestionNumerical || qs[0].Difficulty != models.DifficultyMedium || qs[0].Options != nil {
		t.Errorf("unexpected question: %+v", qs[0])
	}
}

func TestParseQuestions_Rejects(t *testing.T) {
	const secret = "Leaked chain of thought"
	tests := []struct {
		name    string
		raw     string
		count   int
		wantMsg string
	}{
		{"missing correct_answer", `{"questions":[{"question":"Q","type":"theory","difficulty":"hard","topic":"T","explanation":"E"}]}`, 5, `question 0: missing field "correct_answer"`},
		{"empty explanation", `{"questions":[{"question":"Q","type":"theory","difficulty":"hard","topic":"T","correct_answer":"A","explanation":"  "}]}`, 5, `empty field "explanation"`},
		{"second question broken", strings.Replace(validMCQ, "]}", `,{"question":"Q2"}]}`, 1), 5, "question 1"},
		{"unknown type", strings.Replace(validMCQ, `"MCQ"`, `"essay"`, 1), 5, `"type"`},
		{"unknown difficulty", strings.Replace(validMCQ, `"easy"`, `"trivial"`, 1), 5, `"difficulty"`},
		{"MCQ with one option", strings.Replace(validMCQ, `"Nucleus", "Mitochondria", "Golgi body", "Ribosome"`, `"Mitochondria"`, 1), 5, `"options"`},
		{"too many questions", `{"questions":[` + strings.Repeat(`{"question":"Q","type":"theory","difficulty":"easy","topic":"T","correct_answer":"A","explanation":"E"},`, 2) + `{"question":"Q","type":"theory","difficulty":"easy","topic":"T","correct_answer":"A","explanation":"E"}]}`, 2, "at most 2"},
		{"no questions", `{"questions":[]}`, 5, "no questions"},
		{"missing questions key", `{"items":[]}`, 5, `"questions"`},
		{"prose", secret + ": here are your questions", 5, "not a JSON"},
		{"trailing prose", validMCQ + "\n" + secret, 5, "after the question object"},
		{"trailing closing brackets", validMCQ + "]] " + secret, 5, "after the question object"},
		{"trailing closing brace", validMCQ + "}", 5, "after the question object"},
		{"second object", validMCQ + " " + validMCQ, 5, "after the question object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := ParseQuestions(tt.raw, mcqRequest(tt.count))
			if !errors.Is(err, models.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if qs != nil {
				t.Errorf("partial result returned: %+v", qs)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
			if strings.Contains(err.Error(), secret) {
				t.Error("error leaks raw model output")
			}
		})
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{"{}", "{}"},
		{"```json\n{}\n```", "{}"},
		{"```{}```", "{}"},
		{"  ```\n{\"a\":1}\n```  ", `{"a":1}`},
		{"```", "```"},
	}
	for _, tt := range tests {
		if got := stripFence(tt.in); got != tt.want {
			t.Errorf("stripFence(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerate(t *testing.T) {
	r := &fakeRetriever{results: scenario4Results()}
	c := &fakeCompleter{reply: validMCQ}
	g := NewQuestionGenerator(r, c, models.DefaultCategories, DefaultSettings(), nil)

	qs, err := g.Generate(context.Background(), models.QuestionRequest{Category: "neet", Subject: "Biology", Topic: "Cell", Count: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(qs) != 1 {
		t.Errorf("got %d questions", len(qs))
	}
	if r.query != "Biology Cell" {
		t.Errorf("retrieval query=%q", r.query)
	}
	prompt := c.users[0]
	for _, want := range []string{"exactly 3 medium level MCQ questions", "topic of Cell in Biology", "exactly 4 options"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	req := models.QuestionRequest{Category: "JEE", Subject: "Physics", Topic: "Optics"}
	tests := []struct {
		name    string
		results []models.RetrievalResult
		c       *fakeCompleter
		req     models.QuestionRequest
		want    error
	}{
		{"invalid count", scenario4Results(), &fakeCompleter{}, models.QuestionRequest{Category: "JEE", Subject: "Physics", Topic: "Optics", Count: 21}, models.ErrValidation},
		{"invalid type", scenario4Results(), &fakeCompleter{}, models.QuestionRequest{Category: "JEE", Subject: "Physics", Topic: "Optics", QuestionType: "essay"}, models.ErrValidation},
		{"nothing retrieved", nil, &fakeCompleter{}, req, models.ErrNotFound},
		{"service failure", scenario4Results(), &fakeCompleter{replyErr: models.ErrService}, req, models.ErrService},
		{"malformed output", scenario4Results(), &fakeCompleter{reply: `{"questions":[{"question":"Q"}]}`}, req, models.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewQuestionGenerator(&fakeRetriever{results: tt.results}, tt.c, models.DefaultCategories, DefaultSettings(), nil)
			qs, err := g.Generate(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if qs != nil {
				t.Errorf("partial result: %+v", qs)
			}
		})
	}
}
