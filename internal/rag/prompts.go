package rag

import (
	"fmt"
	"strings"

	"github.com/hyperjump/manabu/internal/models"
)

// Verdict tokens the fact-check model may answer with.
const (
	verdictVerified      = "VERIFIED"
	verdictHallucination = "HALLUCINATION"
)

const verifySystemPrompt = "You are a fact-checking assistant. Only verify information that is directly " +
	"supported by the provided context. Reply with exactly one word: " + verdictVerified + " or " + verdictHallucination + "."

// buildContext renders retrieved chunks as numbered sources for the answer prompt.
func buildContext(results []models.RetrievalResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Source %d (%s - %s): %s", i+1, r.Chunk.Filename, r.Chunk.Subject, r.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

// joinContents concatenates chunk contents without source labels.
func joinContents(results []models.RetrievalResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return strings.Join(parts, "\n")
}

func answerSystemPrompt(category models.Category) string {
	return fmt.Sprintf("You are an AI tutor specializing in %s preparation. "+
		"Use ONLY the provided context to answer questions. If the context doesn't contain "+
		"sufficient information, clearly state that. Always cite your sources and provide "+
		"accurate, helpful explanations suitable for competitive exam preparation.", category)
}

func answerUserPrompt(context, query string, category models.Category) string {
	return fmt.Sprintf(`Context: %s

Question: %s

Please provide a comprehensive answer based on the context provided. Include:
1. A clear, detailed explanation
2. Key concepts and formulas if applicable
3. Citations to the source materials by source number
4. Any tips for %s exam preparation related to this topic`, context, query, category)
}

func verifyUserPrompt(results []models.RetrievalResult, query, answer string) string {
	return fmt.Sprintf(`Context: %s

Question: %s
Answer: %s

Based ONLY on the provided context, is the answer factually correct and grounded in the source material?
Respond with '%s' if the answer is accurate and supported by the context, or '%s' if it contains unsupported or incorrect information.

Response:`, joinContents(results), query, answer, verdictVerified, verdictHallucination)
}

func questionSystemPrompt(category models.Category) string {
	return fmt.Sprintf("You are an expert %s question creator. You reply with JSON only.", category)
}

func questionUserPrompt(req models.QuestionRequest, results []models.RetrievalResult) string {
	var format string
	switch req.QuestionType {
	case models.QuestionMCQ:
		format = `Each question must have exactly 4 options in "options" and "correct_answer" must be the text of the correct option.`
	case models.QuestionNumerical:
		format = `Each question must have a numerical "correct_answer" including units where applicable. Omit "options".`
	default:
		format = `Each question must be a clear conceptual question with a model answer in "correct_answer". Omit "options".`
	}
	return fmt.Sprintf(`Based on the following content from %[1]s study materials, generate exactly %[2]d %[3]s level %[4]s questions on the topic of %[5]s in %[6]s.

Context: %[7]s

%[8]s

Format your response as a JSON object with this structure and no other text:
{
  "questions": [
    {
      "question": "question text",
      "type": "%[4]s",
      "difficulty": "%[3]s",
      "topic": "%[5]s",
      "options": ["A", "B", "C", "D"],
      "correct_answer": "answer",
      "explanation": "detailed explanation"
    }
  ]
}`, req.Category, req.Count, req.Difficulty, req.QuestionType, req.Topic, req.Subject, joinContents(results), format)
}
