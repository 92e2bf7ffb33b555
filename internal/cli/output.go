// Package cli renders pipeline results for the manabu command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable styled text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const passagePreviewLength = 200

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// WriteAnswer writes an answer with its numbered sources.
func WriteAnswer(w io.Writer, res *models.AnswerResult, format OutputFormat) error {
	return write(w, format, res, func() {
		fmt.Fprintln(w, headingStyle.Render("Answer"))
		fmt.Fprintf(w, "%s\n\n", res.Answer)
		verdict := okStyle.Render("verified")
		if !res.Verified {
			verdict = warnStyle.Render("unverified")
		}
		fmt.Fprintf(w, "%s %.2f  %s  %s\n", labelStyle.Render("Confidence:"), res.Confidence, verdict,
			dimStyle.Render(fmt.Sprintf("(%dms)", res.ProcessingTime)))
		if len(res.Sources) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s\n", headingStyle.Render("Sources"))
		for i, src := range res.Sources {
			fmt.Fprintf(w, "%d. %s - %s %s\n", i+1, src.Filename, src.Subject,
				dimStyle.Render(fmt.Sprintf("[score %.4f]", src.RelevanceScore)))
			fmt.Fprintf(w, "   %s\n", src.Preview)
		}
	})
}

// WriteQuestions writes generated practice questions.
func WriteQuestions(w io.Writer, questions []models.Question, format OutputFormat) error {
	payload := map[string]interface{}{"questions": questions}
	return write(w, format, payload, func() {
		for i, q := range questions {
			fmt.Fprintf(w, "%s %s\n", headingStyle.Render(fmt.Sprintf("Q%d.", i+1)), q.Question)
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%s | %s | %s", q.Type, q.Difficulty, q.Topic)))
			for j, opt := range q.Options {
				fmt.Fprintf(w, "  %c) %s\n", 'A'+j, opt)
			}
			fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Answer:"), q.CorrectAnswer)
			fmt.Fprintf(w, "%s %s\n\n", labelStyle.Render("Explanation:"), q.Explanation)
		}
	})
}

// WriteStats writes the summary of one category.
func WriteStats(w io.Writer, stats *models.Stats, format OutputFormat) error {
	return write(w, format, stats, func() {
		fmt.Fprintln(w, headingStyle.Render(string(stats.Category)))
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Documents processed:"), stats.DocumentsProcessed)
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Total queries:"), stats.TotalQueries)
		fmt.Fprintf(w, "%s %.2f\n", labelStyle.Render("Average confidence:"), stats.AverageConfidence)
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Indexed chunks:"), stats.IndexSize)
	})
}

// WritePassages writes keyword search hits.
func WritePassages(w io.Writer, hits []models.PassageHit, format OutputFormat) error {
	payload := map[string]interface{}{"passages": hits}
	return write(w, format, payload, func() {
		if len(hits) == 0 {
			fmt.Fprintln(w, dimStyle.Render("No matching passages."))
			return
		}
		for i, h := range hits {
			fmt.Fprintf(w, "%d. %s - %s %s\n", i+1, h.Chunk.Filename, h.Chunk.Subject,
				dimStyle.Render(fmt.Sprintf("[score %.4f]", h.Score)))
			fmt.Fprintf(w, "   %s\n", utils.Truncate(h.Chunk.Content, passagePreviewLength))
		}
	})
}

func write(w io.Writer, format OutputFormat, payload interface{}, text func()) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case OutputText, "":
		text()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
