// Package keyword provides Bleve-backed keyword search over ingested passages.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/manabu/internal/models"
)

// SearchOptions optional parameters for passage search. Nil means use defaults.
type SearchOptions struct {
	// FilenameBoost multiplies the score contribution from matches in the filename field.
	FilenameBoost float64
	// Subject restricts hits to one subject (case-insensitive).
	Subject string
	// FuzzyEnabled enables typo-tolerant matching.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default is 2.
	Fuzziness int
}

// PassageIndex indexes chunks per category for keyword lookup.
type PassageIndex struct {
	index bleve.Index
}

// NewPassageIndex creates an in-memory index when path is empty, otherwise creates or
// opens a Bleve index at path.
func NewPassageIndex(path string) (*PassageIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so formula and term names match as typed.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("filename", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("category", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("subject", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("subject_display", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("position", bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("passage", docMapping)
	im.DefaultType = "passage"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &PassageIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &PassageIndex{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &PassageIndex{index: index}, nil
}

// passageID keys a chunk by category and position, so re-indexing the same chunk overwrites it.
func passageID(category models.Category, position int) string {
	return string(category) + ":" + strconv.Itoa(position)
}

// Index adds positioned chunks of category in one batch.
func (p *PassageIndex) Index(ctx context.Context, category models.Category, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := p.index.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := map[string]interface{}{
			"content":         c.Content,
			"filename":        c.Filename,
			"category":        string(category),
			"subject":         strings.ToLower(strings.TrimSpace(c.Subject)),
			"subject_display": c.Subject,
			"position":        float64(c.Position),
		}
		if err := batch.Index(passageID(category, c.Position), doc); err != nil {
			return fmt.Errorf("failed to batch passage: %w", err)
		}
	}
	if err := p.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index passages: %w", err)
	}
	return nil
}

// Search runs a match query over content and filename within category and returns up
// to limit hits, best first.
func (p *PassageIndex) Search(ctx context.Context, category models.Category, query string, limit int, opts *SearchOptions) ([]models.PassageHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", models.ErrValidation)
	}
	if limit <= 0 {
		return nil, nil
	}
	filenameBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	subject := ""
	if opts != nil {
		if opts.FilenameBoost > 0 {
			filenameBoost = opts.FilenameBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		subject = strings.ToLower(strings.TrimSpace(opts.Subject))
	}

	var contentQuery, filenameQuery blevequery.Query
	if fuzzyEnabled {
		contentQuery = buildFuzzyQuery(query, fuzziness, "content")
		filenameQuery = buildFuzzyQuery(query, fuzziness, "filename")
	} else {
		cq := bleve.NewMatchQuery(query)
		cq.SetField("content")
		contentQuery = cq
		fq := bleve.NewMatchQuery(query)
		fq.SetField("filename")
		fq.SetBoost(filenameBoost)
		filenameQuery = fq
	}

	categoryQuery := bleve.NewTermQuery(string(category))
	categoryQuery.SetField("category")
	must := []blevequery.Query{categoryQuery, bleve.NewDisjunctionQuery(contentQuery, filenameQuery)}
	if subject != "" {
		sq := bleve.NewTermQuery(subject)
		sq.SetField("subject")
		must = append(must, sq)
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(must...))
	req.Size = limit
	req.Fields = []string{"content", "filename", "subject_display", "position"}
	results, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]models.PassageHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		out = append(out, models.PassageHit{
			Chunk: models.Chunk{
				Content:  stringField(hit.Fields, "content"),
				Filename: stringField(hit.Fields, "filename"),
				Subject:  stringField(hit.Fields, "subject_display"),
				Position: intField(hit.Fields, "position"),
			},
			Score: hit.Score,
		})
	}
	return out, nil
}

func stringField(fields map[string]interface{}, name string) string {
	s, _ := fields[name].(string)
	return s
}

func intField(fields map[string]interface{}, name string) int {
	f, _ := fields[name].(float64)
	return int(f)
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries for each term in the query,
// restricted to field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the total number of indexed passages.
func (p *PassageIndex) DocCount() (uint64, error) {
	return p.index.DocCount()
}

// Close closes the Bleve index.
func (p *PassageIndex) Close() error {
	return p.index.Close()
}
