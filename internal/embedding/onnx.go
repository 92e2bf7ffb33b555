//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// The ONNX Runtime environment is process-wide and initialised once.
var (
	ortInit    sync.Once
	ortInitErr error
)

// ONNXEmbedder runs a sentence-transformer model (all-MiniLM-L6-v2 by default) through
// ONNX Runtime and mean-pools the last hidden state into one vector per text.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Pre-allocated tensors for Run(); inputs are overwritten per call.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	hiddenTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder. InitializeEnvironment is called if not already done.
// An empty opts.VocabPath falls back to SimpleTokenizer.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	var tokenizer Tokenizer = &SimpleTokenizer{}
	if opts.VocabPath != "" {
		wp, err := LoadWordPieceTokenizer(opts.VocabPath)
		if err != nil {
			return nil, err
		}
		tokenizer = wp
	}

	ortInit.Do(func() { ortInitErr = ort.InitializeEnvironment() })
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", ortInitErr)
	}

	seq := int64(opts.MaxTokens)
	inputShape := ort.NewShape(1, seq)
	var created []interface{ Destroy() error }
	cleanup := func() {
		for _, t := range created {
			_ = t.Destroy()
		}
	}

	inputIDsTensor, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	created = append(created, inputIDsTensor)
	attentionMaskTensor, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	created = append(created, attentionMaskTensor)
	tokenTypeIDsTensor, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	created = append(created, tokenTypeIDsTensor)
	hiddenTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seq, int64(opts.Dimensions)))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	created = append(created, hiddenTensor)

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{hiddenTensor},
		nil,
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:             session,
		dimensions:          opts.Dimensions,
		maxTokens:           opts.MaxTokens,
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		hiddenTensor:        hiddenTensor,
	}, nil
}

// Embed returns the unit-length, mean-pooled embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	copy(e.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx inference: %v", models.ErrService, err)
	}

	hidden := e.hiddenTensor.GetData()
	embedding := make([]float32, e.dimensions)
	var tokens float32
	for t, m := range attentionMask {
		if m == 0 {
			continue
		}
		tokens++
		row := hidden[t*e.dimensions : (t+1)*e.dimensions]
		for d, v := range row {
			embedding[d] += v
		}
	}
	if tokens > 0 {
		for d := range embedding {
			embedding[d] /= tokens
		}
	}
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text; the session runs one sequence at a time.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []interface{ Destroy() error }{
		e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor, e.hiddenTensor,
	} {
		_ = t.Destroy()
	}
	return err
}
