package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/manabu/internal/config"
	"github.com/hyperjump/manabu/internal/models"
)

type fakeClient struct {
	dims int
	err  error
	drop bool
}

func (f *fakeClient) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	if f.drop {
		out = out[1:]
	}
	return out, nil
}

func (f *fakeClient) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dims), nil
}

func TestRemoteEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewRemoteEmbedder(&fakeClient{dims: 4}, 4)
	v, err := e.Embed(ctx, "q")
	if err != nil || len(v) != 4 {
		t.Fatalf("Embed: %v %v", v, err)
	}
	vs, err := e.EmbedBatch(ctx, []string{"a", "b"})
	if err != nil || len(vs) != 2 {
		t.Fatalf("EmbedBatch: %v %v", vs, err)
	}
	if vs, err := e.EmbedBatch(ctx, nil); err != nil || vs != nil {
		t.Errorf("empty batch: %v %v", vs, err)
	}
}

func TestRemoteEmbedder_ErrorsAreServiceErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		client *fakeClient
		dims   int
	}{
		{"provider failure", &fakeClient{dims: 4, err: errors.New("connection refused")}, 4},
		{"wrong dimension", &fakeClient{dims: 3}, 4},
		{"short batch", &fakeClient{dims: 4, drop: true}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewRemoteEmbedder(tt.client, tt.dims)
			_, err := e.EmbedBatch(ctx, []string{"a", "b"})
			if !errors.Is(err, models.ErrService) {
				t.Errorf("EmbedBatch: expected ErrService, got %v", err)
			}
			if tt.client.drop {
				return
			}
			if _, err := e.Embed(ctx, "a"); !errors.Is(err, models.ErrService) {
				t.Errorf("Embed: expected ErrService, got %v", err)
			}
		})
	}
}

func TestNew_Providers(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "mock", Dimensions: 8})
	if err != nil || e.Dimensions() != 8 {
		t.Fatalf("mock: %v %v", e, err)
	}
	if _, err := New(config.EmbeddingConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_OpenAICompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{0.1, 0.2, 0.3}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  "test-embed",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	t.Setenv("MANABU_TEST_EMBED_KEY", "sk-test")
	e, err := New(config.EmbeddingConfig{
		Provider: "openai", Model: "test-embed", BaseURL: srv.URL,
		APIKeyEnv: "MANABU_TEST_EMBED_KEY", Dimensions: 3, CacheSize: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	vs, err := e.EmbedBatch(context.Background(), []string{"enzyme kinetics", "thermodynamics"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 2 || len(vs[1]) != 3 {
		t.Errorf("got %v", vs)
	}
}
