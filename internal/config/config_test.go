package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/manabu/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
embedding:
  provider: mock
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if !filepath.IsAbs(cfg.Storage.DatabasePath) {
		t.Errorf("database_path should be absolute, got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.ChunkOverlap != 50 {
		t.Errorf("chunking defaults: got %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/manabu.db"
  snapshot_path: "./data/corpus.bolt"
watch:
  sources:
    - path: "./inbox/neet"
      category: neet
      subject: Biology
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db", "manabu.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "corpus.bolt"); cfg.Storage.SnapshotPath != want {
		t.Errorf("snapshot_path = %s, want %s", cfg.Storage.SnapshotPath, want)
	}
	if len(cfg.Watch.Sources) != 1 {
		t.Fatalf("watch sources: got %d", len(cfg.Watch.Sources))
	}
	if want := filepath.Join(dir, "inbox", "neet"); cfg.Watch.Sources[0].Path != want {
		t.Errorf("watch source = %s, want %s", cfg.Watch.Sources[0].Path, want)
	}
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when sources are set")
	}
}

func TestLoad_rejectsOverlapNotBelowChunkSize(t *testing.T) {
	path := writeConfig(t, `
rag:
  chunk_size: 100
  chunk_overlap: 100
`)
	_, err := Load(path)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLoad_rejectsUnknownWatchCategory(t *testing.T) {
	path := writeConfig(t, `
watch:
  sources:
    - path: /tmp/inbox
      category: GRE
`)
	if _, err := Load(path); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLoad_rejectsUnknownProviders(t *testing.T) {
	for name, content := range map[string]string{
		"embedding":  "embedding:\n  provider: word2vec\n",
		"completion": "completion:\n  provider: carrier-pigeon\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.RAG.TopK != 5 || cfg.RAG.QuestionTopK != 3 || cfg.RAG.PreviewLength != 200 {
		t.Errorf("default retrieval settings: got %+v", cfg.RAG)
	}
	if len(cfg.RAG.Separators) != 5 || cfg.RAG.Separators[0] != "\n\n" || cfg.RAG.Separators[4] != "" {
		t.Errorf("default separators: got %q", cfg.RAG.Separators)
	}
	if got := cfg.RAG.CategoryList(); len(got) != 2 || got[0] != models.CategoryNEET {
		t.Errorf("default categories: got %v", got)
	}
	if cfg.Completion.AnswerMaxTokens != 1000 || cfg.Completion.VerifyMaxTokens != 10 || cfg.Completion.QuestionMaxTokens != 2000 {
		t.Errorf("default completion budgets: got %+v", cfg.Completion)
	}
	if cfg.Completion.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("default api key env: got %q", cfg.Completion.APIKeyEnv)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_keepsExplicitSeparators(t *testing.T) {
	cfg := &Config{RAG: RAGConfig{Separators: []string{"\n"}}}
	ApplyDefaults(cfg)
	if len(cfg.RAG.Separators) != 1 {
		t.Errorf("separators overwritten: %q", cfg.RAG.Separators)
	}
}

func TestCompletionConfig_APIKey(t *testing.T) {
	t.Setenv("MANABU_TEST_KEY", "sk-test")
	c := &CompletionConfig{APIKeyEnv: "MANABU_TEST_KEY"}
	if got := c.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q", got)
	}
	if got := (&CompletionConfig{}).APIKey(); got != "" {
		t.Errorf("APIKey() without env name = %q", got)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Embedding.Provider = "mock"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if len(loaded.RAG.Separators) != len(DefaultSeparators) {
		t.Errorf("separators did not round-trip: %q", loaded.RAG.Separators)
	}
}
