package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/manabu/internal/config"
	"github.com/hyperjump/manabu/internal/models"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeTestConfig writes a config using the mock embedder with all storage under t.TempDir().
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "manabu.db")
	cfg.Storage.SnapshotPath = filepath.Join(dir, "corpus", "corpus.bolt")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 16
	path := filepath.Join(dir, "config.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"what", "is", "osmosis"}, "what is osmosis"},
		{[]string{"what is osmosis"}, "what is osmosis"},
		{[]string{" ", " "}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := joinArgs(tt.args); got != tt.want {
			t.Errorf("joinArgs(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing explicit file is an error", func(t *testing.T) {
		if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("config.yaml in the working directory wins", func(t *testing.T) {
		dir := t.TempDir()
		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(dir); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chdir(wd) })
		cfg := config.Default()
		cfg.RAG.TopK = 9
		if err := config.Save(filepath.Join(dir, "config.yaml"), cfg); err != nil {
			t.Fatal(err)
		}
		got, path, err := loadConfig("")
		if err != nil {
			t.Fatal(err)
		}
		if got.RAG.TopK != 9 || filepath.Base(path) != "config.yaml" {
			t.Errorf("loaded %s with top_k=%d", path, got.RAG.TopK)
		}
	})
}

func TestIngestStatsAndPassages_Local(t *testing.T) {
	cfgPath := writeTestConfig(t)
	docs := t.TempDir()
	if err := os.WriteFile(filepath.Join(docs, "cells.md"), []byte("# Cells\n\nMitochondria produce ATP."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docs, "plants.txt"), []byte("Chloroplasts capture light."), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "--config", cfgPath, "ingest", docs, "--category", "neet", "--subject", "Biology")
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Ingested 2 file(s)") {
		t.Errorf("unexpected ingest output: %q", out)
	}

	// A second run finds both files already recorded.
	out, err = runCmd(t, "--config", cfgPath, "ingest", filepath.Join(docs, "cells.md"), "--category", "NEET", "--subject", "Biology")
	if err != nil || !strings.Contains(out, "already ingested") {
		t.Errorf("re-ingest: %v %q", err, out)
	}

	out, err = runCmd(t, "--config", cfgPath, "--local", "--format", "json", "stats", "--category", "NEET")
	if err != nil {
		t.Fatalf("stats: %v\n%s", err, out)
	}
	var stats models.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if stats.DocumentsProcessed != 2 || stats.IndexSize != 2 {
		t.Errorf("unexpected stats after restore from snapshot: %+v", stats)
	}

	out, err = runCmd(t, "--config", cfgPath, "--local", "passages", "mitochondria", "--category", "NEET")
	if err != nil {
		t.Fatalf("passages: %v\n%s", err, out)
	}
	if !strings.Contains(out, "cells.md - Biology") {
		t.Errorf("passage index not rebuilt from the snapshot: %q", out)
	}
}

func TestIngest_RequiresFlags(t *testing.T) {
	cfgPath := writeTestConfig(t)
	file := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := runCmd(t, "--config", cfgPath, "ingest", file, "--category", "NEET"); err == nil {
		t.Error("expected an error without --subject")
	}
	if _, err := runCmd(t, "--config", cfgPath, "ingest", file, "--category", "GRE", "--subject", "Verbal"); err == nil {
		t.Error("expected an error for an unknown category")
	}
}

func TestAsk_ViaServer(t *testing.T) {
	var got models.AnswerRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.AnswerResult{
			Answer: "ATP is made in mitochondria.", Confidence: 0.8, Verified: true,
			Sources: []models.Source{{Preview: "Mitochondria produce ATP.", Filename: "cells.md", Subject: "Biology", RelevanceScore: 0.8}},
		})
	}))
	defer ts.Close()

	out, err := runCmd(t, "--server", ts.URL, "ask", "where", "is", "ATP", "made?", "--category", "NEET")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}
	if got.Query != "where is ATP made?" || got.Category != "NEET" {
		t.Errorf("server received %+v", got)
	}
	if !strings.Contains(out, "ATP is made in mitochondria.") || !strings.Contains(out, "1. cells.md - Biology") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestAPIClient_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/stats/GRE":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unknown exam type \"GRE\""}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
		}
	}))
	defer ts.Close()
	c := newAPIClient(ts.URL+"/", time.Second)
	ctx := context.Background()

	var stats models.Stats
	err := c.get(ctx, "/api/v1/stats/GRE", nil, &stats)
	if err == nil || !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "unknown exam type") {
		t.Errorf("unexpected error: %v", err)
	}
	err = c.post(ctx, "/api/v1/query", map[string]string{"query": "q"}, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("unexpected error: %v", err)
	}

	ts.Close()
	if err := c.get(ctx, "/health", nil, &struct{}{}); err == nil || !strings.Contains(err.Error(), "--local") {
		t.Errorf("expected an unreachable-server hint, got %v", err)
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	if _, err := runCmd(t, "--config", path, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.Server.Port != 8080 {
		t.Errorf("unexpected defaults: %+v", cfg.RAG)
	}
	if _, err := runCmd(t, "--config", path, "init"); err == nil {
		t.Error("expected init to refuse overwriting")
	}
	if _, err := runCmd(t, "--config", path, "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestVersionAndFormat(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil || !strings.Contains(out, "manabu version dev") {
		t.Errorf("version: %v %q", err, out)
	}
	if _, err := runCmd(t, "--format", "xml", "stats", "--category", "NEET"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
