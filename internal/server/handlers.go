package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/manabu/internal/extract"
	"github.com/hyperjump/manabu/internal/keyword"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultListLimit    = 50
	defaultPassageLimit = 10
	maxPassageLimit     = 100
	multipartMemory     = 8 << 20
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("Query request", zap.String("exam_type", string(req.Category)), zap.Int("query_length", len(req.Query)))
	res, err := s.svc.Answer(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, "answer", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.svc.Ingest(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, "ingest", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int{"chunks_created": res.ChunksCreated})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if maxMB := s.config.Server.MaxUploadMB; maxMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(maxMB)<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.config.Server.MaxUploadMB))
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	ext := filepath.Ext(filename)
	if !extract.Supported(ext) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", ext))
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	text, err := s.extractor.ExtractBytes(content, ext)
	if err != nil {
		s.respondServiceError(w, "extract upload", err)
		return
	}

	res, err := s.svc.Ingest(r.Context(), models.IngestRequest{
		Text:     text,
		Filename: filename,
		Category: models.Category(r.FormValue("exam_type")),
		Subject:  r.FormValue("subject"),
	})
	if err != nil {
		s.respondServiceError(w, "ingest upload", err)
		return
	}
	s.logger.Info("Ingested upload", zap.String("filename", filename), zap.Int("chunks", res.ChunksCreated))
	s.respondJSON(w, http.StatusCreated, models.IngestResult{Filename: filename, ChunksCreated: res.ChunksCreated})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"), defaultListLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	docs, err := s.svc.ListDocuments(r.Context(), models.Category(q.Get("exam_type")), offset, limit)
	if err != nil {
		s.respondServiceError(w, "list documents", err)
		return
	}
	if docs == nil {
		docs = []*models.DocumentRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	questions, err := s.svc.GenerateQuestions(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, "generate questions", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context(), models.Category(chi.URLParam(r, "exam_type")))
	if err != nil {
		s.respondServiceError(w, "stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePassages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultPassageLimit)
	if err != nil || limit < 1 || limit > maxPassageLimit {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxPassageLimit))
		return
	}
	opts := &keyword.SearchOptions{
		Subject:      q.Get("subject"),
		FuzzyEnabled: q.Get("fuzzy") == "true",
	}
	hits, err := s.svc.SearchPassages(r.Context(), models.Category(q.Get("exam_type")), q.Get("q"), limit, opts)
	if err != nil {
		s.respondServiceError(w, "passage search", err)
		return
	}
	if hits == nil {
		hits = []models.PassageHit{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"passages": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Health())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.config
	health := s.svc.Health()
	resp := map[string]interface{}{
		"categories":   s.svc.Categories(),
		"index_sizes":  health.IndexSizes,
		"desync_skips": health.DesyncSkips,
		"config": map[string]interface{}{
			"embedding_provider":   cfg.Embedding.Provider,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"completion_provider":  cfg.Completion.Provider,
			"completion_model":     cfg.Completion.Model,
			"chunk_size":           cfg.RAG.ChunkSize,
			"chunk_overlap":        cfg.RAG.ChunkOverlap,
			"top_k":                cfg.RAG.TopK,
			"database_path":        cfg.Storage.DatabasePath,
			"snapshot_path":        cfg.Storage.SnapshotPath,
			"watch_sources":        len(cfg.Watch.Sources),
		},
	}
	diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.SnapshotPath)
	if err != nil {
		s.logger.Warn("Status: disk usage failed", zap.Error(err))
	} else {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// statusFor maps a pipeline error to an HTTP status and the message shown to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, models.ErrNotFound.Error()
	case errors.Is(err, models.ErrParse):
		return http.StatusBadGateway, "model returned malformed questions"
	case errors.Is(err, models.ErrService):
		return http.StatusBadGateway, "upstream model service unavailable, retry later"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, msg)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
