package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/manabu/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// Concurrent appends wait on the write lock instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source_id TEXT,
		filename TEXT NOT NULL,
		category TEXT NOT NULL,
		subject TEXT,
		upload_date TIMESTAMP NOT NULL,
		chunk_count INTEGER NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
	CREATE INDEX IF NOT EXISTS idx_documents_source_id ON documents(source_id);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		category TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		confidence REAL NOT NULL,
		hallucination_detected BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_category ON interactions(category);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordDocument appends a document record. ID and UploadTimestamp are set when empty.
func (s *SQLiteStorage) RecordDocument(ctx context.Context, rec *models.DocumentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UploadTimestamp.IsZero() {
		rec.UploadTimestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, source_id, filename, category, subject, upload_date, chunk_count, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nullString(rec.SourceID), rec.Filename, string(rec.Category), rec.Subject,
		rec.UploadTimestamp, rec.ChunkCount, rec.Processed,
	)
	return err
}

// RecordInteraction appends an answered query. ID and Timestamp are set when empty.
func (s *SQLiteStorage) RecordInteraction(ctx context.Context, in *models.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, query, response, category, timestamp, confidence, hallucination_detected)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Query, in.Answer, string(in.Category), in.Timestamp, in.Confidence, in.HallucinationDetected,
	)
	return err
}

// ListDocuments returns a category's document records, newest first. An empty category lists all.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, category models.Category, offset, limit int) ([]*models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(source_id, ''), filename, category, COALESCE(subject, ''), upload_date, chunk_count, processed
		 FROM documents WHERE (? = '' OR category = ?)
		 ORDER BY upload_date DESC, rowid DESC LIMIT ? OFFSET ?`,
		string(category), string(category), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.DocumentRecord
	for rows.Next() {
		var rec models.DocumentRecord
		var cat string
		if err := rows.Scan(&rec.ID, &rec.SourceID, &rec.Filename, &cat, &rec.Subject,
			&rec.UploadTimestamp, &rec.ChunkCount, &rec.Processed); err != nil {
			return nil, err
		}
		rec.Category = models.Category(cat)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// HasSource reports whether a document from sourceID has been recorded.
func (s *SQLiteStorage) HasSource(ctx context.Context, sourceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE source_id = ? LIMIT 1`, sourceID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountDocuments returns the number of processed documents in category.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, category models.Category) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE category = ? AND processed = 1`, string(category),
	).Scan(&count)
	return count, err
}

// CountInteractions returns the number of answered queries in category.
func (s *SQLiteStorage) CountInteractions(ctx context.Context, category models.Category) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE category = ?`, string(category),
	).Scan(&count)
	return count, err
}

// AverageConfidence returns the mean answer confidence in category, or 0 when there are no interactions.
func (s *SQLiteStorage) AverageConfidence(ctx context.Context, category models.Category) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(confidence) FROM interactions WHERE category = ?`, string(category),
	).Scan(&avg)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
