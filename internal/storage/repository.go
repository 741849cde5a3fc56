// Package storage persists extraction results in SQLite or PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/doc-extractor/internal/domain"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Options holds connection settings.
type Options struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Retry repeats the initial ping. Nil tries once.
	Retry *RetryConfig
}

// Open connects to the database, verifies the connection and runs migrations.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	var driver string
	switch opts.Driver {
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	case "postgres", "postgresql":
		driver = "postgres"
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown database driver %q", opts.Driver), nil)
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, domain.StorageError("Failed to open database", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := retryWithBackoff(ctx, opts.Retry, db.PingContext); err != nil {
		db.Close()
		return nil, domain.StorageError("Failed to connect to database", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS extraction_results (
		id                TEXT PRIMARY KEY,
		source_file       TEXT NOT NULL,
		extraction_method TEXT NOT NULL,
		page_count        INTEGER NOT NULL,
		character_count   INTEGER NOT NULL,
		text              TEXT NOT NULL,
		failed_pages      TEXT,
		duration_ms       BIGINT NOT NULL DEFAULT 0,
		created_at        TIMESTAMP NOT NULL
	)
`

// Migrate creates the results table if it does not exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return domain.StorageError("Failed to migrate database", err)
	}
	return nil
}

// ResultRepository handles extraction result persistence.
type ResultRepository struct {
	db DB
}

// NewResultRepository creates a new result repository.
func NewResultRepository(db DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Save inserts or replaces a result. A missing ID or timestamp is filled in.
func (r *ResultRepository) Save(ctx context.Context, result *domain.ExtractionResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	var failed sql.NullString
	if len(result.FailedPages) > 0 {
		data, err := json.Marshal(result.FailedPages)
		if err != nil {
			return domain.StorageError("Failed to encode failed pages", err)
		}
		failed = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO extraction_results (id, source_file, extraction_method, page_count,
			character_count, text, failed_pages, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			source_file = excluded.source_file,
			extraction_method = excluded.extraction_method,
			page_count = excluded.page_count,
			character_count = excluded.character_count,
			text = excluded.text,
			failed_pages = excluded.failed_pages,
			duration_ms = excluded.duration_ms,
			created_at = excluded.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		result.ID, result.SourceFile, string(result.ExtractionMethod), result.PageCount,
		result.CharacterCount, result.Text, failed, result.Duration.Milliseconds(), result.CreatedAt,
	)
	if err != nil {
		return domain.StorageError("Failed to save result", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, source_file, extraction_method, page_count, character_count,
		text, failed_pages, duration_ms, created_at
	FROM extraction_results
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row rowScanner) (*domain.ExtractionResult, error) {
	var (
		result     domain.ExtractionResult
		method     string
		failed     sql.NullString
		durationMS int64
	)
	err := row.Scan(
		&result.ID, &result.SourceFile, &method, &result.PageCount, &result.CharacterCount,
		&result.Text, &failed, &durationMS, &result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.ExtractionMethod = domain.ExtractionMethod(method)
	result.Duration = time.Duration(durationMS) * time.Millisecond
	if failed.Valid && failed.String != "" {
		if err := json.Unmarshal([]byte(failed.String), &result.FailedPages); err != nil {
			return nil, fmt.Errorf("decode failed pages: %w", err)
		}
	}
	return &result, nil
}

// Get retrieves a result by ID.
func (r *ResultRepository) Get(ctx context.Context, id string) (*domain.ExtractionResult, error) {
	result, err := scanResult(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(fmt.Sprintf("result %s not found", id), nil)
	}
	if err != nil {
		return nil, domain.StorageError("Failed to load result", err)
	}
	return result, nil
}

// List returns the most recent results, newest first.
func (r *ResultRepository) List(ctx context.Context, limit int) ([]*domain.ExtractionResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, domain.StorageError("Failed to list results", err)
	}
	defer rows.Close()

	var results []*domain.ExtractionResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, domain.StorageError("Failed to read result", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("Failed to list results", err)
	}
	return results, nil
}

// Delete removes a result by ID.
func (r *ResultRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM extraction_results WHERE id = $1`, id)
	if err != nil {
		return domain.StorageError("Failed to delete result", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFoundError(fmt.Sprintf("result %s not found", id), nil)
	}
	return nil
}
