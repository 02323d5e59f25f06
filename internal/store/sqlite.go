package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/navai/interview-server/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to prevent SQLITE_BUSY under load
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS interviews (
		id TEXT PRIMARY KEY,
		owner_id TEXT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		auto_ended INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interviews_owner ON interviews(owner_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_interviews_started ON interviews(started_at);

	CREATE TABLE IF NOT EXISTS exchanges (
		interview_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		answer TEXT NOT NULL,
		evaluation_json TEXT NOT NULL,
		screen_context TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (interview_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateInterview inserts a new interview record.
func (s *SQLiteStore) CreateInterview(ctx context.Context, iv *domain.Interview) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO interviews (id, owner_id, started_at, ended_at, auto_ended, summary_json, created_at, updated_at)
	VALUES (?, ?, ?, NULL, 0, NULL, ?, ?)`

	var ownerID interface{}
	if iv.OwnerID != "" {
		ownerID = iv.OwnerID
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, query, iv.ID, ownerID, iv.StartedAt.Unix(), now, now)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

// AppendExchange adds one answer/evaluation round.
// Retries with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) AppendExchange(ctx context.Context, interviewID string, ex *domain.Exchange) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.appendExchangeOnce(ctx, interviewID, ex)
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if i < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
				slog.Debug("AppendExchange failed with SQLITE_BUSY, retrying",
					"interview_id", interviewID,
					"attempt", i+1,
					"delay", delay)
				time.Sleep(delay)
				continue
			}
		}

		return fmt.Errorf("append exchange for %s after %d attempts: %w", interviewID, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) appendExchangeOnce(ctx context.Context, interviewID string, ex *domain.Exchange) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	evalJSON, err := json.Marshal(ex.Evaluation)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}

	var screenContext interface{}
	if ex.ScreenContext != "" {
		screenContext = ex.ScreenContext
	}

	query := `
	INSERT INTO exchanges (interview_id, seq, answer, evaluation_json, screen_context, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		interviewID, ex.Seq, ex.Answer, string(evalJSON), screenContext, ex.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}

	touch := `UPDATE interviews SET updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, touch, time.Now().Unix(), interviewID); err != nil {
		return fmt.Errorf("touch interview: %w", err)
	}
	return nil
}

// FinishInterview marks an interview ended.
func (s *SQLiteStore) FinishInterview(ctx context.Context, interviewID string, endedAt time.Time, autoEnded bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `UPDATE interviews SET ended_at = ?, auto_ended = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, endedAt.Unix(), boolToInt(autoEnded), time.Now().Unix(), interviewID)
	if err != nil {
		return fmt.Errorf("finish interview: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("FinishInterview affected 0 rows", "interview_id", interviewID)
	}
	return nil
}

// SaveSummary stores the generated report.
func (s *SQLiteStore) SaveSummary(ctx context.Context, interviewID string, summary *domain.Summary) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	query := `UPDATE interviews SET summary_json = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(summaryJSON), time.Now().Unix(), interviewID)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("interview not found: %s", interviewID)
	}
	return nil
}

// GetInterview retrieves a full interview including exchanges.
func (s *SQLiteStore) GetInterview(ctx context.Context, interviewID string) (*domain.Interview, error) {
	query := `
		SELECT id, owner_id, started_at, ended_at, auto_ended, summary_json
		FROM interviews WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, interviewID)

	iv, err := scanInterview(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan interview row: %w", err)
	}

	exchanges, err := s.getExchanges(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	iv.Exchanges = exchanges

	return iv, nil
}

func (s *SQLiteStore) getExchanges(ctx context.Context, interviewID string) ([]domain.Exchange, error) {
	query := `
		SELECT seq, answer, evaluation_json, screen_context, created_at
		FROM exchanges WHERE interview_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, interviewID)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close exchanges rows", "error", closeErr)
		}
	}()

	var exchanges []domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		var evalJSON string
		var screenContext sql.NullString
		var createdAt int64

		if err := rows.Scan(&ex.Seq, &ex.Answer, &evalJSON, &screenContext, &createdAt); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}

		if err := json.Unmarshal([]byte(evalJSON), &ex.Evaluation); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation: %w", err)
		}
		ex.ScreenContext = screenContext.String
		ex.CreatedAt = time.Unix(createdAt, 0)
		exchanges = append(exchanges, ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}

	return exchanges, nil
}

// ListInterviews returns interviews newest-first, without exchanges.
func (s *SQLiteStore) ListInterviews(ctx context.Context, ownerID string, limit int) ([]*domain.Interview, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, started_at, ended_at, auto_ended, summary_json
		FROM interviews`
	args := []interface{}{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query interviews: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close interviews rows", "error", closeErr)
		}
	}()

	var interviews []*domain.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview row: %w", err)
		}
		interviews = append(interviews, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interviews: %w", err)
	}

	return interviews, nil
}

// DeleteInterview removes an interview and its exchanges.
func (s *SQLiteStore) DeleteInterview(ctx context.Context, interviewID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE interview_id = ?`, interviewID); err != nil {
		return fmt.Errorf("delete exchanges: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM interviews WHERE id = ?`, interviewID)
	if err != nil {
		return fmt.Errorf("delete interview: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("interview not found: %s", interviewID)
	}
	return nil
}

// DeleteOlderThan removes interviews started before the cutoff.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	threshold := cutoff.Unix()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM exchanges WHERE interview_id IN (SELECT id FROM interviews WHERE started_at < ?)`,
		threshold); err != nil {
		return 0, fmt.Errorf("delete old exchanges: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM interviews WHERE started_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete old interviews: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInterview(row scanner) (*domain.Interview, error) {
	var iv domain.Interview
	var ownerID, summaryJSON sql.NullString
	var startedAt int64
	var endedAt sql.NullInt64
	var autoEnded int

	err := row.Scan(&iv.ID, &ownerID, &startedAt, &endedAt, &autoEnded, &summaryJSON)
	if err != nil {
		return nil, err
	}

	iv.OwnerID = ownerID.String
	iv.StartedAt = time.Unix(startedAt, 0)
	iv.AutoEnded = autoEnded != 0
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		iv.EndedAt = &t
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary domain.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		iv.Summary = &summary
	}

	return &iv, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isBusyError reports whether err is one of SQLite's concurrency
// errors, which warrant a retry.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
