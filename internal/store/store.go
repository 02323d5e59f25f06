// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/navai/interview-server/internal/domain"
)

// Repository defines the interface for persisting interview history.
type Repository interface {
	// CreateInterview inserts a new interview record at session start.
	CreateInterview(ctx context.Context, iv *domain.Interview) error

	// AppendExchange adds one answer/evaluation round to an interview.
	AppendExchange(ctx context.Context, interviewID string, ex *domain.Exchange) error

	// FinishInterview marks an interview ended.
	FinishInterview(ctx context.Context, interviewID string, endedAt time.Time, autoEnded bool) error

	// SaveSummary stores the generated end-of-interview report.
	SaveSummary(ctx context.Context, interviewID string, summary *domain.Summary) error

	// GetInterview retrieves a full interview including exchanges.
	// Returns (nil, nil) if the interview does not exist.
	GetInterview(ctx context.Context, interviewID string) (*domain.Interview, error)

	// ListInterviews returns interviews newest-first, without exchanges.
	// An empty ownerID lists all interviews.
	ListInterviews(ctx context.Context, ownerID string, limit int) ([]*domain.Interview, error)

	// DeleteInterview removes an interview and its exchanges.
	DeleteInterview(ctx context.Context, interviewID string) error

	// DeleteOlderThan removes interviews started before the cutoff.
	// Returns the number of interviews deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
