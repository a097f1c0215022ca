// Package store persists categorization run history. Contact data itself
// lives in the CRM; this records only runs and per-contact outcomes.
package store

import (
	"context"

	"github.com/sells-group/lead-categorizer/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	ListID string          `json:"list_id,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, listID string, testMode bool) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Per-contact outcomes
	RecordContact(ctx context.Context, result model.ContactResult) (*model.ContactResult, error)
	ListContactResults(ctx context.Context, runID string) ([]model.ContactResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
