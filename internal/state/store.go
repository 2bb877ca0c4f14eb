// Package state records sort runs in a SQLite database.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the sorter.
type Run struct {
	ID           string     `json:"id"`
	Input        string     `json:"input"`
	Output       string     `json:"output"`
	Options      string     `json:"options"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
	PixelsSorted int64      `json:"pixels_sorted"`
	Seed         int64      `json:"seed"`
	Error        string     `json:"error,omitempty"`
}

// NewRun describes a run about to start.
type NewRun struct {
	Input   string
	Output  string
	Options string
}

// Completion describes how a run ended.
type Completion struct {
	Status       RunStatus
	PixelsSorted int64
	Seed         int64
	Error        string
}

// Store persists run history.
type Store interface {
	CreateRun(ctx context.Context, r NewRun) (*Run, error)
	CompleteRun(ctx context.Context, id string, c Completion) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)
	Close() error
}
