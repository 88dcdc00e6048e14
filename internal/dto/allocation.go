package dto

import (
	"time"

	"github.com/nimendoza/B2023-R3X-07/internal/allocation"
)

// RunMode selects how attempts are driven.
type RunMode string

const (
	// RunModeSingle returns the first successful attempt.
	RunModeSingle RunMode = "single"
	// RunModeTarget collects results whose scores meet every target.
	RunModeTarget RunMode = "target"
	// RunModeBest keeps the best of a fixed number of successes.
	RunModeBest RunMode = "best"
)

// RunStatus tracks a run through the queue and the proposal store.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSaved     RunStatus = "saved"
)

// RunRequest starts an allocation run.
type RunRequest struct {
	Catalog     Catalog            `json:"catalog"`
	Mode        RunMode            `json:"mode" validate:"omitempty,oneof=single target best"`
	Targets     map[string]float64 `json:"targets,omitempty" validate:"omitempty,dive,gte=0,lte=100"`
	Results     int                `json:"results,omitempty" validate:"omitempty,min=1,max=20"`
	Attempts    int                `json:"attempts,omitempty" validate:"omitempty,min=1,max=1000"`
	MaxAttempts int                `json:"maxAttempts,omitempty" validate:"omitempty,min=1"`
	Seed        int64              `json:"seed,omitempty"`
}

// RunResult is one successful allocation.
type RunResult struct {
	Index     int                        `json:"index"`
	Attempts  int                        `json:"attempts"`
	ElapsedMs int64                      `json:"elapsedMs"`
	Scores    []allocation.CategoryScore `json:"scores"`
	Total     float64                    `json:"total"`
	Snapshot  *allocation.Snapshot       `json:"snapshot"`
}

// RunResponse reports a run and, once completed, its results.
type RunResponse struct {
	RunID     string             `json:"runId"`
	Mode      RunMode            `json:"mode"`
	Status    RunStatus          `json:"status"`
	Seed      int64              `json:"seed"`
	Targets   map[string]float64 `json:"targets,omitempty"`
	Attempts  int                `json:"attempts"`
	Failures  map[string]int     `json:"failures,omitempty"`
	ElapsedMs int64              `json:"elapsedMs"`
	Results   []RunResult        `json:"results,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// SaveRunRequest persists one result of a completed run.
type SaveRunRequest struct {
	RunID  string `json:"-" validate:"required,uuid"`
	Result int    `json:"result" validate:"gte=0"`
}

// ExportRequest renders one result of a run.
type ExportRequest struct {
	RunID  string `form:"-" validate:"required"`
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
	Sheet  string `form:"sheet" validate:"omitempty,oneof=assignments sections summary"`
	Result int    `form:"result" validate:"gte=0"`
}

// ExportResponse points at a stored export.
type ExportResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}
