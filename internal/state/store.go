// Package state records enrichment run history in SQLite.
// It tracks runs and the per-table outcome of each run.
package state

import (
	"time"

	"github.com/LuisDee/catalog-enricher/internal/enrich"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// TableStatus is the outcome of one table within a run.
type TableStatus string

// Table statuses.
const (
	TableStatusSuccess TableStatus = "success"
	TableStatusFailed  TableStatus = "failed"
)

// Run is a recorded enrichment run.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	DryRun      bool       `json:"dry_run"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Aggregated from the run's table rows.
	Tables  int `json:"tables"`
	Failed  int `json:"failed"`
	Changed int `json:"changed"`
}

// Duration is the run's wall time, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// TableRun is the recorded outcome of one table within a run.
type TableRun struct {
	RunID        string       `json:"run_id"`
	Table        string       `json:"table"`
	Path         string       `json:"path,omitempty"`
	Status       TableStatus  `json:"status"`
	Changed      int          `json:"changed"`
	Written      bool         `json:"written"`
	Stats        enrich.Stats `json:"stats"`
	CoveragePass *bool        `json:"coverage_pass,omitempty"`
	Warnings     int          `json:"warnings"`
	Error        string       `json:"error,omitempty"`

	// StartedAt is the start of the owning run; set by history queries.
	StartedAt time.Time `json:"started_at"`
}

// NewTableRun converts an engine table result into a history row.
func NewTableRun(runID string, tr *enrich.TableResult) *TableRun {
	row := &TableRun{
		RunID:    runID,
		Table:    tr.Name,
		Path:     tr.Path,
		Status:   TableStatusSuccess,
		Changed:  tr.Stats.Changed(),
		Written:  tr.Written,
		Stats:    tr.Stats,
		Warnings: len(tr.Warnings),
	}
	if tr.Coverage != nil {
		pass := tr.Coverage.Pass
		row.CoveragePass = &pass
	}
	if tr.Err != nil {
		row.Status = TableStatusFailed
		row.Error = tr.Err.Error()
	}
	if row.Stats == nil {
		row.Stats = enrich.Stats{}
	}
	return row
}
