package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/nimendoza/B2023-R3X-07/internal/models"
)

// RunRepository persists saved allocation runs with their assignments and
// category scores.
type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BeginTxx starts a transaction on the run database.
func (r *RunRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

// Create inserts a run. A run id chosen before saving is kept.
func (r *RunRepository) Create(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if len(run.Snapshot) == 0 {
		run.Snapshot = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.SavedAt = now

	const query = `
INSERT INTO allocation_runs (id, mode, status, seed, attempts, elapsed_ms, total_score, snapshot, created_at, saved_at)
VALUES (:id, :mode, :status, :seed, :attempts, :elapsed_ms, :total_score, :snapshot, :created_at, :saved_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run); err != nil {
		return fmt.Errorf("insert allocation run: %w", err)
	}
	return nil
}

// InsertAssignments writes the per-student rows of a run.
func (r *RunRepository) InsertAssignments(ctx context.Context, exec sqlx.ExtContext, rows []models.AllocationAssignment) error {
	const query = `
INSERT INTO allocation_assignments (id, run_id, grade_level, student, course_type, course, section, remark)
VALUES (:id, :run_id, :grade_level, :student, :course_type, :course, :section, :remark)`
	target := r.exec(exec)
	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("insert allocation assignment: %w", err)
		}
	}
	return nil
}

// InsertScores writes the category scores of a run.
func (r *RunRepository) InsertScores(ctx context.Context, exec sqlx.ExtContext, scores []models.AllocationScore) error {
	const query = `
INSERT INTO allocation_scores (run_id, course_type, attained, total, percent)
VALUES (:run_id, :course_type, :attained, :total, :percent)`
	target := r.exec(exec)
	for i := range scores {
		if _, err := sqlx.NamedExecContext(ctx, target, query, &scores[i]); err != nil {
			return fmt.Errorf("insert allocation score: %w", err)
		}
	}
	return nil
}

// FindByID loads a run with its snapshot. A missing run is sql.ErrNoRows.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.AllocationRun, error) {
	const query = `SELECT id, mode, status, seed, attempts, elapsed_ms, total_score, snapshot, created_at, saved_at FROM allocation_runs WHERE id = $1`
	var run models.AllocationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns the most recent runs without their snapshots.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.AllocationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, mode, status, seed, attempts, elapsed_ms, total_score, created_at, saved_at
FROM allocation_runs ORDER BY saved_at DESC LIMIT $1`
	var runs []models.AllocationRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list allocation runs: %w", err)
	}
	return runs, nil
}

// ListAssignments returns the rows of a run ordered by student.
func (r *RunRepository) ListAssignments(ctx context.Context, runID string) ([]models.AllocationAssignment, error) {
	const query = `SELECT id, run_id, grade_level, student, course_type, course, section, remark
FROM allocation_assignments WHERE run_id = $1 ORDER BY grade_level ASC, student ASC, course_type ASC`
	var rows []models.AllocationAssignment
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list allocation assignments: %w", err)
	}
	return rows, nil
}

// Delete removes a run; assignments and scores cascade.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM allocation_runs WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete allocation run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("allocation run rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
