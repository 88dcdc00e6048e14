package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS allocation_runs (
	id          UUID PRIMARY KEY,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	seed        BIGINT NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	elapsed_ms  BIGINT NOT NULL DEFAULT 0,
	total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	snapshot    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	saved_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS allocation_assignments (
	id          UUID PRIMARY KEY,
	run_id      UUID NOT NULL REFERENCES allocation_runs(id) ON DELETE CASCADE,
	grade_level TEXT NOT NULL,
	student     TEXT NOT NULL,
	course_type TEXT NOT NULL,
	course      TEXT NOT NULL DEFAULT '',
	section     TEXT NOT NULL DEFAULT '',
	remark      TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS allocation_assignments_run_idx ON allocation_assignments (run_id)`,
	`CREATE TABLE IF NOT EXISTS allocation_scores (
	run_id      UUID NOT NULL REFERENCES allocation_runs(id) ON DELETE CASCADE,
	course_type TEXT NOT NULL,
	attained    INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	percent     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, course_type)
)`,
}

// Migrate creates the run tables when they are missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
