package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AllocationRun is a saved allocation result. Snapshot holds the full
// allocation.Snapshot as JSON.
type AllocationRun struct {
	ID         string         `db:"id" json:"id"`
	Mode       string         `db:"mode" json:"mode"`
	Status     string         `db:"status" json:"status"`
	Seed       int64          `db:"seed" json:"seed"`
	Attempts   int            `db:"attempts" json:"attempts"`
	ElapsedMs  int64          `db:"elapsed_ms" json:"elapsedMs"`
	TotalScore float64        `db:"total_score" json:"totalScore"`
	Snapshot   types.JSONText `db:"snapshot" json:"snapshot"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	SavedAt    time.Time      `db:"saved_at" json:"savedAt"`
}

// AllocationAssignment is one category of one student in a saved run.
type AllocationAssignment struct {
	ID         string `db:"id" json:"id"`
	RunID      string `db:"run_id" json:"runId"`
	GradeLevel string `db:"grade_level" json:"gradeLevel"`
	Student    string `db:"student" json:"student"`
	CourseType string `db:"course_type" json:"courseType"`
	Course     string `db:"course" json:"course"`
	Section    string `db:"section" json:"section"`
	Remark     string `db:"remark" json:"remark"`
}

// AllocationScore is the attainment of one ranked category in a saved run.
type AllocationScore struct {
	RunID      string  `db:"run_id" json:"runId"`
	CourseType string  `db:"course_type" json:"courseType"`
	Attained   int     `db:"attained" json:"attained"`
	Total      int     `db:"total" json:"total"`
	Percent    float64 `db:"percent" json:"percent"`
}
