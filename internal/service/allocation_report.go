package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nimendoza/B2023-R3X-07/internal/allocation"
	"github.com/nimendoza/B2023-R3X-07/internal/dto"
	"github.com/nimendoza/B2023-R3X-07/internal/models"
	"github.com/nimendoza/B2023-R3X-07/pkg/export"
)

// ResultFromOutcome converts one successful runner outcome into a result.
func ResultFromOutcome(index int, out *allocation.Outcome) dto.RunResult {
	res := dto.RunResult{
		Index:     index,
		Attempts:  out.Attempts,
		ElapsedMs: out.Elapsed.Milliseconds(),
		Snapshot:  out.Snapshot,
	}
	if out.Snapshot != nil {
		res.Scores = out.Snapshot.Scores
		res.Total = out.Snapshot.Total()
	}
	return res
}

// BuildReport lays out one result as the assignments, sections and summary
// sheets of an export.
func BuildReport(title string, result dto.RunResult, targets map[string]float64) export.Report {
	report := export.Report{Title: title}
	if result.Snapshot == nil {
		return report
	}
	report.Assignments = assignmentLines(result.Snapshot)

	for _, course := range result.Snapshot.Courses {
		for _, sec := range course.Sections {
			report.Sections = append(report.Sections, export.SectionRow{
				Course:   course.Label,
				Section:  sec.Label,
				Shift:    sec.Shift,
				Session:  sec.Session,
				Minimum:  sec.Capacity.Minimum,
				Ideal:    sec.Capacity.Ideal,
				Maximum:  sec.Capacity.Maximum,
				Size:     len(sec.Students),
				Students: strings.Join(sec.Students, ", "),
			})
		}
	}

	elapsed := time.Duration(result.ElapsedMs) * time.Millisecond
	report.Summary = []export.SummaryRow{
		{Metric: "time taken", Value: elapsed.String()},
		{Metric: "guesses", Value: strconv.Itoa(result.Attempts)},
	}
	for _, sc := range result.Scores {
		row := export.SummaryRow{
			Metric: sc.Type + " score",
			Value:  fmt.Sprintf("%.2f%% (%d/%d)", sc.Percent, sc.Attained, sc.Total),
		}
		if target, ok := targets[sc.Type]; ok {
			row.Target = fmt.Sprintf("%.2f%%", target)
		}
		report.Summary = append(report.Summary, row)
	}
	report.Summary = append(report.Summary, export.SummaryRow{
		Metric: "total score",
		Value:  fmt.Sprintf("%.2f", result.Total),
	})
	return report
}

// assignmentLines emits one row per student and category that the student
// either holds or ranked, in category precedence order.
func assignmentLines(snap *allocation.Snapshot) []export.AssignmentRow {
	var rows []export.AssignmentRow
	for _, st := range snap.Students {
		placed := make(map[string]allocation.Placement, len(st.Placements))
		for _, p := range st.Placements {
			placed[p.Type] = p
		}
		remarks := make(map[string]string, len(st.Choices))
		ranked := make(map[string]bool, len(st.Choices))
		for _, ch := range st.Choices {
			remarks[ch.Type] = ch.Remark
			ranked[ch.Type] = true
		}
		for _, t := range snap.Types {
			p, holds := placed[t]
			if !holds && !ranked[t] {
				continue
			}
			rows = append(rows, export.AssignmentRow{
				GradeLevel:    st.Grade,
				Student:       st.Alias,
				Shift:         st.Shift,
				ResearchGroup: st.Group,
				CourseType:    t,
				Course:        p.Course,
				Section:       p.Section,
				Remark:        remarks[t],
			})
		}
	}
	return rows
}

func assignmentRecords(runID string, snap *allocation.Snapshot) []models.AllocationAssignment {
	lines := assignmentLines(snap)
	rows := make([]models.AllocationAssignment, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, models.AllocationAssignment{
			RunID:      runID,
			GradeLevel: line.GradeLevel,
			Student:    line.Student,
			CourseType: line.CourseType,
			Course:     line.Course,
			Section:    line.Section,
			Remark:     line.Remark,
		})
	}
	return rows
}

func scoreRecords(runID string, scores []allocation.CategoryScore) []models.AllocationScore {
	rows := make([]models.AllocationScore, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, models.AllocationScore{
			RunID:      runID,
			CourseType: sc.Type,
			Attained:   sc.Attained,
			Total:      sc.Total,
			Percent:    sc.Percent,
		})
	}
	return rows
}
