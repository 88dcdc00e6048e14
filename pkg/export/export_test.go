package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	return Report{
		Title: "Run 1",
		Assignments: []AssignmentRow{
			{GradeLevel: "Grade 11", Student: "Ana", Shift: "AM", CourseType: "Core", Course: "Physics Level 1", Section: "Physics Level 1 A1"},
			{GradeLevel: "Grade 11", Student: "Ana", Shift: "AM", CourseType: "Elective", Remark: "wants Art Level 1"},
		},
		Sections: []SectionRow{
			{Course: "Physics Level 1", Section: "Physics Level 1 A1", Shift: "AM", Session: "A1", Minimum: 1, Ideal: 10, Maximum: 15, Size: 1, Students: "Grade 11-Ana"},
		},
		Summary: []SummaryRow{
			{Metric: "attempts", Value: "3"},
			{Metric: "Core", Value: "100.00", Target: "80.00"},
		},
	}
}

func TestCSVRenderUsesColumnTags(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleReport(), SheetAssignments)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "grade_level,student,shift,research_group,course_type,course,section,remark", lines[0])
	assert.Equal(t, "Grade 11,Ana,AM,,Elective,,,wants Art Level 1", lines[2])
}

func TestCSVRenderRejectsUnknownSheet(t *testing.T) {
	_, err := NewCSVExporter().Render(sampleReport(), Sheet("grades"))
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleReport())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestParseSheet(t *testing.T) {
	sheet, err := ParseSheet("")
	require.NoError(t, err)
	assert.Equal(t, SheetAssignments, sheet)

	sheet, err = ParseSheet("summary")
	require.NoError(t, err)
	assert.Equal(t, SheetSummary, sheet)

	_, err = ParseSheet("rooms")
	assert.Error(t, err)
}

func TestClip(t *testing.T) {
	long := strings.Repeat("a", maxCellText+10)
	assert.Len(t, clip(long), maxCellText)
	assert.Equal(t, "short", clip("short"))
}
