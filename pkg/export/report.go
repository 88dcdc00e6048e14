package export

import "fmt"

// Sheet names one table of an allocation report.
type Sheet string

const (
	SheetAssignments Sheet = "assignments"
	SheetSections    Sheet = "sections"
	SheetSummary     Sheet = "summary"
)

// ParseSheet accepts an empty name as the assignments sheet.
func ParseSheet(raw string) (Sheet, error) {
	switch Sheet(raw) {
	case "", SheetAssignments:
		return SheetAssignments, nil
	case SheetSections, SheetSummary:
		return Sheet(raw), nil
	}
	return "", fmt.Errorf("unknown sheet %q", raw)
}

// AssignmentRow is one category of one student.
type AssignmentRow struct {
	GradeLevel    string `csv:"grade_level"`
	Student       string `csv:"student"`
	Shift         string `csv:"shift"`
	ResearchGroup string `csv:"research_group"`
	CourseType    string `csv:"course_type"`
	Course        string `csv:"course"`
	Section       string `csv:"section"`
	Remark        string `csv:"remark"`
}

// SectionRow is the roster of one opened section.
type SectionRow struct {
	Course   string `csv:"course"`
	Section  string `csv:"section"`
	Shift    string `csv:"shift"`
	Session  string `csv:"session"`
	Minimum  int    `csv:"min"`
	Ideal    int    `csv:"ideal"`
	Maximum  int    `csv:"max"`
	Size     int    `csv:"size"`
	Students string `csv:"students"`
}

// SummaryRow is one line of the run summary.
type SummaryRow struct {
	Metric string `csv:"metric"`
	Value  string `csv:"value"`
	Target string `csv:"target"`
}

// Report bundles every sheet of one allocation result.
type Report struct {
	Title       string
	Assignments []AssignmentRow
	Sections    []SectionRow
	Summary     []SummaryRow
}

func (r Report) rows(sheet Sheet) (interface{}, error) {
	switch sheet {
	case SheetAssignments:
		return r.Assignments, nil
	case SheetSections:
		return r.Sections, nil
	case SheetSummary:
		return r.Summary, nil
	}
	return nil, fmt.Errorf("unknown sheet %q", sheet)
}
