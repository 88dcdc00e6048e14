package dto

// RosterRow is one line of the students CSV. Taken holds course aliases
// separated by "||".
type RosterRow struct {
	GradeLevel    string `csv:"grade_level" validate:"required"`
	Student       string `csv:"student" validate:"required"`
	ResearchGroup string `csv:"research_group"`
	Taken         string `csv:"taken"`
}

// RankingRow is one preference of the rankings CSV. Rank orders the rows
// of one student and category, lowest first.
type RankingRow struct {
	GradeLevel string `csv:"grade_level" validate:"required"`
	Student    string `csv:"student" validate:"required"`
	CourseType string `csv:"course_type" validate:"required"`
	Rank       int    `csv:"rank" validate:"gte=1"`
	Course     string `csv:"course" validate:"required"`
}
