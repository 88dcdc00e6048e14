package allocation

import (
	"fmt"
	"sort"
)

// Remarks attached to ranked categories in a snapshot.
const (
	RemarkInvalidRankings = "initial rankings were invalid"
)

// Choice reports what happened to one ranked category of a student.
type Choice struct {
	Type    string `json:"type"`
	Initial string `json:"initial,omitempty"`
	Placed  string `json:"placed,omitempty"`
	Honored bool   `json:"honored"`
	Reason  string `json:"reason,omitempty"`
	Remark  string `json:"remark,omitempty"`
}

// Placement is one realized category of a student.
type Placement struct {
	Type    string `json:"type"`
	Course  string `json:"course"`
	Section string `json:"section"`
}

// StudentResult is the realized timetable of one student.
type StudentResult struct {
	Alias      string      `json:"alias"`
	Grade      string      `json:"grade"`
	Label      string      `json:"label"`
	Shift      string      `json:"shift,omitempty"`
	Group      string      `json:"group,omitempty"`
	Placements []Placement `json:"placements"`
	Choices    []Choice    `json:"choices"`
}

// SectionResult is the roster of one section that holds students.
type SectionResult struct {
	Label    string   `json:"label"`
	Shift    string   `json:"shift"`
	Session  string   `json:"session,omitempty"`
	Index    int      `json:"index"`
	Capacity Capacity `json:"capacity"`
	Students []string `json:"students"`
}

// CourseResult lists the used sections of one course.
type CourseResult struct {
	Alias    string          `json:"alias"`
	Label    string          `json:"label"`
	Sections []SectionResult `json:"sections"`
}

// Snapshot is an immutable copy of a completed attempt.
type Snapshot struct {
	Types    []string        `json:"types"`
	Students []StudentResult `json:"students"`
	Courses  []CourseResult  `json:"courses"`
	Scores   []CategoryScore `json:"scores"`
}

// Total is the sum of the category percentages.
func (s *Snapshot) Total() float64 { return TotalScore(s.Scores) }

// Capture copies the realized assignment, the per-student remarks and the
// scores out of the model.
func Capture(m *Model) *Snapshot {
	snap := &Snapshot{Scores: Score(m)}
	for _, t := range m.CourseTypes {
		snap.Types = append(snap.Types, t.Alias)
	}
	ranked := m.RankedTypes()

	for _, st := range m.Students {
		res := StudentResult{
			Alias: st.Alias,
			Grade: m.Grades[st.Grade].Alias,
			Label: m.StudentLabel(st),
		}
		if st.Shift != NoShift {
			res.Shift = m.Shifts[st.Shift].Alias
		}
		if st.Group != NoGroup && !m.Groups[st.Group].Temporary {
			res.Group = m.Groups[st.Group].Alias
		}
		for _, t := range m.CourseTypes {
			course, ok := st.Takes[t.ID]
			if !ok {
				continue
			}
			p := Placement{Type: t.Alias, Course: m.Courses[course].Label()}
			if sec, ok := st.Sections[course]; ok {
				p.Section = m.SectionLabel(m.Sections[sec])
			}
			res.Placements = append(res.Placements, p)
		}
		for _, t := range ranked {
			if len(m.Grades[st.Grade].Courses[Bucket{Type: t, Ranked: true}]) == 0 {
				continue
			}
			res.Choices = append(res.Choices, choiceOf(m, st, t))
		}
		snap.Students = append(snap.Students, res)
	}

	for _, c := range m.Courses {
		cr := CourseResult{Alias: c.Alias, Label: c.Label()}
		for _, sec := range m.OpenSections(c.ID) {
			if sec.Size() == 0 {
				continue
			}
			sr := SectionResult{
				Label:    m.SectionLabel(sec),
				Shift:    m.Shifts[sec.Slot.Shift].Alias,
				Index:    sec.Slot.Index,
				Capacity: sec.Capacity,
			}
			if sec.Slot.Session != NoSession {
				sr.Session = m.Sessions[sec.Slot.Session].Alias
			}
			for _, id := range sec.Students {
				sr.Students = append(sr.Students, m.StudentLabel(m.Students[id]))
			}
			sort.Strings(sr.Students)
			cr.Sections = append(cr.Sections, sr)
		}
		if len(cr.Sections) == 0 {
			continue
		}
		snap.Courses = append(snap.Courses, cr)
	}
	return snap
}

func choiceOf(m *Model, st *Student, t CourseTypeID) Choice {
	ch := Choice{Type: m.CourseTypes[t].Alias}
	if held, ok := st.Takes[t]; ok {
		ch.Placed = m.Courses[held].Label()
	}
	initial, ok := st.Rankings.Initial(t, 0)
	if !ok {
		ch.Remark = RemarkInvalidRankings
		return ch
	}
	ch.Initial = m.Courses[initial].Label()
	if held, ok := st.Takes[t]; ok && held == initial {
		ch.Honored = true
		return ch
	}
	if reason, ok := st.Rankings.Reason(t, initial); ok {
		ch.Reason = reason
		ch.Remark = fmt.Sprintf("%s: %s", ch.Initial, reason)
		return ch
	}
	ch.Remark = "wants " + ch.Initial
	return ch
}

// Student looks a student result up by label.
func (s *Snapshot) Student(label string) (StudentResult, bool) {
	for _, st := range s.Students {
		if st.Label == label {
			return st, true
		}
	}
	return StudentResult{}, false
}
