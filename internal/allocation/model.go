package allocation

import (
	"fmt"
	"sort"
	"strings"
)

// Handles into the Model arena. Negative values mean "none".
type (
	SessionID    int
	ShiftID      int
	CourseTypeID int
	GradeID      int
	CourseID     int
	SectionID    int
	StudentID    int
	GroupID      int
)

const (
	NoSession SessionID = -1
	NoShift   ShiftID   = -1
	NoCourse  CourseID  = -1
	NoGroup   GroupID   = -1
)

// Session is a time slot inside a shift.
type Session struct {
	ID    SessionID
	Alias string
	Shift ShiftID
}

// Shift is a disjoint set of sessions ordered by alias.
type Shift struct {
	ID       ShiftID
	Alias    string
	Sessions []SessionID
}

// Capacity is the sizing policy of a single section.
type Capacity struct {
	Minimum int `json:"min" yaml:"min"`
	Ideal   int `json:"ideal" yaml:"ideal"`
	Maximum int `json:"max" yaml:"max"`
}

// Valid reports whether minimum <= ideal <= maximum.
func (c Capacity) Valid() bool {
	return c.Minimum >= 0 && c.Minimum <= c.Ideal && c.Ideal <= c.Maximum && c.Maximum > 0
}

// CourseType is a required category; Order defines reporting precedence.
type CourseType struct {
	ID    CourseTypeID
	Alias string
	Order int
}

// Bucket keys a grade level's course classification.
type Bucket struct {
	Type   CourseTypeID
	Ranked bool
}

// GradeLevel is a cohort of students and the courses each category offers it.
type GradeLevel struct {
	ID      GradeID
	Alias   string
	Courses map[Bucket][]CourseID
}

// Course is a subject offering.
type Course struct {
	ID            CourseID
	Alias         string
	Level         int
	LinkedTo      CourseID
	Capacity      Capacity
	MaxSections   int
	NotAlongside  map[CourseID]bool
	Prerequisites [][]CourseID
	Sections      []SectionID
}

// Label renders the course the way reports show it.
func (c *Course) Label() string {
	if c.Level != 0 {
		return fmt.Sprintf("%s Level %d", c.Alias, c.Level)
	}
	return c.Alias
}

// ParallelSession is the scheduling slot of a section.
type ParallelSession struct {
	Shift   ShiftID
	Session SessionID
	Index   int
}

// InShift reports whether the slot belongs to the shift.
func (p ParallelSession) InShift(shift ShiftID) bool { return p.Shift == shift }

// AtSession reports whether the slot occupies the session.
func (p ParallelSession) AtSession(session SessionID) bool {
	return session != NoSession && p.Session == session
}

// Section is one scheduled offering of a course.
type Section struct {
	ID       SectionID
	Course   CourseID
	Slot     ParallelSession
	Capacity Capacity
	Students []StudentID
	Closed   bool
}

// Size is the number of enrolled students.
func (s *Section) Size() int { return len(s.Students) }

func (s *Section) remove(student StudentID) bool {
	for i, id := range s.Students {
		if id == student {
			s.Students = append(s.Students[:i], s.Students[i+1:]...)
			return true
		}
	}
	return false
}

// ResearchGroup is a pre-formed cohort sharing one research section and shift.
type ResearchGroup struct {
	ID        GroupID
	Alias     string
	Course    CourseID
	Students  []StudentID
	Shift     ShiftID
	Temporary bool
}

// Student is one enrollee and its per-attempt bookkeeping.
type Student struct {
	ID       StudentID
	Alias    string
	Grade    GradeID
	Shift    ShiftID
	Group    GroupID
	Taken    map[CourseID]bool
	Takes    map[CourseTypeID]CourseID
	Sessions map[SessionID]bool
	Sections map[CourseID]SectionID
	Rankings Rankings
}

// Model is the arena holding every entity of one catalog and roster.
// Entities refer to each other by handle only; a Model is not safe for
// concurrent use, so parallel attempts each work on their own Clone.
type Model struct {
	Sessions    []*Session
	Shifts      []*Shift
	CourseTypes []*CourseType
	Grades      []*GradeLevel
	Courses     []*Course
	Sections    []*Section
	Students    []*Student
	Groups      []*ResearchGroup

	baseGroups int
}

// NewModel returns an empty arena.
func NewModel() *Model {
	return &Model{}
}

// AddShift registers a shift and its sessions. An empty alias is derived
// from the session aliases.
func (m *Model) AddShift(alias string, sessions ...string) ShiftID {
	id := ShiftID(len(m.Shifts))
	shift := &Shift{ID: id}
	sorted := append([]string(nil), sessions...)
	sort.Strings(sorted)
	for _, name := range sorted {
		sid := SessionID(len(m.Sessions))
		m.Sessions = append(m.Sessions, &Session{ID: sid, Alias: name, Shift: id})
		shift.Sessions = append(shift.Sessions, sid)
	}
	if alias == "" {
		alias = strings.Join(sorted, "")
	}
	shift.Alias = alias
	m.Shifts = append(m.Shifts, shift)
	return id
}

// AddCourseType registers a category; precedence follows registration order.
func (m *Model) AddCourseType(alias string) CourseTypeID {
	id := CourseTypeID(len(m.CourseTypes))
	m.CourseTypes = append(m.CourseTypes, &CourseType{ID: id, Alias: alias, Order: int(id)})
	return id
}

// AddGradeLevel registers a cohort.
func (m *Model) AddGradeLevel(alias string) GradeID {
	id := GradeID(len(m.Grades))
	m.Grades = append(m.Grades, &GradeLevel{ID: id, Alias: alias, Courses: make(map[Bucket][]CourseID)})
	return id
}

// AddCourse registers a course. Its not-alongside set always contains itself.
func (m *Model) AddCourse(alias string, level int, capacity Capacity, maxSections int) CourseID {
	id := CourseID(len(m.Courses))
	m.Courses = append(m.Courses, &Course{
		ID:           id,
		Alias:        alias,
		Level:        level,
		LinkedTo:     NoCourse,
		Capacity:     capacity,
		MaxSections:  maxSections,
		NotAlongside: map[CourseID]bool{id: true},
	})
	return id
}

// Link makes two courses share a section quota.
func (m *Model) Link(course, sibling CourseID) {
	m.Courses[course].LinkedTo = sibling
}

// AddNotAlongside forbids holding other while holding course.
func (m *Model) AddNotAlongside(course, other CourseID) {
	m.Courses[course].NotAlongside[other] = true
}

// AddPrerequisite appends an alternative-set: at least one member must
// have been completed.
func (m *Model) AddPrerequisite(course CourseID, alternatives ...CourseID) {
	m.Courses[course].Prerequisites = append(m.Courses[course].Prerequisites, append([]CourseID(nil), alternatives...))
}

// Classify offers a course to a grade level under a category.
func (m *Model) Classify(grade GradeID, courseType CourseTypeID, ranked bool, course CourseID) {
	key := Bucket{Type: courseType, Ranked: ranked}
	for _, existing := range m.Grades[grade].Courses[key] {
		if existing == course {
			return
		}
	}
	m.Grades[grade].Courses[key] = append(m.Grades[grade].Courses[key], course)
}

// AddResearchGroup registers a pre-formed group.
func (m *Model) AddResearchGroup(alias string, course CourseID) GroupID {
	id := GroupID(len(m.Groups))
	m.Groups = append(m.Groups, &ResearchGroup{ID: id, Alias: alias, Course: course, Shift: NoShift})
	m.baseGroups = len(m.Groups)
	return id
}

// AddStudent registers a student with empty rankings for every ranked
// category of its grade level.
func (m *Model) AddStudent(alias string, grade GradeID) StudentID {
	id := StudentID(len(m.Students))
	st := &Student{
		ID:       id,
		Alias:    alias,
		Grade:    grade,
		Shift:    NoShift,
		Group:    NoGroup,
		Taken:    make(map[CourseID]bool),
		Takes:    make(map[CourseTypeID]CourseID),
		Sessions: make(map[SessionID]bool),
		Sections: make(map[CourseID]SectionID),
		Rankings: newRankings(),
	}
	m.Students = append(m.Students, st)
	return id
}

// MarkTaken records a previously completed course.
func (m *Model) MarkTaken(student StudentID, course CourseID) {
	m.Students[student].Taken[course] = true
}

// Rank records a preference at load time. Courses the student does not
// qualify for are dropped silently.
func (m *Model) Rank(student StudentID, courseType CourseTypeID, course CourseID) {
	st := m.Students[student]
	if !m.CourseQualified(st, m.Courses[course]) {
		return
	}
	st.Rankings.add(courseType, course)
}

// CourseByAlias looks a course up by alias or label.
func (m *Model) CourseByAlias(alias string) (CourseID, bool) {
	for _, c := range m.Courses {
		if c.Alias == alias || c.Label() == alias {
			return c.ID, true
		}
	}
	return NoCourse, false
}

// TypeByAlias looks a category up by alias.
func (m *Model) TypeByAlias(alias string) (CourseTypeID, bool) {
	for _, t := range m.CourseTypes {
		if strings.EqualFold(t.Alias, alias) {
			return t.ID, true
		}
	}
	return -1, false
}

// GradeByAlias looks a grade level up by alias.
func (m *Model) GradeByAlias(alias string) (GradeID, bool) {
	for _, g := range m.Grades {
		if g.Alias == alias {
			return g.ID, true
		}
	}
	return -1, false
}

// GroupByAlias looks a research group up by alias.
func (m *Model) GroupByAlias(alias string) (GroupID, bool) {
	for _, g := range m.Groups {
		if g.Alias == alias {
			return g.ID, true
		}
	}
	return NoGroup, false
}

// StudentLabel renders "<grade>-<alias>".
func (m *Model) StudentLabel(st *Student) string {
	return fmt.Sprintf("%s-%s", m.Grades[st.Grade].Alias, st.Alias)
}

// SectionLabel renders "<course> <session or shift><index>".
func (m *Model) SectionLabel(sec *Section) string {
	slot := m.Shifts[sec.Slot.Shift].Alias
	if sec.Slot.Session != NoSession {
		slot = m.Sessions[sec.Slot.Session].Alias
	}
	if sec.Slot.Index > 0 {
		slot = fmt.Sprintf("%s%d", slot, sec.Slot.Index)
	}
	return fmt.Sprintf("%s %s", m.Courses[sec.Course].Label(), slot)
}

// Validate checks the structural invariants a loader must guarantee.
func (m *Model) Validate() error {
	if len(m.Shifts) == 0 {
		return fmt.Errorf("%w: no shifts defined", ErrInvalidCatalog)
	}
	for _, shift := range m.Shifts {
		if len(shift.Sessions) == 0 {
			return fmt.Errorf("%w: shift %s has no sessions", ErrInvalidCatalog, shift.Alias)
		}
	}
	for _, c := range m.Courses {
		if !c.Capacity.Valid() {
			return fmt.Errorf("%w: course %s capacity must satisfy min <= ideal <= max", ErrInvalidCatalog, c.Label())
		}
		if c.MaxSections < 0 {
			return fmt.Errorf("%w: course %s section cap is negative", ErrInvalidCatalog, c.Label())
		}
	}
	for _, g := range m.Groups {
		if g.Course < 0 || int(g.Course) >= len(m.Courses) {
			return fmt.Errorf("%w: research group %s has no course", ErrInvalidCatalog, g.Alias)
		}
		if len(g.Students) > m.Courses[g.Course].Capacity.Maximum {
			return fmt.Errorf("%w: research group %s is larger than a %s section", ErrInvalidCatalog, g.Alias, m.Courses[g.Course].Label())
		}
	}
	return nil
}

// Clone deep-copies the arena so another attempt can mutate it independently.
func (m *Model) Clone() *Model {
	out := &Model{baseGroups: m.baseGroups}
	for _, s := range m.Sessions {
		cp := *s
		out.Sessions = append(out.Sessions, &cp)
	}
	for _, s := range m.Shifts {
		cp := *s
		cp.Sessions = append([]SessionID(nil), s.Sessions...)
		out.Shifts = append(out.Shifts, &cp)
	}
	for _, t := range m.CourseTypes {
		cp := *t
		out.CourseTypes = append(out.CourseTypes, &cp)
	}
	for _, g := range m.Grades {
		cp := *g
		cp.Courses = make(map[Bucket][]CourseID, len(g.Courses))
		for k, v := range g.Courses {
			cp.Courses[k] = append([]CourseID(nil), v...)
		}
		out.Grades = append(out.Grades, &cp)
	}
	for _, c := range m.Courses {
		cp := *c
		cp.NotAlongside = copyBoolMap(c.NotAlongside)
		cp.Prerequisites = make([][]CourseID, len(c.Prerequisites))
		for i, alts := range c.Prerequisites {
			cp.Prerequisites[i] = append([]CourseID(nil), alts...)
		}
		cp.Sections = append([]SectionID(nil), c.Sections...)
		out.Courses = append(out.Courses, &cp)
	}
	for _, s := range m.Sections {
		cp := *s
		cp.Students = append([]StudentID(nil), s.Students...)
		out.Sections = append(out.Sections, &cp)
	}
	for _, g := range m.Groups {
		cp := *g
		cp.Students = append([]StudentID(nil), g.Students...)
		out.Groups = append(out.Groups, &cp)
	}
	for _, st := range m.Students {
		cp := *st
		cp.Taken = copyBoolMap(st.Taken)
		cp.Takes = make(map[CourseTypeID]CourseID, len(st.Takes))
		for k, v := range st.Takes {
			cp.Takes[k] = v
		}
		cp.Sessions = make(map[SessionID]bool, len(st.Sessions))
		for k, v := range st.Sessions {
			cp.Sessions[k] = v
		}
		cp.Sections = make(map[CourseID]SectionID, len(st.Sections))
		for k, v := range st.Sections {
			cp.Sections[k] = v
		}
		cp.Rankings = st.Rankings.clone()
		out.Students = append(out.Students, &cp)
	}
	return out
}

// Reset restores the post-load baseline: no sections, no placements, no
// shifts, no temporary groups, and every working ranking equal to its start.
func (m *Model) Reset() {
	m.Sections = nil
	for _, c := range m.Courses {
		c.Sections = nil
	}
	m.Groups = m.Groups[:m.baseGroups]
	for _, g := range m.Groups {
		g.Shift = NoShift
	}
	for _, st := range m.Students {
		if int(st.Group) >= m.baseGroups {
			st.Group = NoGroup
		}
		st.Shift = NoShift
		st.Takes = make(map[CourseTypeID]CourseID)
		st.Sessions = make(map[SessionID]bool)
		st.Sections = make(map[CourseID]SectionID)
		st.Rankings.reset()
	}
}

func copyBoolMap[K comparable](in map[K]bool) map[K]bool {
	out := make(map[K]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
