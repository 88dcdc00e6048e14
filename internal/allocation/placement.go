package allocation

// Limit selects which capacity bound a placement respects.
type Limit int

const (
	// Enroll stops at the section's ideal size.
	Enroll Limit = iota
	// Overload fills up to the section's hard maximum.
	Overload
)

func (l Limit) String() string {
	if l == Overload {
		return "overload"
	}
	return "enroll"
}

func (l Limit) cap(c Capacity) int {
	if l == Overload {
		return c.Maximum
	}
	return c.Ideal
}

// HasRoom reports whether the section is below the limit's bound.
func (sec *Section) HasRoom(l Limit) bool {
	return sec.Size() < l.cap(sec.Capacity)
}

// Place enrolls the student into the section for a category. It fails
// without mutation when the section is full under the limit or the student
// does not qualify.
func (m *Model) Place(student StudentID, section SectionID, t CourseTypeID, l Limit) bool {
	st := m.Students[student]
	sec := m.Sections[section]
	if sec.Closed || !sec.HasRoom(l) || !m.SectionQualified(st, sec) {
		return false
	}

	sec.Students = append(sec.Students, student)
	st.Takes[t] = sec.Course
	st.Sections[sec.Course] = section
	if sec.Slot.Session != NoSession {
		st.Sessions[sec.Slot.Session] = true
	}
	if st.Shift != sec.Slot.Shift {
		m.SetStudentShift(student, sec.Slot.Shift)
	}
	return true
}

// PlaceCourse enrolls the student into the least occupied section of the
// course that admits it.
func (m *Model) PlaceCourse(student StudentID, course CourseID, t CourseTypeID, l Limit) (SectionID, bool) {
	st := m.Students[student]
	best := SectionID(-1)
	for _, id := range m.Courses[course].Sections {
		sec := m.Sections[id]
		if !sec.HasRoom(l) || !m.SectionQualified(st, sec) {
			continue
		}
		if best < 0 || sec.Size() < m.Sections[best].Size() {
			best = id
		}
	}
	if best < 0 {
		return best, false
	}
	return best, m.Place(student, best, t, l)
}

// Release removes the student from whatever it holds for a category.
func (m *Model) Release(student StudentID, t CourseTypeID) {
	st := m.Students[student]
	course, ok := st.Takes[t]
	if !ok {
		return
	}
	delete(st.Takes, t)
	section, ok := st.Sections[course]
	if !ok {
		return
	}
	delete(st.Sections, course)
	sec := m.Sections[section]
	sec.remove(student)
	if sec.Slot.Session != NoSession {
		delete(st.Sessions, sec.Slot.Session)
	}
	if len(st.Sections) == 0 && st.Group == NoGroup {
		st.Shift = NoShift
	}
}

// OpenSection schedules a new section of the course. Its index counts the
// course's sections already occupying the same slot.
func (m *Model) OpenSection(course CourseID, shift ShiftID, session SessionID) SectionID {
	c := m.Courses[course]
	index := 0
	for _, id := range c.Sections {
		slot := m.Sections[id].Slot
		if slot.Shift == shift && slot.Session == session {
			index++
		}
	}
	id := SectionID(len(m.Sections))
	m.Sections = append(m.Sections, &Section{
		ID:       id,
		Course:   course,
		Slot:     ParallelSession{Shift: shift, Session: session, Index: index},
		Capacity: c.Capacity,
	})
	c.Sections = append(c.Sections, id)
	return id
}

// CloseSection releases every student of the section and withdraws it from
// its course. It returns the released students.
func (m *Model) CloseSection(section SectionID) []StudentID {
	sec := m.Sections[section]
	released := append([]StudentID(nil), sec.Students...)
	for _, student := range released {
		if t, ok := m.typeHolding(m.Students[student], sec.Course); ok {
			m.Release(student, t)
		}
	}
	sec.Students = nil
	sec.Closed = true
	c := m.Courses[sec.Course]
	for i, id := range c.Sections {
		if id == section {
			c.Sections = append(c.Sections[:i], c.Sections[i+1:]...)
			break
		}
	}
	return released
}

func (m *Model) typeHolding(st *Student, course CourseID) (CourseTypeID, bool) {
	for _, t := range m.CourseTypes {
		if c, ok := st.Takes[t.ID]; ok && c == course {
			return t.ID, true
		}
	}
	return -1, false
}

// OpenSections lists the course's live sections.
func (m *Model) OpenSections(course CourseID) []*Section {
	out := make([]*Section, 0, len(m.Courses[course].Sections))
	for _, id := range m.Courses[course].Sections {
		out = append(out, m.Sections[id])
	}
	return out
}
