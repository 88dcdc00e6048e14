package allocation

// Conflicts reports whether two courses may not be held together. Either
// side listing the other is enough.
func (m *Model) Conflicts(a, b CourseID) bool {
	return m.Courses[a].NotAlongside[b] || m.Courses[b].NotAlongside[a]
}

// CourseQualified reports whether the student may take the course given its
// history and current holdings.
func (m *Model) CourseQualified(st *Student, course *Course) bool {
	if !m.eligible(st, course) {
		return false
	}
	for _, held := range st.Takes {
		if m.Conflicts(course.ID, held) {
			return false
		}
	}
	return true
}

// eligible checks the history part of qualification: the course is not
// taken yet and every prerequisite group has a completed alternative.
func (m *Model) eligible(st *Student, course *Course) bool {
	if st.Taken[course.ID] {
		return false
	}
	for _, alternatives := range course.Prerequisites {
		satisfied := false
		for _, alt := range alternatives {
			if st.Taken[alt] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// SectionQualified adds the schedule constraints to CourseQualified: same
// shift, and a free session when the section occupies one.
func (m *Model) SectionQualified(st *Student, sec *Section) bool {
	if !m.CourseQualified(st, m.Courses[sec.Course]) {
		return false
	}
	if _, holds := st.Sections[sec.Course]; holds {
		return false
	}
	if st.Shift == NoShift {
		return true
	}
	if !sec.Slot.InShift(st.Shift) {
		return false
	}
	if sec.Slot.Session != NoSession && st.Sessions[sec.Slot.Session] {
		return false
	}
	return true
}

// CouldOpenSection reports whether the course and its linked sibling are
// still under the course's section cap.
func (m *Model) CouldOpenSection(course CourseID) bool {
	c := m.Courses[course]
	opened := len(c.Sections)
	if c.LinkedTo != NoCourse && c.LinkedTo != course {
		opened += len(m.Courses[c.LinkedTo].Sections)
	}
	return opened < c.MaxSections
}
