package allocation

type shiftNode struct {
	kind byte
	id   int
}

const (
	nodeStudent byte = iota
	nodeGroup
	nodeSection
)

// SetStudentShift changes a student's shift and carries the change to every
// group and section connected to it. The walk is iterative; each node is
// visited at most once per call.
func (m *Model) SetStudentShift(student StudentID, shift ShiftID) {
	m.propagateShift(shiftNode{kind: nodeStudent, id: int(student)}, shift)
}

// SetGroupShift changes a group's shift and carries it to its members.
func (m *Model) SetGroupShift(group GroupID, shift ShiftID) {
	m.propagateShift(shiftNode{kind: nodeGroup, id: int(group)}, shift)
}

// SetSectionShift moves a section to another shift and carries it to its
// enrolled students.
func (m *Model) SetSectionShift(section SectionID, shift ShiftID) {
	m.propagateShift(shiftNode{kind: nodeSection, id: int(section)}, shift)
}

func (m *Model) propagateShift(start shiftNode, shift ShiftID) {
	seen := map[shiftNode]bool{start: true}
	queue := []shiftNode{start}
	push := func(n shiftNode) {
		if !seen[n] {
			seen[n] = true
			queue = append(queue, n)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		switch n.kind {
		case nodeStudent:
			st := m.Students[n.id]
			st.Shift = shift
			if st.Group != NoGroup {
				push(shiftNode{kind: nodeGroup, id: int(st.Group)})
			}
			for _, sec := range st.Sections {
				push(shiftNode{kind: nodeSection, id: int(sec)})
			}
		case nodeGroup:
			g := m.Groups[n.id]
			g.Shift = shift
			for _, member := range g.Students {
				push(shiftNode{kind: nodeStudent, id: int(member)})
			}
		case nodeSection:
			sec := m.Sections[n.id]
			if shift == NoShift {
				continue
			}
			if sec.Slot.Shift != shift {
				m.moveSection(sec, shift)
			}
			for _, member := range sec.Students {
				push(shiftNode{kind: nodeStudent, id: int(member)})
			}
		}
	}
}

// moveSection relocates a section into another shift. A session that does
// not belong to the target shift is dropped from the slot and from its
// attendees.
func (m *Model) moveSection(sec *Section, shift ShiftID) {
	sec.Slot.Shift = shift
	if sec.Slot.Session == NoSession || m.Sessions[sec.Slot.Session].Shift == shift {
		return
	}
	for _, member := range sec.Students {
		delete(m.Students[member].Sessions, sec.Slot.Session)
	}
	sec.Slot.Session = NoSession
}

// JoinGroup adds a student to a research group and merges their shifts: a
// group with a shift imposes it on the student, otherwise a student with a
// shift imposes it on the group.
func (m *Model) JoinGroup(student StudentID, group GroupID) {
	st := m.Students[student]
	g := m.Groups[group]
	st.Group = group
	for _, member := range g.Students {
		if member == student {
			return
		}
	}
	g.Students = append(g.Students, student)

	switch {
	case g.Shift != NoShift:
		if st.Shift != g.Shift {
			m.SetStudentShift(student, g.Shift)
		}
	case st.Shift != NoShift:
		m.SetGroupShift(group, st.Shift)
	}
}

// AvailableSessions lists the sessions of the student's shift it does not
// attend yet. A student without a shift has none.
func (m *Model) AvailableSessions(st *Student) []SessionID {
	if st.Shift == NoShift {
		return nil
	}
	var out []SessionID
	for _, s := range m.Shifts[st.Shift].Sessions {
		if !st.Sessions[s] {
			out = append(out, s)
		}
	}
	return out
}
