package allocation

// forcePlacement gives every student still missing core or elective some
// compatible pair of sections, overloading if necessary. A student for whom
// no pair exists fails the attempt.
func (e *Engine) forcePlacement() *FatalError {
	l := e.opts.Policy.Forced
	for _, st := range e.m.Students {
		if !e.holds(st, e.research) {
			return fatal(PhaseForced, "%s holds no research section", e.m.StudentLabel(st))
		}
		if fe := e.placeMath(st, PhaseForced); fe != nil {
			return fe
		}
		if e.holds(st, e.core) && e.holds(st, e.elective) {
			continue
		}

		e.m.Release(st.ID, e.core)
		e.m.Release(st.ID, e.elective)

		currentCore, _ := e.m.Current(st, e.core, 0)
		currentElective, _ := e.m.Current(st, e.elective, 0)
		cores := e.forcedCandidates(st, e.core, currentCore)
		electives := e.forcedCandidates(st, e.elective, currentElective)

		placed := false
		for _, cc := range cores {
			for _, ec := range electives {
				if e.m.Conflicts(cc, ec) {
					continue
				}
				if e.placeForcedPair(st, cc, ec, l) {
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
		if !placed {
			return fatal(PhaseForced, "no core and elective pair fits %s", e.m.StudentLabel(st))
		}

		if st.Takes[e.core] != currentCore {
			e.m.Pop(st, e.core, ReasonLastResort, 0)
		}
		if st.Takes[e.elective] != currentElective {
			e.m.Pop(st, e.elective, ReasonLastResort, 0)
		}
	}
	return nil
}

// forcedCandidates lists every course of the category the student
// qualifies for, with the current choice first and the rest shuffled.
func (e *Engine) forcedCandidates(st *Student, t CourseTypeID, current CourseID) []CourseID {
	var rest []CourseID
	first := false
	for _, c := range e.bucket(st, t) {
		if !e.m.CourseQualified(st, e.m.Courses[c]) {
			continue
		}
		if c == current {
			first = true
			continue
		}
		rest = append(rest, c)
	}
	e.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	if first {
		return append([]CourseID{current}, rest...)
	}
	return rest
}

func (e *Engine) placeForcedPair(st *Student, core, elective CourseID, l Limit) bool {
	for _, p := range e.pairs(st, core, elective, st.Shift, l, nil) {
		if !e.m.Place(st.ID, p.core, e.core, l) {
			continue
		}
		if e.m.Place(st.ID, p.elective, e.elective, l) {
			return true
		}
		e.m.Release(st.ID, e.core)
	}
	return false
}

// rebalance levels occupancy: for each course held as core or elective and
// each (shift, session), the slot's students are pulled out and placed back
// into the least loaded sections of the course they can attend.
func (e *Engine) rebalance() *FatalError {
	l := e.opts.Policy.Rebalance
	for _, c := range e.m.Courses {
		if !e.heldAs(c.ID, e.core) && !e.heldAs(c.ID, e.elective) {
			continue
		}
		for _, shift := range e.m.Shifts {
			for _, session := range shift.Sessions {
				released := make(map[StudentID]CourseTypeID)
				var order []StudentID
				for _, sec := range e.m.OpenSections(c.ID) {
					if !sec.Slot.InShift(shift.ID) || !sec.Slot.AtSession(session) {
						continue
					}
					for _, id := range append([]StudentID(nil), sec.Students...) {
						t, ok := e.m.typeHolding(e.m.Students[id], c.ID)
						if !ok {
							continue
						}
						released[id] = t
						order = append(order, id)
						e.m.Release(id, t)
					}
				}
				for _, id := range order {
					if _, ok := e.m.PlaceCourse(id, c.ID, released[id], l); !ok {
						return fatal(PhaseRebalance, "cannot place %s back into %s", e.m.StudentLabel(e.m.Students[id]), c.Label())
					}
				}
			}
		}
	}
	return nil
}

func (e *Engine) heldAs(course CourseID, t CourseTypeID) bool {
	for _, st := range e.m.Students {
		if c, ok := st.Takes[t]; ok && c == course {
			return true
		}
	}
	return false
}

// checkMinimums fails the attempt when a non-empty section is below its
// minimum.
func (e *Engine) checkMinimums() *FatalError {
	for _, c := range e.m.Courses {
		for _, sec := range e.m.OpenSections(c.ID) {
			if sec.Size() > 0 && sec.Size() < sec.Capacity.Minimum {
				return fatal(PhaseCheck, "%s holds %d students, below its minimum of %d",
					e.m.SectionLabel(sec), sec.Size(), sec.Capacity.Minimum)
			}
		}
	}
	return nil
}
