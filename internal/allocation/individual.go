package allocation

// placeIndividuals seats every student outside a research group, trying a
// full core, elective and research triple first, then one category with
// research, then the last resort chain.
func (e *Engine) placeIndividuals() *FatalError {
	students := e.shuffledStudents(func(st *Student) bool { return st.Group == NoGroup })
	for _, st := range students {
		if e.complete(st) {
			continue
		}
		if fe := e.resolveCompatibility(st, e.elective, PhaseIndividual); fe != nil {
			return fe
		}
		if fe := e.resolveCompatibility(st, e.core, PhaseIndividual); fe != nil {
			return fe
		}

		placed, fe := e.enrollInitial(st)
		if fe != nil {
			return fe
		}
		if !placed {
			for _, t := range []CourseTypeID{e.core, e.elective} {
				if placed, fe = e.enrollType(st, t); fe != nil {
					return fe
				}
				if placed {
					break
				}
			}
		}
		if !placed {
			if fe := e.lastResort(st); fe != nil {
				return fe
			}
		}

		for _, t := range []CourseTypeID{e.core, e.elective} {
			if e.holds(st, t) {
				continue
			}
			if course, ok := e.m.Current(st, t, 0); ok {
				e.m.PlaceCourse(st.ID, course, t, Overload)
			}
		}
	}
	return nil
}

// researchLimit enrolls into research up to ideal while some section of the
// course is still under ideal, and overloads once every section reached it.
func (e *Engine) researchLimit(course CourseID) Limit {
	for _, sec := range e.m.OpenSections(course) {
		if sec.HasRoom(Enroll) {
			return e.opts.Policy.Individual
		}
	}
	return Overload
}

func (e *Engine) enrollInitial(st *Student) (bool, *FatalError) {
	l := e.opts.Policy.Individual
	core, ok := e.m.Current(st, e.core, 0)
	if !ok {
		return false, nil
	}
	elective, ok := e.m.Current(st, e.elective, 0)
	if !ok {
		return false, nil
	}
	research, ok := e.researchCourse(st)
	if !ok {
		return false, fatal(PhaseIndividual, "no research course for %s", e.m.StudentLabel(st))
	}
	rl := e.researchLimit(research)

	type candidate struct {
		pair     triple
		research SectionID
	}
	var candidates []candidate
	for _, rs := range e.m.OpenSections(research) {
		if rs.Slot.Session == NoSession || !e.fits(st, rs, st.Shift, rl, 1) {
			continue
		}
		for _, p := range e.pairs(st, core, elective, rs.Slot.Shift, l, nil) {
			if !p.uses(rs.Slot.Session) {
				candidates = append(candidates, candidate{pair: p, research: rs.ID})
			}
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}

	pick := candidates[e.rng.Intn(len(candidates))]
	if !e.m.Place(st.ID, pick.research, e.research, rl) {
		return false, nil
	}
	if !e.m.Place(st.ID, pick.pair.core, e.core, l) || !e.m.Place(st.ID, pick.pair.elective, e.elective, l) {
		return false, fatal(PhaseIndividual, "triple for %s stopped fitting while placing it", e.m.StudentLabel(st))
	}
	return true, e.placeMath(st, PhaseIndividual)
}

func (e *Engine) enrollType(st *Student, t CourseTypeID) (bool, *FatalError) {
	l := e.opts.Policy.Individual
	course, ok := e.m.Current(st, t, 0)
	if !ok {
		return false, nil
	}
	research, ok := e.researchCourse(st)
	if !ok {
		return false, fatal(PhaseIndividual, "no research course for %s", e.m.StudentLabel(st))
	}
	rl := e.researchLimit(research)

	type candidate struct{ section, research SectionID }
	var candidates []candidate
	for _, sec := range e.m.OpenSections(course) {
		if sec.Slot.Session == NoSession || !e.fits(st, sec, st.Shift, l, 1) {
			continue
		}
		for _, rs := range e.m.OpenSections(research) {
			if rs.Slot.Shift != sec.Slot.Shift || rs.Slot.Session == NoSession || rs.Slot.Session == sec.Slot.Session {
				continue
			}
			if e.fits(st, rs, st.Shift, rl, 1) {
				candidates = append(candidates, candidate{section: sec.ID, research: rs.ID})
			}
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}

	pick := candidates[e.rng.Intn(len(candidates))]
	if !e.m.Place(st.ID, pick.research, e.research, rl) {
		return false, nil
	}
	if !e.m.Place(st.ID, pick.section, t, l) {
		return false, fatal(PhaseIndividual, "pair for %s stopped fitting while placing it", e.m.StudentLabel(st))
	}
	return true, e.placeMath(st, PhaseIndividual)
}

func (e *Engine) lastResort(st *Student) *FatalError {
	if !e.holds(st, e.research) {
		research, ok := e.researchCourse(st)
		if !ok {
			return fatal(PhaseIndividual, "no research course for %s", e.m.StudentLabel(st))
		}
		if _, placed := e.m.PlaceCourse(st.ID, research, e.research, Overload); !placed {
			if !e.openAndPlace(st, research, e.research, Overload) {
				return fatal(PhaseIndividual, "no research section for %s", e.m.StudentLabel(st))
			}
		}
	}
	if fe := e.placeMath(st, PhaseIndividual); fe != nil {
		return fe
	}
	for _, t := range []CourseTypeID{e.core, e.elective} {
		if !e.holds(st, t) {
			e.sectionStudent(st, t, e.opts.Policy.LastResort)
		}
	}
	return nil
}

// openAndPlace opens a section of the course at a random free session of
// the student's shift (or of a random shift) and seats the student there.
func (e *Engine) openAndPlace(st *Student, course CourseID, t CourseTypeID, l Limit) bool {
	if !e.m.CouldOpenSection(course) {
		return false
	}
	shift := st.Shift
	if shift == NoShift {
		shift = e.m.Shifts[e.rng.Intn(len(e.m.Shifts))].ID
	}
	var free []SessionID
	for _, s := range e.m.Shifts[shift].Sessions {
		if !st.Sessions[s] {
			free = append(free, s)
		}
	}
	if len(free) == 0 {
		return false
	}
	sec := e.m.OpenSection(course, shift, free[e.rng.Intn(len(free))])
	if e.m.Place(st.ID, sec, t, l) {
		return true
	}
	e.m.CloseSection(sec)
	return false
}

// sectionStudent walks down the student's working ranking for a category
// until a section admits it. Each step tries existing sections, then a new
// section, then pops the choice. The walk is bounded and reports failure
// instead of raising; the forced phase owns the final guarantee.
func (e *Engine) sectionStudent(st *Student, t CourseTypeID, l Limit) bool {
	for n := e.countdown(st, t); n > 0; n-- {
		if e.holds(st, t) {
			return true
		}
		course, ok := e.m.Current(st, t, 0)
		if !ok {
			return false
		}
		if !e.m.CourseQualified(st, e.m.Courses[course]) {
			reason := ReasonNotQualified
			if held, ok := st.Takes[e.other(t)]; ok && e.m.Conflicts(course, held) {
				reason = IncompatibleWith(e.m.CourseTypes[e.other(t)].Alias)
			}
			e.m.Pop(st, t, reason, 0)
			continue
		}
		if _, placed := e.m.PlaceCourse(st.ID, course, t, l); placed {
			return true
		}
		if e.openAndPlace(st, course, t, l) {
			return true
		}
		e.m.Pop(st, t, ReasonNoRooms, 0)
	}
	return false
}
