package allocation

import "sort"

// cullSections closes every section below its minimum and puts the
// released students back into research and math.
func (e *Engine) cullSections() *FatalError {
	var released []StudentID
	for _, c := range e.m.Courses {
		for _, sec := range e.m.OpenSections(c.ID) {
			if sec.Size() < sec.Capacity.Minimum {
				released = append(released, e.m.CloseSection(sec.ID)...)
			}
		}
	}

	seenGroup := make(map[GroupID]bool)
	seen := make(map[StudentID]bool)
	for _, id := range released {
		if seen[id] {
			continue
		}
		seen[id] = true
		st := e.m.Students[id]
		if st.Group != NoGroup {
			if seenGroup[st.Group] {
				continue
			}
			seenGroup[st.Group] = true
			if fe := e.restoreGroup(e.m.Groups[st.Group]); fe != nil {
				return fe
			}
			continue
		}
		if !e.holds(st, e.research) {
			research, ok := e.researchCourse(st)
			if !ok {
				return fatal(PhaseCull, "no research course for %s", e.m.StudentLabel(st))
			}
			if _, placed := e.m.PlaceCourse(id, research, e.research, Overload); !placed && !e.openAndPlace(st, research, e.research, Overload) {
				return fatal(PhaseCull, "cannot restore research for %s", e.m.StudentLabel(st))
			}
		}
		if fe := e.placeMath(st, PhaseCull); fe != nil {
			return fe
		}
	}
	return nil
}

// restoreGroup reseats a group that lost its research section, keeping the
// members together.
func (e *Engine) restoreGroup(g *ResearchGroup) *FatalError {
	var missing []StudentID
	for _, id := range g.Students {
		if !e.holds(e.m.Students[id], e.research) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		section, ok := e.groupSectionFor(g, missing)
		if !ok {
			return fatal(PhaseCull, "cannot restore research section of group %s", g.Alias)
		}
		for _, id := range missing {
			if !e.m.Place(id, section, e.research, Overload) {
				return fatal(PhaseCull, "cannot restore %s into %s", e.m.StudentLabel(e.m.Students[id]), e.m.SectionLabel(e.m.Sections[section]))
			}
		}
	}
	for _, id := range g.Students {
		if fe := e.placeMath(e.m.Students[id], PhaseCull); fe != nil {
			return fe
		}
	}
	return nil
}

// groupSectionFor finds or opens a research section every listed member can
// attend: the section the rest of the group already sits in, an existing
// section with room, or a new one at a session no member occupies.
func (e *Engine) groupSectionFor(g *ResearchGroup, members []StudentID) (SectionID, bool) {
	for _, id := range g.Students {
		if sec, ok := e.m.Students[id].Sections[g.Course]; ok {
			return sec, e.admitsAll(e.m.Sections[sec], members)
		}
	}
	for _, sec := range e.m.OpenSections(g.Course) {
		if e.admitsAll(sec, members) {
			return sec.ID, true
		}
	}
	if !e.m.CouldOpenSection(g.Course) || g.Shift == NoShift {
		return -1, false
	}
	for _, session := range e.m.Shifts[g.Shift].Sessions {
		free := true
		for _, id := range members {
			if e.m.Students[id].Sessions[session] {
				free = false
				break
			}
		}
		if free {
			return e.m.OpenSection(g.Course, g.Shift, session), true
		}
	}
	return -1, false
}

func (e *Engine) admitsAll(sec *Section, members []StudentID) bool {
	if sec.Size()+len(members) > sec.Capacity.Maximum {
		return false
	}
	for _, id := range members {
		if !e.m.SectionQualified(e.m.Students[id], sec) {
			return false
		}
	}
	return true
}

type pending struct {
	student StudentID
	t       CourseTypeID
}

// openOnDemand repeatedly groups unplaced core and elective students by
// their current choice and opens a section where the demand concentrates,
// or moves them down their rankings when no section can be opened.
func (e *Engine) openOnDemand() *FatalError {
	l := e.opts.Policy.Demand
	for round := 0; round < e.opts.DemandRounds; round++ {
		byCourse := make(map[CourseID][]pending)
		for _, st := range e.m.Students {
			for _, t := range []CourseTypeID{e.core, e.elective} {
				if e.holds(st, t) {
					continue
				}
				if fe := e.resolveCompatibility(st, t, PhaseDemand); fe != nil {
					return fe
				}
				if _, placed := e.m.PlaceCourse(st.ID, e.mustCurrent(st, t), t, l); placed {
					continue
				}
				course := e.mustCurrent(st, t)
				byCourse[course] = append(byCourse[course], pending{student: st.ID, t: t})
			}
		}
		if len(byCourse) == 0 {
			return nil
		}

		changed := false
		courses := make([]CourseID, 0, len(byCourse))
		for c := range byCourse {
			courses = append(courses, c)
		}
		sort.Slice(courses, func(i, j int) bool { return courses[i] < courses[j] })

		for _, course := range courses {
			reason, opened := e.openForDemand(course, byCourse[course], l)
			if opened {
				changed = true
				continue
			}
			for _, p := range byCourse[course] {
				st := e.m.Students[p.student]
				if e.holds(st, p.t) {
					continue
				}
				if !e.m.PopCourse(st, p.t, course, reason) {
					continue
				}
				changed = true
				if fe := e.cleanupRankings(st, p.t); fe != nil {
					return fe
				}
			}
		}
		if !changed {
			return nil
		}
	}
	return nil
}

func (e *Engine) mustCurrent(st *Student, t CourseTypeID) CourseID {
	c, _ := e.m.Current(st, t, 0)
	return c
}

// openForDemand opens one section of the course at the (shift, session)
// most of the waiting students can attend. When it opens nothing it reports
// the rejection reason: demand below the course minimum is checked before
// the section cap.
func (e *Engine) openForDemand(course CourseID, waiting []pending, l Limit) (string, bool) {
	type slot struct {
		shift   ShiftID
		session SessionID
	}
	counts := make(map[slot]int)
	var slots []slot
	for _, p := range waiting {
		st := e.m.Students[p.student]
		for _, s := range e.m.AvailableSessions(st) {
			k := slot{st.Shift, s}
			if counts[k] == 0 {
				slots = append(slots, k)
			}
			counts[k]++
		}
	}
	if len(slots) == 0 {
		return ReasonTooFewDemand, false
	}
	e.rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	best := slots[0]
	for _, s := range slots[1:] {
		if counts[s] > counts[best] {
			best = s
		}
	}
	if counts[best] < e.m.Courses[course].Capacity.Minimum {
		return ReasonTooFewDemand, false
	}
	if !e.m.CouldOpenSection(course) {
		return ReasonNoRooms, false
	}

	sec := e.m.OpenSection(course, best.shift, best.session)
	for _, p := range waiting {
		e.m.Place(p.student, sec, p.t, l)
	}
	return "", true
}

// cleanupRankings runs after a pop of t. A placed partner constrains the
// new choice of t; an unplaced partner is itself popped until it fits the
// new choice.
func (e *Engine) cleanupRankings(st *Student, t CourseTypeID) *FatalError {
	o := e.other(t)
	if e.holds(st, o) {
		return e.resolveCompatibility(st, t, PhaseDemand)
	}
	for n := e.countdown(st, t); ; n-- {
		if n == 0 {
			return fatal(PhaseDemand, "exhausted %s choices for %s", e.m.CourseTypes[t].Alias, e.m.StudentLabel(st))
		}
		course, ok := e.m.Current(st, t, 0)
		if !ok {
			return fatal(PhaseDemand, "%s has no %s choice left", e.m.StudentLabel(st), e.m.CourseTypes[t].Alias)
		}
		if e.m.CourseQualified(st, e.m.Courses[course]) {
			break
		}
		e.m.Pop(st, t, ReasonNotQualified, 0)
	}
	return e.resolveCompatibility(st, o, PhaseDemand)
}
