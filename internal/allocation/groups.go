package allocation

import "fmt"

// prepareLevelTwo steers graduating students without any level 2 course
// towards a level 2 elective and gives the ungrouped ones a single-member
// research group.
func (e *Engine) prepareLevelTwo() *FatalError {
	grade, ok := e.m.GradeByAlias(e.opts.LevelTwoGrade)
	if !ok {
		return nil
	}
	for _, st := range e.m.Students {
		if st.Grade != grade || e.hasLevelTwo(st) {
			continue
		}
		if core, ok := st.Rankings.Initial(e.core, 0); ok && e.m.Courses[core].Level == 2 {
			continue
		}

		done := false
		for n := e.countdown(st, e.elective); n > 0; n-- {
			course, ok := e.m.Current(st, e.elective, 0)
			if !ok {
				break
			}
			if e.m.Courses[course].Level == 2 {
				done = true
				break
			}
			e.m.Pop(st, e.elective, ReasonNeedsLevelTwo, 0)
		}
		if !done {
			return fatal(PhaseLevelTwo, "no level 2 elective for %s", e.m.StudentLabel(st))
		}

		if st.Group == NoGroup {
			options := e.researchCourses(st)
			course := options[e.rng.Intn(len(options))]
			g := e.m.addTemporaryGroup(fmt.Sprintf("%s (temporary)", e.m.StudentLabel(st)), course)
			e.m.JoinGroup(st.ID, g)
		}
	}
	return nil
}

func (e *Engine) hasLevelTwo(st *Student) bool {
	for c := range st.Taken {
		if e.m.Courses[c].Level == 2 {
			return true
		}
	}
	return false
}

func (m *Model) addTemporaryGroup(alias string, course CourseID) GroupID {
	id := GroupID(len(m.Groups))
	m.Groups = append(m.Groups, &ResearchGroup{ID: id, Alias: alias, Course: course, Shift: NoShift, Temporary: true})
	return id
}

// openMathSections opens one shift-wide section per shift for every math
// course some student currently wants.
func (e *Engine) openMathSections() *FatalError {
	if e.math < 0 {
		return nil
	}
	wanted := make(map[CourseID]bool)
	for _, st := range e.m.Students {
		if !e.hasMath(st) {
			continue
		}
		if c, ok := e.m.Current(st, e.math, 0); ok {
			wanted[c] = true
		}
	}
	for _, course := range e.sortedCourses(wanted) {
		for _, shift := range e.m.Shifts {
			e.m.OpenSection(course, shift.ID, NoSession)
		}
	}
	return nil
}

// spreadResearchSections opens one section per (shift, session) for every
// research course in play, then a few extra sections at random slots.
func (e *Engine) spreadResearchSections() *FatalError {
	wanted := make(map[CourseID]bool)
	for _, g := range e.m.Groups {
		wanted[g.Course] = true
	}
	for _, st := range e.m.Students {
		if st.Group != NoGroup {
			continue
		}
		if c, ok := e.researchCourse(st); ok {
			wanted[c] = true
		}
	}

	for _, course := range e.sortedCourses(wanted) {
		for _, shift := range e.m.Shifts {
			for _, session := range shift.Sessions {
				if !e.m.CouldOpenSection(course) {
					break
				}
				e.m.OpenSection(course, shift.ID, session)
			}
		}
		for i := 0; i < e.opts.ExtraSpreadSections && e.m.CouldOpenSection(course); i++ {
			shift := e.m.Shifts[e.rng.Intn(len(e.m.Shifts))]
			session := shift.Sessions[e.rng.Intn(len(shift.Sessions))]
			e.m.OpenSection(course, shift.ID, session)
		}
	}
	return nil
}

// triple is one schedule-compatible core and elective section pair.
type triple struct {
	core     SectionID
	elective SectionID
	shift    ShiftID
	sessions [2]SessionID
}

func (t triple) uses(session SessionID) bool {
	return session != NoSession && (t.sessions[0] == session || t.sessions[1] == session)
}

// pairs lists the section pairs of two courses sharing a shift on distinct
// sessions, each with room for its extra demand under the limit.
func (e *Engine) pairs(st *Student, core, elective CourseID, shift ShiftID, l Limit, demand map[CourseID]int) []triple {
	var out []triple
	for _, cs := range e.m.OpenSections(core) {
		if !e.fits(st, cs, shift, l, demand[core]) {
			continue
		}
		for _, es := range e.m.OpenSections(elective) {
			if es.Slot.Shift != cs.Slot.Shift || !e.fits(st, es, shift, l, demand[elective]) {
				continue
			}
			if cs.Slot.Session == NoSession || es.Slot.Session == NoSession || cs.Slot.Session == es.Slot.Session {
				continue
			}
			out = append(out, triple{
				core:     cs.ID,
				elective: es.ID,
				shift:    cs.Slot.Shift,
				sessions: [2]SessionID{cs.Slot.Session, es.Slot.Session},
			})
		}
	}
	return out
}

func (e *Engine) fits(st *Student, sec *Section, shift ShiftID, l Limit, demand int) bool {
	if shift != NoShift && !sec.Slot.InShift(shift) {
		return false
	}
	if demand < 1 {
		demand = 1
	}
	if sec.Size()+demand > l.cap(sec.Capacity) {
		return false
	}
	return e.m.SectionQualified(st, sec)
}

// usable counts members with a pair left open by a research slot and the
// total such pairs.
func usable(options map[StudentID][]triple, shift ShiftID, session SessionID) (members, total int) {
	for _, list := range options {
		n := 0
		for _, t := range list {
			if t.shift == shift && !t.uses(session) {
				n++
			}
		}
		if n > 0 {
			members++
		}
		total += n
	}
	return members, total
}

// placeGroups seats every research group in one research section chosen to
// leave as many core and elective pairs open for its members as possible.
func (e *Engine) placeGroups() *FatalError {
	order := make([]*ResearchGroup, 0, len(e.m.Groups))
	for _, g := range e.m.Groups {
		if len(g.Students) > 0 {
			order = append(order, g)
		}
	}
	e.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, g := range order {
		if fe := e.placeGroup(g); fe != nil {
			return fe
		}
	}
	return nil
}

func (e *Engine) placeGroup(g *ResearchGroup) *FatalError {
	limit := e.opts.Policy.Groups

	demand := make(map[CourseID]int)
	for _, id := range g.Students {
		st := e.m.Students[id]
		if fe := e.resolveCompatibility(st, e.elective, PhaseGroups); fe != nil {
			return fe
		}
		if c, ok := e.m.Current(st, e.core, 0); ok {
			demand[c]++
		}
		if c, ok := e.m.Current(st, e.elective, 0); ok {
			demand[c]++
		}
	}

	options := make(map[StudentID][]triple, len(g.Students))
	for _, id := range g.Students {
		st := e.m.Students[id]
		core, okCore := e.m.Current(st, e.core, 0)
		elective, okElective := e.m.Current(st, e.elective, 0)
		if okCore && okElective {
			options[id] = e.pairs(st, core, elective, g.Shift, limit, demand)
		}
	}

	section, found := e.bestGroupSection(g, options, limit)
	if !found {
		if e.m.CouldOpenSection(g.Course) {
			shift, session := e.bestGroupSlot(g, options)
			section, found = e.m.OpenSection(g.Course, shift, session), true
		} else {
			section, found = e.randomGroupSection(g, limit)
			options = nil
		}
	}
	if !found {
		return fatal(PhaseGroups, "no research section with room for group %s", g.Alias)
	}

	for _, id := range g.Students {
		if !e.m.Place(id, section, e.research, limit) {
			return fatal(PhaseGroups, "cannot seat %s in %s", e.m.StudentLabel(e.m.Students[id]), e.m.SectionLabel(e.m.Sections[section]))
		}
	}
	for _, id := range g.Students {
		if fe := e.placeMath(e.m.Students[id], PhaseGroups); fe != nil {
			return fe
		}
	}

	for _, id := range g.Students {
		st := e.m.Students[id]
		if e.holds(st, e.core) || e.holds(st, e.elective) {
			continue
		}
		if options != nil && e.placePair(st, limit) {
			continue
		}
		for _, t := range []CourseTypeID{e.core, e.elective} {
			e.sectionStudent(st, t, e.opts.Policy.LastResort)
		}
	}
	return nil
}

// bestGroupSection picks the existing research section with room for the
// whole group that keeps the most members' pairs usable.
func (e *Engine) bestGroupSection(g *ResearchGroup, options map[StudentID][]triple, l Limit) (SectionID, bool) {
	candidates := e.m.OpenSections(g.Course)
	e.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	best, bestMembers, bestTotal := SectionID(-1), 0, 0
	for _, sec := range candidates {
		if g.Shift != NoShift && !sec.Slot.InShift(g.Shift) {
			continue
		}
		if sec.Size()+len(g.Students) > l.cap(sec.Capacity) {
			continue
		}
		members, total := usable(options, sec.Slot.Shift, sec.Slot.Session)
		if members > bestMembers || (members == bestMembers && total > bestTotal) {
			best, bestMembers, bestTotal = sec.ID, members, total
		}
	}
	return best, best >= 0 && bestTotal > 0
}

// bestGroupSlot picks the (shift, session) where a new research section
// would keep the most pairs usable.
func (e *Engine) bestGroupSlot(g *ResearchGroup, options map[StudentID][]triple) (ShiftID, SessionID) {
	type slot struct {
		shift   ShiftID
		session SessionID
	}
	var slots []slot
	for _, shift := range e.m.Shifts {
		if g.Shift != NoShift && shift.ID != g.Shift {
			continue
		}
		for _, session := range shift.Sessions {
			slots = append(slots, slot{shift.ID, session})
		}
	}
	e.rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

	best, bestMembers, bestTotal := slots[0], -1, -1
	for _, s := range slots {
		members, total := usable(options, s.shift, s.session)
		if members > bestMembers || (members == bestMembers && total > bestTotal) {
			best, bestMembers, bestTotal = s, members, total
		}
	}
	return best.shift, best.session
}

func (e *Engine) randomGroupSection(g *ResearchGroup, l Limit) (SectionID, bool) {
	var room []SectionID
	for _, sec := range e.m.OpenSections(g.Course) {
		if g.Shift != NoShift && !sec.Slot.InShift(g.Shift) {
			continue
		}
		if sec.Size()+len(g.Students) <= l.cap(sec.Capacity) {
			room = append(room, sec.ID)
		}
	}
	if len(room) == 0 {
		return -1, false
	}
	return room[e.rng.Intn(len(room))], true
}

// placePair seats a student already holding research into one of its
// current core and elective section pairs.
func (e *Engine) placePair(st *Student, l Limit) bool {
	core, ok := e.m.Current(st, e.core, 0)
	if !ok {
		return false
	}
	elective, ok := e.m.Current(st, e.elective, 0)
	if !ok {
		return false
	}
	list := e.pairs(st, core, elective, st.Shift, l, nil)
	e.rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
	for _, t := range list {
		if !e.m.Place(st.ID, t.core, e.core, l) {
			continue
		}
		if e.m.Place(st.ID, t.elective, e.elective, l) {
			return true
		}
		e.m.Release(st.ID, e.core)
	}
	return false
}
