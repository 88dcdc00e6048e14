package allocation

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Phase names reported in FatalError.
const (
	PhaseLevelTwo   = "level-two"
	PhaseMath       = "math"
	PhaseSpread     = "research-spread"
	PhaseGroups     = "research-groups"
	PhaseIndividual = "individual"
	PhaseCull       = "cull"
	PhaseDemand     = "demand"
	PhaseForced     = "forced"
	PhaseRebalance  = "rebalance"
	PhaseCheck      = "post-check"
)

// Policy chooses the capacity bound each placement step respects.
type Policy struct {
	Groups     Limit
	Individual Limit
	LastResort Limit
	Demand     Limit
	Forced     Limit
	Rebalance  Limit
}

// DefaultPolicy enrolls up to ideal while demand is still being measured and
// overloads for pre-formed groups and every repair step.
func DefaultPolicy() Policy {
	return Policy{
		Groups:     Overload,
		Individual: Enroll,
		LastResort: Enroll,
		Demand:     Enroll,
		Forced:     Overload,
		Rebalance:  Overload,
	}
}

// TypeAliases names the four categories the engine treats specially.
type TypeAliases struct {
	Core     string
	Elective string
	Math     string
	Research string
}

// DefaultTypeAliases returns the conventional category names.
func DefaultTypeAliases() TypeAliases {
	return TypeAliases{Core: "Core", Elective: "Elective", Math: "Math", Research: "Research"}
}

// Options tunes one engine.
type Options struct {
	Types               TypeAliases
	Policy              Policy
	LevelTwoGrade       string
	ExtraSpreadSections int
	DemandRounds        int
	Rand                *rand.Rand
}

// DefaultOptions returns the settings used when a caller supplies none.
// Zero fields of any Options fall back to these values; a negative
// ExtraSpreadSections disables the extra research sections.
func DefaultOptions() Options {
	return Options{
		Types:               DefaultTypeAliases(),
		Policy:              DefaultPolicy(),
		LevelTwoGrade:       "Grade 12",
		ExtraSpreadSections: 2,
		DemandRounds:        10,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Types == (TypeAliases{}) {
		o.Types = def.Types
	}
	if o.Policy == (Policy{}) {
		o.Policy = def.Policy
	}
	if o.LevelTwoGrade == "" {
		o.LevelTwoGrade = def.LevelTwoGrade
	}
	if o.DemandRounds <= 0 {
		o.DemandRounds = def.DemandRounds
	}
	switch {
	case o.ExtraSpreadSections == 0:
		o.ExtraSpreadSections = def.ExtraSpreadSections
	case o.ExtraSpreadSections < 0:
		o.ExtraSpreadSections = 0
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// Engine runs the placement phases of one attempt against a model.
type Engine struct {
	m    *Model
	opts Options
	rng  *rand.Rand

	core     CourseTypeID
	elective CourseTypeID
	math     CourseTypeID
	research CourseTypeID

	researchPick map[StudentID]CourseID
}

// NewEngine resolves the category aliases against the model. A model that
// lacks Core, Elective or Research, or a student left with no eligible
// course in a category every attempt needs, is a configuration error.
func NewEngine(m *Model, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	e := &Engine{m: m, opts: opts, rng: opts.Rand, math: -1, researchPick: make(map[StudentID]CourseID)}

	var ok bool
	if e.core, ok = m.TypeByAlias(opts.Types.Core); !ok {
		return nil, fmt.Errorf("%w: missing course type %q", ErrInvalidCatalog, opts.Types.Core)
	}
	if e.elective, ok = m.TypeByAlias(opts.Types.Elective); !ok {
		return nil, fmt.Errorf("%w: missing course type %q", ErrInvalidCatalog, opts.Types.Elective)
	}
	if e.research, ok = m.TypeByAlias(opts.Types.Research); !ok {
		return nil, fmt.Errorf("%w: missing course type %q", ErrInvalidCatalog, opts.Types.Research)
	}
	if t, found := m.TypeByAlias(opts.Types.Math); found {
		e.math = t
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	for _, st := range m.Students {
		if len(e.researchCourses(st)) == 0 && st.Group == NoGroup {
			return nil, fmt.Errorf("%w: grade %s offers no research course", ErrInvalidCatalog, m.Grades[st.Grade].Alias)
		}
		required := []CourseTypeID{e.core, e.elective}
		if e.hasMath(st) {
			required = append(required, e.math)
		}
		for _, t := range required {
			if !e.hasEligible(st, t) {
				return nil, fmt.Errorf("%w: %s has no eligible %s course", ErrInvalidCatalog, m.StudentLabel(st), m.CourseTypes[t].Alias)
			}
		}
	}
	return e, nil
}

// hasEligible reports whether the student's grade ranks some course of t the
// student has not taken and has the prerequisites for.
func (e *Engine) hasEligible(st *Student, t CourseTypeID) bool {
	for _, c := range e.bucket(st, t) {
		if e.m.eligible(st, e.m.Courses[c]) {
			return true
		}
	}
	return false
}

// Model exposes the arena the engine mutates.
func (e *Engine) Model() *Model { return e.m }

// Run executes every phase once. It returns nil on success, a *FatalError
// when the attempt must be discarded, or the context error when cancelled
// between phases.
func (e *Engine) Run(ctx context.Context) error {
	e.researchPick = make(map[StudentID]CourseID)
	phases := []func() *FatalError{
		e.prepareLevelTwo,
		e.openMathSections,
		e.spreadResearchSections,
		e.placeGroups,
		e.placeIndividuals,
		e.cullSections,
		e.openOnDemand,
		e.forcePlacement,
		e.rebalance,
		e.checkMinimums,
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		if fe := phase(); fe != nil {
			return fe
		}
	}
	return nil
}

func (e *Engine) hasMath(st *Student) bool {
	if e.math < 0 {
		return false
	}
	return len(e.m.Grades[st.Grade].Courses[Bucket{Type: e.math, Ranked: true}]) > 0
}

func (e *Engine) bucket(st *Student, t CourseTypeID) []CourseID {
	return e.m.Grades[st.Grade].Courses[Bucket{Type: t, Ranked: true}]
}

func (e *Engine) researchCourses(st *Student) []CourseID {
	g := e.m.Grades[st.Grade]
	out := append([]CourseID(nil), g.Courses[Bucket{Type: e.research, Ranked: false}]...)
	return append(out, g.Courses[Bucket{Type: e.research, Ranked: true}]...)
}

// researchCourse is the research course a student is headed for: its
// group's course, its ranked research choice, or a random pick kept for the
// rest of the attempt.
func (e *Engine) researchCourse(st *Student) (CourseID, bool) {
	if st.Group != NoGroup {
		return e.m.Groups[st.Group].Course, true
	}
	if len(e.bucket(st, e.research)) > 0 {
		return e.m.Current(st, e.research, 0)
	}
	if c, ok := e.researchPick[st.ID]; ok {
		return c, true
	}
	options := e.researchCourses(st)
	if len(options) == 0 {
		return NoCourse, false
	}
	c := options[e.rng.Intn(len(options))]
	e.researchPick[st.ID] = c
	return c, true
}

// complete reports whether the student holds every category it must take.
func (e *Engine) complete(st *Student) bool {
	for _, t := range []CourseTypeID{e.core, e.elective, e.research} {
		if _, ok := st.Takes[t]; !ok {
			return false
		}
	}
	if e.hasMath(st) {
		if _, ok := st.Takes[e.math]; !ok {
			return false
		}
	}
	return true
}

func (e *Engine) holds(st *Student, t CourseTypeID) bool {
	_, ok := st.Takes[t]
	return ok
}

func (e *Engine) other(t CourseTypeID) CourseTypeID {
	if t == e.core {
		return e.elective
	}
	return e.core
}

func (e *Engine) shuffledStudents(filter func(*Student) bool) []*Student {
	var out []*Student
	for _, st := range e.m.Students {
		if filter == nil || filter(st) {
			out = append(out, st)
		}
	}
	e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (e *Engine) sortedCourses(set map[CourseID]bool) []CourseID {
	out := make([]CourseID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// countdown bounds every pop-and-retry loop for a category.
func (e *Engine) countdown(st *Student, t CourseTypeID) int {
	return 2*len(e.bucket(st, t)) + 2
}

// placeMath puts the student into its current math course, opening a
// shift-wide section or moving down its ranking when needed.
func (e *Engine) placeMath(st *Student, phase string) *FatalError {
	if !e.hasMath(st) || e.holds(st, e.math) {
		return nil
	}
	for n := e.countdown(st, e.math); n > 0; n-- {
		course, ok := e.m.Current(st, e.math, 0)
		if !ok {
			break
		}
		if !e.m.CourseQualified(st, e.m.Courses[course]) {
			e.m.Pop(st, e.math, ReasonNotQualified, 0)
			continue
		}
		if _, placed := e.m.PlaceCourse(st.ID, course, e.math, Overload); placed {
			return nil
		}
		if st.Shift != NoShift && e.m.CouldOpenSection(course) {
			sec := e.m.OpenSection(course, st.Shift, NoSession)
			if e.m.Place(st.ID, sec, e.math, Overload) {
				return nil
			}
		}
		e.m.Pop(st, e.math, ReasonNoRooms, 0)
	}
	return fatal(phase, "no math section for %s", e.m.StudentLabel(st))
}

// resolveCompatibility pops the working choice of t until it is qualified
// and compatible with the other half of the core/elective pair.
func (e *Engine) resolveCompatibility(st *Student, t CourseTypeID, phase string) *FatalError {
	o := e.other(t)
	for n := e.countdown(st, t); n > 0; n-- {
		course, ok := e.m.Current(st, t, 0)
		if !ok {
			return fatal(phase, "%s has no %s choice left", e.m.StudentLabel(st), e.m.CourseTypes[t].Alias)
		}
		if held, ok := st.Takes[t]; ok && held == course {
			return nil
		}
		partner, ok := st.Takes[o]
		if !ok {
			partner, ok = e.m.Current(st, o, 0)
		}
		if ok && e.m.Conflicts(course, partner) {
			e.m.Pop(st, t, IncompatibleWith(e.m.CourseTypes[o].Alias), 0)
			continue
		}
		if !e.m.CourseQualified(st, e.m.Courses[course]) {
			e.m.Pop(st, t, ReasonNotQualified, 0)
			continue
		}
		return nil
	}
	return fatal(phase, "exhausted %s choices for %s", e.m.CourseTypes[t].Alias, e.m.StudentLabel(st))
}
