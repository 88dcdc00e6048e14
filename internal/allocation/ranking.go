package allocation

import (
	"sort"
	"strings"
)

// Rejection reasons recorded against popped ranking entries.
const (
	ReasonNotQualified  = "not qualified"
	ReasonNoRooms       = "no rooms available"
	ReasonTooFewDemand  = "too few demand to open another room"
	ReasonLastResort    = "last resort sectioning"
	ReasonNeedsLevelTwo = "needs to take a level 2 course"
)

// IncompatibleWith is the reason recorded when a choice clashes with the
// course held for another category.
func IncompatibleWith(typeAlias string) string {
	return "incompatible with " + strings.ToLower(typeAlias)
}

// Rankings is a student's preference ledger. Start is fixed at load time;
// Final is the working order that shrinks as options are popped.
type Rankings struct {
	Start    map[CourseTypeID][]CourseID
	Final    map[CourseTypeID][]CourseID
	Rejected map[CourseTypeID]map[CourseID]string
}

func newRankings() Rankings {
	return Rankings{
		Start:    make(map[CourseTypeID][]CourseID),
		Final:    make(map[CourseTypeID][]CourseID),
		Rejected: make(map[CourseTypeID]map[CourseID]string),
	}
}

func (r *Rankings) add(t CourseTypeID, course CourseID) {
	for _, c := range r.Start[t] {
		if c == course {
			return
		}
	}
	r.Start[t] = append(r.Start[t], course)
	r.Final[t] = append(r.Final[t], course)
}

func (r *Rankings) reset() {
	r.Final = make(map[CourseTypeID][]CourseID, len(r.Start))
	for t, order := range r.Start {
		r.Final[t] = append([]CourseID(nil), order...)
	}
	r.Rejected = make(map[CourseTypeID]map[CourseID]string)
}

func (r Rankings) clone() Rankings {
	out := newRankings()
	for t, order := range r.Start {
		out.Start[t] = append([]CourseID(nil), order...)
	}
	for t, order := range r.Final {
		out.Final[t] = append([]CourseID(nil), order...)
	}
	for t, reasons := range r.Rejected {
		cp := make(map[CourseID]string, len(reasons))
		for c, reason := range reasons {
			cp[c] = reason
		}
		out.Rejected[t] = cp
	}
	return out
}

// Initial returns the index-th choice of the immutable order.
func (r *Rankings) Initial(t CourseTypeID, index int) (CourseID, bool) {
	order := r.Start[t]
	if index < 0 || index >= len(order) {
		return NoCourse, false
	}
	return order[index], true
}

// Reason returns the recorded rejection reason for a course, if any.
func (r *Rankings) Reason(t CourseTypeID, course CourseID) (string, bool) {
	reason, ok := r.Rejected[t][course]
	return reason, ok
}

// Current returns the index-th choice of the working order. An exhausted
// working order is refilled with every ranked course of the category the
// student qualifies for: never-rejected courses first, each group by alias.
func (m *Model) Current(st *Student, t CourseTypeID, index int) (CourseID, bool) {
	if len(st.Rankings.Final[t]) == 0 {
		st.Rankings.Final[t] = m.fallbackRanking(st, t)
	}
	order := st.Rankings.Final[t]
	if index < 0 || index >= len(order) {
		return NoCourse, false
	}
	return order[index], true
}

func (m *Model) fallbackRanking(st *Student, t CourseTypeID) []CourseID {
	var fresh, rejected []CourseID
	for _, c := range m.Grades[st.Grade].Courses[Bucket{Type: t, Ranked: true}] {
		if !m.CourseQualified(st, m.Courses[c]) {
			continue
		}
		if _, ok := st.Rankings.Rejected[t][c]; ok {
			rejected = append(rejected, c)
		} else {
			fresh = append(fresh, c)
		}
	}
	byAlias := func(list []CourseID) {
		sort.SliceStable(list, func(i, j int) bool {
			return m.Courses[list[i]].Label() < m.Courses[list[j]].Label()
		})
	}
	byAlias(fresh)
	byAlias(rejected)
	return append(fresh, rejected...)
}

// Pop removes the index-th choice from the working order and records why.
func (m *Model) Pop(st *Student, t CourseTypeID, reason string, index int) (CourseID, bool) {
	if _, ok := m.Current(st, t, index); !ok {
		return NoCourse, false
	}
	order := st.Rankings.Final[t]
	course := order[index]
	st.Rankings.Final[t] = append(order[:index:index], order[index+1:]...)
	if st.Rankings.Rejected[t] == nil {
		st.Rankings.Rejected[t] = make(map[CourseID]string)
	}
	st.Rankings.Rejected[t][course] = reason
	return course, true
}

// PopCourse pops a specific course from the working order if present.
func (m *Model) PopCourse(st *Student, t CourseTypeID, course CourseID, reason string) bool {
	for i, c := range st.Rankings.Final[t] {
		if c == course {
			_, ok := m.Pop(st, t, reason, i)
			return ok
		}
	}
	return false
}
