package allocation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type school struct {
	m *Model

	am, pm ShiftID

	core, elective, math, research CourseTypeID
	grade                          GradeID

	physics, chemistry, art, music, algebra, lab CourseID
}

// newSchool builds a small catalog: two shifts of three sessions, two core
// and two elective courses, one math course and one research course.
func newSchool(t *testing.T) *school {
	t.Helper()
	m := NewModel()
	s := &school{m: m}
	s.am = m.AddShift("AM", "A1", "A2", "A3")
	s.pm = m.AddShift("PM", "P1", "P2", "P3")

	s.core = m.AddCourseType("Core")
	s.elective = m.AddCourseType("Elective")
	s.math = m.AddCourseType("Math")
	s.research = m.AddCourseType("Research")
	s.grade = m.AddGradeLevel("Grade 11")

	roomy := Capacity{Minimum: 1, Ideal: 10, Maximum: 15}
	s.physics = m.AddCourse("Physics", 1, roomy, 4)
	s.chemistry = m.AddCourse("Chemistry", 1, roomy, 4)
	s.art = m.AddCourse("Art", 1, roomy, 4)
	s.music = m.AddCourse("Music", 1, roomy, 4)
	s.algebra = m.AddCourse("Algebra", 1, Capacity{Minimum: 1, Ideal: 20, Maximum: 30}, 2)
	s.lab = m.AddCourse("Lab", 0, Capacity{Minimum: 1, Ideal: 10, Maximum: 20}, 8)

	m.Classify(s.grade, s.core, true, s.physics)
	m.Classify(s.grade, s.core, true, s.chemistry)
	m.Classify(s.grade, s.elective, true, s.art)
	m.Classify(s.grade, s.elective, true, s.music)
	m.Classify(s.grade, s.math, true, s.algebra)
	m.Classify(s.grade, s.research, false, s.lab)
	return s
}

func (s *school) session(t *testing.T, alias string) SessionID {
	t.Helper()
	for _, sess := range s.m.Sessions {
		if sess.Alias == alias {
			return sess.ID
		}
	}
	require.FailNow(t, "unknown session", alias)
	return NoSession
}

// addStudent registers a student ranking the given core then elective
// courses, plus algebra.
func (s *school) addStudent(alias string, cores, electives []CourseID) StudentID {
	id := s.m.AddStudent(alias, s.grade)
	for _, c := range cores {
		s.m.Rank(id, s.core, c)
	}
	for _, c := range electives {
		s.m.Rank(id, s.elective, c)
	}
	s.m.Rank(id, s.math, s.algebra)
	return id
}

func (s *school) engine(t *testing.T, seed int64) *Engine {
	t.Helper()
	e, err := NewEngine(s.m, Options{Rand: rand.New(rand.NewSource(seed))})
	require.NoError(t, err)
	return e
}

// populate adds twelve students, three of them in one research group.
func (s *school) populate() {
	group := s.m.AddResearchGroup("G1", s.lab)
	for i, alias := range []string{"Ana", "Ben", "Cal", "Dee", "Eli", "Fay", "Gus", "Hal", "Ivy", "Jon", "Kim", "Lou"} {
		cores := []CourseID{s.physics, s.chemistry}
		electives := []CourseID{s.art, s.music}
		if i%2 == 1 {
			cores = []CourseID{s.chemistry, s.physics}
		}
		if i%3 == 0 {
			electives = []CourseID{s.music, s.art}
		}
		id := s.addStudent(alias, cores, electives)
		if i < 3 {
			s.m.JoinGroup(id, group)
		}
	}
}

// assertInvariants checks what must hold after every successful attempt.
func assertInvariants(t *testing.T, m *Model) {
	t.Helper()
	for _, c := range m.Courses {
		for _, sec := range m.OpenSections(c.ID) {
			require.LessOrEqual(t, sec.Size(), sec.Capacity.Maximum, m.SectionLabel(sec))
			if sec.Size() > 0 {
				require.GreaterOrEqual(t, sec.Size(), sec.Capacity.Minimum, m.SectionLabel(sec))
			}
			for _, id := range sec.Students {
				require.Equal(t, sec.Slot.Shift, m.Students[id].Shift, m.SectionLabel(sec))
			}
		}
	}
	for _, st := range m.Students {
		used := make(map[SessionID]bool)
		for course, section := range st.Sections {
			sec := m.Sections[section]
			require.Equal(t, course, sec.Course)
			if sec.Slot.Session == NoSession {
				continue
			}
			require.False(t, used[sec.Slot.Session], "%s attends %s twice", m.StudentLabel(st), m.Sessions[sec.Slot.Session].Alias)
			used[sec.Slot.Session] = true
		}
		for _, course := range st.Takes {
			_, ok := st.Sections[course]
			require.True(t, ok, "%s holds %s without a section", m.StudentLabel(st), m.Courses[course].Alias)
		}
		require.Len(t, st.Sections, len(st.Takes))
	}
}
