package allocation

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineRequiresCategories(t *testing.T) {
	m := NewModel()
	m.AddShift("AM", "A1")
	m.AddCourseType("Core")
	m.AddCourseType("Elective")

	_, err := NewEngine(m, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
}

func TestNewEngineRejectsBadCapacity(t *testing.T) {
	s := newSchool(t)
	s.m.Courses[s.art].Capacity = Capacity{Minimum: 10, Ideal: 5, Maximum: 20}

	_, err := NewEngine(s.m, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
}

func TestNewEngineRejectsOversizedGroup(t *testing.T) {
	s := newSchool(t)
	s.m.Courses[s.lab].Capacity = Capacity{Minimum: 1, Ideal: 1, Maximum: 2}
	group := s.m.AddResearchGroup("G1", s.lab)
	for _, alias := range []string{"Ana", "Ben", "Cal"} {
		s.m.JoinGroup(s.addStudent(alias, []CourseID{s.physics}, []CourseID{s.art}), group)
	}

	_, err := NewEngine(s.m, Options{})
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
}

func TestNewEngineFillsZeroOptions(t *testing.T) {
	s := newSchool(t)

	e, err := NewEngine(s.m, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Grade 12", e.opts.LevelTwoGrade)
	assert.Equal(t, 2, e.opts.ExtraSpreadSections)
	assert.Equal(t, DefaultPolicy(), e.opts.Policy)

	e, err = NewEngine(s.m, Options{LevelTwoGrade: "Grade 11", ExtraSpreadSections: -1})
	require.NoError(t, err)
	assert.Equal(t, "Grade 11", e.opts.LevelTwoGrade)
	assert.Zero(t, e.opts.ExtraSpreadSections)
}

func TestNewEngineRejectsStudentWithoutElective(t *testing.T) {
	s := newSchool(t)
	senior := s.m.AddGradeLevel("Grade 12")
	s.m.Classify(senior, s.core, true, s.physics)
	s.m.Classify(senior, s.research, false, s.lab)
	id := s.m.AddStudent("Zed", senior)
	s.m.Rank(id, s.core, s.physics)

	_, err := NewEngine(s.m, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
	assert.Contains(t, err.Error(), "Elective")

	out, err := RunParallel(context.Background(), s.m, Options{}, RunConfig{Workers: 2, Seed: 1})
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrInvalidCatalog), "rejected before any attempt, even without an attempt bound")
}

func TestNewEngineRejectsStudentWhoTookEveryCore(t *testing.T) {
	s := newSchool(t)
	id := s.m.AddStudent("Ana", s.grade)
	s.m.MarkTaken(id, s.physics)
	s.m.MarkTaken(id, s.chemistry)

	_, err := NewEngine(s.m, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
	assert.Contains(t, err.Error(), "Core")
}

func TestSupervisorCompletesEveryStudent(t *testing.T) {
	s := newSchool(t)
	s.populate()

	sup, err := NewSupervisor(s.m, Options{Rand: rand.New(rand.NewSource(11))}, SupervisorConfig{MaxAttempts: 200})
	require.NoError(t, err)
	out, err := sup.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Snapshot)
	assert.GreaterOrEqual(t, out.Attempts, 1)

	assertInvariants(t, s.m)
	for _, st := range s.m.Students {
		for _, tp := range []CourseTypeID{s.core, s.elective, s.math, s.research} {
			_, ok := st.Takes[tp]
			assert.True(t, ok, "%s misses %s", s.m.StudentLabel(st), s.m.CourseTypes[tp].Alias)
		}
		for _, tp := range []CourseTypeID{s.core, s.elective, s.math} {
			_, ok := s.m.Current(st, tp, 0)
			assert.True(t, ok)
		}
	}

	group := s.m.Groups[0]
	section := s.m.Students[group.Students[0]].Sections[s.lab]
	for _, id := range group.Students {
		assert.Equal(t, section, s.m.Students[id].Sections[s.lab], "group members share one research section")
	}
}

func TestSupervisorIsDeterministicForSeed(t *testing.T) {
	run := func() *Snapshot {
		s := newSchool(t)
		s.populate()
		sup, err := NewSupervisor(s.m, Options{Rand: rand.New(rand.NewSource(99))}, SupervisorConfig{MaxAttempts: 200})
		require.NoError(t, err)
		out, err := sup.Run(context.Background())
		require.NoError(t, err)
		return out.Snapshot
	}

	assert.Equal(t, run(), run())
}

func TestEngineStopsWhenCancelled(t *testing.T) {
	s := newSchool(t)
	s.populate()
	e := s.engine(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsFatal(err))
}

func TestPrepareLevelTwoSteersElectives(t *testing.T) {
	s := newSchool(t)
	senior := s.m.AddGradeLevel("Grade 12")
	sculpture := s.m.AddCourse("Sculpture", 2, Capacity{Minimum: 1, Ideal: 10, Maximum: 15}, 4)
	s.m.Classify(senior, s.core, true, s.physics)
	s.m.Classify(senior, s.elective, true, s.art)
	s.m.Classify(senior, s.elective, true, sculpture)
	s.m.Classify(senior, s.research, false, s.lab)

	id := s.m.AddStudent("Ana", senior)
	s.m.Rank(id, s.core, s.physics)
	s.m.Rank(id, s.elective, s.art)
	s.m.Rank(id, s.elective, sculpture)
	graduate := s.m.AddStudent("Ben", senior)
	s.m.MarkTaken(graduate, sculpture)
	s.m.Rank(graduate, s.elective, s.art)

	e := s.engine(t, 2)
	require.Nil(t, e.prepareLevelTwo())

	st := s.m.Students[id]
	current, _ := s.m.Current(st, s.elective, 0)
	assert.Equal(t, sculpture, current)
	reason, ok := st.Rankings.Reason(s.elective, s.art)
	require.True(t, ok)
	assert.Equal(t, ReasonNeedsLevelTwo, reason)
	require.NotEqual(t, NoGroup, st.Group)
	assert.True(t, s.m.Groups[st.Group].Temporary)
	assert.Equal(t, s.lab, s.m.Groups[st.Group].Course)

	assert.Equal(t, NoGroup, s.m.Students[graduate].Group, "a completed level 2 course exempts the student")

	s.m.Reset()
	assert.Equal(t, NoGroup, st.Group)
	assert.Empty(t, s.m.Groups)
}

func TestRunKeepsScoresForRankedCategories(t *testing.T) {
	s := newSchool(t)
	s.populate()

	sup, err := NewSupervisor(s.m, Options{Rand: rand.New(rand.NewSource(5))}, SupervisorConfig{MaxAttempts: 200})
	require.NoError(t, err)
	out, err := sup.Run(context.Background())
	require.NoError(t, err)

	var types []string
	for _, sc := range out.Snapshot.Scores {
		types = append(types, sc.Type)
		assert.Equal(t, 12, sc.Total)
		assert.LessOrEqual(t, sc.Attained, sc.Total)
	}
	assert.Equal(t, []string{"Core", "Elective", "Math"}, types)
}
