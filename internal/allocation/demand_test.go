package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seatPartially places every listed student into research at A1 and art at
// A2, leaving core open.
func seatPartially(t *testing.T, s *school, ids []StudentID) {
	t.Helper()
	lab := s.m.OpenSection(s.lab, s.am, s.session(t, "A1"))
	art := s.m.OpenSection(s.art, s.am, s.session(t, "A2"))
	for _, id := range ids {
		require.True(t, s.m.Place(id, lab, s.research, Overload))
		require.True(t, s.m.Place(id, art, s.elective, Overload))
	}
}

func TestOpenOnDemandTooFewStudents(t *testing.T) {
	s := newSchool(t)
	s.m.Courses[s.physics].Capacity = Capacity{Minimum: 5, Ideal: 10, Maximum: 12}
	var ids []StudentID
	for _, alias := range []string{"Ana", "Ben", "Cal", "Dee"} {
		ids = append(ids, s.addStudent(alias, []CourseID{s.physics, s.chemistry}, []CourseID{s.art}))
	}
	seatPartially(t, s, ids)
	s.m.OpenSection(s.chemistry, s.am, s.session(t, "A3"))

	e := s.engine(t, 1)
	require.Nil(t, e.openOnDemand())

	for _, id := range ids {
		st := s.m.Students[id]
		assert.Equal(t, s.chemistry, st.Takes[s.core])
		reason, ok := st.Rankings.Reason(s.core, s.physics)
		require.True(t, ok)
		assert.Equal(t, ReasonTooFewDemand, reason)
	}
	assert.Empty(t, s.m.Courses[s.physics].Sections)
}

func TestOpenOnDemandOpensWhereDemandConcentrates(t *testing.T) {
	s := newSchool(t)
	s.m.Courses[s.physics].Capacity = Capacity{Minimum: 5, Ideal: 10, Maximum: 12}
	var ids []StudentID
	for _, alias := range []string{"Ana", "Ben", "Cal", "Dee", "Eli"} {
		ids = append(ids, s.addStudent(alias, []CourseID{s.physics, s.chemistry}, []CourseID{s.art}))
	}
	seatPartially(t, s, ids)

	e := s.engine(t, 1)
	require.Nil(t, e.openOnDemand())

	require.Len(t, s.m.Courses[s.physics].Sections, 1)
	sec := s.m.Sections[s.m.Courses[s.physics].Sections[0]]
	assert.Equal(t, s.session(t, "A3"), sec.Slot.Session)
	assert.Equal(t, 5, sec.Size())
	for _, id := range ids {
		assert.Equal(t, s.physics, s.m.Students[id].Takes[s.core])
	}
}

func TestOpenOnDemandNoRoomsWhenCapped(t *testing.T) {
	s := newSchool(t)
	s.m.Courses[s.physics].MaxSections = 0
	var ids []StudentID
	for _, alias := range []string{"Ana", "Ben"} {
		ids = append(ids, s.addStudent(alias, []CourseID{s.physics, s.chemistry}, []CourseID{s.art}))
	}
	seatPartially(t, s, ids)

	e := s.engine(t, 1)
	require.Nil(t, e.openOnDemand())

	for _, id := range ids {
		st := s.m.Students[id]
		reason, ok := st.Rankings.Reason(s.core, s.physics)
		require.True(t, ok)
		assert.Equal(t, ReasonNoRooms, reason)
		assert.Equal(t, s.chemistry, st.Takes[s.core])
	}
}

func TestOpenOnDemandLowDemandBeatsCap(t *testing.T) {
	s := newSchool(t)
	s.m.Courses[s.physics].MaxSections = 0
	s.m.Courses[s.physics].Capacity = Capacity{Minimum: 5, Ideal: 10, Maximum: 12}
	var ids []StudentID
	for _, alias := range []string{"Ana", "Ben"} {
		ids = append(ids, s.addStudent(alias, []CourseID{s.physics, s.chemistry}, []CourseID{s.art}))
	}
	seatPartially(t, s, ids)

	e := s.engine(t, 1)
	require.Nil(t, e.openOnDemand())

	for _, id := range ids {
		reason, ok := s.m.Students[id].Rankings.Reason(s.core, s.physics)
		require.True(t, ok)
		assert.Equal(t, ReasonTooFewDemand, reason)
	}
	core := Score(s.m)[0]
	assert.Equal(t, "Core", core.Type)
	assert.Equal(t, 2, core.Total)
	assert.Zero(t, core.Attained)
	assert.Zero(t, core.Percent)
}

func TestCullSectionsRestoresResearch(t *testing.T) {
	s := newSchool(t)
	s.m.Courses[s.lab].Capacity = Capacity{Minimum: 3, Ideal: 10, Maximum: 20}
	small := s.m.OpenSection(s.lab, s.am, s.session(t, "A1"))
	large := s.m.OpenSection(s.lab, s.am, s.session(t, "A2"))

	lonely := s.addStudent("Ana", []CourseID{s.physics}, []CourseID{s.art})
	require.True(t, s.m.Place(lonely, small, s.research, Enroll))
	for _, alias := range []string{"Ben", "Cal", "Dee"} {
		require.True(t, s.m.Place(s.addStudent(alias, []CourseID{s.physics}, []CourseID{s.art}), large, s.research, Enroll))
	}

	e := s.engine(t, 1)
	require.Nil(t, e.cullSections())

	assert.True(t, s.m.Sections[small].Closed)
	assert.Equal(t, large, s.m.Students[lonely].Sections[s.lab])
	assert.Equal(t, 4, s.m.Sections[large].Size())
	assert.Equal(t, s.algebra, s.m.Students[lonely].Takes[s.math])
}

func TestCleanupRankingsPopsIncompatiblePartner(t *testing.T) {
	s := newSchool(t)
	s.m.AddNotAlongside(s.chemistry, s.music)
	id := s.addStudent("Ana", []CourseID{s.physics, s.chemistry}, []CourseID{s.music, s.art})
	st := s.m.Students[id]

	e := s.engine(t, 1)
	s.m.Pop(st, s.core, ReasonNoRooms, 0)
	require.Nil(t, e.cleanupRankings(st, s.core))

	core, _ := s.m.Current(st, s.core, 0)
	assert.Equal(t, s.chemistry, core, "the freshly popped category keeps its new choice when the partner is unplaced")
	elective, _ := s.m.Current(st, s.elective, 0)
	assert.Equal(t, s.art, elective)
	reason, ok := st.Rankings.Reason(s.elective, s.music)
	require.True(t, ok)
	assert.Equal(t, "incompatible with core", reason)
}
