package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinGroupConvergesOnFirstShift(t *testing.T) {
	s := newSchool(t)
	group := s.m.AddResearchGroup("G1", s.lab)
	a := s.m.AddStudent("Ana", s.grade)
	b := s.m.AddStudent("Ben", s.grade)
	s.m.SetStudentShift(a, s.am)
	s.m.SetStudentShift(b, s.pm)

	s.m.JoinGroup(a, group)
	s.m.JoinGroup(b, group)

	assert.Equal(t, s.am, s.m.Groups[group].Shift)
	assert.Equal(t, s.am, s.m.Students[a].Shift)
	assert.Equal(t, s.am, s.m.Students[b].Shift)
}

func TestShiftChangePropagatesToGroupAndSection(t *testing.T) {
	s := newSchool(t)
	group := s.m.AddResearchGroup("G1", s.lab)
	a := s.m.AddStudent("Ana", s.grade)
	b := s.m.AddStudent("Ben", s.grade)
	s.m.JoinGroup(a, group)
	s.m.JoinGroup(b, group)

	section := s.m.OpenSection(s.lab, s.am, s.session(t, "A1"))
	require.True(t, s.m.Place(a, section, s.research, Overload))
	require.True(t, s.m.Place(b, section, s.research, Overload))
	require.Equal(t, s.am, s.m.Groups[group].Shift)

	s.m.SetStudentShift(b, s.pm)

	assert.Equal(t, s.pm, s.m.Students[a].Shift)
	assert.Equal(t, s.pm, s.m.Groups[group].Shift)
	sec := s.m.Sections[section]
	assert.Equal(t, s.pm, sec.Slot.Shift)
	assert.Equal(t, NoSession, sec.Slot.Session, "a session of the old shift is dropped")
	assert.Empty(t, s.m.Students[a].Sessions)
}

func TestJoinGroupImposesGroupShift(t *testing.T) {
	s := newSchool(t)
	group := s.m.AddResearchGroup("G1", s.lab)
	s.m.SetGroupShift(group, s.pm)
	a := s.m.AddStudent("Ana", s.grade)
	s.m.SetStudentShift(a, s.am)

	s.m.JoinGroup(a, group)

	assert.Equal(t, s.pm, s.m.Students[a].Shift)
	assert.Equal(t, []StudentID{a}, s.m.Groups[group].Students)
}

func TestAvailableSessions(t *testing.T) {
	s := newSchool(t)
	id := s.m.AddStudent("Ana", s.grade)
	assert.Empty(t, s.m.AvailableSessions(s.m.Students[id]))

	section := s.m.OpenSection(s.lab, s.am, s.session(t, "A2"))
	require.True(t, s.m.Place(id, section, s.research, Enroll))

	assert.Equal(t, []SessionID{s.session(t, "A1"), s.session(t, "A3")}, s.m.AvailableSessions(s.m.Students[id]))
}
