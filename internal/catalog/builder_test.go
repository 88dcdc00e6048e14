package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimendoza/B2023-R3X-07/internal/allocation"
	"github.com/nimendoza/B2023-R3X-07/internal/dto"
)

func fixtureFiles() Files {
	return Files{
		Catalog:  filepath.Join("testdata", "catalog.yaml"),
		Roster:   filepath.Join("testdata", "students.csv"),
		Rankings: filepath.Join("testdata", "rankings.csv"),
	}
}

func buildFixture(t *testing.T) *allocation.Model {
	t.Helper()
	cat, roster, rankings, err := fixtureFiles().Read()
	require.NoError(t, err)
	m, err := NewBuilder(nil).Build(cat, roster, rankings)
	require.NoError(t, err)
	return m
}

func student(t *testing.T, m *allocation.Model, label string) *allocation.Student {
	t.Helper()
	for _, st := range m.Students {
		if m.StudentLabel(st) == label {
			return st
		}
	}
	t.Fatalf("student %s not found", label)
	return nil
}

func course(t *testing.T, m *allocation.Model, ref string) allocation.CourseID {
	t.Helper()
	id, ok := m.CourseByAlias(ref)
	require.True(t, ok, ref)
	return id
}

func TestBuildResolvesCatalog(t *testing.T) {
	m := buildFixture(t)

	require.Len(t, m.Shifts, 2)
	assert.Equal(t, "AM", m.Shifts[0].Alias)
	assert.Equal(t, "PM", m.Shifts[1].Alias)
	assert.Len(t, m.Courses, 7)
	assert.Len(t, m.Students, 4)

	art := course(t, m, "Art")
	music := course(t, m, "Music")
	chemistry := course(t, m, "Chemistry")
	assert.Equal(t, music, m.Courses[art].LinkedTo)
	assert.True(t, m.Conflicts(art, chemistry))

	physics2 := course(t, m, "Physics Level 2")
	require.Len(t, m.Courses[physics2].Prerequisites, 1)
	assert.Equal(t, []allocation.CourseID{course(t, m, "Physics Level 1")}, m.Courses[physics2].Prerequisites[0])

	g, ok := m.GroupByAlias("G1")
	require.True(t, ok)
	assert.Len(t, m.Groups[g].Students, 2)
}

func TestBuildOrdersRankingsByRank(t *testing.T) {
	m := buildFixture(t)
	core, _ := m.TypeByAlias("Core")

	ana := student(t, m, "Grade 11-Ana")
	first, ok := ana.Rankings.Initial(core, 0)
	require.True(t, ok)
	assert.Equal(t, "Physics Level 1", m.Courses[first].Label())
	second, ok := ana.Rankings.Initial(core, 1)
	require.True(t, ok)
	assert.Equal(t, "Chemistry Level 1", m.Courses[second].Label())
}

func TestBuildDropsRankingsForTakenCourses(t *testing.T) {
	m := buildFixture(t)
	core, _ := m.TypeByAlias("Core")

	cal := student(t, m, "Grade 11-Cal")
	assert.True(t, cal.Taken[course(t, m, "Chemistry")])
	assert.True(t, cal.Taken[course(t, m, "Art")])
	first, ok := cal.Rankings.Initial(core, 0)
	require.True(t, ok)
	assert.Equal(t, "Physics Level 1", m.Courses[first].Label())
}

func TestBuildInlineStudents(t *testing.T) {
	m := buildFixture(t)
	core, _ := m.TypeByAlias("Core")

	zed := student(t, m, "Grade 12-Zed")
	first, ok := zed.Rankings.Initial(core, 0)
	require.True(t, ok)
	assert.Equal(t, "Physics Level 2", m.Courses[first].Label())
}

func TestBuildCollectsReferenceErrors(t *testing.T) {
	cat, _, _, err := Files{Catalog: fixtureFiles().Catalog}.Read()
	require.NoError(t, err)
	cat.Courses[3].LinkedTo = "Pottery"
	cat.ResearchGroups = append(cat.ResearchGroups, dto.GroupSpec{Alias: "G2", Course: "Physics"})

	_, err = NewBuilder(nil).Build(cat, []dto.RosterRow{{GradeLevel: "Grade 10", Student: "Dee"}}, nil)
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	msg := err.Error()
	assert.Contains(t, msg, `unknown course "Pottery"`)
	assert.Contains(t, msg, `course "Physics" is ambiguous`)
	assert.Contains(t, msg, `unknown grade level "Grade 10"`)
}

func TestBuildRejectsStructuralErrors(t *testing.T) {
	cat := &dto.Catalog{
		Shifts:      [][]string{{"A1"}},
		GradeLevels: []string{"Grade 11"},
		CourseTypes: []string{"Core"},
		Courses: []dto.CourseSpec{{
			Alias:    "Physics",
			Capacity: dto.CapacitySpec{Min: 5, Ideal: 2, Max: 10},
		}},
	}

	_, err := NewBuilder(nil).Build(cat, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, allocation.ErrInvalidCatalog))
	assert.Contains(t, err.Error(), "Ideal")
}

func TestBuildRejectsDuplicates(t *testing.T) {
	cat, roster, _, err := fixtureFiles().Read()
	require.NoError(t, err)
	roster = append(roster, roster[0])
	cat.Shifts = append(cat.Shifts, []string{"A1"})

	_, err = NewBuilder(nil).Build(cat, roster, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "student Grade 11-Ana listed twice")
	assert.Contains(t, err.Error(), `session "A1" appears in more than one shift`)
}

func TestBuildRejectsOversizedGroup(t *testing.T) {
	cat, roster, _, err := fixtureFiles().Read()
	require.NoError(t, err)
	cat.Courses[6].Capacity = dto.CapacitySpec{Min: 1, Ideal: 1, Max: 1}

	_, err = NewBuilder(nil).Build(cat, roster, nil)
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
}

func TestDecodeCatalogRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeCatalog(strings.NewReader("shifts: [[A1]]\ncolour: blue\n"))
	assert.Error(t, err)

	_, err = DecodeCatalog(strings.NewReader(""))
	assert.Error(t, err)
}

func TestDecodeCatalogAcceptsJSON(t *testing.T) {
	cat, err := DecodeCatalog(strings.NewReader(`{"shifts":[["A1","A2"]],"gradeLevels":["Grade 11"],"courseTypes":["Core"],"courses":[{"alias":"Physics","capacity":{"min":1,"ideal":2,"max":3}}]}`))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A1", "A2"}}, cat.Shifts)
	assert.Equal(t, 3, cat.Courses[0].Capacity.Max)
}

func TestSplitTaken(t *testing.T) {
	assert.Nil(t, splitTaken("  "))
	assert.Equal(t, []string{"Chemistry", "Art"}, splitTaken("Chemistry || Art||"))
}

func TestBuildFixtureAllocates(t *testing.T) {
	m := buildFixture(t)

	out, err := allocation.RunParallel(context.Background(), m, allocation.Options{}, allocation.RunConfig{
		Workers:     2,
		Seed:        4,
		MaxAttempts: 2000,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Snapshot)

	zed, ok := out.Snapshot.Student("Grade 12-Zed")
	require.True(t, ok)
	placed := make(map[string]string)
	for _, p := range zed.Placements {
		placed[p.Type] = p.Course
	}
	assert.Equal(t, "Physics Level 2", placed["Core"])
	assert.Equal(t, "Music Level 1", placed["Elective"])
	assert.Equal(t, "Lab", placed["Research"])
}

func TestBuildFixtureWithoutSeniorElectiveIsRejected(t *testing.T) {
	cat, roster, rankings, err := fixtureFiles().Read()
	require.NoError(t, err)
	music := &cat.Courses[4]
	require.Equal(t, "Music", music.Alias)
	music.Classification = music.Classification[:1]
	cat.Students[0].Rankings = map[string][]string{"Core": {"Physics Level 2"}}

	m, err := NewBuilder(nil).Build(cat, roster, rankings)
	require.NoError(t, err)

	_, err = allocation.RunParallel(context.Background(), m, allocation.Options{}, allocation.RunConfig{Workers: 2, Seed: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, allocation.ErrInvalidCatalog))
	assert.Contains(t, err.Error(), "Grade 12-Zed")
}
