package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nimendoza/B2023-R3X-07/internal/allocation"
	"github.com/nimendoza/B2023-R3X-07/internal/dto"
)

// TakenSeparator splits the taken column of the roster CSV.
const TakenSeparator = "||"

// Builder turns decoded inputs into an allocation model.
type Builder struct {
	validate *validator.Validate
}

// NewBuilder returns a Builder that validates with validate, or with a
// fresh validator when nil.
func NewBuilder(validate *validator.Validate) *Builder {
	if validate == nil {
		validate = validator.New()
	}
	return &Builder{validate: validate}
}

// problems collects every reference error of one build.
type problems []string

func (p *problems) addf(format string, args ...interface{}) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", allocation.ErrInvalidCatalog, strings.Join(p, "; "))
}

type resolver struct {
	m       *allocation.Model
	byLabel map[string]allocation.CourseID
	byAlias map[string][]allocation.CourseID
}

func (r *resolver) course(ref string) (allocation.CourseID, error) {
	if id, ok := r.byLabel[ref]; ok {
		return id, nil
	}
	ids := r.byAlias[ref]
	switch len(ids) {
	case 0:
		return allocation.NoCourse, fmt.Errorf("unknown course %q", ref)
	case 1:
		return ids[0], nil
	}
	return allocation.NoCourse, fmt.Errorf("course %q is ambiguous, use its level label", ref)
}

type studentKey struct {
	grade string
	alias string
}

// Build validates the catalog, adds roster students and rankings, and
// resolves every reference. All failures wrap allocation.ErrInvalidCatalog.
func (b *Builder) Build(cat *dto.Catalog, roster []dto.RosterRow, rankings []dto.RankingRow) (*allocation.Model, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: catalog missing", allocation.ErrInvalidCatalog)
	}
	if err := b.validate.Struct(cat); err != nil {
		return nil, fmt.Errorf("%w: %v", allocation.ErrInvalidCatalog, err)
	}
	for i := range roster {
		if err := b.validate.Struct(roster[i]); err != nil {
			return nil, fmt.Errorf("%w: roster row %d: %v", allocation.ErrInvalidCatalog, i+1, err)
		}
	}
	for i := range rankings {
		if err := b.validate.Struct(rankings[i]); err != nil {
			return nil, fmt.Errorf("%w: rankings row %d: %v", allocation.ErrInvalidCatalog, i+1, err)
		}
	}

	var errs problems
	m := allocation.NewModel()

	for i, sessions := range cat.Shifts {
		name := ""
		if i < len(cat.ShiftNames) {
			name = cat.ShiftNames[i]
		}
		m.AddShift(name, sessions...)
	}
	seenSession := make(map[string]bool)
	for _, s := range m.Sessions {
		if seenSession[s.Alias] {
			errs.addf("session %q appears in more than one shift", s.Alias)
		}
		seenSession[s.Alias] = true
	}
	for _, alias := range cat.GradeLevels {
		m.AddGradeLevel(alias)
	}
	for _, alias := range cat.CourseTypes {
		m.AddCourseType(alias)
	}

	res := b.addCourses(m, cat.Courses, &errs)
	b.addGroups(m, res, cat.ResearchGroups, &errs)
	students := b.addStudents(m, res, cat.Students, roster, &errs)
	b.addRankings(m, res, students, cat.Students, rankings, &errs)

	if err := errs.err(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *Builder) addCourses(m *allocation.Model, specs []dto.CourseSpec, errs *problems) *resolver {
	res := &resolver{m: m, byLabel: make(map[string]allocation.CourseID), byAlias: make(map[string][]allocation.CourseID)}
	for _, spec := range specs {
		id := m.AddCourse(spec.Alias, spec.Level, allocation.Capacity{
			Minimum: spec.Capacity.Min,
			Ideal:   spec.Capacity.Ideal,
			Maximum: spec.Capacity.Max,
		}, spec.MaxSections)
		label := m.Courses[id].Label()
		if _, dup := res.byLabel[label]; dup {
			errs.addf("course %q declared twice", label)
			continue
		}
		res.byLabel[label] = id
		res.byAlias[spec.Alias] = append(res.byAlias[spec.Alias], id)
	}

	for i, spec := range specs {
		id := allocation.CourseID(i)
		label := m.Courses[id].Label()
		if spec.LinkedTo != "" {
			if sibling, err := res.course(spec.LinkedTo); err != nil {
				errs.addf("%s linkedTo: %v", label, err)
			} else {
				m.Link(id, sibling)
			}
		}
		for _, ref := range spec.NotAlongside {
			other, err := res.course(ref)
			if err != nil {
				errs.addf("%s notAlongside: %v", label, err)
				continue
			}
			m.AddNotAlongside(id, other)
		}
		for _, set := range spec.Prerequisites {
			alts := make([]allocation.CourseID, 0, len(set))
			for _, ref := range set {
				alt, err := res.course(ref)
				if err != nil {
					errs.addf("%s prerequisites: %v", label, err)
					continue
				}
				alts = append(alts, alt)
			}
			if len(alts) > 0 {
				m.AddPrerequisite(id, alts...)
			}
		}
		for _, cl := range spec.Classification {
			grade, ok := m.GradeByAlias(cl.GradeLevel)
			if !ok {
				errs.addf("%s classification: unknown grade level %q", label, cl.GradeLevel)
				continue
			}
			t, ok := m.TypeByAlias(cl.CourseType)
			if !ok {
				errs.addf("%s classification: unknown course type %q", label, cl.CourseType)
				continue
			}
			m.Classify(grade, t, cl.Ranked, id)
		}
	}
	return res
}

func (b *Builder) addGroups(m *allocation.Model, res *resolver, specs []dto.GroupSpec, errs *problems) {
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if seen[spec.Alias] {
			errs.addf("research group %q declared twice", spec.Alias)
			continue
		}
		seen[spec.Alias] = true
		course, err := res.course(spec.Course)
		if err != nil {
			errs.addf("research group %s: %v", spec.Alias, err)
			continue
		}
		m.AddResearchGroup(spec.Alias, course)
	}
}

func (b *Builder) addStudents(m *allocation.Model, res *resolver, inline []dto.StudentSpec, roster []dto.RosterRow, errs *problems) map[studentKey]allocation.StudentID {
	students := make(map[studentKey]allocation.StudentID, len(inline)+len(roster))

	add := func(grade, alias, group string, taken []string) {
		key := studentKey{grade: grade, alias: alias}
		if _, dup := students[key]; dup {
			errs.addf("student %s-%s listed twice", grade, alias)
			return
		}
		gid, ok := m.GradeByAlias(grade)
		if !ok {
			errs.addf("student %s: unknown grade level %q", alias, grade)
			return
		}
		id := m.AddStudent(alias, gid)
		students[key] = id
		for _, ref := range taken {
			course, err := res.course(ref)
			if err != nil {
				errs.addf("student %s-%s taken: %v", grade, alias, err)
				continue
			}
			m.MarkTaken(id, course)
		}
		if group != "" {
			g, ok := m.GroupByAlias(group)
			if !ok {
				errs.addf("student %s-%s: unknown research group %q", grade, alias, group)
				return
			}
			m.JoinGroup(id, g)
		}
	}

	for _, st := range inline {
		add(st.GradeLevel, st.Alias, st.ResearchGroup, st.Taken)
	}
	for _, row := range roster {
		add(row.GradeLevel, row.Student, row.ResearchGroup, splitTaken(row.Taken))
	}
	return students
}

func (b *Builder) addRankings(m *allocation.Model, res *resolver, students map[studentKey]allocation.StudentID, inline []dto.StudentSpec, rows []dto.RankingRow, errs *problems) {
	rank := func(key studentKey, typeAlias, ref string) {
		id, ok := students[key]
		if !ok {
			errs.addf("rankings: unknown student %s-%s", key.grade, key.alias)
			return
		}
		t, ok := m.TypeByAlias(typeAlias)
		if !ok {
			errs.addf("rankings of %s-%s: unknown course type %q", key.grade, key.alias, typeAlias)
			return
		}
		course, err := res.course(ref)
		if err != nil {
			errs.addf("rankings of %s-%s: %v", key.grade, key.alias, err)
			return
		}
		m.Rank(id, t, course)
	}

	for _, st := range inline {
		types := make([]string, 0, len(st.Rankings))
		for t := range st.Rankings {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			for _, ref := range st.Rankings[t] {
				rank(studentKey{grade: st.GradeLevel, alias: st.Alias}, t, ref)
			}
		}
	}

	sorted := append([]dto.RankingRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.GradeLevel != b.GradeLevel {
			return a.GradeLevel < b.GradeLevel
		}
		if a.Student != b.Student {
			return a.Student < b.Student
		}
		if a.CourseType != b.CourseType {
			return a.CourseType < b.CourseType
		}
		return a.Rank < b.Rank
	})
	for _, row := range sorted {
		rank(studentKey{grade: row.GradeLevel, alias: row.Student}, row.CourseType, row.Course)
	}
}

func splitTaken(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, TakenSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsInvalid reports whether err came from a rejected catalog.
func IsInvalid(err error) bool {
	return errors.Is(err, allocation.ErrInvalidCatalog)
}
