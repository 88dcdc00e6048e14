package allocation

// CategoryScore is the attainment of one ranked category.
type CategoryScore struct {
	Type     string  `json:"type"`
	Attained int     `json:"attained"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
}

// RankedTypes lists categories some grade level lets students rank, in
// precedence order.
func (m *Model) RankedTypes() []CourseTypeID {
	var out []CourseTypeID
	for _, t := range m.CourseTypes {
		for _, g := range m.Grades {
			if len(g.Courses[Bucket{Type: t.ID, Ranked: true}]) > 0 {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}

// Score computes, per ranked category, the share of students with a valid
// initial choice who received it or lost it only to a lack of rooms. A
// category nobody ranked scores 100.
func Score(m *Model) []CategoryScore {
	var out []CategoryScore
	for _, t := range m.RankedTypes() {
		s := CategoryScore{Type: m.CourseTypes[t].Alias}
		for _, st := range m.Students {
			initial, ok := st.Rankings.Initial(t, 0)
			if !ok {
				continue
			}
			s.Total++
			if held, ok := st.Takes[t]; ok && held == initial {
				s.Attained++
				continue
			}
			if reason, ok := st.Rankings.Reason(t, initial); ok && reason == ReasonNoRooms {
				s.Attained++
			}
		}
		s.Percent = 100
		if s.Total > 0 {
			s.Percent = float64(s.Attained) / float64(s.Total) * 100
		}
		out = append(out, s)
	}
	return out
}

// TotalScore sums the category percentages.
func TotalScore(scores []CategoryScore) float64 {
	var total float64
	for _, s := range scores {
		total += s.Percent
	}
	return total
}

// MeetsTargets reports whether every category with a target reaches it.
// Targets are keyed by category alias.
func MeetsTargets(scores []CategoryScore, targets map[string]float64) bool {
	for _, s := range scores {
		if target, ok := targets[s.Type]; ok && s.Percent < target {
			return false
		}
	}
	return true
}
