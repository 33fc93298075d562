package funnel

import "github.com/vinodismyname/mcpfunnel/internal/dataset"

// FunnelRow is one stage of a funnel table.
type FunnelRow struct {
	Stage          string  `json:"stage"`
	Users          int     `json:"users"`
	ConversionRate float64 `json:"conversion_rate"`
	DropOffRate    float64 `json:"drop_off_rate"`
}

// FunnelTable always has exactly one row per stage, in stage order.
type FunnelTable [StageCount]FunnelRow

// Journey is the output of the journey calculator: the funnel table, overall
// conversion, the raw stage sets and the adjacent-stage intersections.
type Journey struct {
	Funnel            FunnelTable
	OverallConversion float64
	Stages            [StageCount]IDSet
	// Transitions[k] is Stages[k] ∩ Stages[k+1].
	Transitions [StageCount - 1]IDSet
}

// DropOffRow reports users lost across one stage transition.
type DropOffRow struct {
	Transition string  `json:"stage"`
	Count      int     `json:"drop_off_count"`
	Percentage float64 `json:"drop_off_percentage"`
}

// DropOffTable has one row per transition, in funnel order.
type DropOffTable [StageCount - 1]DropOffRow

// CalculateJourney computes the funnel over per-stage visit records.
//
// Each transition intersects the full raw user set of a stage with the full
// raw user set of the next stage. The chain is not cumulative: Users[2] is
// |search ∩ payment| whether or not those users visited home. This matches the
// historical reports and must not be narrowed.
func CalculateJourney(v dataset.Visits) Journey {
	var j Journey
	for i := range v {
		j.Stages[i] = NewIDSet(v[i])
	}
	for k := 0; k < StageCount-1; k++ {
		j.Transitions[k] = j.Stages[k].Intersect(j.Stages[k+1])
	}

	users := [StageCount]int{
		j.Stages[Home].Len(),
		j.Transitions[0].Len(),
		j.Transitions[1].Len(),
		j.Transitions[2].Len(),
	}

	for _, s := range Stages() {
		row := FunnelRow{Stage: s.String(), Users: users[s]}
		if s == Home {
			row.ConversionRate = 100.0
			row.DropOffRate = 0
		} else {
			row.ConversionRate = percent(users[s], users[s-1])
			row.DropOffRate = round2(100 - row.ConversionRate)
		}
		j.Funnel[s] = row
	}

	j.OverallConversion = percent(users[Confirmation], users[Home])
	return j
}

// DropOff derives the drop-off table. Losses are measured against the full
// population entering each transition, not against funnel survivors.
func (j Journey) DropOff() DropOffTable {
	var t DropOffTable
	for k := 0; k < StageCount-1; k++ {
		entering := j.Stages[k].Len()
		lost := entering - j.Transitions[k].Len()
		t[k] = DropOffRow{
			Transition: TransitionName(Stage(k)),
			Count:      lost,
			Percentage: percent(lost, entering),
		}
	}
	return t
}

// Users returns the per-stage user counts of the table.
func (t FunnelTable) Users() [StageCount]int {
	var out [StageCount]int
	for i, r := range t {
		out[i] = r.Users
	}
	return out
}

// MaxDropOff returns the stage with the highest drop-off rate; the earliest
// stage wins ties.
func (t FunnelTable) MaxDropOff() FunnelRow {
	best := t[0]
	for _, r := range t[1:] {
		if r.DropOffRate > best.DropOffRate {
			best = r
		}
	}
	return best
}

// Max returns the transition losing the largest share of users; the earliest
// transition wins ties.
func (t DropOffTable) Max() DropOffRow {
	best := t[0]
	for _, r := range t[1:] {
		if r.Percentage > best.Percentage {
			best = r
		}
	}
	return best
}
