package funnel

import "fmt"

// StepRate is the record-count based rate of one segment across one step, as
// shown in the segment heatmaps. Rates are nil when the segment has no records
// entering the step.
type StepRate struct {
	Step           string   `json:"step"`
	Segment        string   `json:"segment"`
	ConversionRate *float64 `json:"conversion_rate"`
	DropOffRate    *float64 `json:"drop_off_rate"`
}

func (c StageCounts) at(s Stage) int {
	switch s {
	case Home:
		return c.Home
	case Search:
		return c.Search
	case Payment:
		return c.Payment
	case Confirmation:
		return c.Confirmation
	}
	return 0
}

// StepMatrix lists, step by step, the raw-count conversion and drop-off of
// every segment. Unlike the funnel tables it uses visit-record counts, so a
// step can exceed 100% conversion when later stages log repeat visits.
func StepMatrix(segs Segments) []StepRate {
	keys := segs.Keys()
	out := make([]StepRate, 0, (StageCount-1)*len(keys))
	for s := Home; s < Confirmation; s++ {
		step := fmt.Sprintf("Step %d → %d", s+1, s+2)
		for _, k := range keys {
			r := StepRate{Step: step, Segment: k}
			start, next := segs[k].Counts.at(s), segs[k].Counts.at(s+1)
			if start > 0 {
				conv := round2(float64(next) / float64(start) * 100)
				drop := round2((1 - float64(next)/float64(start)) * 100)
				r.ConversionRate, r.DropOffRate = &conv, &drop
			}
			out = append(out, r)
		}
	}
	return out
}
