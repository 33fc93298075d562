// Package funnel computes four-stage conversion funnels over visit logs,
// segments them by user attributes, and assembles the analysis result
// consumed by the dashboard, MCP tools and report export.
package funnel

import (
	"math"
	"strconv"
	"strings"
)

// Stage is one of the four fixed funnel stages.
type Stage int

const (
	Home Stage = iota
	Search
	Payment
	Confirmation
)

// StageCount is the fixed number of funnel stages.
const StageCount = 4

var stageNames = [StageCount]string{"Home", "Search", "Payment", "Confirmation"}

// Stages returns the stages in funnel order.
func Stages() [StageCount]Stage {
	return [StageCount]Stage{Home, Search, Payment, Confirmation}
}

func (s Stage) String() string {
	if s < 0 || int(s) >= StageCount {
		return "Unknown"
	}
	return stageNames[s]
}

// TransitionName labels the step from stage s to the next one, e.g. "Home to Search".
func TransitionName(s Stage) string {
	if s < Home || s >= Confirmation {
		return ""
	}
	return s.String() + " to " + (s + 1).String()
}

// IDSet is a set of user identifiers.
type IDSet map[string]struct{}

// NewIDSet collapses ids into a set; duplicates count once.
func NewIDSet(ids []string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Len returns the set size.
func (s IDSet) Len() int { return len(s) }

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the users present in both sets.
func (s IDSet) Intersect(o IDSet) IDSet {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(IDSet, len(small))
	for id := range small {
		if large.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

// percent returns num/den*100 rounded to 2 decimals, or 0 when den is 0.
func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return round2(float64(num) / float64(den) * 100)
}

// FormatRate renders a rate with its shortest exact representation, keeping
// at least one fractional digit (20 -> "20.0", 66.67 -> "66.67").
func FormatRate(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
