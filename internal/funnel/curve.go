package funnel

import (
	"slices"

	"github.com/vinodismyname/mcpfunnel/internal/dataset"
)

const curveDateLayout = "2006-01-02"

// CurvePoint is one signup day of the cumulative conversion curve. Rates are
// percentages of the registered users, not of funnel entrants.
type CurvePoint struct {
	Date                string  `json:"date"`
	Users               int     `json:"users"`
	Converted           int     `json:"converted"`
	ConversionRate      float64 `json:"conversion_rate"`
	CumulativeUsers     int     `json:"cumulative_users"`
	CumulativeConverted int     `json:"cumulative_converted"`
	CumulativeRate      float64 `json:"cumulative_conversion_rate"`
}

// ConversionCurve groups users by signup day and reports, per day and as a
// running total, how many of them reached confirmation. Users without a valid
// signup date are skipped. Points are in ascending date order.
func ConversionCurve(users *dataset.Registry, converted IDSet) []CurvePoint {
	if users == nil || !users.HasSignup() {
		return nil
	}
	byDay := map[string]*CurvePoint{}
	users.Each(func(u dataset.User) {
		if !u.SignupValid {
			return
		}
		day := u.Signup.Format(curveDateLayout)
		p, ok := byDay[day]
		if !ok {
			p = &CurvePoint{Date: day}
			byDay[day] = p
		}
		p.Users++
		if converted.Has(u.ID) {
			p.Converted++
		}
	})

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	slices.Sort(days)

	out := make([]CurvePoint, 0, len(days))
	var total, conv int
	for _, d := range days {
		p := *byDay[d]
		total += p.Users
		conv += p.Converted
		p.ConversionRate = percent(p.Converted, p.Users)
		p.CumulativeUsers, p.CumulativeConverted = total, conv
		p.CumulativeRate = percent(conv, total)
		out = append(out, p)
	}
	return out
}
