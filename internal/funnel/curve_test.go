package funnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/mcpfunnel/internal/dataset"
)

func TestConversionCurve_GroupsBySignupDay(t *testing.T) {
	morning := time.Date(2015, 3, 2, 8, 0, 0, 0, time.UTC)
	users := []dataset.User{
		{ID: "a", Signup: morning.Add(10 * time.Hour), SignupValid: true},
		{ID: "b", Signup: morning, SignupValid: true},
		{ID: "c", Signup: day("2015-03-01"), SignupValid: true},
		{ID: "d", Signup: day("2015-03-05"), SignupValid: true},
		{ID: "e"},
	}
	reg := dataset.NewRegistry(users, dataset.Attributes{Signup: true})

	got := ConversionCurve(reg, NewIDSet([]string{"a", "c", "e"}))
	require.Equal(t, []CurvePoint{
		{Date: "2015-03-01", Users: 1, Converted: 1, ConversionRate: 100, CumulativeUsers: 1, CumulativeConverted: 1, CumulativeRate: 100},
		{Date: "2015-03-02", Users: 2, Converted: 1, ConversionRate: 50, CumulativeUsers: 3, CumulativeConverted: 2, CumulativeRate: 66.67},
		{Date: "2015-03-05", Users: 1, Converted: 0, ConversionRate: 0, CumulativeUsers: 4, CumulativeConverted: 2, CumulativeRate: 50},
	}, got)
}

func TestConversionCurve_NoSignupColumn(t *testing.T) {
	reg := dataset.NewRegistry([]dataset.User{{ID: "a"}}, dataset.Attributes{})
	require.Nil(t, ConversionCurve(reg, NewIDSet([]string{"a"})))
	require.Nil(t, ConversionCurve(nil, nil))
}

func TestAnalyze_IncludesCurve(t *testing.T) {
	v, reg := fixture()
	res, err := Analyze(testContext(), dataset.Snapshot{Visits: v, Users: reg}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Curve, 5)
	last := res.Curve[len(res.Curve)-1]
	require.Equal(t, "2015-04-30", last.Date)
	require.Equal(t, 5, last.CumulativeUsers)
	require.Equal(t, 2, last.CumulativeConverted)
	require.Equal(t, 40.0, last.CumulativeRate)
}
