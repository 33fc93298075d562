package funnel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/mcpfunnel/internal/dataset"
)

func exampleVisits() dataset.Visits {
	return dataset.Visits{
		{"1", "2", "3", "4", "5"},
		{"2", "3", "4"},
		{"3", "4"},
		{"4"},
	}
}

func TestCalculateJourney_ReferenceExample(t *testing.T) {
	j := CalculateJourney(exampleVisits())

	want := FunnelTable{
		{Stage: "Home", Users: 5, ConversionRate: 100.0, DropOffRate: 0},
		{Stage: "Search", Users: 3, ConversionRate: 60.0, DropOffRate: 40.0},
		{Stage: "Payment", Users: 2, ConversionRate: 66.67, DropOffRate: 33.33},
		{Stage: "Confirmation", Users: 1, ConversionRate: 50.0, DropOffRate: 50.0},
	}
	if diff := cmp.Diff(want, j.Funnel); diff != "" {
		t.Fatalf("funnel mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 20.0, j.OverallConversion)
}

func TestCalculateJourney_NonCumulativeChain(t *testing.T) {
	// Users 7 and 8 reach payment without visiting home; adjacent-stage
	// intersections still count them.
	v := dataset.Visits{
		{"1", "2"},
		{"1", "7", "8"},
		{"7", "8"},
		{"8"},
	}
	j := CalculateJourney(v)
	require.Equal(t, [StageCount]int{2, 1, 2, 1}, j.Funnel.Users())
	require.Equal(t, 200.0, j.Funnel[Payment].ConversionRate)
	require.Equal(t, -100.0, j.Funnel[Payment].DropOffRate)
	require.Equal(t, 50.0, j.OverallConversion)
}

func TestCalculateJourney_DuplicatesCollapse(t *testing.T) {
	v := dataset.Visits{
		{"1", "1", "2", "2"},
		{"1", "1"},
		{"1"},
		{"1", "1", "1"},
	}
	j := CalculateJourney(v)
	require.Equal(t, [StageCount]int{2, 1, 1, 1}, j.Funnel.Users())
	require.Equal(t, 50.0, j.OverallConversion)
}

func TestCalculateJourney_EmptySearchIsGuarded(t *testing.T) {
	v := dataset.Visits{{"1", "2"}, nil, {"1"}, {"1"}}
	j := CalculateJourney(v)
	require.Equal(t, 0, j.Funnel[Search].Users)
	require.Equal(t, 0.0, j.Funnel[Search].ConversionRate)
	require.Equal(t, 0.0, j.Funnel[Payment].ConversionRate)
	require.Equal(t, 100.0, j.Funnel[Payment].DropOffRate)
}

func TestCalculateJourney_EmptyPaymentAndEmptyInput(t *testing.T) {
	j := CalculateJourney(dataset.Visits{{"1"}, {"1"}, nil, {"1"}})
	require.Equal(t, 0.0, j.OverallConversion)

	empty := CalculateJourney(dataset.Visits{})
	require.Equal(t, [StageCount]int{}, empty.Funnel.Users())
	require.Equal(t, 100.0, empty.Funnel[Home].ConversionRate)
	require.Equal(t, 0.0, empty.Funnel[Search].ConversionRate)
	require.Equal(t, 0.0, empty.OverallConversion)
}

func TestCalculateJourney_RateInvariants(t *testing.T) {
	inputs := []dataset.Visits{
		exampleVisits(),
		{{"1", "2", "3"}, {"1"}, {"1", "2"}, {"3"}},
		{{"a", "b", "c", "d", "e", "f", "g"}, {"a", "b", "c"}, {"a"}, {}},
		{},
	}
	for _, v := range inputs {
		f := CalculateJourney(v).Funnel
		require.Len(t, f, StageCount)
		require.Equal(t, 100.0, f[0].ConversionRate)
		require.Equal(t, 0.0, f[0].DropOffRate)
		for i := 1; i < StageCount; i++ {
			require.InDelta(t, 100.0, f[i].ConversionRate+f[i].DropOffRate, 0.011)
			require.Equal(t, Stage(i).String(), f[i].Stage)
		}
	}
}

func TestJourneyDropOff_UsesEnteringPopulation(t *testing.T) {
	// Search has 4 users but only 3 came from home: drop-off is measured
	// against all 4 searchers.
	v := dataset.Visits{
		{"1", "2", "3", "4", "5"},
		{"2", "3", "4", "9"},
		{"3", "4"},
		{"4"},
	}
	want := DropOffTable{
		{Transition: "Home to Search", Count: 2, Percentage: 40.0},
		{Transition: "Search to Payment", Count: 2, Percentage: 50.0},
		{Transition: "Payment to Confirmation", Count: 1, Percentage: 50.0},
	}
	if diff := cmp.Diff(want, CalculateJourney(v).DropOff()); diff != "" {
		t.Fatalf("drop-off mismatch (-want +got):\n%s", diff)
	}

	empty := CalculateJourney(dataset.Visits{}).DropOff()
	for _, r := range empty {
		require.Equal(t, 0, r.Count)
		require.Equal(t, 0.0, r.Percentage)
	}
}

func TestMaxHelpers_FirstWinsTies(t *testing.T) {
	d := DropOffTable{
		{Transition: "Home to Search", Percentage: 30},
		{Transition: "Search to Payment", Percentage: 30},
		{Transition: "Payment to Confirmation", Percentage: 10},
	}
	require.Equal(t, "Home to Search", d.Max().Transition)

	f := CalculateJourney(exampleVisits()).Funnel
	require.Equal(t, "Confirmation", f.MaxDropOff().Stage)
	// Every guarded stage drops 100%; the earliest one is reported.
	require.Equal(t, "Search", CalculateJourney(dataset.Visits{}).Funnel.MaxDropOff().Stage)
}

func TestStageNames(t *testing.T) {
	require.Equal(t, "Home to Search", TransitionName(Home))
	require.Equal(t, "Payment to Confirmation", TransitionName(Payment))
	require.Equal(t, "", TransitionName(Confirmation))
	require.Equal(t, "Unknown", Stage(9).String())
	require.Equal(t, 2, NewIDSet([]string{"b", "a", "b"}).Len())
}
