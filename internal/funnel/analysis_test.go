package funnel

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/mcpfunnel/internal/dataset"
)

func testContext() context.Context {
	return zerolog.Nop().WithContext(context.Background())
}

func TestAnalyze_BuildsFullResult(t *testing.T) {
	v, reg := fixture()
	fixed := time.Date(2015, 5, 1, 0, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.Clock = func() time.Time { return fixed }

	res, err := Analyze(testContext(), dataset.Snapshot{Source: "fixture", Visits: v, Users: reg}, opts)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, fixed, res.GeneratedAt)
	require.Equal(t, "fixture", res.Source)

	require.Equal(t, [StageCount]int{7, 5, 3, 2}, res.Overall.Funnel.Users())
	require.Equal(t, 28.57, res.Overall.ConversionRate)
	require.Equal(t, "Search to Payment", res.Overall.DropOff.Max().Transition)
	require.Equal(t, 40.0, res.Overall.DropOff[1].Percentage)

	device, ok := res.Segment(SegmentDevice)
	require.True(t, ok)
	require.Len(t, device, 2)
	gender, ok := res.Segment(SegmentGender)
	require.True(t, ok)
	require.Len(t, gender, 2)
	require.Empty(t, res.SegmentErrors)

	require.Equal(t, Cohort{Funnel: res.UserType.New.Funnel, OverallConversion: 33.33, Count: 3}, res.UserType.New)
	require.Equal(t, 50.0, res.UserType.Existing.OverallConversion)
	require.Equal(t, 2, res.UserType.Existing.Count)

	require.Equal(t, UserCounts{Total: 6, New: 3, Existing: 2, Unknown: 1}, res.UserCounts)
	require.Equal(t, day("2015-04-23"), res.Recency.Cutoff)
}

func TestAnalyze_UnknownSegmentIsReportedNotFatal(t *testing.T) {
	v, reg := fixture()
	opts := DefaultOptions()
	opts.Segments = []string{"device", "browser"}

	res, err := Analyze(testContext(), dataset.Snapshot{Visits: v, Users: reg}, opts)
	require.NoError(t, err)
	require.Contains(t, res.Segments, SegmentDevice)
	require.NotContains(t, res.Segments, SegmentGender)
	require.Contains(t, res.SegmentErrors, "browser")
}

func TestAnalyze_MissingAttributeColumnIsReported(t *testing.T) {
	v, _ := fixture()
	reg := dataset.NewRegistry([]dataset.User{
		{ID: "1", Gender: "Female", Signup: day("2015-04-30"), SignupValid: true},
	}, dataset.Attributes{Gender: true, Signup: true})

	res, err := Analyze(testContext(), dataset.Snapshot{Visits: v, Users: reg}, DefaultOptions())
	require.NoError(t, err)
	require.Contains(t, res.SegmentErrors, "device")
	require.Contains(t, res.Segments, SegmentGender)
}

func TestAnalyze_RecencyFailureFailsRun(t *testing.T) {
	v, _ := fixture()
	reg := dataset.NewRegistry([]dataset.User{{ID: "1", Device: "Mobile"}}, dataset.Attributes{Device: true, Signup: true})

	_, err := Analyze(testContext(), dataset.Snapshot{Visits: v, Users: reg}, DefaultOptions())
	require.ErrorIs(t, err, ErrNoValidSignupDates)

	_, err = Analyze(testContext(), dataset.Snapshot{Visits: v}, DefaultOptions())
	require.ErrorIs(t, err, ErrNoRegistry)
}
