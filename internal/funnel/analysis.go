package funnel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vinodismyname/mcpfunnel/config"
	"github.com/vinodismyname/mcpfunnel/internal/dataset"
)

// ErrNoRegistry indicates a snapshot without a user registry.
var ErrNoRegistry = errors.New("funnel: snapshot has no user registry")

// Options selects the recency window and the attribute segmentations to run.
type Options struct {
	RecencyDays int
	// Segments holds raw segment names; unknown names are reported in
	// Result.SegmentErrors without failing the run.
	Segments []string
	Clock    func() time.Time
}

// DefaultOptions segments by device and gender with the default recency window.
func DefaultOptions() Options {
	return Options{
		RecencyDays: config.DefaultRecencyDays,
		Segments:    []string{string(SegmentDevice), string(SegmentGender)},
	}
}

// Overall is the unsegmented funnel.
type Overall struct {
	Funnel         FunnelTable  `json:"funnel"`
	DropOff        DropOffTable `json:"drop_off"`
	ConversionRate float64      `json:"conversion_rate"`
}

// Cohort is the funnel for the new or existing user population.
type Cohort struct {
	Funnel            FunnelTable `json:"funnel"`
	OverallConversion float64     `json:"overall_conversion"`
	Count             int         `json:"count"`
}

// UserType holds the new-vs-existing split.
type UserType struct {
	New      Cohort `json:"new"`
	Existing Cohort `json:"existing"`
}

// UserCounts summarizes the registry. Unknown counts users whose signup date
// could not be parsed; New + Existing + Unknown == Total.
type UserCounts struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Existing int `json:"existing"`
	Unknown  int `json:"unknown"`
}

// Result is the aggregate root of one analysis run. It is built once by
// Analyze and must be treated as read-only afterwards.
type Result struct {
	RunID         string                  `json:"run_id"`
	Source        string                  `json:"source,omitempty"`
	GeneratedAt   time.Time               `json:"generated_at"`
	Overall       Overall                 `json:"overall"`
	Segments      map[SegmentKey]Segments `json:"segments"`
	SegmentErrors map[string]string       `json:"segment_errors,omitempty"`
	UserType      UserType                `json:"user_type"`
	UserCounts    UserCounts              `json:"user_counts"`
	Recency       RecencySplit            `json:"recency"`
	Curve         []CurvePoint            `json:"conversion_curve"`
}

// Segment returns the segmentation for key when it was computed.
func (r *Result) Segment(key SegmentKey) (Segments, bool) {
	s, ok := r.Segments[key]
	return s, ok
}

// Analyze runs the full engine over one snapshot. A recency failure fails the
// run; a failed segmentation is recorded in SegmentErrors and skipped.
func Analyze(ctx context.Context, snap dataset.Snapshot, opts Options) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	if snap.Users == nil {
		return nil, ErrNoRegistry
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	start := clock()

	j := CalculateJourney(snap.Visits)
	res := &Result{
		RunID:       uuid.NewString(),
		Source:      snap.Source,
		GeneratedAt: start,
		Overall: Overall{
			Funnel:         j.Funnel,
			DropOff:        j.DropOff(),
			ConversionRate: j.OverallConversion,
		},
		Segments: map[SegmentKey]Segments{},
	}

	split, err := ClassifyRecency(snap.Users, opts.RecencyDays)
	if err != nil {
		return nil, fmt.Errorf("funnel: classify recency: %w", err)
	}
	res.Recency = *split

	for _, name := range opts.Segments {
		key, err := ParseSegmentKey(name)
		if err == nil {
			var segs Segments
			if segs, err = Segment(snap.Visits, snap.Users, key, split); err == nil {
				res.Segments[key] = segs
				continue
			}
		}
		if res.SegmentErrors == nil {
			res.SegmentErrors = map[string]string{}
		}
		res.SegmentErrors[name] = err.Error()
		logger.Warn().Str("segment", name).Err(err).Msg("segmentation skipped")
	}

	res.UserType = UserType{
		New:      cohort(snap.Visits, split.New),
		Existing: cohort(snap.Visits, split.Existing),
	}
	res.UserCounts = UserCounts{
		Total:    snap.Users.Len(),
		New:      len(split.New),
		Existing: len(split.Existing),
		Unknown:  len(split.Unknown),
	}
	res.Curve = ConversionCurve(snap.Users, j.Stages[Confirmation])

	logger.Debug().
		Str("run_id", res.RunID).
		Float64("conversion_rate", res.Overall.ConversionRate).
		Int("users", res.UserCounts.Total).
		Int("segmentations", len(res.Segments)).
		Dur("elapsed", clock().Sub(start)).
		Msg("funnel analysis completed")
	return res, nil
}

// cohort runs the journey over the visits of the given users only.
func cohort(v dataset.Visits, members []string) Cohort {
	set := NewIDSet(members)
	var filtered dataset.Visits
	for stage, ids := range v {
		for _, id := range ids {
			if set.Has(id) {
				filtered[stage] = append(filtered[stage], id)
			}
		}
	}
	j := CalculateJourney(filtered)
	return Cohort{Funnel: j.Funnel, OverallConversion: j.OverallConversion, Count: len(members)}
}
