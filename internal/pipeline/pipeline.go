// Package pipeline runs one complete analysis pass: load a snapshot, compute
// the funnel result, then derive insights and recommendations.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/vinodismyname/mcpfunnel/internal/dataset"
	"github.com/vinodismyname/mcpfunnel/internal/funnel"
	"github.com/vinodismyname/mcpfunnel/internal/insights"
	"github.com/vinodismyname/mcpfunnel/internal/report"
)

// Source yields a fresh snapshot on every call.
type Source interface {
	Load(ctx context.Context) (dataset.Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (dataset.Snapshot, error)

func (f SourceFunc) Load(ctx context.Context) (dataset.Snapshot, error) { return f(ctx) }

// PathSource loads the same dataset path on every call.
type PathSource struct {
	Loader *dataset.Loader
	Path   string
}

func (s PathSource) Load(ctx context.Context) (dataset.Snapshot, error) {
	return s.Loader.Load(ctx, s.Path)
}

// String returns the requested dataset path.
func (s PathSource) String() string { return s.Path }

// Observer is notified after every run, successful or not.
type Observer interface {
	ObserveRun(ctx context.Context, source string, res *funnel.Result, elapsed time.Duration, err error)
}

// Output is everything the presentation layers consume.
type Output struct {
	Result          *funnel.Result `json:"result"`
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`
}

// Deck lays out the exported report for o.
func (o *Output) Deck() report.Deck {
	return report.BuildDeck(o.Result, o.Insights, o.Recommendations)
}

// Pipeline holds the analysis settings shared by every run.
type Pipeline struct {
	Options    funnel.Options
	Thresholds insights.Thresholds
	Observer   Observer
}

// New returns a pipeline with default options and thresholds.
func New() *Pipeline {
	return &Pipeline{Options: funnel.DefaultOptions(), Thresholds: insights.DefaultThresholds()}
}

// Run loads src and analyzes it. Load failures are returned as-is (typically
// *dataset.LoadError) and no partial analysis is produced.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Output, error) {
	return p.RunWith(ctx, src, p.Options)
}

// RunWith is Run with per-call options.
func (p *Pipeline) RunWith(ctx context.Context, src Source, opts funnel.Options) (*Output, error) {
	start := time.Now()
	snap, err := src.Load(ctx)
	if err != nil {
		p.observe(ctx, sourceName(src), nil, start, err)
		return nil, err
	}
	res, err := funnel.Analyze(ctx, snap, opts)
	if err != nil {
		p.observe(ctx, snap.Source, nil, start, err)
		return nil, fmt.Errorf("pipeline: analyze %s: %w", snap.Source, err)
	}
	out := &Output{
		Result:          res,
		Insights:        insights.Generate(res),
		Recommendations: insights.Recommend(res, p.Thresholds),
	}
	p.observe(ctx, snap.Source, res, start, nil)
	return out, nil
}

// sourceName labels src before a snapshot exists to carry its name.
func sourceName(src Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}

func (p *Pipeline) observe(ctx context.Context, source string, res *funnel.Result, start time.Time, err error) {
	if p.Observer != nil {
		p.Observer.ObserveRun(ctx, source, res, time.Since(start), err)
	}
}
