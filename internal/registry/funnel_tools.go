package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/mcpfunnel/internal/funnel"
	"github.com/vinodismyname/mcpfunnel/internal/pipeline"
	"github.com/vinodismyname/mcpfunnel/internal/report"
	"github.com/vinodismyname/mcpfunnel/pkg/mcperr"
	"github.com/vinodismyname/mcpfunnel/pkg/validation"
)

// AnalyzeFunnelInput selects the dataset and analysis overrides.
type AnalyzeFunnelInput struct {
	Path        string   `json:"path" validate:"required,dataset_path" jsonschema_description:"CSV directory or .xlsx workbook holding the five funnel tables (allowed directories enforced)"`
	RecencyDays *int     `json:"recency_days,omitempty" validate:"omitempty,min=0,max=3650" jsonschema_description:"Days before the latest signup that still count as new users (default 7)"`
	Segments    []string `json:"segments,omitempty" validate:"omitempty,dive,segment_key" jsonschema_description:"Segmentations to compute: device, gender, recency (default device, gender)"`
}

// AnalyzeFunnelOutput is the full analysis of one run.
type AnalyzeFunnelOutput struct {
	Path            string         `json:"path"`
	Result          *funnel.Result `json:"result"`
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`
}

// SegmentFunnelInput selects one segmentation.
type SegmentFunnelInput struct {
	Path        string `json:"path" validate:"required,dataset_path" jsonschema_description:"CSV directory or .xlsx workbook holding the five funnel tables"`
	Key         string `json:"key" validate:"required,segment_key" jsonschema_description:"Segmentation key: device, gender or recency"`
	RecencyDays *int   `json:"recency_days,omitempty" validate:"omitempty,min=0,max=3650" jsonschema_description:"Recency window in days (default 7)"`
}

// SegmentFunnelOutput holds per-segment funnels and the step heatmap rows.
type SegmentFunnelOutput struct {
	Path     string            `json:"path"`
	RunID    string            `json:"run_id"`
	Key      funnel.SegmentKey `json:"key"`
	Segments funnel.Segments   `json:"segments"`
	Steps    []funnel.StepRate `json:"steps"`
}

// ExportReportInput selects the dataset and the report destination.
type ExportReportInput struct {
	Path        string `json:"path" validate:"required,dataset_path" jsonschema_description:"CSV directory or .xlsx workbook holding the five funnel tables"`
	Output      string `json:"output" validate:"required,report_path" jsonschema_description:"Destination .xlsx path inside an allowed directory"`
	RecencyDays *int   `json:"recency_days,omitempty" validate:"omitempty,min=0,max=3650" jsonschema_description:"Recency window in days (default 7)"`
}

// ExportReportOutput describes the written report.
type ExportReportOutput struct {
	Path     string   `json:"path"`
	Output   string   `json:"output"`
	RunID    string   `json:"run_id"`
	Sections []string `json:"sections"`
}

// WritePathValidator checks report destinations.
type WritePathValidator interface {
	ValidateWritePath(output string) (string, error)
}

// Tools implements the funnel MCP tools over a pipeline and a dataset loader.
type Tools struct {
	Pipeline *pipeline.Pipeline
	// Source binds a dataset path to a pipeline source.
	Source func(path string) pipeline.Source
	Writes WritePathValidator
}

func (t *Tools) options(recencyDays *int, segments []string) funnel.Options {
	opts := t.Pipeline.Options
	if recencyDays != nil {
		opts.RecencyDays = *recencyDays
	}
	if len(segments) > 0 {
		opts.Segments = segments
	}
	return opts
}

// AnalyzeFunnel runs the full analysis for in.Path.
func (t *Tools) AnalyzeFunnel(ctx context.Context, in AnalyzeFunnelInput) (AnalyzeFunnelOutput, error) {
	out, err := t.Pipeline.RunWith(ctx, t.Source(in.Path), t.options(in.RecencyDays, in.Segments))
	if err != nil {
		return AnalyzeFunnelOutput{}, err
	}
	return AnalyzeFunnelOutput{
		Path:            out.Result.Source,
		Result:          out.Result,
		Insights:        out.Insights,
		Recommendations: out.Recommendations,
	}, nil
}

// SegmentFunnel computes a single segmentation.
func (t *Tools) SegmentFunnel(ctx context.Context, in SegmentFunnelInput) (SegmentFunnelOutput, error) {
	key, err := funnel.ParseSegmentKey(in.Key)
	if err != nil {
		return SegmentFunnelOutput{}, err
	}
	out, err := t.Pipeline.RunWith(ctx, t.Source(in.Path), t.options(in.RecencyDays, []string{string(key)}))
	if err != nil {
		return SegmentFunnelOutput{}, err
	}
	segs, ok := out.Result.Segment(key)
	if !ok {
		return SegmentFunnelOutput{}, fmt.Errorf("%w: %s", funnel.ErrAttributeMissing, out.Result.SegmentErrors[string(key)])
	}
	return SegmentFunnelOutput{
		Path:     out.Result.Source,
		RunID:    out.Result.RunID,
		Key:      key,
		Segments: segs,
		Steps:    funnel.StepMatrix(segs),
	}, nil
}

// ExportReport analyzes in.Path and writes the deck to in.Output.
func (t *Tools) ExportReport(ctx context.Context, in ExportReportInput) (ExportReportOutput, error) {
	dest := in.Output
	if t.Writes != nil {
		c, err := t.Writes.ValidateWritePath(in.Output)
		if err != nil {
			return ExportReportOutput{}, err
		}
		dest = c
	}
	out, err := t.Pipeline.RunWith(ctx, t.Source(in.Path), t.options(in.RecencyDays, nil))
	if err != nil {
		return ExportReportOutput{}, err
	}
	deck := out.Deck()
	if err := report.WriteFile(ctx, deck, dest); err != nil {
		return ExportReportOutput{}, &exportError{err: err}
	}
	titles := make([]string, len(deck.Sections))
	for i, s := range deck.Sections {
		titles[i] = s.Title
	}
	return ExportReportOutput{Path: out.Result.Source, Output: dest, RunID: out.Result.RunID, Sections: titles}, nil
}

// RegisterFunnelTools wires the funnel tools with typed schemas.
func RegisterFunnelTools(s *server.MCPServer, reg *Registry, t *Tools) {
	analyze := mcp.NewTool(
		"analyze_funnel",
		mcp.WithDescription("Compute the Home → Search → Payment → Confirmation funnel for a dataset: per-stage users, conversion and drop-off rates, the drop-off table, device/gender/recency segments, new vs existing cohorts, plus rule-based insights and recommendations. Errors include LOAD_FAILED, MISSING_COLUMN, RECENCY_FAILED and PERMISSION_DENIED."),
		mcp.WithInputSchema[AnalyzeFunnelInput](),
		mcp.WithOutputSchema[AnalyzeFunnelOutput](),
	)
	s.AddTool(analyze, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in AnalyzeFunnelInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := t.AnalyzeFunnel(ctx, in)
		if err != nil {
			return toolError(err), nil
		}
		worst := out.Result.Overall.DropOff.Max()
		summary := fmt.Sprintf("overall conversion %s%%; biggest drop-off %s (%s%%); %d insights, %d recommendations",
			funnel.FormatRate(out.Result.Overall.ConversionRate), worst.Transition, funnel.FormatRate(worst.Percentage),
			len(out.Insights), len(out.Recommendations))
		return mcp.NewToolResultStructured(out, summary), nil
	}))
	reg.Register(analyze)

	segment := mcp.NewTool(
		"segment_funnel",
		mcp.WithDescription("Compute the funnel for each value of one segmentation key (device, gender or recency) together with raw-count step conversion and drop-off rates per segment. Errors include UNKNOWN_SEGMENT and SEGMENT_UNAVAILABLE when the user table lacks the attribute."),
		mcp.WithInputSchema[SegmentFunnelInput](),
		mcp.WithOutputSchema[SegmentFunnelOutput](),
	)
	s.AddTool(segment, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in SegmentFunnelInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := t.SegmentFunnel(ctx, in)
		if err != nil {
			return toolError(err), nil
		}
		parts := make([]string, 0, len(out.Segments))
		for _, k := range out.Segments.Keys() {
			parts = append(parts, fmt.Sprintf("%s %s%%", k, funnel.FormatRate(out.Segments[k].OverallConversion)))
		}
		return mcp.NewToolResultStructured(out, fmt.Sprintf("%s: %s", out.Key, strings.Join(parts, ", "))), nil
	}))
	reg.Register(segment)

	export := mcp.NewTool(
		"export_report",
		mcp.WithDescription("Analyze a dataset and write the funnel report deck as an .xlsx workbook: one sheet per section (overview, funnel, conversion, drop-off, device, gender, new vs existing, insights, recommendations, conclusion) with embedded charts. Hidden unless writes are enabled."),
		mcp.WithInputSchema[ExportReportInput](),
		mcp.WithOutputSchema[ExportReportOutput](),
	)
	s.AddTool(export, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in ExportReportInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := t.ExportReport(ctx, in)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultStructured(out, fmt.Sprintf("report written to %s (%d sections)", out.Output, len(out.Sections))), nil
	}))
	reg.RegisterWrite(export)
}
