// Package telemetry records analysis runs and MCP traffic as structured logs
// and in-process counters.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/mcpfunnel/internal/funnel"
)

// Stats is a point-in-time copy of the recorder counters.
type Stats struct {
	Runs        int64     `json:"runs"`
	RunFailures int64     `json:"run_failures"`
	ToolCalls   int64     `json:"tool_calls"`
	ToolErrors  int64     `json:"tool_errors"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastRunAt   time.Time `json:"last_run_at,omitempty"`
}

// Recorder is safe for concurrent use.
type Recorder struct {
	logger zerolog.Logger

	runs, runFailures   atomic.Int64
	toolCalls, toolErrs atomic.Int64

	mu        sync.Mutex
	lastRunID string
	lastRunAt time.Time

	inflight sync.Map // request id -> start time
}

// NewRecorder constructs a Recorder logging through logger.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// ObserveRun records the outcome of one load-and-analyze pass.
func (r *Recorder) ObserveRun(ctx context.Context, source string, res *funnel.Result, elapsed time.Duration, err error) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &r.logger
	}
	if err != nil {
		r.runFailures.Add(1)
		logger.Error().Str("source", source).Dur("elapsed", elapsed).Err(err).Msg("analysis run failed")
		return
	}
	r.runs.Add(1)
	r.mu.Lock()
	r.lastRunID = res.RunID
	r.lastRunAt = res.GeneratedAt
	r.mu.Unlock()
	logger.Info().
		Str("source", source).
		Str("run_id", res.RunID).
		Float64("conversion_rate", res.Overall.ConversionRate).
		Int("segment_errors", len(res.SegmentErrors)).
		Dur("elapsed", elapsed).
		Msg("analysis run completed")
}

// Snapshot returns the current counters.
func (r *Recorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Runs:        r.runs.Load(),
		RunFailures: r.runFailures.Load(),
		ToolCalls:   r.toolCalls.Load(),
		ToolErrors:  r.toolErrs.Load(),
		LastRunID:   r.lastRunID,
		LastRunAt:   r.lastRunAt,
	}
}

// ServerHooks builds the mcp-go lifecycle hooks feeding this recorder.
func (r *Recorder) ServerHooks() *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		r.logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		r.logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		r.logger.Info().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		r.inflight.Store(requestKey(id), time.Now())
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		r.observeTool(id, req.Params.Name, res != nil && res.IsError)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		r.inflight.Delete(requestKey(id))
		r.logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}

func (r *Recorder) observeTool(id any, name string, failed bool) {
	r.toolCalls.Add(1)
	evt := r.logger.Info()
	if failed {
		r.toolErrs.Add(1)
		evt = r.logger.Warn()
	}
	if v, ok := r.inflight.LoadAndDelete(requestKey(id)); ok {
		evt = evt.Dur("duration", time.Since(v.(time.Time)))
	}
	evt.Str("tool", name).Bool("is_error", failed).Msg("tool call served")
}

func requestKey(id any) string { return fmt.Sprint(id) }
