package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/mcpfunnel/pkg/mcperr"
)

// Middleware applies the Controller's admission and timeout policy to MCP
// tool calls and dashboard requests.
type Middleware struct {
	ctrl *Controller
}

// NewMiddleware constructs a Middleware bound to ctrl.
func NewMiddleware(ctrl *Controller) *Middleware {
	return &Middleware{ctrl: ctrl}
}

// ToolMiddleware admits a tool call, bounds it by OperationTimeout and turns
// saturation or deadline expiry into catalog tool errors the client can retry.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := m.ctrl.admit(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Str("tool", req.Params.Name).Err(err).Msg("tool call rejected")
			return mcperr.Wrapf(mcperr.BusyResource, "concurrent request limit reached (max=%d)", m.ctrl.limits.MaxConcurrentRequests), nil
		}
		defer m.ctrl.ReleaseRequest()

		callCtx, cancel := m.ctrl.bound(ctx)
		defer cancel()

		res, err := next(callCtx, req)
		if errors.Is(err, context.DeadlineExceeded) || (err == nil && res == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)) {
			return mcperr.New(mcperr.Timeout, ""), nil
		}
		return res, err
	}
}

type busyBody struct {
	Status string `json:"status"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPMiddleware applies the same policy to HTTP handlers. Saturation is a
// 503 JSON error with a Retry-After hint.
func (m *Middleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.ctrl.admit(r.Context()); err != nil {
			body := busyBody{Status: "error"}
			body.Error.Code = "busy"
			body.Error.Message = err.Error()
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(body)
			return
		}
		defer m.ctrl.ReleaseRequest()

		ctx, cancel := m.ctrl.bound(r.Context())
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
