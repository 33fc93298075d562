package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestToolMiddleware(t *testing.T) {
	saturated := func(t *testing.T) *Controller {
		limits := NewLimits(1, 1)
		limits.AcquireRequestTimeout = 10 * time.Millisecond
		ctrl := NewController(limits)
		require.NoError(t, ctrl.AcquireRequest(context.Background()))
		t.Cleanup(ctrl.ReleaseRequest)
		return ctrl
	}

	t.Run("passes through with capacity", func(t *testing.T) {
		ctrl := NewController(NewLimits(1, 1))
		var held int64
		next := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			held = ctrl.Usage().Requests
			return mcp.NewToolResultText("ok"), nil
		}
		res, err := NewMiddleware(ctrl).ToolMiddleware(next)(context.Background(), mcp.CallToolRequest{})
		require.NoError(t, err)
		require.False(t, res.IsError)
		require.Equal(t, int64(1), held)
		require.Equal(t, int64(0), ctrl.Usage().Requests)
	})

	t.Run("busy when saturated", func(t *testing.T) {
		next := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			t.Fatal("next should not be called when saturated")
			return nil, nil
		}
		res, err := NewMiddleware(saturated(t)).ToolMiddleware(next)(context.Background(), mcp.CallToolRequest{})
		require.NoError(t, err)
		require.True(t, res.IsError)
		require.Contains(t, resultText(t, res), "BUSY_RESOURCE: concurrent request limit reached (max=1)")
	})

	t.Run("timeout becomes tool error", func(t *testing.T) {
		limits := NewLimits(1, 1)
		limits.OperationTimeout = 20 * time.Millisecond
		next := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		res, err := NewMiddleware(NewController(limits)).ToolMiddleware(next)(context.Background(), mcp.CallToolRequest{})
		require.NoError(t, err)
		require.True(t, res.IsError)
		require.Contains(t, resultText(t, res), "TIMEOUT")
	})
}

func TestHTTPMiddleware_BusyReturns503(t *testing.T) {
	limits := NewLimits(1, 1)
	limits.AcquireRequestTimeout = 10 * time.Millisecond

	ctrl := NewController(limits)
	require.NoError(t, ctrl.AcquireRequest(context.Background()))
	defer ctrl.ReleaseRequest()

	h := NewMiddleware(ctrl).HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run when saturated")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body busyBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "error", body.Status)
	require.Equal(t, "busy", body.Error.Code)
}

func TestHTTPMiddleware_AppliesDeadline(t *testing.T) {
	limits := NewLimits(1, 1)
	limits.OperationTimeout = time.Second

	h := NewMiddleware(NewController(limits)).HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
