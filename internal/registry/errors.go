package registry

import (
	"context"
	"errors"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vinodismyname/mcpfunnel/internal/dataset"
	"github.com/vinodismyname/mcpfunnel/internal/funnel"
	"github.com/vinodismyname/mcpfunnel/internal/security"
	"github.com/vinodismyname/mcpfunnel/pkg/mcperr"
)

// exportError marks failures while rendering or saving a report.
type exportError struct{ err error }

func (e *exportError) Error() string { return e.err.Error() }
func (e *exportError) Unwrap() error { return e.err }

// errorCode maps domain errors onto the MCP error catalog.
func errorCode(err error) mcperr.Code {
	var exp *exportError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return mcperr.Timeout
	case errors.Is(err, security.ErrNotAllowed):
		return mcperr.PermissionDenied
	case errors.Is(err, security.ErrUnsupportedExtension), errors.Is(err, dataset.ErrUnsupportedSource):
		return mcperr.UnsupportedFormat
	case errors.Is(err, security.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return mcperr.NotFound
	case errors.Is(err, dataset.ErrMissingColumn):
		return mcperr.MissingColumn
	case errors.Is(err, dataset.ErrTooManyRows):
		return mcperr.LimitExceeded
	case errors.Is(err, funnel.ErrUnknownSegment):
		return mcperr.UnknownSegment
	case errors.Is(err, funnel.ErrAttributeMissing), errors.Is(err, funnel.ErrRecencyRequired):
		return mcperr.SegmentUnavailable
	case errors.Is(err, funnel.ErrNoSignupColumn), errors.Is(err, funnel.ErrNoValidSignupDates), errors.Is(err, funnel.ErrInvalidWindow):
		return mcperr.RecencyFailed
	case errors.As(err, &exp):
		return mcperr.ExportFailed
	}
	var le *dataset.LoadError
	if errors.As(err, &le) {
		return mcperr.LoadFailed
	}
	return mcperr.AnalysisFailed
}

func toolError(err error) *mcp.CallToolResult {
	return mcperr.New(errorCode(err), err.Error())
}
