package mcperr

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation         Code = "VALIDATION"
	UnknownSegment     Code = "UNKNOWN_SEGMENT"
	SegmentUnavailable Code = "SEGMENT_UNAVAILABLE"

	// Resource & Limits
	BusyResource  Code = "BUSY_RESOURCE"
	Timeout       Code = "TIMEOUT"
	LimitExceeded Code = "LIMIT_EXCEEDED"

	// IO & Formats
	LoadFailed        Code = "LOAD_FAILED"
	MissingColumn     Code = "MISSING_COLUMN"
	ExportFailed      Code = "EXPORT_FAILED"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
	NotFound          Code = "NOT_FOUND"

	// Analysis
	RecencyFailed  Code = "RECENCY_FAILED"
	AnalysisFailed Code = "ANALYSIS_FAILED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:         {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry", "See examples in tool description"}},
	UnknownSegment:     {Code: UnknownSegment, Message: "unknown segment key", Retryable: true, NextSteps: []string{"Use one of: device, gender, recency"}},
	SegmentUnavailable: {Code: SegmentUnavailable, Message: "segmentation could not be computed", Retryable: false, NextSteps: []string{"Check that the user table carries the attribute column", "Adjust dataset.columns in the config"}},

	BusyResource:  {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:       {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Retry with a smaller dataset or increase limits.operation_timeout"}},
	LimitExceeded: {Code: LimitExceeded, Message: "operation exceeded configured limits", Retryable: false, NextSteps: []string{"Split the dataset or raise limits.max_rows_per_table"}},

	LoadFailed:        {Code: LoadFailed, Message: "failed to load dataset", Retryable: true, NextSteps: []string{"Verify the directory holds all five tables", "Check file names against dataset.files"}},
	MissingColumn:     {Code: MissingColumn, Message: "required column missing", Retryable: false, NextSteps: []string{"Add the column or map it via dataset.columns"}},
	ExportFailed:      {Code: ExportFailed, Message: "failed to write report", Retryable: true, NextSteps: []string{"Verify the output directory exists and is writable"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported dataset format", Retryable: false, NextSteps: []string{"Provide a CSV directory or an .xlsx workbook"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "path outside allowed directories", Retryable: false, NextSteps: []string{"Choose a path under MCPFUNNEL_ALLOWED_DIRS"}},
	NotFound:          {Code: NotFound, Message: "path not found", Retryable: true, NextSteps: []string{"Check the path and retry"}},

	RecencyFailed:  {Code: RecencyFailed, Message: "recency classification failed", Retryable: false, NextSteps: []string{"Ensure the user table has parseable signup dates"}},
	AnalysisFailed: {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Retry or inspect server logs"}},
}

// Format renders "CODE: msg | nextSteps: a; b", falling back to the catalog
// message when msg is blank. Codes that will fail again on an identical call
// end with "| retryable: false".
func (e Entry) Format(msg string) string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	if msg = strings.TrimSpace(msg); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString(e.Message)
	}
	if len(e.NextSteps) > 0 {
		b.WriteString(" | nextSteps: ")
		b.WriteString(strings.Join(e.NextSteps, "; "))
	}
	if !e.Retryable {
		b.WriteString(" | retryable: false")
	}
	return b.String()
}

// render formats msg under code. Codes outside the catalog pass through bare.
func render(code Code, msg string) string {
	if e, ok := catalog[code]; ok {
		return e.Format(msg)
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		return fmt.Sprintf("%s: %s", code, msg)
	}
	return string(code)
}

// FromText turns a "CODE: message" string, typically from
// validation.ValidateStruct, into a tool error with catalog guidance.
func FromText(text string) *mcp.CallToolResult {
	code, msg, found := strings.Cut(strings.TrimSpace(text), ":")
	if !found && code == "" {
		code = string(Validation)
	}
	return mcp.NewToolResultError(render(Code(strings.TrimSpace(code)), msg))
}

// New returns a tool error for code; an empty message uses the catalog text.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(render(code, message))
}

// Wrapf is New with a formatted message.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return New(code, fmt.Sprintf(format, args...))
}
