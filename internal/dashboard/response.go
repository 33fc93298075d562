package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vinodismyname/mcpfunnel/internal/dataset"
	"github.com/vinodismyname/mcpfunnel/internal/funnel"
)

type successResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Error  errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successResponse{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: errorPayload{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(requestIDHeader),
	}})
}

func mapError(err error) (int, string) {
	var le *dataset.LoadError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &le):
		return http.StatusBadGateway, "load_failed"
	case errors.Is(err, funnel.ErrUnknownSegment):
		return http.StatusBadRequest, "unknown_segment"
	case errors.Is(err, funnel.ErrAttributeMissing):
		return http.StatusUnprocessableEntity, "segment_unavailable"
	case errors.Is(err, funnel.ErrNoSignupColumn), errors.Is(err, funnel.ErrNoValidSignupDates),
		errors.Is(err, funnel.ErrInvalidWindow), errors.Is(err, funnel.ErrNoRegistry):
		return http.StatusUnprocessableEntity, "analysis_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
