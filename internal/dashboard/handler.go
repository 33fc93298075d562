package dashboard

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/mcpfunnel/internal/funnel"
	"github.com/vinodismyname/mcpfunnel/internal/pipeline"
	"github.com/vinodismyname/mcpfunnel/internal/report"
	"github.com/vinodismyname/mcpfunnel/internal/telemetry"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	reportFileName  = "funnel_report.xlsx"
)

// Handler recomputes the analysis from source on every request.
type Handler struct {
	pipeline *pipeline.Pipeline
	source   pipeline.Source
	recorder *telemetry.Recorder
	logger   zerolog.Logger
}

// NewHandler builds a Handler. recorder may be nil.
func NewHandler(p *pipeline.Pipeline, source pipeline.Source, recorder *telemetry.Recorder, logger zerolog.Logger) *Handler {
	return &Handler{pipeline: p, source: source, recorder: recorder, logger: logger}
}

type healthResponse struct {
	Stats *telemetry.Stats `json:"stats,omitempty"`
}

type curveResponse struct {
	RunID  string              `json:"run_id"`
	Points []funnel.CurvePoint `json:"points"`
}

type segmentResponse struct {
	RunID    string            `json:"run_id"`
	Key      funnel.SegmentKey `json:"key"`
	Segments funnel.Segments   `json:"segments"`
	Steps    []funnel.StepRate `json:"steps"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	var resp healthResponse
	if h.recorder != nil {
		s := h.recorder.Snapshot()
		resp.Stats = &s
	}
	writeSuccess(w, http.StatusOK, "ok", resp)
}

func (h *Handler) analysis(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.Run(r.Context(), h.source)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) segment(w http.ResponseWriter, r *http.Request) {
	key, err := funnel.ParseSegmentKey(chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opts := h.pipeline.Options
	opts.Segments = []string{string(key)}
	if v := r.URL.Query().Get("recency_days"); v != "" {
		days, perr := strconv.Atoi(v)
		if perr != nil || days < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("recency_days must be a non-negative integer, got %q", v))
			return
		}
		opts.RecencyDays = days
	}

	out, err := h.pipeline.RunWith(r.Context(), h.source, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	segs, ok := out.Result.Segment(key)
	if !ok {
		msg := out.Result.SegmentErrors[string(key)]
		writeError(w, http.StatusUnprocessableEntity, "segment_unavailable", msg)
		return
	}
	writeSuccess(w, http.StatusOK, "", segmentResponse{
		RunID:    out.Result.RunID,
		Key:      key,
		Segments: segs,
		Steps:    funnel.StepMatrix(segs),
	})
}

func (h *Handler) curve(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.Run(r.Context(), h.source)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", curveResponse{RunID: out.Result.RunID, Points: out.Result.Curve})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.Run(r.Context(), h.source)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.Write(&buf, out.Deck()); err != nil {
		h.fail(w, r, fmt.Errorf("render report: %w", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reportFileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("code", code).Msg("dashboard request failed")
	} else {
		logger.Warn().Err(err).Str("code", code).Msg("dashboard request rejected")
	}
	writeError(w, status, code, err.Error())
}
