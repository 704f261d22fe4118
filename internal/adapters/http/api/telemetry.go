package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/telemetry"
)

// TelemetryHandler serves ingestion and telemetry reads.
type TelemetryHandler struct {
	deps         TelemetryDependencies
	maxBodyBytes int64
}

// NewTelemetryHandler creates a new telemetry handler.
func NewTelemetryHandler(deps TelemetryDependencies, maxBodyBytes int64) *TelemetryHandler {
	return &TelemetryHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

type batchRequest struct {
	Data []telemetry.Raw `json:"data"`
}

// HandleIngest handles POST /sessions/{id}/telemetry with one raw sample as
// the body.
func (h *TelemetryHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest"
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	var raw telemetry.Raw
	if err := decodeBody(w, r, h.maxBodyBytes, op, &raw); err != nil {
		writeError(w, err)
		return
	}
	if raw == nil {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("sample must be an object")))
		return
	}
	res, err := h.deps.Ingest(r.Context(), id, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// HandleBatch handles POST /sessions/{id}/telemetry/batch with a body of
// the form {"data": [sample, ...]}.
func (h *TelemetryHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest_batch"
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	var req batchRequest
	if err := decodeBody(w, r, h.maxBodyBytes, op, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.IngestBatch(r.Context(), id, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleFlush handles POST /sessions/{id}/telemetry/flush requests.
func (h *TelemetryHandler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.flush")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Flush(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleList handles GET /sessions/{id}/telemetry?limit=&offset= requests.
func (h *TelemetryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_telemetry"
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0, op)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0, op)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.deps.ListTelemetry(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: rows, Count: len(rows)})
}

// HandleLatest handles GET /sessions/{id}/telemetry/latest?seconds=
// requests.
func (h *TelemetryHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.latest_telemetry"
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	seconds, err := queryInt(r, "seconds", 0, op)
	if err != nil {
		writeError(w, err)
		return
	}
	if seconds < 0 {
		writeError(w, WrapKind(op, model.ErrInvalidParameter, errors.New("seconds must not be negative")))
		return
	}
	rows, err := h.deps.LatestTelemetry(r.Context(), id, time.Duration(seconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: rows, Count: len(rows)})
}

// HandleStats handles GET /sessions/{id}/telemetry/stats requests.
func (h *TelemetryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.telemetry_stats")
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.deps.TelemetryStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: stats})
}
