package api

import (
	"net/http"
	"strconv"

	service "github.com/okian/drivescore/internal/app"
)

// EvaluationHandler serves behavior analysis, evaluations and the live check.
type EvaluationHandler struct {
	deps         EvaluationDependencies
	maxBodyBytes int64
}

// NewEvaluationHandler creates a new evaluation handler.
func NewEvaluationHandler(deps EvaluationDependencies, maxBodyBytes int64) *EvaluationHandler {
	return &EvaluationHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

type ackResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// HandleBehavior handles GET /sessions/{id}/behavior requests.
func (h *EvaluationHandler) HandleBehavior(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.behavior")
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := h.deps.AnalyzeBehavior(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: m})
}

// HandleGet handles GET /sessions/{id}/evaluation requests.
func (h *EvaluationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.get_evaluation")
	if err != nil {
		writeError(w, err)
		return
	}
	ev, err := h.deps.GetEvaluation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: ev})
}

// HandleReevaluate handles POST /sessions/{id}/evaluation. With ?async=true
// the session is queued and 202 is returned.
func (h *EvaluationHandler) HandleReevaluate(w http.ResponseWriter, r *http.Request) {
	const op = "api.reevaluate"
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	async := false
	if raw := r.URL.Query().Get("async"); raw != "" {
		if async, err = strconv.ParseBool(raw); err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	if async {
		if err := h.deps.ReevaluateAsync(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "queued", SessionID: id})
		return
	}
	ev, err := h.deps.Reevaluate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: ev})
}

// HandleLiveCheck handles POST /live-check requests.
func (h *EvaluationHandler) HandleLiveCheck(w http.ResponseWriter, r *http.Request) {
	const op = "api.live_check"
	var req service.LiveCheckRequest
	if err := decodeBody(w, r, h.maxBodyBytes, op, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.LiveCheck(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: res})
}
