package api

import (
	"net/http"

	service "github.com/okian/drivescore/internal/app"
)

// SessionsHandler serves the session lifecycle routes.
type SessionsHandler struct {
	deps         SessionDependencies
	maxBodyBytes int64
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, maxBodyBytes int64) *SessionsHandler {
	return &SessionsHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

type endRequest struct {
	Status string `json:"status"`
}

// endResponse carries the closed session. Warning is set when the session
// ended but could not be scored.
type endResponse struct {
	Data    service.EndResult `json:"data"`
	Warning string            `json:"warning,omitempty"`
}

// HandleCreate handles POST /sessions requests.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	var req service.CreateSessionRequest
	if err := decodeBody(w, r, h.maxBodyBytes, op, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.deps.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: sess})
}

// HandleGet handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.get_session")
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.deps.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: sess})
}

// HandleEnd handles POST /sessions/{id}/end requests. The body is optional
// and defaults to a completed session.
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_session"
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	var req endRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, h.maxBodyBytes, op, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	res, err := h.deps.EndSession(r.Context(), id, req.Status)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, endResponse{Data: res})
	case res.Session.ID != "":
		writeJSON(w, http.StatusOK, endResponse{Data: res, Warning: err.Error()})
	default:
		writeError(w, err)
	}
}

// HandleListUser handles GET /users/{id}/sessions?page=&limit= requests.
func (h *SessionsHandler) HandleListUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_user_sessions"
	userID, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := queryInt(r, "page", 1, op)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0, op)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.deps.ListUserSessions(r.Context(), userID, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: list, Count: len(list)})
}

// HandleUserStats handles GET /users/{id}/stats?days= requests.
func (h *SessionsHandler) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_stats"
	userID, err := pathID(r, op)
	if err != nil {
		writeError(w, err)
		return
	}
	days, err := queryInt(r, "days", 0, op)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.deps.UserStats(r.Context(), userID, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: stats})
}

// HandleActive handles GET /users/{id}/active-session requests.
func (h *SessionsHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "api.active_session")
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.deps.GetActiveSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: sess})
}
