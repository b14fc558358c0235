package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tnpilot/tnpilot/internal/domain"
	"github.com/tnpilot/tnpilot/internal/session"
	apiTypes "github.com/tnpilot/tnpilot/pkg/api"
)

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	var req apiTypes.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Host == "" {
		writeError(w, http.StatusBadRequest, "host is required", "")
		return
	}
	if req.Port == 0 {
		req.Port = 23
	}
	useTLS := true
	if req.UseTLS != nil {
		useTLS = *req.UseTLS
	}

	sess, err := h.registry.Create(r.Context(), req.Host, req.Port, useTLS)
	if err != nil {
		writeError(w, http.StatusBadGateway, "connection failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiTypes.ConnectResponse{
		SessionID: sess.ID,
		Host:      sess.Host,
		Port:      sess.Port,
		Status:    sess.Status().String(),
	})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Destroy(id); err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			writeError(w, http.StatusConflict, "session has a running script", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to disconnect", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.StatusResponse{Status: "disconnected"})
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	active := h.registry.ListActive()
	sessions := make([]apiTypes.SessionSummary, 0, len(active))
	for _, s := range active {
		sessions = append(sessions, apiTypes.SessionSummary{
			SessionID:    s.SessionID,
			Host:         s.Host,
			Port:         s.Port,
			UseTLS:       s.UseTLS,
			Status:       s.Status,
			LastActivity: s.LastActivity,
			Observers:    s.Observers,
		})
	}
	writeJSON(w, http.StatusOK, apiTypes.SessionListResponse{Sessions: sessions})
}

func (h *Handler) getScreen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}
	writeJSON(w, http.StatusOK, screenData(id, sess))
}

func (h *Handler) sendInput(w http.ResponseWriter, r *http.Request) {
	var req apiTypes.InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	sess, err := h.registry.Get(req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}

	if err := applyInput(sess, req.Text, req.Key, req.Row, req.Col); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, domain.ErrProtocol) {
			code = http.StatusBadRequest
		}
		writeError(w, code, "input failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.StatusResponse{Status: "success"})
}

// applyInput routes one interactive input into a session: optional cursor
// move first, then text, then key. Used by both the REST input endpoint and
// the stream's input command. Each call serializes through the session's
// write lock, so interactive input orders cleanly with scripted steps.
func applyInput(sess *session.Session, text, key string, row, col *int) error {
	if row != nil && col != nil {
		if err := sess.MoveCursor(*row, *col); err != nil {
			return err
		}
	}
	if text != "" {
		scr := sess.CurrentScreen()
		if err := sess.SendText(scr.CursorRow, scr.CursorCol, text); err != nil {
			return err
		}
	}
	if key != "" {
		if err := sess.SendKey(key); err != nil {
			return err
		}
	}
	return nil
}
