package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tnpilot/tnpilot/internal/domain"
	"github.com/tnpilot/tnpilot/internal/storage"
	apiTypes "github.com/tnpilot/tnpilot/pkg/api"
)

func (h *Handler) listScripts(w http.ResponseWriter, _ *http.Request) {
	summaries, err := h.scripts.List()
	if err != nil {
		var listErr *storage.ListError
		if !errors.As(err, &listErr) {
			writeError(w, http.StatusInternalServerError, "failed to list scripts", err.Error())
			return
		}
		h.logger.Warn("skipped unreadable scripts", "count", len(listErr.Errors))
	}

	scripts := make([]apiTypes.ScriptSummary, 0, len(summaries))
	for _, s := range summaries {
		scripts = append(scripts, apiTypes.ScriptSummary{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Host:        s.Host,
			StepsCount:  s.StepsCount,
		})
	}
	writeJSON(w, http.StatusOK, apiTypes.ScriptListResponse{Scripts: scripts})
}

func (h *Handler) getScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	script, err := h.scripts.Load(id)
	if err != nil {
		if errors.Is(err, storage.ErrScriptNotFound) {
			writeError(w, http.StatusNotFound, "script not found", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load script", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (h *Handler) createScript(w http.ResponseWriter, r *http.Request) {
	script, ok := decodeScript(w, r)
	if !ok {
		return
	}
	if h.scripts.Exists(script.ID) {
		writeError(w, http.StatusBadRequest, "script already exists", "")
		return
	}
	script.CreatedAt = nowUTC()
	script.UpdatedAt = script.CreatedAt
	if err := h.scripts.Save(script); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create script", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.ScriptStatusResponse{Status: "created", ScriptID: script.ID})
}

func (h *Handler) updateScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.scripts.Exists(id) {
		writeError(w, http.StatusNotFound, "script not found", "")
		return
	}
	script, ok := decodeScript(w, r)
	if !ok {
		return
	}
	script.ID = id
	script.UpdatedAt = nowUTC()
	if err := h.scripts.Save(script); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update script", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.ScriptStatusResponse{Status: "updated", ScriptID: id})
}

func (h *Handler) deleteScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.scripts.Delete(id); err != nil {
		if errors.Is(err, storage.ErrScriptNotFound) {
			writeError(w, http.StatusNotFound, "script not found", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete script", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.StatusResponse{Status: "deleted"})
}

func (h *Handler) executeScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	script, err := h.scripts.Load(id)
	if err != nil {
		if errors.Is(err, storage.ErrScriptNotFound) {
			writeError(w, http.StatusNotFound, "script not found", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load script", err.Error())
		return
	}

	log, err := h.runner.Run(r.Context(), script)
	if err != nil {
		if errors.Is(err, domain.ErrConnection) {
			writeError(w, http.StatusBadGateway, "connection failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "execution failed", err.Error())
		return
	}

	logs := make([]apiTypes.LogEntry, 0, len(log.Entries))
	for _, e := range log.Entries {
		logs = append(logs, apiTypes.LogEntry{
			StepID:     e.StepID,
			Status:     string(e.Status),
			Message:    e.Message,
			Timestamp:  e.Timestamp,
			ElapsedMS:  e.ElapsedMS,
			Screenshot: e.Screenshot,
		})
	}
	writeJSON(w, http.StatusOK, apiTypes.ExecuteResponse{
		Status:    string(log.Status),
		SessionID: log.SessionID,
		Logs:      logs,
	})
}

func decodeScript(w http.ResponseWriter, r *http.Request) (*domain.Script, bool) {
	var script domain.Script
	if err := json.NewDecoder(r.Body).Decode(&script); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return nil, false
	}
	script.Normalize()
	if err := script.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid script", err.Error())
		return nil, false
	}
	return &script, true
}
