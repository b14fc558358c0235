package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tnpilot/tnpilot/internal/service"
	"github.com/tnpilot/tnpilot/internal/session"
	"github.com/tnpilot/tnpilot/internal/storage"
	apiTypes "github.com/tnpilot/tnpilot/pkg/api"
)

const (
	appName    = "tnpilot"
	appVersion = "0.1.0"
)

// Handler routes REST and WebSocket requests to the session registry,
// script runner and script storage.
type Handler struct {
	registry *service.Registry
	runner   *service.Runner
	scripts  *storage.ScriptStorage
	metrics  *service.Metrics
	logger   *slog.Logger
	promReg  *prometheus.Registry
}

func NewHandler(registry *service.Registry, runner *service.Runner, scripts *storage.ScriptStorage, metrics *service.Metrics, logger *slog.Logger, promReg *prometheus.Registry) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = service.NopMetrics()
	}
	return &Handler{
		registry: registry,
		runner:   runner,
		scripts:  scripts,
		metrics:  metrics,
		logger:   logger,
		promReg:  promReg,
	}
}

// Mount registers all routes on the provided router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.root)
	r.Get("/health", h.health)
	if h.promReg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.promReg, promhttp.HandlerOpts{}))
	}

	r.Post("/api/v1/connections/connect", h.connect)
	r.Post("/api/v1/connections/disconnect/{id}", h.disconnect)
	r.Get("/api/v1/connections/sessions", h.listSessions)
	r.Get("/api/v1/connections/screen/{id}", h.getScreen)
	r.Post("/api/v1/connections/input", h.sendInput)

	r.Get("/api/v1/automation/scripts", h.listScripts)
	r.Post("/api/v1/automation/scripts", h.createScript)
	r.Get("/api/v1/automation/scripts/{id}", h.getScript)
	r.Put("/api/v1/automation/scripts/{id}", h.updateScript)
	r.Delete("/api/v1/automation/scripts/{id}", h.deleteScript)
	r.Post("/api/v1/automation/execute/{id}", h.executeScript)

	r.Get("/api/v1/ws/terminal/{id}", h.terminalStream)
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    appName,
		"version": appVersion,
		"status":  "running",
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	resp := apiTypes.ErrorResponse{Error: message}
	if details != "" {
		resp.Details = details
	}
	writeJSON(w, code, resp)
}

func screenData(sessionID string, sess *session.Session) apiTypes.ScreenData {
	scr := sess.CurrentScreen()
	return apiTypes.ScreenData{
		SessionID: sessionID,
		Rows:      scr.Rows,
		Cols:      scr.Cols,
		CursorRow: scr.CursorRow,
		CursorCol: scr.CursorCol,
		Text:      scr.Text(),
		Version:   scr.Version,
	}
}
