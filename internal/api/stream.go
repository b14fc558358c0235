package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tnpilot/tnpilot/internal/session"
	"github.com/tnpilot/tnpilot/internal/terminal"
	apiTypes "github.com/tnpilot/tnpilot/pkg/api"
)

// terminalStream is the per-session screen stream. The server pushes a
// screen_update frame for every published version (coalesced for slow
// clients by the session broadcaster) and accepts input commands from the
// client. Closing the stream removes the observer and nothing else.
func (h *Handler) terminalStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	sess, err := h.registry.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, cancel := sess.Subscribe()
	h.metrics.Observers.Inc()
	defer h.metrics.Observers.Dec()

	// Deliver the current screen immediately so a new observer does not
	// wait for the next host change.
	if err := writeScreenUpdate(conn, sessionID, sess.CurrentScreen()); err != nil {
		cancel()
		return
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for scr := range updates {
			if err := writeScreenUpdate(conn, sessionID, scr); err != nil {
				return
			}
			h.metrics.ScreenUpdates.Inc()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if len(data) == 0 {
			continue
		}
		if done := h.handleStreamCommand(conn, sess, data); done {
			break
		}
	}

	cancel()
	<-writeDone
	h.logger.Debug("stream observer left", "session_id", sessionID)
}

// handleStreamCommand processes one inbound frame. Returns true when the
// client asked to close the stream.
func (h *Handler) handleStreamCommand(conn *websocket.Conn, sess *session.Session, data []byte) bool {
	var cmd apiTypes.StreamCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		_ = writeStreamError(conn, "invalid message")
		return false
	}

	switch cmd.Command {
	case "input":
		if err := applyInput(sess, cmd.Text, cmd.Key, cmd.Row, cmd.Col); err != nil {
			_ = writeStreamError(conn, err.Error())
		}
		return false
	case "disconnect":
		return true
	default:
		_ = writeStreamError(conn, "unknown command")
		return false
	}
}

func writeScreenUpdate(conn *websocket.Conn, sessionID string, scr terminal.Screen) error {
	return conn.WriteJSON(apiTypes.StreamMessage{
		Type: "screen_update",
		Data: &apiTypes.ScreenData{
			SessionID: sessionID,
			Rows:      scr.Rows,
			Cols:      scr.Cols,
			CursorRow: scr.CursorRow,
			CursorCol: scr.CursorCol,
			Text:      scr.Text(),
			Version:   scr.Version,
		},
	})
}

func writeStreamError(conn *websocket.Conn, message string) error {
	return conn.WriteJSON(apiTypes.StreamMessage{Type: "error", Message: message})
}
