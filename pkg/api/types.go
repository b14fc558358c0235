// Package api defines the JSON wire types of the tnpilot HTTP and
// WebSocket surfaces.
package api

import "time"

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type ConnectRequest struct {
	Host   string `json:"host"`
	Port   int    `json:"port,omitempty"`
	UseTLS *bool  `json:"use_tls,omitempty"` // defaults to true
}

type ConnectResponse struct {
	SessionID string `json:"session_id"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Status    string `json:"status"`
}

type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	UseTLS       bool      `json:"use_tls"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"last_activity"`
	Observers    int       `json:"observers"`
}

type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// InputRequest sends interactive input to a session. When row and col are
// both present the cursor is moved first; then text, then key.
type InputRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`
	Key       string `json:"key,omitempty"`
	Row       *int   `json:"row,omitempty"`
	Col       *int   `json:"col,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// ScreenData is the rendered screen sent over REST and the stream.
type ScreenData struct {
	SessionID string `json:"session_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	CursorRow int    `json:"cursor_row"`
	CursorCol int    `json:"cursor_col"`
	Text      string `json:"text"`
	Version   int64  `json:"version"`
}

type ScriptSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Host        string `json:"host"`
	StepsCount  int    `json:"steps_count"`
}

type ScriptListResponse struct {
	Scripts []ScriptSummary `json:"scripts"`
}

type ScriptStatusResponse struct {
	Status   string `json:"status"`
	ScriptID string `json:"script_id"`
}

type LogEntry struct {
	StepID     string    `json:"step_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Screenshot string    `json:"screenshot,omitempty"`
}

type ExecuteResponse struct {
	Status    string     `json:"status"`
	SessionID string     `json:"session_id"`
	Logs      []LogEntry `json:"logs"`
}

// StreamMessage is a server-to-client stream frame. Type is "screen_update"
// or "error".
type StreamMessage struct {
	Type    string      `json:"type"`
	Data    *ScreenData `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// StreamCommand is a client-to-server stream frame. Command is "input" or
// "disconnect".
type StreamCommand struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
	Key     string `json:"key,omitempty"`
	Row     *int   `json:"row,omitempty"`
	Col     *int   `json:"col,omitempty"`
}
