package domain

import "time"

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepRunning StepStatus = "running"
)

// RunStatus is the terminal state of one script run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ExecutionLogEntry records one executed step. Entries are append-only; the
// ordered sequence across a run is the script's execution record.
type ExecutionLogEntry struct {
	StepID     string     `json:"step_id"`
	Status     StepStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	ElapsedMS  int64      `json:"elapsed_ms"`
	Screenshot string     `json:"screenshot,omitempty"`
}

// ExecutionLog is the full record of one run.
type ExecutionLog struct {
	ScriptID  string              `json:"script_id"`
	SessionID string              `json:"session_id"`
	Status    RunStatus           `json:"status"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   time.Time           `json:"ended_at"`
	Entries   []ExecutionLogEntry `json:"entries"`
}
