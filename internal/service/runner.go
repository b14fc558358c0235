package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tnpilot/tnpilot/internal/domain"
)

// RunState is the script runner's state machine.
type RunState int

const (
	RunStateIdle RunState = iota
	RunStateRunning
	RunStateCompleted
	RunStateFailed
	RunStateCancelled
)

func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	case RunStateCompleted:
		return "completed"
	case RunStateFailed:
		return "failed"
	case RunStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RunLogSink persists finished execution logs. Persistence failures never
// fail the run.
type RunLogSink interface {
	SaveRunLog(log *domain.ExecutionLog) error
}

// Runner drives an ordered script through the executor: strictly sequential,
// fail-fast on the first error entry, cancelled at the next suspension point
// when ctx is done. The log up to the stopping point is always returned.
type Runner struct {
	registry *Registry
	executor *Executor
	logs     RunLogSink
	logger   *slog.Logger
	metrics  *Metrics
}

func NewRunner(registry *Registry, executor *Executor, logs RunLogSink, logger *slog.Logger, metrics *Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Runner{registry: registry, executor: executor, logs: logs, logger: logger, metrics: metrics}
}

// Run executes the script against a fresh session. Only session acquisition
// failure (cannot connect before the first step) returns an error; every
// other outcome is reported through the returned log.
func (r *Runner) Run(ctx context.Context, script *domain.Script) (*domain.ExecutionLog, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}

	sess, err := r.registry.Create(ctx, script.Host, script.Port, script.UseTLS)
	if err != nil {
		return nil, err
	}

	release, err := r.registry.BeginRun(sess.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	log := &domain.ExecutionLog{
		ScriptID:  script.ID,
		SessionID: sess.ID,
		StartedAt: time.Now(),
	}
	log.Entries = append(log.Entries, domain.ExecutionLogEntry{
		StepID:    "connect",
		Status:    domain.StepSuccess,
		Message:   fmt.Sprintf("connected to %s:%d", script.Host, script.Port),
		Timestamp: log.StartedAt,
	})

	state := RunStateRunning
	for _, step := range script.Steps {
		if ctx.Err() != nil {
			state = RunStateCancelled
			break
		}
		entry := r.executor.Execute(ctx, sess, step)
		log.Entries = append(log.Entries, entry)
		if entry.Status == domain.StepError {
			if errors.Is(ctx.Err(), context.Canceled) {
				state = RunStateCancelled
			} else {
				state = RunStateFailed
			}
			break
		}
	}
	if state == RunStateRunning {
		state = RunStateCompleted
	}

	switch state {
	case RunStateCompleted:
		log.Status = domain.RunCompleted
	case RunStateCancelled:
		log.Status = domain.RunCancelled
	default:
		log.Status = domain.RunFailed
	}
	log.EndedAt = time.Now()

	r.metrics.RunsTotal.WithLabelValues(string(log.Status)).Inc()
	r.logger.Info("script run finished",
		"script_id", script.ID, "session_id", sess.ID,
		"status", log.Status, "steps", len(log.Entries))

	if r.logs != nil {
		if err := r.logs.SaveRunLog(log); err != nil {
			r.logger.Warn("failed to persist run log", "script_id", script.ID, "error", err)
		}
	}
	return log, nil
}
