package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tnpilot/tnpilot/internal/domain"
	"github.com/tnpilot/tnpilot/internal/session"
)

const (
	DefaultPollInterval    = 250 * time.Millisecond
	DefaultWaitDuration    = time.Second
	DefaultWaitTextTimeout = 10 * time.Second
)

// Executor interprets one automation step against a session. It is
// stateless; per-run state (ordering, fail-fast, cancellation) lives in the
// Runner.
type Executor struct {
	PollInterval time.Duration
	Metrics      *Metrics
}

func NewExecutor(metrics *Metrics) *Executor {
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Executor{PollInterval: DefaultPollInterval, Metrics: metrics}
}

// Execute runs a single step and returns its log entry. Step failures are
// captured in the entry, never returned: a run's outcome is always a log.
func (e *Executor) Execute(ctx context.Context, sess *session.Session, step domain.Step) domain.ExecutionLogEntry {
	start := time.Now()
	entry := domain.ExecutionLogEntry{
		StepID:    step.ID,
		Status:    domain.StepSuccess,
		Timestamp: start,
	}

	err := e.dispatch(ctx, sess, step, &entry)
	if err != nil {
		entry.Status = domain.StepError
		entry.Message = err.Error()
	}

	entry.ElapsedMS = time.Since(start).Milliseconds()
	e.Metrics.StepsTotal.WithLabelValues(string(step.Action), string(entry.Status)).Inc()
	return entry
}

func (e *Executor) dispatch(ctx context.Context, sess *session.Session, step domain.Step, entry *domain.ExecutionLogEntry) error {
	switch step.Action {
	case domain.ActionConnect:
		if err := sess.Connect(ctx); err != nil {
			return err
		}
		entry.Message = fmt.Sprintf("connected to %s:%d", sess.Host, sess.Port)

	case domain.ActionSendText:
		if err := sess.SendText(*step.Row, *step.Col, step.Text); err != nil {
			return err
		}
		entry.Message = fmt.Sprintf("sent text at (%d,%d)", *step.Row, *step.Col)

	case domain.ActionSendKey:
		if err := sess.SendKey(step.Key); err != nil {
			return err
		}
		entry.Message = fmt.Sprintf("sent key %s", step.Key)

	case domain.ActionMoveCursor:
		if err := sess.MoveCursor(*step.Row, *step.Col); err != nil {
			return err
		}
		entry.Message = fmt.Sprintf("cursor moved to (%d,%d)", *step.Row, *step.Col)

	case domain.ActionWait:
		d := step.TimeoutDuration(DefaultWaitDuration)
		if err := sleep(ctx, d); err != nil {
			return err
		}
		entry.Message = fmt.Sprintf("waited %s", d)

	case domain.ActionWaitForText:
		timeout := step.TimeoutDuration(DefaultWaitTextTimeout)
		if err := sess.WaitForText(ctx, step.Text, timeout, e.PollInterval); err != nil {
			return err
		}
		entry.Message = fmt.Sprintf("found text %q", step.Text)

	case domain.ActionReadScreen:
		entry.Message = sess.CurrentScreen().Text()

	case domain.ActionReadPosition:
		scr := sess.CurrentScreen()
		entry.Message = fmt.Sprintf("cursor at (%d,%d)", scr.CursorRow, scr.CursorCol)

	case domain.ActionAssertText:
		if !sess.CurrentScreen().Contains(step.Text) {
			return fmt.Errorf("%w: %q not found on screen", domain.ErrAssertion, step.Text)
		}
		entry.Message = fmt.Sprintf("asserted text %q", step.Text)

	case domain.ActionScreenshot:
		scr := sess.CurrentScreen()
		entry.Screenshot = scr.Text()
		entry.Message = fmt.Sprintf("captured screen version %d", scr.Version)

	case domain.ActionDisconnect:
		sess.Disconnect()
		entry.Message = "disconnected"

	default:
		// Unreachable for validated scripts.
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidStep, step.Action)
	}
	return nil
}

// sleep is a pure timed suspension that aborts on ctx cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
