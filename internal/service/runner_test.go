package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tnpilot/tnpilot/internal/domain"
)

type memoryLogSink struct {
	mu   sync.Mutex
	logs []*domain.ExecutionLog
}

func (s *memoryLogSink) SaveRunLog(log *domain.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *memoryLogSink) saved() []*domain.ExecutionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.ExecutionLog(nil), s.logs...)
}

func newTestRunner(t *testing.T, dialer *fakeDialer, sink RunLogSink) *Runner {
	t.Helper()
	registry := newTestRegistry(t, dialer)
	executor := NewExecutor(nil)
	executor.PollInterval = 10 * time.Millisecond
	return NewRunner(registry, executor, sink, nil, nil)
}

func TestRunnerCompletesLogonFlow(t *testing.T) {
	link := newFakeLink()
	link.onKey = func(key string) {
		if key == "Enter" {
			go func() {
				time.Sleep(20 * time.Millisecond)
				link.setText(10, 0, "READY")
			}()
		}
	}
	dialer := &fakeDialer{links: []*fakeLink{link}}
	sink := &memoryLogSink{}
	runner := newTestRunner(t, dialer, sink)

	script := &domain.Script{
		ID:   "logon",
		Name: "Logon",
		Host: "mainframe.example",
		Port: 23,
		Steps: []domain.Step{
			{ID: "type", Action: domain.ActionSendText, Row: intp(4), Col: intp(10), Text: "LOGON TSOUSER"},
			{ID: "submit", Action: domain.ActionSendKey, Key: "enter"},
			{ID: "ready", Action: domain.ActionWaitForText, Text: "READY", Timeout: 2},
			{ID: "check", Action: domain.ActionAssertText, Text: "READY"},
		},
	}

	log, err := runner.Run(context.Background(), script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if log.Status != domain.RunCompleted {
		t.Fatalf("status = %s, entries: %+v", log.Status, log.Entries)
	}
	// Synthetic connect entry plus one per step.
	if len(log.Entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(log.Entries))
	}
	if log.Entries[0].StepID != "connect" {
		t.Fatalf("first entry = %q, want connect", log.Entries[0].StepID)
	}
	for _, e := range log.Entries {
		if e.Status != domain.StepSuccess {
			t.Errorf("entry %s failed: %s", e.StepID, e.Message)
		}
	}
	if saved := sink.saved(); len(saved) != 1 || saved[0].ScriptID != "logon" {
		t.Fatalf("log not persisted: %+v", saved)
	}
}

func TestRunnerFailFast(t *testing.T) {
	link := newFakeLink()
	dialer := &fakeDialer{links: []*fakeLink{link}}
	runner := newTestRunner(t, dialer, nil)

	script := &domain.Script{
		ID:   "failing",
		Name: "Failing",
		Host: "mainframe.example",
		Steps: []domain.Step{
			{ID: "a", Action: domain.ActionSendText, Row: intp(0), Col: intp(0), Text: "HELLO"},
			{ID: "b", Action: domain.ActionAssertText, Text: "NOT ON SCREEN"},
			{ID: "c", Action: domain.ActionSendKey, Key: "pf3"},
		},
	}

	log, err := runner.Run(context.Background(), script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if log.Status != domain.RunFailed {
		t.Fatalf("status = %s, want failed", log.Status)
	}
	if len(log.Entries) != 3 {
		t.Fatalf("got %d entries, want connect + a + b", len(log.Entries))
	}
	if log.Entries[2].StepID != "b" || log.Entries[2].Status != domain.StepError {
		t.Fatalf("last entry = %+v", log.Entries[2])
	}
	// Step c must never have reached the link.
	if keys := link.sentKeys(); len(keys) != 0 {
		t.Fatalf("steps after the failure ran: keys %v", keys)
	}
}

func TestRunnerCancelledDuringWait(t *testing.T) {
	dialer := &fakeDialer{}
	runner := newTestRunner(t, dialer, nil)

	script := &domain.Script{
		ID:   "stuck",
		Name: "Stuck",
		Host: "mainframe.example",
		Steps: []domain.Step{
			{ID: "wait", Action: domain.ActionWaitForText, Text: "NEVER", Timeout: 30},
			{ID: "after", Action: domain.ActionSendKey, Key: "enter"},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	log, err := runner.Run(ctx, script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancellation took %s to take effect", elapsed)
	}
	if log.Status != domain.RunCancelled {
		t.Fatalf("status = %s, want cancelled", log.Status)
	}
	if keys := dialer.lastLink().sentKeys(); len(keys) != 0 {
		t.Fatalf("steps after cancellation ran: keys %v", keys)
	}
}

func TestRunnerConnectFailure(t *testing.T) {
	link := newFakeLink()
	link.connectErr = errors.New("connection refused")
	dialer := &fakeDialer{links: []*fakeLink{link}}
	registry := newTestRegistry(t, dialer)
	runner := NewRunner(registry, NewExecutor(nil), nil, nil, nil)

	script := &domain.Script{
		ID:    "unreachable",
		Name:  "Unreachable",
		Host:  "down.example",
		Steps: []domain.Step{{ID: "s", Action: domain.ActionReadScreen}},
	}

	log, err := runner.Run(context.Background(), script)
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("Run = (%v, %v), want ErrConnection", log, err)
	}
	if len(registry.ListActive()) != 0 {
		t.Fatal("failed connect must not leave a registered session")
	}
}

func TestRunnerRejectsInvalidScript(t *testing.T) {
	runner := newTestRunner(t, &fakeDialer{}, nil)
	script := &domain.Script{ID: "bad", Name: "Bad", Host: "h", Steps: []domain.Step{{ID: "s", Action: "bogus"}}}
	if _, err := runner.Run(context.Background(), script); !errors.Is(err, domain.ErrInvalidStep) {
		t.Fatalf("Run = %v, want ErrInvalidStep", err)
	}
}

func TestRunnerSessionRemainsAfterRun(t *testing.T) {
	dialer := &fakeDialer{}
	registry := newTestRegistry(t, dialer)
	runner := NewRunner(registry, NewExecutor(nil), nil, nil, nil)

	script := &domain.Script{
		ID:    "keep",
		Name:  "Keep",
		Host:  "mainframe.example",
		Steps: []domain.Step{{ID: "s", Action: domain.ActionReadScreen}},
	}
	log, err := runner.Run(context.Background(), script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sess, err := registry.Get(log.SessionID)
	if err != nil {
		t.Fatalf("session gone after run: %v", err)
	}
	// The run released its hold, so the session can now be destroyed.
	if err := registry.Destroy(sess.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}
