package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tnpilot/tnpilot/internal/domain"
)

func intp(v int) *int { return &v }

func execStep(t *testing.T, e *Executor, link *fakeLink, step domain.Step) domain.ExecutionLogEntry {
	t.Helper()
	sess := newConnectedSession(t, link)
	return e.Execute(context.Background(), sess, step)
}

func TestExecuteSendText(t *testing.T) {
	link := newFakeLink()
	entry := execStep(t, NewExecutor(nil), link, domain.Step{
		ID: "s1", Action: domain.ActionSendText, Row: intp(4), Col: intp(10), Text: "LOGON",
	})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("status = %s: %s", entry.Status, entry.Message)
	}
	if scr, _ := link.Screen(); !scr.Contains("LOGON") {
		t.Fatal("text never reached the link")
	}
}

func TestExecuteSendKey(t *testing.T) {
	link := newFakeLink()
	entry := execStep(t, NewExecutor(nil), link, domain.Step{ID: "s1", Action: domain.ActionSendKey, Key: "pf3"})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("status = %s: %s", entry.Status, entry.Message)
	}
	if keys := link.sentKeys(); len(keys) != 1 || keys[0] != "PF3" {
		t.Fatalf("link received %v, want [PF3]", keys)
	}
}

func TestExecuteMoveCursor(t *testing.T) {
	link := newFakeLink()
	entry := execStep(t, NewExecutor(nil), link, domain.Step{ID: "s1", Action: domain.ActionMoveCursor, Row: intp(7), Col: intp(3)})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("status = %s: %s", entry.Status, entry.Message)
	}
	if scr, _ := link.Screen(); scr.CursorRow != 7 || scr.CursorCol != 3 {
		t.Fatalf("cursor at (%d,%d), want (7,3)", scr.CursorRow, scr.CursorCol)
	}
}

func TestExecuteWait(t *testing.T) {
	start := time.Now()
	entry := execStep(t, NewExecutor(nil), newFakeLink(), domain.Step{ID: "s1", Action: domain.ActionWait, Timeout: 0.1})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("status = %s: %s", entry.Status, entry.Message)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("wait returned after %s, want >= 100ms", elapsed)
	}
}

func TestExecuteWaitCancelled(t *testing.T) {
	link := newFakeLink()
	sess := newConnectedSession(t, link)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	entry := NewExecutor(nil).Execute(ctx, sess, domain.Step{ID: "s1", Action: domain.ActionWait, Timeout: 30})
	if entry.Status != domain.StepError {
		t.Fatal("cancelled wait should produce an error entry")
	}
	if entry.ElapsedMS > 5000 {
		t.Fatalf("cancelled wait ran for %dms", entry.ElapsedMS)
	}
}

func TestExecuteWaitForText(t *testing.T) {
	link := newFakeLink()
	// The host paints READY shortly after Enter, like a real logon flow.
	link.onKey = func(key string) {
		if key == "Enter" {
			go func() {
				time.Sleep(30 * time.Millisecond)
				link.setText(10, 0, "READY")
			}()
		}
	}
	sess := newConnectedSession(t, link)
	e := NewExecutor(nil)
	e.PollInterval = 10 * time.Millisecond

	if entry := e.Execute(context.Background(), sess, domain.Step{ID: "s1", Action: domain.ActionSendKey, Key: "enter"}); entry.Status != domain.StepSuccess {
		t.Fatalf("send_key: %s", entry.Message)
	}
	entry := e.Execute(context.Background(), sess, domain.Step{ID: "s2", Action: domain.ActionWaitForText, Text: "READY", Timeout: 2})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("wait_for_text: %s", entry.Message)
	}
}

func TestExecuteWaitForTextTimeout(t *testing.T) {
	sess := newConnectedSession(t, newFakeLink())
	e := NewExecutor(nil)
	e.PollInterval = 10 * time.Millisecond

	entry := e.Execute(context.Background(), sess, domain.Step{ID: "s1", Action: domain.ActionWaitForText, Text: "NEVER", Timeout: 0.1})
	if entry.Status != domain.StepError {
		t.Fatal("expected error entry on timeout")
	}
	if !strings.Contains(entry.Message, "NEVER") {
		t.Fatalf("message %q should name the missing text", entry.Message)
	}
}

func TestExecuteReadScreen(t *testing.T) {
	link := newFakeLink()
	link.setText(0, 0, "WELCOME TO TSO")
	entry := execStep(t, NewExecutor(nil), link, domain.Step{ID: "s1", Action: domain.ActionReadScreen})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("status = %s: %s", entry.Status, entry.Message)
	}
	if !strings.Contains(entry.Message, "WELCOME TO TSO") {
		t.Fatal("read_screen message missing screen content")
	}
}

func TestExecuteReadPosition(t *testing.T) {
	link := newFakeLink()
	sess := newConnectedSession(t, link)
	if err := sess.MoveCursor(5, 12); err != nil {
		t.Fatalf("MoveCursor: %v", err)
	}
	entry := NewExecutor(nil).Execute(context.Background(), sess, domain.Step{ID: "s1", Action: domain.ActionReadPosition})
	if entry.Message != "cursor at (5,12)" {
		t.Fatalf("message = %q", entry.Message)
	}
}

func TestExecuteAssertText(t *testing.T) {
	link := newFakeLink()
	link.setText(0, 0, "READY")
	e := NewExecutor(nil)

	entry := execStep(t, e, link, domain.Step{ID: "s1", Action: domain.ActionAssertText, Text: "READY"})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("assert on present text failed: %s", entry.Message)
	}

	entry = execStep(t, e, newFakeLink(), domain.Step{ID: "s2", Action: domain.ActionAssertText, Text: "MISSING"})
	if entry.Status != domain.StepError {
		t.Fatal("assert on absent text should fail")
	}
	if !strings.Contains(entry.Message, "MISSING") {
		t.Fatalf("message %q should name the asserted text", entry.Message)
	}
}

func TestExecuteScreenshot(t *testing.T) {
	link := newFakeLink()
	link.setText(3, 0, "SNAPSHOT ME")
	entry := execStep(t, NewExecutor(nil), link, domain.Step{ID: "s1", Action: domain.ActionScreenshot})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("status = %s: %s", entry.Status, entry.Message)
	}
	if !strings.Contains(entry.Screenshot, "SNAPSHOT ME") {
		t.Fatal("screenshot missing screen content")
	}
}

func TestExecuteDisconnect(t *testing.T) {
	link := newFakeLink()
	sess := newConnectedSession(t, link)
	entry := NewExecutor(nil).Execute(context.Background(), sess, domain.Step{ID: "s1", Action: domain.ActionDisconnect})
	if entry.Status != domain.StepSuccess {
		t.Fatalf("status = %s: %s", entry.Status, entry.Message)
	}
	if sess.Status().String() != "disconnected" {
		t.Fatalf("session status = %s", sess.Status())
	}
}
