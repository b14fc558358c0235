package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tnpilot/tnpilot/internal/session"
	"github.com/tnpilot/tnpilot/internal/terminal"
)

// fakeLink is a grid-backed in-memory terminal.Link for driving the
// executor and runner without a network.
type fakeLink struct {
	mu         sync.Mutex
	rows, cols int
	lines      []string
	cursorRow  int
	cursorCol  int
	connectErr error
	keys       []string
	onKey      func(key string)
}

func newFakeLink() *fakeLink {
	l := &fakeLink{rows: 24, cols: 80}
	l.lines = make([]string, l.rows)
	for i := range l.lines {
		l.lines[i] = strings.Repeat(" ", l.cols)
	}
	return l
}

func (l *fakeLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectErr
}

func (l *fakeLink) Disconnect() error { return nil }

func (l *fakeLink) WriteText(row, col int, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.placeLocked(row, col, text)
	l.cursorRow = row
	l.cursorCol = col + len(text)
	return nil
}

func (l *fakeLink) WriteKey(key string) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	hook := l.onKey
	l.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return nil
}

func (l *fakeLink) MoveCursor(row, col int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursorRow = row
	l.cursorCol = col
	return nil
}

func (l *fakeLink) Screen() (terminal.Screen, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	scr := terminal.Screen{
		Rows:      l.rows,
		Cols:      l.cols,
		CursorRow: l.cursorRow,
		CursorCol: l.cursorCol,
		Lines:     l.lines,
	}
	return scr.Snapshot(), nil
}

func (l *fakeLink) setText(row, col int, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.placeLocked(row, col, text)
}

func (l *fakeLink) sentKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func (l *fakeLink) placeLocked(row, col int, text string) {
	if row < 0 || row >= l.rows {
		return
	}
	line := []rune(l.lines[row])
	for i, r := range text {
		if col+i >= l.cols {
			break
		}
		line[col+i] = r
	}
	l.lines[row] = string(line)
}

// fakeDialer records the last dialed target and hands out links from a
// queue, defaulting to fresh blank links.
type fakeDialer struct {
	mu    sync.Mutex
	links []*fakeLink
	last  *fakeLink
}

func (d *fakeDialer) dial(host string, port int, useTLS bool) (terminal.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var link *fakeLink
	if len(d.links) > 0 {
		link = d.links[0]
		d.links = d.links[1:]
	} else {
		link = newFakeLink()
	}
	d.last = link
	return link, nil
}

func (d *fakeDialer) lastLink() *fakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func newTestRegistry(t *testing.T, dialer *fakeDialer) *Registry {
	t.Helper()
	r := NewRegistry(RegistryConfig{
		Dialer:          dialer.dial,
		ConnectTimeout:  2 * time.Second,
		RefreshInterval: 10 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func newConnectedSession(t *testing.T, link *fakeLink) *session.Session {
	t.Helper()
	sess := session.New(session.Config{ID: "exec-test", Host: "mainframe.example", Port: 23, Link: link})
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess
}
