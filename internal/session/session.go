package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tnpilot/tnpilot/internal/domain"
	"github.com/tnpilot/tnpilot/internal/terminal"
)

type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Config struct {
	ID     string
	Host   string
	Port   int
	UseTLS bool
	Link   terminal.Link

	// RefreshInterval is how often the session polls the link for
	// host-originated screen changes. Zero disables the poller; callers
	// then drive updates through Refresh.
	RefreshInterval time.Duration
}

// Session owns one terminal link and its current screen. All mutations
// (scripted steps, interactive keystrokes, connect/disconnect) serialize
// through the session's write lock; at most one is in flight at a time.
// CurrentScreen never takes that lock — it reads the latest published
// snapshot, which is immutable.
type Session struct {
	ID     string
	Host   string
	Port   int
	UseTLS bool

	link            terminal.Link
	refreshInterval time.Duration

	mu          sync.Mutex // single-writer lock: link access + publication
	version     int64
	refreshDone chan struct{}

	status       atomic.Int32
	lastActivity atomic.Int64
	published    atomic.Pointer[terminal.Screen]
	broadcaster  *Broadcaster
}

func New(cfg Config) *Session {
	s := &Session{
		ID:              cfg.ID,
		Host:            cfg.Host,
		Port:            cfg.Port,
		UseTLS:          cfg.UseTLS,
		link:            cfg.Link,
		refreshInterval: cfg.RefreshInterval,
		broadcaster:     NewBroadcaster(),
	}
	s.status.Store(int32(StatusDisconnected))
	s.Touch()
	return s
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Touch records activity, postponing idle reaping.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Connect establishes the link. No-op when already connected. On failure the
// session is marked failed and the error wraps domain.ErrConnection.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() == StatusConnected {
		return nil
	}
	s.status.Store(int32(StatusConnecting))
	if err := s.link.Connect(ctx); err != nil {
		s.status.Store(int32(StatusFailed))
		return fmt.Errorf("%w: %s:%d: %v", domain.ErrConnection, s.Host, s.Port, err)
	}
	s.status.Store(int32(StatusConnected))
	s.refreshLocked(true)
	s.startRefreshLocked()
	s.Touch()
	return nil
}

// Disconnect releases the link and marks the session disconnected. It is
// idempotent and never fails; link teardown errors are discarded.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() == StatusDisconnected {
		return
	}
	s.stopRefreshLocked()
	_ = s.link.Disconnect()
	s.status.Store(int32(StatusDisconnected))
	s.Touch()
}

// Close disconnects and shuts down the observer broadcaster. Called only by
// the registry when the session is destroyed.
func (s *Session) Close() {
	s.Disconnect()
	s.broadcaster.Close()
}

// SendText types text at (row, col).
func (s *Session) SendText(row, col int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkConnectedLocked(); err != nil {
		return err
	}
	if err := s.checkBoundsLocked(row, col); err != nil {
		return err
	}
	if err := s.link.WriteText(row, col, text); err != nil {
		return fmt.Errorf("%w: write at (%d,%d): %v", domain.ErrProtocol, row, col, err)
	}
	s.refreshLocked(true)
	s.Touch()
	return nil
}

// SendKey sends one attention key from the closed key set.
func (s *Session) SendKey(key string) error {
	canonical, err := terminal.NormalizeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkConnectedLocked(); err != nil {
		return err
	}
	if err := s.link.WriteKey(canonical); err != nil {
		return fmt.Errorf("%w: key %s: %v", domain.ErrProtocol, canonical, err)
	}
	s.refreshLocked(true)
	s.Touch()
	return nil
}

// MoveCursor repositions the cursor.
func (s *Session) MoveCursor(row, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkConnectedLocked(); err != nil {
		return err
	}
	if err := s.checkBoundsLocked(row, col); err != nil {
		return err
	}
	if err := s.link.MoveCursor(row, col); err != nil {
		return fmt.Errorf("%w: move to (%d,%d): %v", domain.ErrProtocol, row, col, err)
	}
	s.refreshLocked(true)
	s.Touch()
	return nil
}

// CurrentScreen returns the latest published snapshot. It never blocks on
// the session write lock.
func (s *Session) CurrentScreen() terminal.Screen {
	if scr := s.published.Load(); scr != nil {
		return *scr
	}
	return terminal.Screen{}
}

// WaitForText polls the screen until text appears, the timeout elapses, or
// ctx is cancelled. The cancellation signal is checked every poll interval.
func (s *Session) WaitForText(ctx context.Context, text string, timeout, poll time.Duration) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		s.Refresh()
		if s.CurrentScreen().Contains(text) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: text %q did not appear within %s", domain.ErrTimeout, text, timeout)
		case <-ticker.C:
		}
	}
}

// Refresh pulls the current screen from the link and publishes it if the
// content changed since the last publication.
func (s *Session) Refresh() {
	s.mu.Lock()
	s.refreshLocked(false)
	s.mu.Unlock()
}

// Subscribe registers a screen observer. See Broadcaster.Subscribe.
func (s *Session) Subscribe() (<-chan terminal.Screen, func()) {
	return s.broadcaster.Subscribe()
}

// ObserverCount reports the number of live observers.
func (s *Session) ObserverCount() int {
	return s.broadcaster.Count()
}

// Version returns the version of the latest published screen.
func (s *Session) Version() int64 {
	return s.CurrentScreen().Version
}

func (s *Session) checkConnectedLocked() error {
	if s.Status() != StatusConnected {
		return fmt.Errorf("%w: session %s not connected", domain.ErrConnection, s.ID)
	}
	return nil
}

func (s *Session) checkBoundsLocked(row, col int) error {
	scr := s.CurrentScreen()
	if !scr.InBounds(row, col) {
		return fmt.Errorf("%w: position (%d,%d) outside %dx%d screen", domain.ErrProtocol, row, col, scr.Rows, scr.Cols)
	}
	return nil
}

// refreshLocked reads the link's screen and publishes it. When force is set
// the publication happens even if the content is unchanged, so that every
// mutation bumps the version.
func (s *Session) refreshLocked(force bool) {
	if !force && s.Status() != StatusConnected {
		return
	}
	scr, err := s.link.Screen()
	if err != nil {
		return
	}
	if !force {
		if cur := s.published.Load(); cur != nil && scr.SameContent(*cur) {
			return
		}
	}
	s.publishLocked(scr)
}

func (s *Session) publishLocked(scr terminal.Screen) {
	s.version++
	scr.Version = s.version
	snap := scr.Snapshot()
	s.published.Store(&snap)
	s.broadcaster.Publish(snap)
}

func (s *Session) startRefreshLocked() {
	if s.refreshInterval <= 0 || s.refreshDone != nil {
		return
	}
	done := make(chan struct{})
	s.refreshDone = done
	go func() {
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()
}

func (s *Session) stopRefreshLocked() {
	if s.refreshDone != nil {
		close(s.refreshDone)
		s.refreshDone = nil
	}
}
