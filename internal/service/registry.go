package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tnpilot/tnpilot/internal/domain"
	"github.com/tnpilot/tnpilot/internal/session"
	"github.com/tnpilot/tnpilot/internal/terminal"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRegistryClosed  = errors.New("registry is shutting down")
)

const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultRefreshInterval = time.Second
)

type sessionContext struct {
	sess    *session.Session
	running atomic.Int32 // script runs currently holding the session
}

type RegistryConfig struct {
	Dialer          terminal.Dialer
	ConnectTimeout  time.Duration
	RefreshInterval time.Duration
	IdleTimeout     time.Duration // zero disables reaping
	Logger          *slog.Logger
	Metrics         *Metrics
}

// Registry is the process-wide table of live terminal sessions. It is the
// only component that creates and destroys sessions; everything else borrows
// them by id. Safe for concurrent create/get/destroy/reap.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionContext

	dial            terminal.Dialer
	connectTimeout  time.Duration
	refreshInterval time.Duration
	idleTimeout     time.Duration
	logger          *slog.Logger
	metrics         *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SessionSummary is the listing shape for active sessions.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	UseTLS       bool      `json:"use_tls"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"last_activity"`
	Observers    int       `json:"observers"`
}

func NewRegistry(cfg RegistryConfig) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics()
	}

	r := &Registry{
		sessions:        make(map[string]*sessionContext),
		dial:            cfg.Dialer,
		connectTimeout:  cfg.ConnectTimeout,
		refreshInterval: cfg.RefreshInterval,
		idleTimeout:     cfg.IdleTimeout,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		ctx:             ctx,
		cancel:          cancel,
	}

	if r.idleTimeout > 0 {
		r.wg.Add(1)
		go r.reapLoop()
	}
	return r
}

// Create dials, connects and registers a new session. On connect failure
// nothing is registered and the error is surfaced to the caller.
func (r *Registry) Create(ctx context.Context, host string, port int, useTLS bool) (*session.Session, error) {
	select {
	case <-r.ctx.Done():
		return nil, ErrRegistryClosed
	default:
	}

	link, err := r.dial(host, port, useTLS)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", domain.ErrConnection, host, port, err)
	}

	sess := session.New(session.Config{
		ID:              uuid.NewString(),
		Host:            host,
		Port:            port,
		UseTLS:          useTLS,
		Link:            link,
		RefreshInterval: r.refreshInterval,
	})

	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()
	if err := sess.Connect(connectCtx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sess.ID] = &sessionContext{sess: sess}
	r.mu.Unlock()

	r.metrics.ActiveSessions.Inc()
	r.logger.Info("session connected", "session_id", sess.ID, "host", host, "port", port, "tls", useTLS)
	return sess, nil
}

func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	sc, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sc.sess, nil
}

// Destroy disconnects and removes a session. Removing an unknown id is a
// no-op; removing a session with a running script fails with ErrSessionBusy.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	sc, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if sc.running.Load() > 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: session %s has a running script", domain.ErrSessionBusy, id)
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	sc.sess.Close()
	r.metrics.ActiveSessions.Dec()
	r.logger.Info("session destroyed", "session_id", id)
	return nil
}

// ListActive returns summaries of all registered sessions.
func (r *Registry) ListActive() []SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionSummary, 0, len(r.sessions))
	for id, sc := range r.sessions {
		out = append(out, SessionSummary{
			SessionID:    id,
			Host:         sc.sess.Host,
			Port:         sc.sess.Port,
			UseTLS:       sc.sess.UseTLS,
			Status:       sc.sess.Status().String(),
			LastActivity: sc.sess.LastActivity(),
			Observers:    sc.sess.ObserverCount(),
		})
	}
	return out
}

// BeginRun marks the session busy so the reaper and Destroy leave it alone.
// The returned release func must be called when the run reaches a terminal
// state.
func (r *Registry) BeginRun(id string) (func(), error) {
	r.mu.RLock()
	sc, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sc.running.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { sc.running.Add(-1) })
	}, nil
}

// Shutdown stops the reaper and drains the registry, disconnecting every
// session. Waits for background work up to ctx's deadline.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()

	r.mu.Lock()
	contexts := make([]*sessionContext, 0, len(r.sessions))
	for id, sc := range r.sessions {
		contexts = append(contexts, sc)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sc := range contexts {
		sc.sess.Close()
		r.metrics.ActiveSessions.Dec()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) reapLoop() {
	defer r.wg.Done()

	interval := r.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

// reapIdle destroys sessions idle past the threshold. Sessions with a run in
// flight are skipped and reconsidered on the next sweep.
func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.RLock()
	var idle []string
	for id, sc := range r.sessions {
		if sc.running.Load() > 0 {
			continue
		}
		if sc.sess.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range idle {
		if err := r.Destroy(id); err != nil {
			// A run started between the sweep and the destroy; the
			// next sweep will retry.
			r.logger.Debug("reap deferred", "session_id", id, "reason", err)
			continue
		}
		r.logger.Info("session reaped", "session_id", id)
	}
}
