// Package shutdown runs registered cleanup hooks when the process is asked
// to stop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cardpress/internal/pkg/logger"
)

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager collects cleanup hooks. Hooks are started newest first, run
// concurrently and share one deadline.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []hook

	once sync.Once
	done chan struct{}
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{log: log, timeout: timeout, done: make(chan struct{})}
}

func (m *Manager) Register(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug("registered shutdown hook", "name", name)
}

func (m *Manager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Wait blocks until SIGINT or SIGTERM, or until ctx is done, then runs
// Shutdown.
func (m *Manager) Wait(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	if ctx.Err() != nil {
		m.log.Info("context canceled, shutting down")
	} else {
		m.log.Info("shutdown signal received")
	}
	m.Shutdown()
}

// Shutdown runs every hook once. Later calls are no-ops.
func (m *Manager) Shutdown() {
	m.once.Do(m.run)
}

func (m *Manager) run() {
	defer close(m.done)

	m.mu.Lock()
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	m.log.Info("graceful shutdown started", "hooks", len(hooks), "timeout", m.timeout.String())

	var wg sync.WaitGroup
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			if err := h.fn(ctx); err != nil {
				m.log.Error("shutdown hook failed", "name", h.name, "error", err.Error(),
					"duration_ms", time.Since(start).Milliseconds())
				return
			}
			m.log.Debug("shutdown hook done", "name", h.name, "duration_ms", time.Since(start).Milliseconds())
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		m.log.Info("graceful shutdown completed")
	case <-ctx.Done():
		m.log.Warn("shutdown timeout exceeded")
	}
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Context returns a context canceled when Shutdown finishes.
func (m *Manager) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-m.done
		cancel()
	}()
	return ctx
}
