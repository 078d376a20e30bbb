// Package shutdown runs registered cleanup steps when the process is asked to stop.
//
// Steps run one at a time in reverse registration order, so a process that
// registers its stores first and its intake (HTTP server, sweeper, consumers)
// last stops taking work before the stores go away.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chatreel/internal/pkg/logger"
)

// Manager handles graceful shutdown of a process.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	mu       sync.Mutex
	handlers []Handler
	once     sync.Once
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// Handler is one named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a manager whose steps share one deadline of timeout.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a cleanup step.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
}

// RegisterSimple adds a cleanup step that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Context is canceled as soon as shutdown begins. Long-running loops select on it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Done is closed once every step has returned or the deadline passed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until SIGINT/SIGTERM or until parent is canceled, then shuts down.
func (m *Manager) Wait(parent context.Context) {
	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		m.log.Info("shutdown requested", "cause", context.Cause(sigCtx).Error())
	case <-m.ctx.Done():
	}

	m.Shutdown()
}

// Shutdown cancels Context and runs every step once. Safe to call repeatedly.
func (m *Manager) Shutdown() {
	m.once.Do(m.run)
	<-m.done
}

func (m *Manager) run() {
	defer close(m.done)
	m.cancel()

	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "steps", len(handlers), "timeout", m.timeout.String())

	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			m.log.Warn("shutdown deadline exceeded, skipping step", "name", h.Name)
			continue
		}
		start := time.Now()
		if err := h.Cleanup(ctx); err != nil {
			m.log.Error("shutdown step failed",
				"name", h.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			continue
		}
		m.log.Debug("shutdown step completed", "name", h.Name, "duration_ms", time.Since(start).Milliseconds())
	}

	m.log.Info("graceful shutdown completed")
}

// Exit runs Shutdown and then exits with code. Used on fatal startup errors
// after some resources were already opened.
func (m *Manager) Exit(code int) {
	m.Shutdown()
	os.Exit(code)
}
