package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// State is the helper lifecycle as observed by the Manager.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateHealthy
	StateUnresponsive
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

// Defaults for Options.
const (
	DefaultHealthInterval = 100 * time.Millisecond
	DefaultHealthAttempts = 50
	DefaultShutdownGrace  = 100 * time.Millisecond
	DefaultDialTimeout    = 2 * time.Second
	DefaultExecutable     = "dbgrid-bridge"
)

// Options configures a Manager.
type Options struct {
	Executable     string
	Args           []string
	PipePath       string
	HealthInterval time.Duration
	HealthAttempts int
	ShutdownGrace  time.Duration
	DialTimeout    time.Duration
	Spawner        Spawner
	Logger         *logger.Logger
}

// DefaultPipePath returns a per-process socket path in the temp directory.
func DefaultPipePath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("dbgrid-ignite-%s.sock", uuid.New().String()))
}

func (o Options) withDefaults() Options {
	if o.Executable == "" {
		o.Executable = DefaultExecutable
	}
	if o.PipePath == "" {
		o.PipePath = DefaultPipePath()
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = DefaultHealthInterval
	}
	if o.HealthAttempts <= 0 {
		o.HealthAttempts = DefaultHealthAttempts
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = DefaultShutdownGrace
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Spawner == nil {
		o.Spawner = ExecSpawner(o.Executable, o.Args, o.Logger)
	}
	return o
}

// Manager owns the helper process and speaks the framed protocol to it. It
// is shared by every bridge-backed connection and safe for concurrent use.
type Manager struct {
	opts Options

	state   atomic.Int32
	started atomic.Bool
	group   singleflight.Group

	mu      sync.Mutex
	process Process
}

// NewManager creates a manager. The helper is not started until first use.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts.withDefaults()}
}

// PipePath returns the socket path the helper listens on.
func (m *Manager) PipePath() string {
	return m.opts.PipePath
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// EnsureRunning probes the helper and restarts it when it does not answer.
// Concurrent callers share a single restart.
func (m *Manager) EnsureRunning(ctx context.Context) error {
	if m.probe(ctx) == nil {
		m.setState(StateHealthy)
		return nil
	}

	ch := m.group.DoChan("start", func() (interface{}, error) {
		return nil, m.restart(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (m *Manager) restart(ctx context.Context) error {
	// A restart that finished just before this one may have fixed things.
	if m.probe(ctx) == nil {
		m.setState(StateHealthy)
		return nil
	}

	m.setState(StateUnresponsive)
	m.logInfo("Bridge not responding, restarting...")
	m.started.Store(false)

	if err := m.spawn(ctx); err != nil {
		return err
	}

	var lastErr error
	ticker := time.NewTicker(m.opts.HealthInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < m.opts.HealthAttempts; attempt++ {
		<-ticker.C
		if lastErr = m.probe(ctx); lastErr == nil {
			m.setState(StateHealthy)
			m.logInfo("Bridge restarted successfully")
			return nil
		}
	}

	m.setState(StateUnresponsive)
	return &adapter.BridgeTimeoutError{
		Attempts: m.opts.HealthAttempts,
		Interval: m.opts.HealthInterval,
		Cause:    lastErr,
	}
}

func (m *Manager) spawn(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}
	m.setState(StateStarting)

	proc, err := m.opts.Spawner(ctx, m.opts.PipePath)
	if err != nil {
		m.started.Store(false)
		m.setState(StateUnresponsive)
		return fmt.Errorf("failed to start Ignite bridge: %w", err)
	}

	m.mu.Lock()
	old := m.process
	m.process = proc
	m.mu.Unlock()

	if old != nil && !old.Exited() {
		if err := old.Kill(); err != nil {
			m.logWarn("Failed to kill previous bridge process: %v", err)
		}
	}
	return nil
}

// probe sends a health request and reports why it failed, if it did.
func (m *Manager) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	resp, err := m.roundTrip(probeCtx, Request{Action: ActionHealth})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("bridge reported unhealthy: %s", resp.Message)
	}
	return nil
}

// Health asks a running helper for its status without starting one.
func (m *Manager) Health(ctx context.Context) (*Response, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	resp, err := m.roundTrip(probeCtx, Request{Action: ActionHealth})
	if err != nil {
		return nil, err
	}
	if resp.Success {
		m.setState(StateHealthy)
	}
	return resp, nil
}

// Send makes sure the helper is running and performs one request.
func (m *Manager) Send(ctx context.Context, req Request) (*Response, error) {
	if err := m.EnsureRunning(ctx); err != nil {
		return nil, err
	}
	return m.roundTrip(ctx, req)
}

// roundTrip writes one request frame and reads one response frame over a
// fresh connection.
func (m *Manager) roundTrip(ctx context.Context, req Request) (*Response, error) {
	dialer := net.Dialer{Timeout: m.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", m.opts.PipePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := WriteFrame(conn, req); err != nil {
		return nil, err
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("invalid response from bridge: %w", err)
	}
	return &resp, nil
}

// Shutdown asks the helper to exit, kills it after the grace period if it is
// still running, and removes the socket file.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	proc := m.process
	m.process = nil
	m.mu.Unlock()

	if m.started.Load() || m.State() == StateHealthy {
		sendCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
		if _, err := m.roundTrip(sendCtx, Request{Action: ActionShutdown}); err != nil {
			m.logWarn("Failed to send shutdown to bridge: %v", err)
		} else {
			m.logInfo("Sent shutdown command to bridge")
		}
		cancel()
	}

	if proc != nil {
		select {
		case <-ctx.Done():
		case <-time.After(m.opts.ShutdownGrace):
		}
		if !proc.Exited() {
			if err := proc.Kill(); err != nil {
				m.logWarn("Failed to kill bridge process: %v", err)
			} else {
				m.logInfo("Bridge process killed")
			}
		}
	}

	m.started.Store(false)
	m.setState(StateNotStarted)

	if err := os.Remove(m.opts.PipePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove bridge socket: %w", err)
	}
	m.logInfo("Bridge shutdown complete")
	return nil
}

func (m *Manager) logInfo(message string, args ...interface{}) {
	if m.opts.Logger != nil {
		m.opts.Logger.Info(message, args...)
	}
}

func (m *Manager) logWarn(message string, args ...interface{}) {
	if m.opts.Logger != nil {
		m.opts.Logger.Warn(message, args...)
	}
}
