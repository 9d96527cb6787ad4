package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/redbco/dbgrid/pkg/logger"
)

// Process is a running helper as seen by the Manager.
type Process interface {
	// Exited reports whether the process has terminated.
	Exited() bool
	// Kill terminates the process immediately.
	Kill() error
}

// Spawner starts the helper so that it listens on pipePath.
type Spawner func(ctx context.Context, pipePath string) (Process, error)

// PipeEnv is the environment variable carrying the socket path to the helper.
const PipeEnv = "DBGRID_BRIDGE_PIPE"

// ExecSpawner runs executable with args as the helper process.
func ExecSpawner(executable string, args []string, log *logger.Logger) Spawner {
	return func(ctx context.Context, pipePath string) (Process, error) {
		p := NewHelperProcess(executable, args, map[string]string{PipeEnv: pipePath}, log)
		if err := p.Start(ctx); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// HelperProcess supervises one helper executable. Its output is forwarded
// to the logger line by line.
type HelperProcess struct {
	executable  string
	args        []string
	environment map[string]string
	logger      *logger.Logger

	cmd     *exec.Cmd
	mu      sync.Mutex
	exited  bool
	exitErr error
	done    chan struct{}
}

// NewHelperProcess creates an unstarted process.
func NewHelperProcess(executable string, args []string, environment map[string]string, log *logger.Logger) *HelperProcess {
	return &HelperProcess{
		executable:  executable,
		args:        args,
		environment: environment,
		logger:      log,
		done:        make(chan struct{}),
	}
}

// Start launches the process. The process is killed when ctx is cancelled.
func (p *HelperProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && p.cmd.Process != nil {
		return fmt.Errorf("process already running")
	}

	p.cmd = exec.CommandContext(ctx, p.executable, p.args...)

	// Set environment
	p.cmd.Env = os.Environ()
	for k, v := range p.environment {
		p.cmd.Env = append(p.cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	// Set output
	p.cmd.Stdout = &lineWriter{emit: p.logLine}
	p.cmd.Stderr = &lineWriter{emit: p.logLine}

	// Start process
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	if p.logger != nil {
		p.logger.Info("Bridge helper started (pid %d)", p.cmd.Process.Pid)
	}

	// Monitor process in background
	go p.monitor()

	return nil
}

func (p *HelperProcess) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)

	if p.logger != nil {
		if err != nil {
			p.logger.Warn("Bridge helper exited: %v", err)
		} else {
			p.logger.Info("Bridge helper exited")
		}
	}
}

// Exited reports whether the process has terminated.
func (p *HelperProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// ExitErr returns the error Wait reported, if the process has exited.
func (p *HelperProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Done is closed once the process has exited.
func (p *HelperProcess) Done() <-chan struct{} {
	return p.done
}

// Kill terminates the process. Killing an exited process is a no-op.
func (p *HelperProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil || p.exited {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	return nil
}

func (p *HelperProcess) logLine(line string) {
	if p.logger != nil {
		p.logger.Info("[bridge] %s", line)
	}
}

// lineWriter splits a byte stream into lines.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf[:i], "\r"))
		w.buf = w.buf[i+1:]
		if line != "" {
			w.emit(line)
		}
	}
	return len(b), nil
}
