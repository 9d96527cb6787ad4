package bridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dbgrid")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "b.sock")
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Request{Action: ActionScan, CacheName: "people", Limit: IntPtr(10)}))

	raw := buf.Bytes()
	size := binary.BigEndian.Uint32(raw[:4])
	assert.Equal(t, int(size), len(raw)-4)
	assert.JSONEq(t, `{"action":"scan","cacheName":"people","limit":10}`, string(raw[4:]))

	var req Request
	require.NoError(t, ReadFrame(&buf, &req))
	assert.Equal(t, "people", req.CacheName)
	require.NotNil(t, req.Limit)
	assert.Equal(t, 10, *req.Limit)
	assert.Nil(t, req.Offset)

	assert.ErrorIs(t, ReadFrame(&buf, &req), io.EOF)
}

func TestReadFrameErrors(t *testing.T) {
	header := func(n uint32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, n)
		return b
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{"short header", []byte{0, 0}},
		{"short body", append(header(10), []byte(`{"a"`)...)},
		{"oversized", header(MaxFrameSize + 1)},
		{"invalid json", append(header(5), []byte("nope!")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			err := ReadFrame(bytes.NewReader(tt.input), &resp)
			require.Error(t, err)
			assert.True(t, adapter.IsProtocolError(err))
		})
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	err := writeRaw(io.Discard, make([]byte, MaxFrameSize+1))
	assert.True(t, adapter.IsProtocolError(err))
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := &lineWriter{emit: func(s string) { lines = append(lines, s) }}

	_, err := w.Write([]byte("first\npart"))
	require.NoError(t, err)
	_, err = w.Write([]byte("ial\r\n\nlast"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "partial"}, lines)
}

type countingHandler struct {
	calls atomic.Int32
}

func (h *countingHandler) Handle(ctx context.Context, req Request) *Response {
	h.calls.Add(1)
	switch req.Action {
	case ActionQuery:
		affected := int64(1)
		return &Response{Success: true, Result: &Result{
			Columns:      []string{"q"},
			Rows:         []map[string]interface{}{{"q": req.Query}},
			RowsAffected: &affected,
		}}
	case ActionCaches:
		return &Response{Success: true, Caches: []NamedItem{{Name: "people"}}}
	default:
		return nil
	}
}

func (h *countingHandler) Connections() int { return 2 }

func startServer(t *testing.T, path string, handler Handler) *Server {
	t.Helper()
	server := &Server{Handler: handler, ShutdownDelay: 10 * time.Millisecond}
	require.NoError(t, server.Listen(path))
	go server.Serve(context.Background())
	t.Cleanup(func() { server.Close() })
	return server
}

type fakeProcess struct {
	killed atomic.Bool
}

func (p *fakeProcess) Exited() bool { return p.killed.Load() }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	return nil
}

func noSpawn(t *testing.T) Spawner {
	return func(ctx context.Context, pipePath string) (Process, error) {
		t.Errorf("unexpected spawn")
		return nil, errors.New("unexpected spawn")
	}
}

func TestServerEndToEnd(t *testing.T) {
	path := socketPath(t)
	handler := &countingHandler{}
	startServer(t, path, handler)

	m := NewManager(Options{PipePath: path, Spawner: noSpawn(t)})
	ctx := context.Background()

	resp, err := m.Send(ctx, Request{Action: ActionQuery, Query: "SELECT 1"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, []map[string]interface{}{{"q": "SELECT 1"}}, resp.Result.Rows)
	assert.Equal(t, StateHealthy, m.State())

	resp, err = m.Send(ctx, Request{Action: ActionHealth})
	require.NoError(t, err)
	require.NotNil(t, resp.Connections)
	assert.Equal(t, 2, *resp.Connections)

	resp, err = m.Send(ctx, Request{Action: "explode"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown action: explode", resp.Message)

	resp, err = m.Send(ctx, Request{Action: ActionSchema})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "No response for action: schema", resp.Message)

	assert.Equal(t, int32(2), handler.calls.Load())
}

func TestServerParseError(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, &countingHandler{})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, writeRaw(conn, []byte("{not json")))
	var resp Response
	require.NoError(t, ReadFrame(conn, &resp))
	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Message, "Parse error: "), resp.Message)

	// The connection stays usable after a bad frame.
	require.NoError(t, WriteFrame(conn, Request{Action: ActionCaches}))
	require.NoError(t, ReadFrame(conn, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []NamedItem{{Name: "people"}}, resp.Caches)
}

// flakyHelper answers health probes unsuccessfully a fixed number of times.
func flakyHelper(t *testing.T, path string, failures int32) *atomic.Int32 {
	t.Helper()
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	var probes atomic.Int32
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var req Request
				if err := ReadFrame(conn, &req); err != nil {
					return
				}
				n := probes.Add(1)
				WriteFrame(conn, Response{Success: n > failures})
			}()
		}
	}()
	return &probes
}

func TestEnsureRunningRecoversAfterFailedProbes(t *testing.T) {
	path := socketPath(t)
	probes := flakyHelper(t, path, 2)

	const (
		interval = 20 * time.Millisecond
		attempts = 10
	)
	var spawns atomic.Int32
	m := NewManager(Options{
		PipePath:       path,
		HealthInterval: interval,
		HealthAttempts: attempts,
		Spawner: func(ctx context.Context, pipePath string) (Process, error) {
			spawns.Add(1)
			assert.Equal(t, path, pipePath)
			return &fakeProcess{}, nil
		},
	})

	start := time.Now()
	require.NoError(t, m.EnsureRunning(context.Background()))
	assert.Less(t, time.Since(start), interval*attempts, "recovery must fit in the health retry budget")
	assert.Equal(t, int32(1), spawns.Load())
	assert.Equal(t, int32(3), probes.Load())
	assert.Equal(t, StateHealthy, m.State())
}

func TestEnsureRunningTimeout(t *testing.T) {
	path := socketPath(t)
	m := NewManager(Options{
		PipePath:       path,
		HealthInterval: 2 * time.Millisecond,
		HealthAttempts: 3,
		DialTimeout:    50 * time.Millisecond,
		Spawner: func(ctx context.Context, pipePath string) (Process, error) {
			return &fakeProcess{}, nil
		},
	})

	err := m.EnsureRunning(context.Background())
	require.Error(t, err)
	assert.True(t, adapter.IsBridgeTimeout(err))

	var timeout *adapter.BridgeTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, StateUnresponsive, m.State())

	_, err = m.Send(context.Background(), Request{Action: ActionCaches})
	assert.ErrorIs(t, err, adapter.ErrBridgeTimeout)
}

func TestEnsureRunningSpawnFailure(t *testing.T) {
	m := NewManager(Options{
		PipePath: socketPath(t),
		Spawner: func(ctx context.Context, pipePath string) (Process, error) {
			return nil, errors.New("no such file")
		},
	})

	err := m.EnsureRunning(context.Background())
	assert.ErrorContains(t, err, "failed to start Ignite bridge: no such file")
}

func TestConcurrentEnsureRunningSpawnsOnce(t *testing.T) {
	path := socketPath(t)

	var spawns atomic.Int32
	m := NewManager(Options{
		PipePath:       path,
		HealthInterval: 5 * time.Millisecond,
		HealthAttempts: 50,
		Spawner: func(ctx context.Context, pipePath string) (Process, error) {
			spawns.Add(1)
			startServer(t, pipePath, &countingHandler{})
			return &fakeProcess{}, nil
		},
	})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureRunning(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), spawns.Load())
}

func TestShutdown(t *testing.T) {
	path := socketPath(t)

	var server *Server
	proc := &fakeProcess{}
	m := NewManager(Options{
		PipePath:       path,
		HealthInterval: 5 * time.Millisecond,
		ShutdownGrace:  5 * time.Millisecond,
		Spawner: func(ctx context.Context, pipePath string) (Process, error) {
			server = startServer(t, pipePath, &countingHandler{})
			return proc, nil
		},
	})

	require.NoError(t, m.EnsureRunning(context.Background()))
	require.NotNil(t, server)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.True(t, proc.killed.Load())
	assert.Equal(t, StateNotStarted, m.State())

	select {
	case <-server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after shutdown")
	}
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Shutting down twice is harmless.
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestHealthDoesNotSpawn(t *testing.T) {
	path := socketPath(t)
	m := NewManager(Options{PipePath: path, Spawner: noSpawn(t)})

	_, err := m.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateNotStarted, m.State())

	startServer(t, path, &countingHandler{})
	resp, err := m.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, StateHealthy, m.State())
}

func TestHelperProcessForwardsOutput(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	log := logger.New("bridge-test", "test")
	log.DisableConsoleOutput()
	entries := log.Subscribe()

	p := NewHelperProcess(sh, []string{"-c", "echo \"pipe=$" + PipeEnv + "\""}, map[string]string{PipeEnv: "/tmp/x.sock"}, log)
	require.NoError(t, p.Start(context.Background()))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	assert.True(t, p.Exited())
	assert.NoError(t, p.ExitErr())
	assert.NoError(t, p.Kill())

	var messages []string
	for len(entries) > 0 {
		messages = append(messages, (<-entries).Message)
	}
	assert.Contains(t, messages, "[bridge] pipe=/tmp/x.sock")
}
