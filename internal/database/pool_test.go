package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/pkg/adapter"
)

type interval struct {
	start, end time.Time
}

// fakeConn records the interval of every ExecuteQuery call.
type fakeConn struct {
	adapter.UnsupportedMetadata

	dbType    adapter.DatabaseType
	testOK    bool
	connected atomic.Bool
	hold      time.Duration
	onQuery   func()

	mu        sync.Mutex
	intervals []interval
}

func (f *fakeConn) Type() adapter.DatabaseType { return f.dbType }

func (f *fakeConn) Connect(ctx context.Context, config adapter.ConnectionConfig) error {
	if config.Host == "unreachable" {
		return adapter.NewConnectionError(f.dbType, config.Host, config.Port, errors.New("refused"))
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeConn) Disconnect(ctx context.Context) error {
	f.connected.Store(false)
	return nil
}

func (f *fakeConn) TestConnection(ctx context.Context) (bool, error) {
	return f.testOK, nil
}

func (f *fakeConn) ExecuteQuery(ctx context.Context, statement string) (*adapter.QueryResult, error) {
	if !f.connected.Load() {
		return nil, adapter.NewNotConnectedError(f.dbType, "execute_query")
	}
	if statement == "fail" {
		return nil, adapter.NewQueryError(f.dbType, statement, errors.New("syntax error"))
	}
	start := time.Now()
	if f.onQuery != nil {
		f.onQuery()
	}
	time.Sleep(f.hold)
	f.mu.Lock()
	f.intervals = append(f.intervals, interval{start: start, end: time.Now()})
	f.mu.Unlock()
	return adapter.NewQueryResult(), nil
}

func (f *fakeConn) ExecuteUpdate(ctx context.Context, statement string) (int64, error) {
	return 1, nil
}

func (f *fakeConn) GetDatabases(ctx context.Context) ([]adapter.Database, error) {
	return []adapter.Database{{Name: "main"}}, nil
}

func (f *fakeConn) GetTables(ctx context.Context, database string) ([]adapter.Table, error) {
	return nil, nil
}

func (f *fakeConn) GetTableSchema(ctx context.Context, database, table string) (*adapter.TableSchema, error) {
	return &adapter.TableSchema{TableName: table}, nil
}

func (f *fakeConn) GetTableData(ctx context.Context, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	return adapter.NewQueryResult(), nil
}

// fakeFactory hands out fakeConns and remembers them in creation order.
type fakeFactory struct {
	mu      sync.Mutex
	conns   []*fakeConn
	testOK  bool
	hold    time.Duration
	onQuery func()
}

func (f *fakeFactory) build(dbType adapter.DatabaseType) (adapter.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn := &fakeConn{dbType: dbType, testOK: f.testOK, hold: f.hold, onQuery: f.onQuery}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func newTestPool(t *testing.T, factory *fakeFactory) *Pool {
	t.Helper()
	pool, err := NewPool(PoolOptions{Factory: factory.build})
	require.NoError(t, err)
	return pool
}

func pgConfig(id string) adapter.ConnectionConfig {
	return adapter.ConnectionConfig{ID: id, Type: "postgres", Host: "localhost"}
}

func TestPool_ConnectAndLookup(t *testing.T) {
	factory := &fakeFactory{testOK: true}
	pool := newTestPool(t, factory)
	ctx := context.Background()

	require.NoError(t, pool.Connect(ctx, pgConfig("b")))
	require.NoError(t, pool.Connect(ctx, pgConfig("a")))

	assert.True(t, pool.IsConnected("a"))
	assert.False(t, pool.IsConnected("c"))
	assert.Equal(t, []string{"a", "b"}, pool.ConnectedIDs())

	cfg, ok := pool.Config("a")
	require.True(t, ok)
	assert.Equal(t, adapter.PostgreSQL, cfg.Type)
	assert.Equal(t, 5432, cfg.Port)

	before, ok := pool.LastUsed("a")
	require.True(t, ok)
	_, err := pool.ExecuteQuery(ctx, "a", "SELECT 1")
	require.NoError(t, err)
	after, _ := pool.LastUsed("a")
	assert.False(t, after.Before(before))

	databases, err := pool.GetDatabases(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []adapter.Database{{Name: "main"}}, databases)
}

func TestPool_ConnectFailures(t *testing.T) {
	ctx := context.Background()

	pool := newTestPool(t, &fakeFactory{testOK: true})
	err := pool.Connect(ctx, adapter.ConnectionConfig{ID: "x", Type: "postgres"})
	assert.True(t, adapter.IsConfigurationError(err))

	err = pool.Connect(ctx, adapter.ConnectionConfig{ID: "x", Type: "postgres", Host: "unreachable"})
	assert.True(t, adapter.IsConnectionError(err))
	assert.False(t, pool.IsConnected("x"))

	factory := &fakeFactory{testOK: false}
	pool = newTestPool(t, factory)
	err = pool.Connect(ctx, pgConfig("x"))
	assert.True(t, adapter.IsConnectionError(err))
	assert.False(t, pool.IsConnected("x"))
	assert.False(t, factory.conns[0].connected.Load())
}

func TestPool_ReconnectClosesSupersededHandle(t *testing.T) {
	factory := &fakeFactory{testOK: true}
	pool := newTestPool(t, factory)
	ctx := context.Background()

	require.NoError(t, pool.Connect(ctx, pgConfig("a")))
	require.NoError(t, pool.Connect(ctx, pgConfig("a")))

	require.Len(t, factory.conns, 2)
	assert.False(t, factory.conns[0].connected.Load())
	assert.True(t, factory.conns[1].connected.Load())
	assert.Equal(t, []string{"a"}, pool.ConnectedIDs())
}

func TestPool_MissingID(t *testing.T) {
	pool := newTestPool(t, &fakeFactory{testOK: true})
	ctx := context.Background()

	_, err := pool.ExecuteQuery(ctx, "nope", "SELECT 1")
	assert.ErrorIs(t, err, adapter.ErrConnectionNotFound)

	_, err = WithConnection(ctx, pool, "nope", func(ctx context.Context, conn adapter.Connection) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, adapter.ErrConnectionNotFound)

	assert.NoError(t, pool.Disconnect(ctx, "nope"))
}

func TestPool_ErrorsCarryID(t *testing.T) {
	pool := newTestPool(t, &fakeFactory{testOK: true})
	ctx := context.Background()
	require.NoError(t, pool.Connect(ctx, pgConfig("a")))

	_, err := pool.ExecuteQuery(ctx, "a", "fail")
	require.Error(t, err)
	assert.True(t, adapter.IsQueryError(err))
	assert.Contains(t, err.Error(), "execute_query failed on connection a")

	err = pool.Do(ctx, "a", func(ctx context.Context, conn adapter.Connection) error {
		return errors.New("boom")
	})
	assert.EqualError(t, err, "connection a: boom")
}

func TestPool_SameIDIsSerialized(t *testing.T) {
	factory := &fakeFactory{testOK: true, hold: 5 * time.Millisecond}
	pool := newTestPool(t, factory)
	ctx := context.Background()
	require.NoError(t, pool.Connect(ctx, pgConfig("a")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.ExecuteQuery(ctx, "a", "SELECT 1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	conn := factory.conns[0]
	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.intervals, 8)
	for i, a := range conn.intervals {
		for j, b := range conn.intervals {
			if i == j {
				continue
			}
			overlap := a.start.Before(b.end) && b.start.Before(a.end)
			assert.False(t, overlap, "operations %d and %d overlapped", i, j)
		}
	}
}

func TestPool_DistinctIDsRunConcurrently(t *testing.T) {
	// Each query waits until both have started, which only happens when
	// the two ids do not block each other.
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()

	factory := &fakeFactory{testOK: true, onQuery: func() {
		started.Done()
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}}
	pool := newTestPool(t, factory)
	ctx := context.Background()
	require.NoError(t, pool.Connect(ctx, pgConfig("a")))
	require.NoError(t, pool.Connect(ctx, pgConfig("b")))

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.ExecuteQuery(ctx, id, "SELECT 1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, time.Since(start), time.Second)
}

func TestPool_DisconnectAndCloseAll(t *testing.T) {
	factory := &fakeFactory{testOK: true}
	pool := newTestPool(t, factory)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, pool.Connect(ctx, pgConfig(id)))
	}

	require.NoError(t, pool.Disconnect(ctx, "a"))
	assert.False(t, pool.IsConnected("a"))
	assert.False(t, factory.conns[0].connected.Load())

	require.NoError(t, pool.CloseAll(ctx))
	assert.Empty(t, pool.ConnectedIDs())
	for _, conn := range factory.conns {
		assert.False(t, conn.connected.Load())
	}
}

func TestPool_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	factory := &fakeFactory{testOK: true}
	pool, err := NewPool(PoolOptions{Factory: factory.build, Registerer: reg})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, pool.Connect(ctx, pgConfig("a")))
	require.NoError(t, pool.Connect(ctx, pgConfig("b")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pool.metrics.Connections))

	_, err = pool.ExecuteQuery(ctx, "a", "SELECT 1")
	require.NoError(t, err)
	_, err = pool.ExecuteQuery(ctx, "a", "fail")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.Operations.WithLabelValues("PostgreSQL", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.Operations.WithLabelValues("PostgreSQL", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(pool.metrics.Duration))

	require.NoError(t, pool.Disconnect(ctx, "a"))
	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.Connections))

	_, err = NewPool(PoolOptions{Factory: factory.build, Registerer: reg})
	assert.Error(t, err)
}

func TestNewConnection(t *testing.T) {
	for _, dbType := range []adapter.DatabaseType{adapter.MySQL, adapter.PostgreSQL, adapter.MSSQL, adapter.MongoDB, adapter.Redis} {
		conn, err := NewConnection(dbType, Dependencies{})
		require.NoError(t, err)
		assert.Equal(t, dbType, conn.Type())
	}

	_, err := NewConnection(adapter.Ignite, Dependencies{})
	assert.True(t, adapter.IsConfigurationError(err))

	conn, err := NewConnection(adapter.Ignite, Dependencies{Bridge: bridge.NewManager(bridge.Options{})})
	require.NoError(t, err)
	assert.Equal(t, adapter.Ignite, conn.Type())

	_, err = NewConnection("Cassandra", Dependencies{})
	assert.Error(t, err)
}
