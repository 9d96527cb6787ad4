package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMetrics(t *testing.T) {
	a, err := newApp(filepath.Join(t.TempDir(), "missing.yaml"), false, "error", true)
	require.NoError(t, err)
	defer a.Close(context.Background())

	require.NotNil(t, a.Metrics)

	var buf bytes.Buffer
	require.NoError(t, a.WriteMetrics(&buf))
	assert.Contains(t, buf.String(), "# TYPE dbgrid_pool_connections gauge")
	assert.Contains(t, buf.String(), "dbgrid_pool_connections 0")
}

func TestMetricsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  metrics: false\n"), 0o600))

	a, err := newApp(path, true, "error", false)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.Metrics)

	var buf bytes.Buffer
	require.NoError(t, a.WriteMetrics(&buf))
	assert.Empty(t, buf.String())
}
