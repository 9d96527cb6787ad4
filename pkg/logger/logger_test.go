package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New("dbgrid", "test")
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	l.Errorf("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "also shown")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestLogger_MessageWithoutArgsIsNotFormatted(t *testing.T) {
	var buf bytes.Buffer
	l := New("dbgrid", "test")
	l.SetOutput(&buf)

	l.Info("LIKE '%a%'")

	assert.Contains(t, buf.String(), "LIKE '%a%'")
}

func TestLogger_FieldsAndSubscribers(t *testing.T) {
	var buf bytes.Buffer
	l := New("dbgrid", "test")
	l.SetOutput(&buf)
	ch := l.Subscribe()

	l.WithFields(map[string]string{"conn": "c1", "engine": "MySQL"}).Info("connected")

	entry := <-ch
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "connected", entry.Message)
	assert.Equal(t, "c1", entry.Fields["conn"])
	assert.Contains(t, buf.String(), "connected conn=c1 engine=MySQL")
}

func TestLogger_DisableConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New("dbgrid", "test")
	l.SetOutput(&buf)
	l.DisableConsoleOutput()

	l.Error("quiet")
	assert.Empty(t, buf.String())

	l.EnableConsoleOutput()
	l.Error("loud")
	assert.Contains(t, buf.String(), "loud")
}
