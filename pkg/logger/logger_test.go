package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "logs/app-2024-03-09.log", DailyFilename("logs/app.log", now))
	assert.Equal(t, "worker-2024-03-09", DailyFilename("worker", now))
}

func TestNew_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.log")

	lg, err := New(&LogConfig{Level: "info", Filename: path, MaxSize: 1}, "release")
	require.NoError(t, err)

	lg.Info("[Test] hello")
	lg.Debug("[Test] filtered")
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"[Test] hello"`)
	assert.NotContains(t, string(data), "filtered")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&LogConfig{Level: "loud", Filename: filepath.Join(t.TempDir(), "x.log")}, "release")
	assert.Error(t, err)
}
