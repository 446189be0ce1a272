/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = path
	cfg.Level = LevelInfo

	logger, closeFn := NewLogger(cfg)
	logger.Debug("dropped")
	logger.With(String("component", "limiter")).Info("request queued", Int("priority", 2))
	logger.Errorf("task failed: %v", errors.New("boom"))
	closeFn()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	require.Equal(t, "request queued", lines[0]["msg"])
	require.Equal(t, "info", lines[0]["level"])
	require.Equal(t, "limiter", lines[0]["component"])
	require.EqualValues(t, 2, lines[0]["priority"])
	require.EqualValues(t, os.Getpid(), lines[0]["pid"])
	require.Contains(t, lines[0], "time")

	require.Equal(t, "task failed: boom", lines[1]["msg"])
	require.Equal(t, "error", lines[1]["level"])
}

func TestLogfAdapter_WithLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = path
	cfg.Format = FormatText
	cfg.NoColor = true
	cfg.Level = LevelDebug

	logger, closeFn := NewLogger(cfg)
	logger = logger.WithLevel(LevelWarn)
	logger.Info("hidden")
	logger.Warn("visible")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "hidden")
	require.Contains(t, string(data), "visible")
}

func TestNewDisabledLogger(t *testing.T) {
	logger := NewDisabledLogger()
	logger.Error("nothing happens")
	called := false
	logger.AtLevel(LevelError, func(LogFunc) { called = true })
	require.False(t, called)
}
