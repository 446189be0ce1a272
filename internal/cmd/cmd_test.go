/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsefit/aithrottle/config"
	"github.com/pulsefit/aithrottle/gemini"
	"github.com/pulsefit/aithrottle/httpserver"
	"github.com/pulsefit/aithrottle/internal/libinfo"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/log/logtest"
	"github.com/pulsefit/aithrottle/restapi"
	"github.com/pulsefit/aithrottle/statsstore"
	"github.com/pulsefit/aithrottle/throttle"
)

const quietLogConfig = `
log:
  level: error
`

func writeConfigFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func testStats() throttle.Stats {
	return throttle.Stats{
		Minute: throttle.WindowStats{
			Requests: 3, RequestsLimit: 15, Tokens: 1200, TokensLimit: 1000000, ResetsIn: config.TimeDuration(42 * time.Second),
		},
		Day: throttle.WindowStats{Requests: 310, RequestsLimit: 1500, ResetsIn: config.TimeDuration(5 * time.Hour)},
		Backoff: throttle.BackoffStats{
			Active: true, Remaining: config.TimeDuration(20 * time.Second), Multiplier: 2,
		},
		ErrorStreak: 1,
		QueueLength: 4,
		InFlight:    1,
		Totals:      throttle.Totals{Submitted: 318, Admitted: 313, Queued: 9, Succeeded: 309, RateLimited: 2, Requeued: 2},
	}
}

func TestLoadAppConfig(t *testing.T) {
	t.Setenv("AITHROTTLE_GEMINI_APIKEY", "env-key")

	path := writeConfigFile(t, "config.yml", quietLogConfig+`
limiter:
  requestsPerMinute: 15
  requestsPerDay: 1500
gemini:
  model: gemini-1.5-pro
redis:
  enabled: true
  address: redis:6380
  keyPrefix: coach
`)
	cfg, err := loadAppConfig(path)
	require.NoError(t, err)
	require.Equal(t, log.LevelError, cfg.Log.Level)
	require.Equal(t, 15, cfg.Limiter.RequestsPerMinute)
	require.Equal(t, 1500, cfg.Limiter.RequestsPerDay)
	require.Equal(t, throttle.DefaultTokensPerMinute, cfg.Limiter.TokensPerMinute)
	require.Equal(t, "gemini-1.5-pro", cfg.Gemini.Model)
	require.Equal(t, "env-key", cfg.Gemini.APIKey)
	require.Equal(t, libinfo.UserAgent(), cfg.Gemini.UserAgent)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "coach", cfg.Redis.StoreKeyPrefix)
	require.Equal(t, ":8080", cfg.Server.Address)
	require.False(t, cfg.ProfServer.Enabled)

	t.Run("no file", func(t *testing.T) {
		cfg, err := loadAppConfig("")
		require.NoError(t, err)
		require.Equal(t, "env-key", cfg.Gemini.APIKey)
		require.Equal(t, throttle.DefaultRequestsPerMinute, cfg.Limiter.RequestsPerMinute)
	})

	t.Run("json file", func(t *testing.T) {
		cfg, err := loadAppConfig(writeConfigFile(t, "config.json", `{"gemini": {"userAgent": "coach/1.0"}}`))
		require.NoError(t, err)
		require.Equal(t, "coach/1.0", cfg.Gemini.UserAgent)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := loadAppConfig(writeConfigFile(t, "config.toml", ""))
		require.EqualError(t, err, `unsupported config file extension ".toml", use .yaml, .yml or .json`)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yml"))
		require.ErrorContains(t, err, "load config")
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := loadAppConfig(writeConfigFile(t, "config.yml", "redis:\n  interval: 0s\n"))
		require.EqualError(t, err, "load config: redis.interval: should be positive")
	})
}

func TestNewApp(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("AITHROTTLE_GEMINI_APIKEY", "test-key")
	cfg, err := loadAppConfig(writeConfigFile(t, "config.yml", quietLogConfig+`
server:
  address: 127.0.0.1:0
redis:
  enabled: true
  address: `+mr.Addr()+`
profServer:
  enabled: true
  address: 127.0.0.1:0
`))
	require.NoError(t, err)

	logger := logtest.NewRecorder()
	a, err := newApp(cfg, logger)
	require.NoError(t, err)
	defer a.close()

	// limiter, status server, redis publisher, stats logger, profiling server
	require.Len(t, a.units, 5)
	require.Len(t, a.unit().Units, 5)
	require.NotNil(t, a.redisClient)

	require.NoError(t, a.logStats(context.Background()))
	entry, found := logger.FindEntry("limiter stats")
	require.True(t, found)
	field, found := entry.FindField("queue_length")
	require.True(t, found)
	require.EqualValues(t, 0, field.Int)

	hc := redisHealthCheck(statsstore.NewStore(a.redisClient, cfg.Redis.StoreKeyPrefix))
	result, err := hc(context.Background())
	require.NoError(t, err)
	require.Equal(t, httpserver.HealthCheckResult{healthCheckComponentRedis: httpserver.HealthCheckStatusOK}, result)

	mr.Close()
	result, err = hc(context.Background())
	require.NoError(t, err)
	require.Equal(t, httpserver.HealthCheckResult{healthCheckComponentRedis: httpserver.HealthCheckStatusFail}, result)

	t.Run("optional units disabled", func(t *testing.T) {
		cfg.Redis.Enabled = false
		cfg.ProfServer.Enabled = false
		cfg.Limiter.StatsLogInterval = 0
		a, err := newApp(cfg, logtest.NewRecorder())
		require.NoError(t, err)
		require.Len(t, a.units, 2)
		require.Nil(t, a.redisClient)
		a.close()
	})

	t.Run("no api key", func(t *testing.T) {
		cfg.Gemini.APIKey = ""
		_, err := newApp(cfg, logtest.NewRecorder())
		require.EqualError(t, err, "create gemini client: gemini: api key is required")
	})
}

func newGeminiServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return writeConfigFile(t, "config.yml", quietLogConfig+`
limiter:
  drainInterval: 1ms
  backoff:
    maxJitter: 0s
gemini:
  apiKey: test-key
  baseURL: `+server.URL+`
`)
}

func TestPromptCommand(t *testing.T) {
	configPath := newGeminiServer(t, func(rw http.ResponseWriter, r *http.Request) {
		var req gemini.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Contents) == 0 {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := gemini.GenerateResponse{
			Candidates: []gemini.Candidate{{Content: gemini.Content{
				Role:  "model",
				Parts: []gemini.Part{{Text: "answer: " + req.Contents[0].Parts[0].Text}},
			}}},
			UsageMetadata: gemini.UsageMetadata{PromptTokenCount: 2, CandidatesTokenCount: 3, TotalTokenCount: 5},
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	})

	t.Run("single prompt", func(t *testing.T) {
		out, err := executeCommand(t, "--config", configPath, "prompt", "how much water?")
		require.NoError(t, err)
		require.Equal(t, "answer: how much water?\n", out)
	})

	t.Run("several prompts keep their order", func(t *testing.T) {
		out, err := executeCommand(t, "--config", configPath, "prompt", "--priority", "5", "squats", "lunges", "planks")
		require.NoError(t, err)
		require.Equal(t,
			"[1] squats\nanswer: squats\n[2] lunges\nanswer: lunges\n[3] planks\nanswer: planks\n", out)
	})

	t.Run("no prompts", func(t *testing.T) {
		_, err := executeCommand(t, "--config", configPath, "prompt")
		require.Error(t, err)
	})

	t.Run("default priority", func(t *testing.T) {
		flag := newPromptCommand(&rootOptions{}).Flags().Lookup("priority")
		require.NotNil(t, flag)
		require.Equal(t, strconv.Itoa(throttle.DefaultPriority), flag.DefValue)
	})
}

func TestPromptCommand_Error(t *testing.T) {
	configPath := newGeminiServer(t, func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte(`{"error": {"code": 400, "message": "API key not valid.", "status": "INVALID_ARGUMENT"}}`))
	})
	_, err := executeCommand(t, "--config", configPath, "prompt", "hello")
	require.ErrorContains(t, err, "prompt #1")
	require.ErrorContains(t, err, "API key not valid.")
}

func requireStatsTable(t *testing.T, out string) {
	t.Helper()
	for _, want := range []string{
		"Quota windows at",
		"minute", "3 / 15", "1200 / 1000000", "42s",
		"day", "310 / 1500", "0 / -", "5h0m0s",
		"Backoff", "for 20s",
		"Queue length", "Rate limited",
	} {
		require.Contains(t, out, want)
	}
}

func TestStatusCommand_HTTP(t *testing.T) {
	stats := testStats()
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != statusPath {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		restapi.RespondJSON(rw, stats, nil)
	}))
	defer server.Close()

	t.Run("table", func(t *testing.T) {
		out, err := executeCommand(t, "status", "--addr", server.URL+"/")
		require.NoError(t, err)
		requireStatsTable(t, out)
	})

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, "status", "--addr", server.URL, "-o", "json")
		require.NoError(t, err)
		var got throttle.Stats
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Equal(t, stats, got)
	})

	t.Run("unknown output format", func(t *testing.T) {
		_, err := executeCommand(t, "status", "--addr", server.URL, "-o", "yaml")
		require.EqualError(t, err, "unsupported output format: yaml")
	})

	t.Run("addr and redis are mutually exclusive", func(t *testing.T) {
		_, err := executeCommand(t, "status", "--addr", server.URL, "--redis")
		require.Error(t, err)
	})
}

func TestStatusCommand_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		restapi.RespondError(rw, http.StatusServiceUnavailable,
			restapi.NewError(httpserver.DefaultErrorDomain, restapi.ErrCodeLimiterStopped, restapi.ErrMessageLimiterStopped), nil)
	}))
	defer server.Close()

	_, err := executeCommand(t, "status", "--addr", server.URL)
	require.EqualError(t, err, "fetch status: 503: Limiter is stopped.")

	badGateway := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusBadGateway)
	}))
	defer badGateway.Close()
	_, err = executeCommand(t, "status", "--addr", badGateway.URL)
	require.EqualError(t, err, "fetch status: unexpected status code 502")
}

func TestStatusCommand_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	stats := testStats()
	require.NoError(t, statsstore.NewStore(client, "coach").Save(context.Background(), stats, time.Minute))

	configPath := writeConfigFile(t, "config.yml", quietLogConfig+`
redis:
  address: `+mr.Addr()+`
  keyPrefix: coach
`)
	out, err := executeCommand(t, "--config", configPath, "status", "--redis")
	require.NoError(t, err)
	requireStatsTable(t, out)

	// Redis is the default source when no address is given.
	out, err = executeCommand(t, "--config", configPath, "status", "-o", "json")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "{"))

	mr.FastForward(2 * time.Minute)
	_, err = executeCommand(t, "--config", configPath, "status")
	require.ErrorContains(t, err, "no limiter snapshot in redis at "+mr.Addr())
}
