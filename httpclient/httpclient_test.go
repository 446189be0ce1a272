/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pulsefit/aithrottle/config"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/log/logtest"
	"github.com/pulsefit/aithrottle/testutil"
)

func newEchoServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Echo-User-Agent", r.Header.Get("User-Agent"))
		rw.Header().Set("X-Echo-Request-ID", r.Header.Get(RequestIDHeader))
		rw.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, ctx context.Context, client *http.Client, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString("{}"), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("custom", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`
httpClient:
  timeout: 5s
  userAgent: pulsefit-coach/2.1
  log:
    mode: ALL
    slowRequestThreshold: 3s
`), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 5*time.Second, cfg.Timeout)
		require.Equal(t, "pulsefit-coach/2.1", cfg.UserAgent)
		require.Equal(t, LoggingModeAll, cfg.Log.Mode)
		require.Equal(t, 3*time.Second, cfg.Log.SlowRequestThreshold)
	})

	t.Run("unknown log mode", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString("httpClient:\n  log:\n    mode: verbose\n"), config.DataTypeYAML, cfg)
		require.EqualError(t, err, `httpClient.log.mode: unknown value "verbose", should be one of [none all failed]`)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("sets user agent and request id", func(t *testing.T) {
		server := newEchoServer(t, http.StatusOK)
		client := NewClient(NewDefaultConfig(), nil, nil)

		resp := doRequest(t, context.Background(), client, server.URL)
		require.Equal(t, DefaultUserAgent, resp.Header.Get("X-Echo-User-Agent"))
		require.Len(t, resp.Header.Get("X-Echo-Request-ID"), 20) // xid

		ctx := NewContextWithRequestID(context.Background(), "req-42")
		resp = doRequest(t, ctx, client, server.URL)
		require.Equal(t, "req-42", resp.Header.Get("X-Echo-Request-ID"))
	})

	t.Run("keeps the user agent of the request", func(t *testing.T) {
		server := newEchoServer(t, http.StatusOK)
		client := NewClient(NewDefaultConfig(), nil, nil)
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "curl/8.0")
		resp, err := client.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, "curl/8.0", resp.Header.Get("X-Echo-User-Agent"))
	})

	t.Run("append user agent", func(t *testing.T) {
		server := newEchoServer(t, http.StatusOK)
		rt := NewUserAgentRoundTripper(http.DefaultTransport, "aithrottle/1.0")
		rt.UpdateStrategy = UserAgentUpdateStrategyAppend
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "coach")
		resp, err := (&http.Client{Transport: rt}).Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, "coach aithrottle/1.0", resp.Header.Get("X-Echo-User-Agent"))
	})

	t.Run("logs failed requests only", func(t *testing.T) {
		okServer := newEchoServer(t, http.StatusOK)
		failServer := newEchoServer(t, http.StatusTooManyRequests)
		logger := logtest.NewRecorder()
		client := NewClientWithOpts(NewDefaultConfig(), logger, nil, Opts{RequestType: "gemini"})

		doRequest(t, context.Background(), client, okServer.URL)
		require.Empty(t, logger.Entries())

		doRequest(t, NewContextWithRequestID(context.Background(), "req-1"), client, failServer.URL)
		require.Len(t, logger.Entries(), 1)
		entry := logger.Entries()[0]
		require.Equal(t, log.LevelWarn, entry.Level)
		require.Equal(t, "client http request finished with error status", entry.Text)
		status, ok := entry.FindField("status")
		require.True(t, ok)
		require.EqualValues(t, http.StatusTooManyRequests, status.Int)
		requestType, ok := entry.FindField("request_type")
		require.True(t, ok)
		require.Equal(t, "gemini", string(requestType.Bytes))
		requestID, ok := entry.FindField("request_id")
		require.True(t, ok)
		require.Equal(t, "req-1", string(requestID.Bytes))
	})

	t.Run("logs transport errors", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		serverURL := "http://" + ln.Addr().String()
		require.NoError(t, ln.Close())

		logger := logtest.NewRecorder()
		client := NewClient(NewDefaultConfig(), logger, nil)
		req, err := http.NewRequest(http.MethodPost, serverURL, nil)
		require.NoError(t, err)
		_, err = client.Do(req)
		require.Error(t, err)

		entry, found := logger.FindEntry("client http request failed")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
		_, hasStatus := entry.FindField("status")
		require.False(t, hasStatus)
	})

	t.Run("logs all requests in all mode", func(t *testing.T) {
		server := newEchoServer(t, http.StatusOK)
		logger := logtest.NewRecorder()
		cfg := NewDefaultConfig()
		cfg.Log.Mode = LoggingModeAll
		client := NewClient(cfg, logger, nil)
		doRequest(t, NewContextWithRequestType(context.Background(), "count-tokens"), client, server.URL)

		entry, found := logger.FindEntry("client http request done")
		require.True(t, found)
		requestType, _ := entry.FindField("request_type")
		require.Equal(t, "count-tokens", string(requestType.Bytes))
	})

	t.Run("collects metrics", func(t *testing.T) {
		server := newEchoServer(t, http.StatusServiceUnavailable)
		collector := NewPrometheusMetricsCollector("test")
		client := NewClientWithOpts(NewDefaultConfig(), nil, collector, Opts{RequestType: "gemini"})
		for i := 0; i < 3; i++ {
			doRequest(t, context.Background(), client, server.URL)
		}
		host := server.Listener.Addr().String()
		hist := collector.Durations.WithLabelValues("gemini", host, http.MethodPost, "503").(prometheus.Histogram)
		testutil.RequireSamplesCountInHistogram(t, hist, 3)
	})
}
