/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/pulsefit/aithrottle/config"
	"github.com/pulsefit/aithrottle/httpserver/mocks"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/testutil"
	"github.com/pulsefit/aithrottle/throttle"
)

func newMockedRouter(t *testing.T, healthCheck HealthCheckContext) (http.Handler, *mocks.MockLimiterController) {
	t.Helper()
	limiter := mocks.NewMockLimiterController(gomock.NewController(t))
	router := NewRouter(log.NewDisabledLogger(), RouterOpts{
		Limiter:        limiter,
		HealthCheck:    healthCheck,
		MetricsHandler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) { _, _ = rw.Write([]byte("# metrics")) }),
	})
	return router, limiter
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(method, target, nil))
	return resp
}

func TestRouter_Status(t *testing.T) {
	router, limiter := newMockedRouter(t, nil)
	stats := throttle.Stats{
		Minute:      throttle.WindowStats{Requests: 42, RequestsLimit: 60, Tokens: 1200, TokensLimit: 60000},
		Day:         throttle.WindowStats{Requests: 100, RequestsLimit: 180},
		Backoff:     throttle.BackoffStats{Active: true, Remaining: config.TimeDuration(4 * time.Second), Multiplier: 4},
		QueueLength: 3,
		Totals:      throttle.Totals{Submitted: 103, Admitted: 100, Queued: 5},
	}
	limiter.EXPECT().Stats().Return(stats)

	resp := serve(router, http.MethodGet, "/api/v1/limiter/status")
	testutil.RequireJSONInRecorder(t, resp, &stats, &throttle.Stats{})
	require.Contains(t, resp.Body.String(), `"remaining":"4s"`)
}

func TestRouter_Reset(t *testing.T) {
	t.Run("reset", func(t *testing.T) {
		router, limiter := newMockedRouter(t, nil)
		gomock.InOrder(
			limiter.EXPECT().Stopped().Return(false),
			limiter.EXPECT().Reset(),
			limiter.EXPECT().Stats().Return(throttle.Stats{Day: throttle.WindowStats{RequestsLimit: 180}}),
		)
		resp := serve(router, http.MethodPost, "/api/v1/limiter/reset")
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"requestsLimit":180`)
	})

	t.Run("stopped limiter", func(t *testing.T) {
		router, limiter := newMockedRouter(t, nil)
		limiter.EXPECT().Stopped().Return(true)
		resp := serve(router, http.MethodPost, "/api/v1/limiter/reset")
		testutil.RequireErrorInRecorder(t, resp, http.StatusServiceUnavailable, DefaultErrorDomain, "limiterStopped")
	})

	t.Run("method not allowed", func(t *testing.T) {
		router, _ := newMockedRouter(t, nil)
		resp := serve(router, http.MethodGet, "/api/v1/limiter/reset")
		testutil.RequireErrorInRecorder(t, resp, http.StatusMethodNotAllowed, DefaultErrorDomain, "methodNotAllowed")
	})
}

func TestRouter_HealthCheck(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router, limiter := newMockedRouter(t, nil)
		limiter.EXPECT().Stopped().Return(false)
		resp := serve(router, http.MethodGet, "/healthz")
		require.Equal(t, http.StatusOK, resp.Code)
		require.JSONEq(t, `{"components":{"limiter":true}}`, resp.Body.String())
	})

	t.Run("stopped limiter", func(t *testing.T) {
		router, limiter := newMockedRouter(t, nil)
		limiter.EXPECT().Stopped().Return(true)
		resp := serve(router, http.MethodGet, "/healthz")
		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		require.JSONEq(t, `{"components":{"limiter":false}}`, resp.Body.String())
	})

	t.Run("extra components", func(t *testing.T) {
		router, limiter := newMockedRouter(t, func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{"redis": HealthCheckStatusFail}, nil
		})
		limiter.EXPECT().Stopped().Return(false)
		resp := serve(router, http.MethodGet, "/healthz")
		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		require.JSONEq(t, `{"components":{"limiter":true,"redis":false}}`, resp.Body.String())
	})

	t.Run("check error", func(t *testing.T) {
		router, limiter := newMockedRouter(t, func(ctx context.Context) (HealthCheckResult, error) {
			return nil, errors.New("redis: connection refused")
		})
		limiter.EXPECT().Stopped().Return(false)
		resp := serve(router, http.MethodGet, "/healthz")
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("canceled request", func(t *testing.T) {
		h := NewHealthCheckHandler(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx))
		require.Equal(t, StatusClientClosedRequest, resp.Code)
	})
}

func TestRouter_NotFoundAndMetrics(t *testing.T) {
	router, _ := newMockedRouter(t, nil)

	resp := serve(router, http.MethodGet, "/api/v1/unknown")
	testutil.RequireErrorInRecorder(t, resp, http.StatusNotFound, DefaultErrorDomain, "notFound")

	resp = serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "# metrics", resp.Body.String())
}
