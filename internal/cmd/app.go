/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsefit/aithrottle/gemini"
	"github.com/pulsefit/aithrottle/httpclient"
	"github.com/pulsefit/aithrottle/httpserver"
	"github.com/pulsefit/aithrottle/internal/libinfo"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/profserver"
	"github.com/pulsefit/aithrottle/service"
	"github.com/pulsefit/aithrottle/statsstore"
	"github.com/pulsefit/aithrottle/throttle"
)

const metricsNamespace = "aithrottle"

// healthCheckComponentRedis is the name of the Redis component in health-check responses.
const healthCheckComponentRedis = "redis"

const geminiRequestType = "gemini"

// app holds the components of the serve command.
type app struct {
	logger        log.FieldLogger
	limiter       *throttle.Limiter
	gemini        *gemini.Client
	server        *httpserver.HTTPServer
	redisClient   *redis.Client
	httpMetrics   *httpclient.PrometheusMetricsCollector
	units         []service.Unit
	statsInterval time.Duration
}

func newApp(cfg *appConfig, logger log.FieldLogger) (*app, error) {
	limiterMetrics := throttle.NewPrometheusMetricsWithOpts(throttle.PrometheusMetricsOpts{
		Namespace:   metricsNamespace,
		ConstLabels: libinfo.AddPrometheusVersionLabel(nil),
	})
	limiter, err := throttle.New(cfg.Limiter, throttle.WithLogger(logger), throttle.WithMetrics(limiterMetrics))
	if err != nil {
		return nil, fmt.Errorf("create limiter: %w", err)
	}

	httpMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	httpClient := httpclient.NewClientWithOpts(cfg.HTTPClient, logger, httpMetrics,
		httpclient.Opts{RequestType: geminiRequestType})
	geminiClient, err := gemini.NewClient(cfg.Gemini, limiter, gemini.WithHTTPClient(httpClient), gemini.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	a := &app{
		logger:        logger,
		limiter:       limiter,
		gemini:        geminiClient,
		httpMetrics:   httpMetrics,
		statsInterval: cfg.Limiter.StatsLogInterval,
	}

	var extraHealthCheck httpserver.HealthCheckContext
	var publisherUnit service.Unit
	if cfg.Redis.Enabled {
		a.redisClient = statsstore.NewClient(cfg.Redis)
		store := statsstore.NewStore(a.redisClient, cfg.Redis.StoreKeyPrefix)
		extraHealthCheck = redisHealthCheck(store)
		publisherUnit = service.NewWorkerUnit(statsstore.NewPublisher(store, limiter, cfg.Redis.Interval, logger))
	}

	a.server = httpserver.New(cfg.Server, logger, httpserver.Opts{
		Limiter:            limiter,
		HealthCheck:        extraHealthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace},
	})

	a.units = append(a.units,
		service.NewWorkerUnitWithOpts(limiter, service.WorkerUnitOpts{
			GracefulStopTimeout: time.Duration(cfg.Server.Timeouts.Shutdown),
		}),
		a.server,
	)
	if publisherUnit != nil {
		a.units = append(a.units, publisherUnit)
	}
	if a.statsInterval > 0 {
		a.units = append(a.units, service.NewWorkerUnit(
			service.NewPeriodicWorker(service.WorkerFunc(a.logStats), a.statsInterval, logger)))
	}
	if cfg.ProfServer.Enabled {
		a.units = append(a.units, profserver.New(cfg.ProfServer, logger))
	}
	return a, nil
}

// unit composes all components into one unit. It's started by service.Service.
func (a *app) unit() *service.CompositeUnit {
	return service.NewCompositeUnit(a.units...)
}

// close releases resources that outlive the units.
func (a *app) close() {
	if a.redisClient == nil {
		return
	}
	if err := a.redisClient.Close(); err != nil {
		a.logger.Warn("failed to close redis client", log.Error(err))
	}
}

func (a *app) logStats(_ context.Context) error {
	stats := a.limiter.Stats()
	usage := a.gemini.Usage()
	a.logger.Info("limiter stats",
		log.Int("minute_requests", stats.Minute.Requests),
		log.Int("minute_tokens", stats.Minute.Tokens),
		log.Int("day_requests", stats.Day.Requests),
		log.Int("queue_length", stats.QueueLength),
		log.Int("in_flight", stats.InFlight),
		log.Int("error_streak", stats.ErrorStreak),
		log.Bool("backoff", stats.Backoff.Active),
		log.Float64("backoff_multiplier", stats.Backoff.Multiplier),
		log.Int64("gemini_total_tokens", usage.TotalTokens),
	)
	return nil
}

func redisHealthCheck(store *statsstore.Store) httpserver.HealthCheckContext {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		status := httpserver.HealthCheckStatusOK
		if err := store.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{healthCheckComponentRedis: status}, nil
	}
}
