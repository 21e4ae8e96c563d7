package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-grocery/internal/audit"
	"github.com/noah-isme/backend-grocery/internal/cache"
	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/config"
	"github.com/noah-isme/backend-grocery/internal/discount"
	"github.com/noah-isme/backend-grocery/internal/health"
	"github.com/noah-isme/backend-grocery/internal/lock"
	"github.com/noah-isme/backend-grocery/internal/migrations"
	"github.com/noah-isme/backend-grocery/internal/obs"
	"github.com/noah-isme/backend-grocery/internal/ratelimit"
	"github.com/noah-isme/backend-grocery/internal/resilience"
	"github.com/noah-isme/backend-grocery/internal/security"
	"github.com/noah-isme/backend-grocery/internal/stores"
)

const serviceName = "grocery-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "grocery")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := migrations.Up(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	storeService, err := stores.NewService(stores.ServiceConfig{
		Directory: &stores.CachedDirectory{
			Source: storeDirectory(cfg, pool, logger),
			Cache:  cache.NewJSON(redisClient, "grocery:", cfg.StoreCacheTTL),
			Stale:  cache.NewJSON(redisClient, "grocery:", -1),
			Logger: logger,
		},
		DefaultRadius: cfg.DefaultSearchRadiusM,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise store service")
	}

	discountSvc := &discount.Service{
		Q:      discount.NewPGStore(pool),
		Cache:  cache.NewJSON(redisClient, "grocery:", cfg.DiscountCacheTTL),
		Lock:   lock.Locker{R: redisClient, Prefix: "grocery:lock:"},
		Logger: logger,
	}

	auditStore := &audit.PGStore{Pool: pool}
	auditRecorder := audit.HTTPRecorder{
		Service: &audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSamplingRate},
		OnError: func(err error) { logger.Warn().Err(err).Msg("audit_record_failed") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	app := server{
		Logger:         logger,
		HTTPMetrics:    httpMetrics,
		Tracing:        tracingEnabled,
		MetricsEnabled: metricsEnabled,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Headers: security.Headers{
			Enable:                envBool("SECURE_HEADERS_ENABLE", true),
			EnableHSTS:            cfg.IsProduction(),
			HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
			HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", true),
		},
		BodyLimit: security.BodyLimit{Max: cfg.BodyLimitBytes},
		AdminKey:  security.AdminKey{Key: cfg.AdminAPIKey},
		RateLimit: ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "grocery:ratelimit:"},
			Config: ratelimit.Config{
				Key:    ratelimit.KeyByClientIP("pricing"),
				Window: cfg.RateLimitWindow,
				Max:    cfg.RateLimitMax,
			},
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limiter_unavailable") },
		},
		Idem: common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		Health: health.Handler{
			Checker:      health.Deps{DB: pool, Redis: redisClient},
			DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		},
		Stores:       stores.NewHandler(storeService),
		Discounts:    &discount.Handler{Svc: discountSvc, DefaultPerPage: envInt("ADMIN_DEFAULT_PER_PAGE", 20)},
		Audit:        auditRecorder,
		AuditLogs:    audit.Handler{Store: auditStore},
		PprofEnabled: envBool("OBS_ENABLE_PPROF", false),
		PprofUser:    envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""),
		PprofPass:    envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", ""),
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-sigCtx.Done():
		health.SetReady(false)
		logger.Info().Msg("server draining")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}
}

// storeDirectory selects the external directory service when configured and
// falls back to the local stores table otherwise.
func storeDirectory(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) stores.Directory {
	if cfg.StoreDirectoryURL == "" {
		return &stores.PGDirectory{Pool: pool}
	}
	breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).
		WithTarget("store_directory").
		WithLogger(logger)
	return &stores.HTTPDirectory{
		Client: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     cfg.StoreDirectoryTimeout,
		},
		BaseURL: cfg.StoreDirectoryURL,
		Logger:  logger.With().Str("component", "store_directory").Logger(),
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	return common.AtoiDefault(strings.TrimSpace(os.Getenv(key)), fallback)
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
