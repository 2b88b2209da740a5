package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/libs/auth"
	"github.com/jdtheefirst/creator-hq-sub000/libs/config"
	"github.com/jdtheefirst/creator-hq-sub000/libs/db"
	"github.com/jdtheefirst/creator-hq-sub000/libs/httpx"
	"github.com/jdtheefirst/creator-hq-sub000/libs/kafkax"
	otelx "github.com/jdtheefirst/creator-hq-sub000/libs/otel"
	"github.com/jdtheefirst/creator-hq-sub000/libs/runtime"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/booking"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/dispatch"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/email"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/events"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/handlers"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/storage"
)

func main() {
	if err := config.Load(os.Getenv("CONFIG_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	logger, err := runtime.NewLogger(service, runtime.LogOptions{
		Path:  config.String("LOG_PATH", ""),
		Debug: config.Bool("LOG_DEBUG", false),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Fatal("booking service stopped", zap.Error(err))
	}
}

func run(logger *zap.Logger, service string) error {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	sealer, err := buildSealer(logger)
	if err != nil {
		return err
	}
	store := storage.NewStore(pool, sealer)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	brokers := config.String("KAFKA_BROKERS", "")
	var publisher events.Publisher = events.NoopPublisher{}
	if list := kafkax.SplitBrokers(brokers); len(list) > 0 {
		writer := kafkax.NewWriter(list)
		defer func() { _ = writer.Close() }()
		publisher = events.NewKafkaPublisher(writer, config.String("KAFKA_TOPIC_PREFIX", "creatorhq"))
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Optional: true, Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; lifecycle events are not published")
	}

	templates, err := email.NewTemplates()
	if err != nil {
		return err
	}
	cal, closeCal, err := buildCalendar(logger, store)
	if err != nil {
		return err
	}
	defer closeCal()

	dispatcher := dispatch.New(buildMailer(logger), templates, cal, store, publisher, logger, dispatch.Config{
		TaskTimeout:    config.Duration("DISPATCH_TASK_TIMEOUT", 10*time.Second),
		MaxConcurrency: config.Int("DISPATCH_MAX_CONCURRENCY", 4),
	})

	calc, err := buildCalculator()
	if err != nil {
		return err
	}
	pay, err := buildPayments(logger)
	if err != nil {
		return err
	}

	svc := booking.New(store, calc, pay, dispatcher, logger, booking.Config{
		Currency:    config.String("CURRENCY", "usd"),
		MaxDuration: config.Int("MAX_DURATION_MINUTES", 480),
		DayStart:    config.Duration("BOOKING_DAY_START", 9*time.Hour),
		DayEnd:      config.Duration("BOOKING_DAY_END", 17*time.Hour),
		SlotStep:    config.Duration("SLOT_STEP", 15*time.Minute),
	})

	jwtSecret, err := config.RequiredString("AUTH_JWT_SECRET")
	if err != nil {
		return err
	}
	creatorAuth := auth.RequireAuth(auth.NewVerifier(jwtSecret, config.String("AUTH_JWT_AUDIENCE", "")))

	publicLimit, closeRedis, redisCheck := buildRateLimit(logger)
	defer closeRedis()
	if redisCheck != nil {
		checks = append(checks, *redisCheck)
	}

	bookingHandler := handlers.NewBookingHandler(svc, logger, handlers.WebhookConfig{
		Secret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		Tolerance: time.Duration(config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
	})

	router := chi.NewRouter()
	runtime.MountHealth(router, checks...)
	bookingHandler.Routes(router, creatorAuth, publicLimit)

	httpHandler := httpx.Chain(router,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: httpx.ParseOrigins(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("http server stopped")
	return nil
}

func buildRateLimit(logger *zap.Logger) (httpx.Middleware, func(), *runtime.ReadyCheck) {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 20)
	trustProxy := config.Bool("RATE_LIMIT_TRUST_PROXY", false)
	redisURL := config.String("REDIS_URL", "")
	if redisURL == "" {
		logger.Warn("REDIS_URL not set; using in-process rate limiting")
		return localRateLimit(perMinute, trustProxy), func() {}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL; using in-process rate limiting", zap.Error(err))
		return localRateLimit(perMinute, trustProxy), func() {}, nil
	}
	rdb := redis.NewClient(opts)
	limiter := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "booking:public")
	limiter.TrustProxy = trustProxy
	check := &runtime.ReadyCheck{Name: "redis", Optional: true, Check: httpx.RedisReadyCheck(rdb)}
	return limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), func() { _ = rdb.Close() }, check
}

func localRateLimit(perMinute int, trustProxy bool) httpx.Middleware {
	rl := httpx.NewRateLimiter(perMinute, time.Minute)
	rl.TrustProxy = trustProxy
	return rl.Middleware()
}
