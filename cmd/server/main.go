package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "moviecatalog/internal/api/http"
	"moviecatalog/internal/app"
	"moviecatalog/internal/catalog"
	"moviecatalog/internal/domain/ports"
	"moviecatalog/internal/kv"
	"moviecatalog/internal/metrics"
	"moviecatalog/internal/records"
	mongorepo "moviecatalog/internal/repository/mongo"
	"moviecatalog/internal/session"
	"moviecatalog/internal/telemetry"
)

const (
	serviceName = "moviesync"
	// Remembered usernames outlive any single session.
	usernameTTL = 90 * 24 * time.Hour
)

func main() {
	envErr := godotenv.Load()
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn(".env load failed", slog.String("error", envErr.Error()))
	}
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	if !cfg.APIBaseURLSet {
		logger.Warn("API_BASE_URL not set, using default", slog.String("apiBaseURL", cfg.APIBaseURL))
	}
	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("apiBaseURL", cfg.APIBaseURL),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Duration("searchDebounce", cfg.SearchDebounce),
		slog.String("recordsBackend", cfg.RecordsBackend),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
		slog.Bool("readOnly", cfg.ReadOnly),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	redisClient := connectRedis(rootCtx, cfg.RedisURL, logger)

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:   cfg.APIBaseURL,
		Client:    httpClient,
		RateLimit: cfg.CatalogRateRPS,
		Logger:    logger,
	})
	search := buildSearch(cfg, catalogClient, redisClient, logger)

	repo, closeRecords, err := buildRecords(rootCtx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("records backend init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeRecords()

	var store kv.Store = kv.NewMemory(0)
	if redisClient != nil {
		store = kv.NewRedis(redisClient, usernameTTL)
	}

	manager := session.NewManager(session.Deps{
		Search:         search,
		Records:        records.NewSoftFail(repo, logger),
		Writer:         repo,
		KV:             store,
		Debounce:       cfg.SearchDebounce,
		PersistTimeout: cfg.PersistTimeout,
		ReadOnly:       cfg.ReadOnly,
		Logger:         logger,
	}, cfg.SessionIdleTTL)
	defer manager.Close()

	api := apihttp.NewServer(manager,
		apihttp.WithLogger(logger),
		apihttp.WithDetails(catalogClient),
		apihttp.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst),
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket view streams stay open indefinitely.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("movie sync service started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	api.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("movie sync service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// connectRedis returns nil when REDIS_URL is unset or the server is
// unreachable; callers fall back to in-process storage.
func connectRedis(ctx context.Context, rawURL string, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(rawURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory storage", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory storage", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildSearch(cfg app.Config, client *catalog.Client, redisClient *redis.Client, logger *slog.Logger) ports.SearchSource {
	if cfg.CacheDisabled {
		return client
	}
	opts := []catalog.CacheOption{
		catalog.WithCacheTTL(cfg.CacheTTL),
		catalog.WithCacheLogger(logger),
	}
	if redisClient != nil {
		opts = append(opts, catalog.WithCacheBackend(catalog.NewRedisCacheBackend(redisClient)))
	}
	return catalog.NewCachedSearch(client, cfg.CacheSize, opts...)
}

func buildRecords(ctx context.Context, cfg app.Config, httpClient *http.Client, logger *slog.Logger) (ports.RecordRepository, func(), error) {
	if cfg.RecordsBackend != "mongo" {
		return records.NewClient(records.Config{BaseURL: cfg.APIBaseURL, Client: httpClient}), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mongoClient, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		disconnect()
		return nil, nil, err
	}
	repo := mongorepo.NewRecordRepository(mongoClient, cfg.MongoDB, mongorepo.DefaultCollection)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	logger.Info("mongo records backend ready", slog.String("database", cfg.MongoDB))
	return repo, disconnect, nil
}
