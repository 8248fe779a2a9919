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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "overlaysync/internal/api/http"
	"overlaysync/internal/app"
	"overlaysync/internal/domain"
	"overlaysync/internal/metrics"
	"overlaysync/internal/niconico"
	"overlaysync/internal/observer"
	"overlaysync/internal/overlay"
	"overlaysync/internal/overlay/raster"
	"overlaysync/internal/registry"
	"overlaysync/internal/resolve"
	"overlaysync/internal/settings"
	"overlaysync/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Options{
		ServiceName: "overlaysync",
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "overlaysync"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Bool("redis", cfg.RedisURL != "" && !cfg.CacheDisabled),
		slog.Bool("mongo", cfg.MongoURI != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	redisClient := connectRedis(ctx, cfg, logger)
	mongoClient := connectMongo(ctx, cfg, logger)

	var store settings.Store = settings.NewMemoryStore()
	if mongoClient != nil {
		store = settings.NewMongoStore(mongoClient, cfg.MongoDatabase)
	}
	settingsSvc, err := settings.NewService(ctx, store, logger)
	if err != nil {
		logger.Error("settings load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client := niconico.NewClient(niconico.Config{
		SearchEndpoint:     cfg.SearchEndpoint,
		VideoEndpoint:      cfg.VideoEndpoint,
		VideoGuestEndpoint: cfg.VideoGuestEndpoint,
		ThreadsEndpoint:    cfg.ThreadsEndpoint,
		UserAgent:          cfg.UserAgent,
		Timeout:            cfg.UpstreamTimeout,
		RatePerSecond:      cfg.UpstreamRate,
		Redis:              redisClient,
		CacheTTL:           cfg.CacheTTL,
		Logger:             logger,
	})
	pipeline := resolve.NewPipeline(client, client, client, resolve.WithLogger(logger))

	var surfaceOpts []raster.Option
	if cfg.RasterFontPath != "" {
		commentFont, err := raster.LoadFont(cfg.RasterFontPath)
		if err != nil {
			logger.Error("comment font load failed", slog.String("path", cfg.RasterFontPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		surfaceOpts = append(surfaceOpts, raster.WithFont(commentFont, cfg.RasterFontSize))
	} else {
		logger.Warn("RASTER_FONT_PATH not set, Japanese comments will not render")
	}

	hub := observer.NewHub(logger)
	go hub.Run()

	sessions := registry.New(func(tabID string, vod registry.VOD, player *overlay.RemotePlayer) *overlay.Engine {
		surface := raster.New(raster.DefaultWidth, raster.DefaultHeight, surfaceOpts...)
		return overlay.New(surface, player,
			overlay.WithObserver(hub.ForTab(tabID)),
			overlay.WithLowPerformance(settingsSvc.Get().LowPerformance),
			overlay.WithLogger(logger.With(slog.String("tabId", tabID), slog.String("vod", vod.Key))),
		)
	}, logger)

	settingsSvc.OnChange(func(ctx context.Context, prev, next domain.Settings) {
		if prev.LowPerformance != next.LowPerformance {
			sessions.SetLowPerformance(ctx, next.LowPerformance)
		}
	})

	handler := apihttp.NewServer(pipeline,
		apihttp.WithSessions(sessions),
		apihttp.WithSettings(settingsSvc),
		apihttp.WithUpstreams(client),
		apihttp.WithObservers(hub),
		apihttp.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	sessions.Close(shutdownCtx)
	hub.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", slog.String("error", err.Error()))
		}
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// connectRedis returns nil when caching is disabled or Redis is unreachable.
func connectRedis(ctx context.Context, cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" || cfg.CacheDisabled {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, upstream cache disabled", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, upstream cache disabled", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return client
}

// connectMongo returns nil when no URI is configured or the server is
// unreachable; settings then live in memory.
func connectMongo(ctx context.Context, cfg app.Config, logger *slog.Logger) *mongo.Client {
	if strings.TrimSpace(cfg.MongoURI) == "" {
		return nil
	}
	client, err := settings.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Warn("mongo connect failed, settings kept in memory", slog.String("error", err.Error()))
		return nil
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Warn("mongo ping failed, settings kept in memory", slog.String("error", err.Error()))
		_ = client.Disconnect(context.Background())
		return nil
	}
	logger.Info("mongo connected", slog.String("database", cfg.MongoDatabase))
	return client
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
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
