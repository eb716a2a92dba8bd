package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kisanmitra/internal/api"
	"kisanmitra/internal/config"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/redis"
	"kisanmitra/internal/service/ai"
	"kisanmitra/internal/storage"
	"kisanmitra/internal/transliterate"
	"kisanmitra/internal/worker"
)

func main() {
	cfgPath := os.Getenv("KISANMITRA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logg, err := logger.New(cfg.BasicConfig.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logg.Sync()

	deps := api.Deps{
		RequestTimeout: cfg.RequestTimeout(),
		RateLimit:      cfg.BasicConfig.RateLimit,
		AllowedOrigins: cfg.BasicConfig.AllowedOrigins,
		Logger:         logg,
	}

	dbType := cfg.BasicConfig.Database
	if _, ok := cfg.Databases[dbType]; ok {
		db, err := storage.Open(dbType, cfg)
		if err != nil {
			logg.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		if err := storage.Migrate(db, dbType); err != nil {
			logg.Fatal("migrate database", zap.Error(err))
		}
		deps.Audit = storage.NewAudit(db)
		logg.Info("request audit enabled", zap.String("database", dbType))
	} else {
		logg.Info("request audit disabled, no database configured", zap.String("database", dbType))
	}

	translitOpts := []transliterate.Option{
		transliterate.WithHTTPClient(&http.Client{Timeout: cfg.TransliterationTimeout()}),
		transliterate.WithLogger(logg.Named("transliterate")),
	}
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			// The cache is an optimisation; run without it.
			logg.Warn("redis unavailable, transliteration cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			deps.Cache = rdb
			translitOpts = append(translitOpts, transliterate.WithCache(rdb, cfg.TransliterationCacheTTL()))
		}
	}
	deps.Transliterator = transliterate.NewClient(cfg.Transliteration.Endpoint, translitOpts...)

	aiService, err := ai.NewService(context.Background(), cfg, logg)
	if err != nil {
		logg.Fatal("init ai service", zap.Error(err))
	}
	deps.Replier = aiService

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: cfg.WorkerIdleTimeout(),
	}, logg)
	deps.Workers = dispatcher

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.NewHandler(deps).RegisterRoutes(router)

	server := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logg.Info("server listening",
			zap.String("address", server.Addr),
			zap.String("provider", aiService.Provider()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("server forced to shutdown", zap.Error(err))
	}
	dispatcher.Stop()
	logg.Info("server stopped")
}
