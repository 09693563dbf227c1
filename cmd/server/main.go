// Command server 启动 coin/post 相似度打分服务。
//
// 配置加载顺序：默认值 → -config 指定的 YAML（或 CONFIG_FILE）→ .env → 环境变量。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/siddharth-shringarpure/CloutChain/api"
	"github.com/siddharth-shringarpure/CloutChain/config"
	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/enrich"
	"github.com/siddharth-shringarpure/CloutChain/observability"
	"github.com/siddharth-shringarpure/CloutChain/pkg/dsl"
	"github.com/siddharth-shringarpure/CloutChain/preprocess"
	"github.com/siddharth-shringarpure/CloutChain/scoring"
	"github.com/siddharth-shringarpure/CloutChain/service"
	"github.com/siddharth-shringarpure/CloutChain/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	gin.SetMode(cfg.Server.Mode)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("cloutchain")
	}

	caps, err := service.NewCapabilities(&cfg.Capabilities)
	if err != nil {
		return fmt.Errorf("init capabilities: %w", err)
	}
	defer caps.Close()

	text := enrich.NewTextEnricher(caps.TextEmbedder, caps.Sentiment)
	image := enrich.NewImageEnricher(caps.Fetcher, caps.ImageEmbedder, caps.OCR).
		WithMinConfidence(cfg.Scoring.OCRConfidence).
		WithBlankImageURL(cfg.BlankImage.URL).
		WithLogger(logger)
	if metrics != nil {
		image.WithDegradeRecorder(metrics)
	}

	p := preprocess.NewPreprocessor(text, image)
	p.Workers = cfg.Scoring.Workers
	p.DecayRate = cfg.Scoring.DecayRate
	p.Logger = logger

	filter, err := dsl.NewRecordFilter(cfg.Scoring.Filter)
	if err != nil {
		return fmt.Errorf("compile scoring.filter: %w", err)
	}

	scorer := scoring.NewScorer(p).
		WithWeights(cfg.Scoring.Weights).
		WithFilter(filter).
		WithMetrics(metrics).
		WithLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resultStore, err := newResultStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	if resultStore != nil {
		defer resultStore.Close()
		scorer.WithCache(scoring.NewResultCache(resultStore, cfg.Cache.TTL))
	}

	router := api.NewRouter(&api.Config{
		Handler:     api.NewHandler(scorer, caps, logger),
		Metrics:     metrics,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":  cfg.Server.Addr,
			"cache": cfg.Cache.Backend,
		}).Info("scoring server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal, gracefully shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newResultStore 按配置创建结果缓存的存储，backend 为 none 时返回 nil
func newResultStore(ctx context.Context, cfg config.CacheConfig) (core.Store, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory:
		return store.NewMemoryStore(time.Minute), nil
	case config.CacheBackendRedis:
		return store.NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, nil
	}
}
