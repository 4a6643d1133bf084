package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlusby/temperature-monitor/internal/app"
	"github.com/mlusby/temperature-monitor/internal/config"
	"github.com/mlusby/temperature-monitor/internal/expiry"
	"github.com/mlusby/temperature-monitor/internal/httpapi"
	"github.com/mlusby/temperature-monitor/internal/ingest"
	"github.com/mlusby/temperature-monitor/internal/logging"
	"github.com/mlusby/temperature-monitor/internal/mqtt"
	"github.com/mlusby/temperature-monitor/internal/observability"
	"github.com/mlusby/temperature-monitor/internal/ratelimit"
)

const serviceName = "temperature-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel, serviceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, promHandler, tracer, err := observability.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("observability setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTelemetry(sctx)
	}()

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		slog.Error("store open failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close() }()
	slog.Info("store ready", "backend", cfg.StoreBackend, "table", backend.Table)

	handlers := app.NewHandlers(cfg, backend, tracer)

	if backend.Purger != nil && cfg.ExpirySweepSchedule != "" {
		if err := expiry.New(backend.Purger).Start(ctx, cfg.ExpirySweepSchedule); err != nil {
			slog.Error("expiry sweep schedule invalid", "schedule", cfg.ExpirySweepSchedule, "error", err)
			os.Exit(1)
		}
		slog.Info("expiry sweep scheduled", "schedule", cfg.ExpirySweepSchedule)
	}

	ing := &ingest.Ingestor{
		Writer:       handlers.StoreReading.Writer,
		TopicPrefix:  cfg.ReadingsTopicPrefix,
		AllowRetains: cfg.IngestRetained,
	}

	if cfg.MQTTBrokerURL != "" {
		mq, err := mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
		if err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()

		subTopic := ing.SubscriptionTopic()
		if err := mq.Subscribe(subTopic, func(m mqtt.Message) {
			ing.HandleMessage(ctx, m)
		}); err != nil {
			slog.Error("mqtt subscribe failed", "topic", subTopic, "error", err)
			os.Exit(1)
		}
		slog.Info("readings ingest subscribed", "topic", subTopic)
	}

	if len(cfg.KafkaBrokers) > 0 {
		reader := ingest.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer reader.Close()
		go func() {
			if err := ing.ConsumeKafka(ctx, reader); err != nil {
				slog.Error("kafka consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka ingest started", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	opts := httpapi.Options{
		StoreReading:  handlers.StoreReading,
		GetReadings:   handlers.GetReadings,
		ListSessions:  handlers.ListSessions,
		Pinger:        backend.Pinger,
		Metrics:       promHandler,
		Tracer:        tracer,
		ServiceName:   serviceName,
		ExposeDetails: cfg.ExposeErrorDetails,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		limiter := ratelimit.New(rdb, "rl:readings", ratelimit.LimiterConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst})
		opts.IngestLimiter = limiter.Middleware(ratelimit.KeyByIP)
		slog.Info("ingest rate limit enabled", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	}

	srv := httpapi.New(opts)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("temperature-service listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		slog.Info("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
}
