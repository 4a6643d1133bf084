package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/mlusby/temperature-monitor/internal/app"
	"github.com/mlusby/temperature-monitor/internal/config"
	"github.com/mlusby/temperature-monitor/internal/logging"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel, "temperature-lambda"))

	// The client is built once per container and reused across invocations.
	backend, err := app.OpenBackend(context.Background(), cfg)
	if err != nil {
		slog.Error("store open failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	h, err := app.NewHandlers(cfg, backend, nil).ByName(cfg.Handler)
	if err != nil {
		slog.Error("handler selection failed", "error", err)
		os.Exit(1)
	}
	slog.Info("lambda handler ready", "handler", cfg.Handler, "table", backend.Table)
	lambda.Start(proxy(h))
}

// loadConfig defaults the backend to DynamoDB and refuses SQLite, whose file
// would live on the function's ephemeral disk.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.WithDefault("store_backend", config.BackendDynamoDB))
	if err != nil {
		return nil, err
	}
	if cfg.StoreBackend == config.BackendSQLite {
		return nil, fmt.Errorf("store_backend %q is not supported on lambda", cfg.StoreBackend)
	}
	return cfg, nil
}
