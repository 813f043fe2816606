package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/app"
	"voltwatch/backend/services/telemetry-service/internal/config"
	"voltwatch/backend/services/telemetry-service/internal/seed"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	// Seeding only needs the store.
	cfg.WebSocket.Enabled = false
	cfg.MQTT.Enabled = false
	cfg.Liveness.Enabled = false

	logger, err := logging.NewLogger("telemetry-seed")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init application", zap.Error(err))
	}
	defer application.Close()

	result, err := seed.New(application.Query(), nil, logger).Run(ctx)
	if err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	logger.Info("seeding completed",
		zap.Int("devices", result.Devices),
		zap.Int("samples", result.Samples),
		zap.Int("high", result.High),
	)
}
