package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/clients"
	"voltwatch/backend/services/telemetry-service/internal/simulator"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	baseURL := flag.String("api", envOr("TELEMETRY_API_URL", "http://localhost:8084"), "telemetry API base URL")
	deviceID := flag.String("device", envOr("SIMULATOR_DEVICE_ID", "TEST_DEVICE_001"), "device id")
	name := flag.String("name", "Test IoT Device", "device name")
	location := flag.String("location", "Test Lab", "device location")
	interval := flag.Duration("interval", 10*time.Second, "reporting interval")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewLogger("device-simulator")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	api := clients.NewTelemetryClient(*baseURL, nil, logger)
	sim := simulator.New(api, simulator.Config{
		DeviceID: *deviceID,
		Name:     *name,
		Location: *location,
		Interval: *interval,
	}, nil, logger.With(zap.String("device_id", *deviceID)))

	if _, err := sim.Run(ctx); err != nil {
		logger.Fatal("simulator stopped", zap.Error(err))
	}
}
