package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voltwatch/backend/libs/db"
	"voltwatch/backend/libs/logging"
	redislib "voltwatch/backend/libs/redis"
	"voltwatch/backend/services/telemetry-service/internal/classifier"
	"voltwatch/backend/services/telemetry-service/internal/config"
	"voltwatch/backend/services/telemetry-service/internal/gateway"
	httpserver "voltwatch/backend/services/telemetry-service/internal/http"
	"voltwatch/backend/services/telemetry-service/internal/http/handlers"
	"voltwatch/backend/services/telemetry-service/internal/metrics"
	"voltwatch/backend/services/telemetry-service/internal/mqtt"
	redisstore "voltwatch/backend/services/telemetry-service/internal/redis"
	"voltwatch/backend/services/telemetry-service/internal/repository"
	"voltwatch/backend/services/telemetry-service/internal/service"
	"voltwatch/backend/services/telemetry-service/internal/ws"
)

// App wires telemetry service dependencies.
type App struct {
	server     *httpserver.Server
	handler    http.Handler
	query      *service.QueryService
	monitor    *service.LivenessMonitor
	wsManager  *ws.Manager
	subscriber *mqtt.Subscriber
	db         *sql.DB
	redis      *goredis.Client
	logger     *zap.Logger
}

// New constructs application components. ctx bounds startup and is the parent of
// every device connection.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	a := &App{logger: logger}

	devices, samples, err := a.openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var cache service.LatestCache
	if cfg.Redis.Enabled {
		client, err := redislib.NewRedisClient(ctx, redislib.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		cache = redisstore.NewLatestSampleCache(client, cfg.LatestSampleTTL())
	}

	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		a.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := service.NewRegistry(devices, m, logger.Named("registry"))
	telemetry := service.NewTelemetryStore(samples, registry, cls, cache, m, logger.Named("telemetry"))
	a.query = service.NewQueryService(registry, telemetry, cache, cfg.Storage.ReadTimeout, m, logger.Named("query"))
	a.monitor = service.NewLivenessMonitor(registry, service.LivenessConfig{
		Enabled:       cfg.Liveness.Enabled,
		Timeout:       cfg.Liveness.Timeout,
		Interval:      cfg.Liveness.Interval,
		DeviceTimeout: cfg.Liveness.DeviceTimeout,
	}, m, logger.Named("liveness"))

	deviceRouter := gateway.NewDeviceRouter(a.query)
	devicesHandler := handlers.NewDevicesHandler(a.query, logger)
	routes := httpserver.Routes{
		Health:  handlers.NewHealthHandler(),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Devices: httpserver.DeviceRoutes{
			List:      devicesHandler.List,
			Register:  devicesHandler.Register,
			Get:       devicesHandler.Get,
			Heartbeat: devicesHandler.Heartbeat,
			SetStatus: devicesHandler.SetStatus,
			Voltage:   devicesHandler.Voltage,
			Logs:      devicesHandler.Logs,
			Series:    devicesHandler.Series,
			Summary:   devicesHandler.Summary,
		},
	}

	if cfg.WebSocket.Enabled {
		wsLogger := logger.Named("ws")
		a.wsManager = ws.NewManager(cfg.WebSocket.PingInterval, wsLogger)
		processor := gateway.NewProcessor(deviceRouter, "websocket", m, wsLogger)
		routes.Gateway = ws.NewServer(ctx, a.wsManager, processor, a.query.Heartbeat, cfg.WebSocket.WriteTimeout, wsLogger)
	}

	if cfg.MQTT.Enabled {
		a.subscriber = mqtt.NewSubscriber(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		}, deviceRouter, m, logger.Named("mqtt"))
	}

	middlewares := []func(http.Handler) http.Handler{httpserver.Recovery(logger), httpserver.Logging(logger)}
	router := httpserver.NewRouter(routes)
	a.handler = router
	for i := len(middlewares) - 1; i >= 0; i-- {
		a.handler = middlewares[i](a.handler)
	}
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, cfg.HTTP.ShutdownTimeout, logger, middlewares...)

	logger.Info("telemetry service configured",
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("websocket", cfg.WebSocket.Enabled),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
		zap.Float64("threshold", cls.Threshold()),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.DatabaseConfig) (service.DeviceStore, service.SampleStore, error) {
	if cfg.Driver == config.DriverMemory {
		store := repository.NewMemoryStore()
		return store, store, nil
	}

	sqlDB, err := db.NewPostgresDB(ctx, cfg.DSN, db.PoolOptions{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		ConnLifetime: cfg.ConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.db = sqlDB
	if cfg.AutoMigrate {
		if err := repository.EnsureSchema(ctx, sqlDB); err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	return repository.NewDeviceRepository(sqlDB), repository.NewSampleRepository(sqlDB), nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Query exposes the service facade to in-process callers such as the seeder.
func (a *App) Query() *service.QueryService {
	return a.query
}

// Run starts every component and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.monitor.Start(ctx) })
	if a.wsManager != nil {
		g.Go(func() error { return a.wsManager.Start(ctx) })
	}
	if a.subscriber != nil {
		g.Go(func() error { return a.subscriber.Start(ctx) })
	}
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
		a.db = nil
	}
}
