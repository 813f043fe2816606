package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "voltwatch/backend/libs/config"
	"voltwatch/backend/services/telemetry-service/internal/classifier"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const defaultPort = "8084"

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Port            string        `yaml:"port" env:"TELEMETRY_HTTP_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"TELEMETRY_HTTP_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig selects and tunes the durable store.
type DatabaseConfig struct {
	Driver       string        `yaml:"driver" env:"TELEMETRY_DB_DRIVER"`
	DSN          string        `yaml:"dsn" env:"TELEMETRY_POSTGRES_DSN"`
	AutoMigrate  bool          `yaml:"autoMigrate" env:"TELEMETRY_DB_AUTO_MIGRATE"`
	MaxOpenConns int           `yaml:"maxOpenConns" env:"TELEMETRY_DB_MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"maxIdleConns" env:"TELEMETRY_DB_MAX_IDLE_CONNS"`
	ConnLifetime time.Duration `yaml:"connLifetime" env:"TELEMETRY_DB_CONN_LIFETIME"`
}

// RedisConfig configures the latest-sample cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"TELEMETRY_REDIS_ENABLED"`
	Addr     string `yaml:"addr" env:"TELEMETRY_REDIS_ADDR"`
	Password string `yaml:"password" env:"TELEMETRY_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"TELEMETRY_REDIS_DB"`
	TTL      int    `yaml:"ttlSeconds" env:"TELEMETRY_REDIS_TTL"`
}

// LivenessConfig configures the inactivity sweep.
type LivenessConfig struct {
	Enabled       bool          `yaml:"enabled" env:"TELEMETRY_LIVENESS_ENABLED"`
	Timeout       time.Duration `yaml:"timeout" env:"TELEMETRY_LIVENESS_TIMEOUT"`
	Interval      time.Duration `yaml:"interval" env:"TELEMETRY_LIVENESS_INTERVAL"`
	DeviceTimeout time.Duration `yaml:"deviceTimeout" env:"TELEMETRY_LIVENESS_DEVICE_TIMEOUT"`
}

// StorageConfig bounds read operations.
type StorageConfig struct {
	ReadTimeout time.Duration `yaml:"readTimeout" env:"TELEMETRY_STORAGE_READ_TIMEOUT"`
}

// WebSocketConfig configures the device gateway.
type WebSocketConfig struct {
	Enabled      bool          `yaml:"enabled" env:"TELEMETRY_WS_ENABLED"`
	PingInterval time.Duration `yaml:"pingInterval" env:"TELEMETRY_WS_PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"TELEMETRY_WS_WRITE_TIMEOUT"`
}

// MQTTConfig configures the broker subscriber.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" env:"TELEMETRY_MQTT_ENABLED"`
	Broker      string `yaml:"broker" env:"TELEMETRY_MQTT_BROKER"`
	ClientID    string `yaml:"clientId" env:"TELEMETRY_MQTT_CLIENT_ID"`
	TopicPrefix string `yaml:"topicPrefix" env:"TELEMETRY_MQTT_TOPIC_PREFIX"`
	QoS         int    `yaml:"qos" env:"TELEMETRY_MQTT_QOS"`
	Username    string `yaml:"username" env:"TELEMETRY_MQTT_USERNAME"`
	Password    string `yaml:"password" env:"TELEMETRY_MQTT_PASSWORD"`
}

// Config defines telemetry service configuration.
type Config struct {
	HTTP       HTTPConfig        `yaml:"http"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Classifier classifier.Config `yaml:"classifier" env:"TELEMETRY_CLASSIFIER"`
	Liveness   LivenessConfig    `yaml:"liveness"`
	Storage    StorageConfig     `yaml:"storage"`
	WebSocket  WebSocketConfig   `yaml:"websocket"`
	MQTT       MQTTConfig        `yaml:"mqtt"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            defaultPort,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      DriverPostgres,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  600,
		},
		Classifier: classifier.DefaultConfig(),
		Liveness: LivenessConfig{
			Enabled:       true,
			Timeout:       5 * time.Minute,
			Interval:      30 * time.Second,
			DeviceTimeout: 2 * time.Second,
		},
		Storage: StorageConfig{
			ReadTimeout: 5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:      true,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "voltwatch-telemetry",
			TopicPrefix: "voltwatch/devices",
			QoS:         1,
		},
	}
}

// Load configuration using shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database dsn required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis addr required")
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Liveness.Enabled {
		if c.Liveness.Timeout <= 0 || c.Liveness.Interval <= 0 {
			return errors.New("config: liveness timeout and interval must be positive")
		}
	}
	if c.Storage.ReadTimeout < 0 {
		return errors.New("config: storage read timeout must not be negative")
	}
	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			return errors.New("config: mqtt broker required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("config: mqtt qos %d out of range", c.MQTT.QoS)
		}
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// LatestSampleTTL returns the cache ttl as duration.
func (c *Config) LatestSampleTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Redis.TTL) * time.Second
}
