package cli

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the environment-driven settings shared by every command:
// node endpoints, transport tuning, optional Redis resume-point storage, and
// observability toggles.
type Config struct {
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"false"`

	RPCEndpoint string        `envconfig:"STARKNET_RPC_URL" required:"true"`
	WSEndpoint  string        `envconfig:"STARKNET_WS_URL"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"5s"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisUsername string `envconfig:"REDIS_USERNAME"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// loadConfig reads the configuration from the process environment.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
