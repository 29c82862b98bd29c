package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the transport and HTTP API settings.
type Config struct {
	Port           string `env:"SERVER_PORT,default=:6060"`
	Origins        string `env:"ALLOWED_ORIGINS,default=*"`
	MaxMessageSize int64  `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize int    `env:"SEND_BUFFER_SIZE,default=256"`
	// RateLimitBurst messages may be sent per RateLimitRefillInterval.
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	// JWTSecret enables signature checks on presence queries.
	JWTSecret       string        `env:"JWT_SECRET"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	AllowedOrigins []string
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	cfg := Config{
		Port:                    ":6060",
		Origins:                 "*",
		MaxMessageSize:          4096,
		SendBufferSize:          256,
		RateLimitBurst:          20,
		RateLimitRefillInterval: time.Second,
		ShutdownTimeout:         10 * time.Second,
	}
	cfg.sanitize()
	return &cfg
}

// NewConfigFromEnv reads the configuration from the environment.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	cfg.sanitize()
	return &cfg, nil
}

// sanitize replaces invalid values with defaults.
func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = ":6060"
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = 256
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	if c.RateLimitRefillInterval <= 0 {
		c.RateLimitRefillInterval = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = parseOrigins(c.Origins)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
