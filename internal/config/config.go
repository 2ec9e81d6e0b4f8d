package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

var (
	ConfigInstance *Config
	configErr      error
	once           sync.Once
)

type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// StoreConfig selects the message and user store. DevUsers are created in
// the memory store at startup.
type StoreConfig struct {
	Driver   string
	DSN      string
	DevUsers []string
}

// RedisConfig configures the presence mirror. An empty URL disables it.
type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

type WebSocketConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	PongWait       time.Duration
	WriteWait      time.Duration
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig reads the process configuration once. A .env file in the
// working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}
		ConfigInstance, configErr = Load(viper.New())
	})
	return ConfigInstance, configErr
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 120*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("DEV_USERS", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_STATUS_TTL", 24*time.Hour)
	v.SetDefault("JWT_SECRET", "secret")
	v.SetDefault("JWT_EXPIRE", "24h")
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 64*1024)
	v.SetDefault("WS_PONG_WAIT", 60*time.Second)
	v.SetDefault("WS_WRITE_WAIT", 10*time.Second)
	v.SetDefault("WS_ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load builds a Config from v's defaults and environment and validates it.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetString("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
			DSN:      v.GetString("DATABASE_DSN"),
			DevUsers: splitList(v.GetString("DEV_USERS")),
		},
		Redis: RedisConfig{
			URL:       v.GetString("REDIS_URL"),
			StatusTTL: v.GetDuration("REDIS_STATUS_TTL"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			ExpirationTime: v.GetDuration("JWT_EXPIRE"),
		},
		WebSocket: WebSocketConfig{
			SendBuffer:     v.GetInt("WS_SEND_BUFFER"),
			MaxMessageSize: v.GetInt64("WS_MAX_MESSAGE_SIZE"),
			PongWait:       v.GetDuration("WS_PONG_WAIT"),
			WriteWait:      v.GetDuration("WS_WRITE_WAIT"),
			AllowedOrigins: splitList(v.GetString("WS_ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for store driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WebSocket.SendBuffer)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
