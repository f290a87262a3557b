package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	dbconfig "trueinterview/pkg/database"
)

// EnvPrefix prefixes every environment override, e.g. TRUEINTERVIEW_HTTP_PORT
const EnvPrefix = "TRUEINTERVIEW"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP      *HTTPConfig      `mapstructure:"http"`
	WebSocket *WebSocketConfig `mapstructure:"websocket"`
	Database  *dbconfig.Config `mapstructure:"database"`
	Rooms     *RoomsConfig     `mapstructure:"rooms"`
	Log       *LogConfig       `mapstructure:"log"`
}

// HTTPConfig covers the listener and the gin side channel
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// Address returns host:port for the listener
func (h *HTTPConfig) Address() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// WebSocketConfig covers transport limits and heartbeats
type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// RoomsConfig covers room lifecycle timing and per-connection limits
type RoomsConfig struct {
	GracePeriod           time.Duration `mapstructure:"grace_period"`
	MaxAge                time.Duration `mapstructure:"max_age"`
	MaxIdle               time.Duration `mapstructure:"max_idle"`
	ReapInterval          time.Duration `mapstructure:"reap_interval"`
	InterviewerAutoCreate bool          `mapstructure:"interviewer_auto_create"`
	EditorIdleTimeout     time.Duration `mapstructure:"editor_idle_timeout"`
	RateLimit             int           `mapstructure:"rate_limit"`
	RateWindow            time.Duration `mapstructure:"rate_window"`
}

// LogConfig selects the logrus level and formatter
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FUNCTIONAL DISCOVERY: defaults match the browser client and monitoring agent,
// which expect the server on port 5001 and a five minute reconnection window
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            5001,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Mode:            "release",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			WriteTimeout:   5 * time.Second,
			SendBuffer:     100,
			ReadLimit:      1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Database: dbconfig.DefaultConfig(),
		Rooms: &RoomsConfig{
			GracePeriod:           5 * time.Minute,
			MaxAge:                24 * time.Hour,
			MaxIdle:               2 * time.Hour,
			ReapInterval:          time.Hour,
			InterviewerAutoCreate: false,
			EditorIdleTimeout:     3 * time.Second,
			RateLimit:             100,
			RateWindow:            time.Minute,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	switch c.HTTP.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("HTTP mode must be debug, release or test, got %q", c.HTTP.Mode)
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PongWait <= 0 {
		return fmt.Errorf("WebSocket pong wait must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("WebSocket ping interval must be positive and shorter than pong wait")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WebSocket send buffer must be positive")
	}
	if c.WebSocket.ReadLimit <= 0 {
		return fmt.Errorf("WebSocket read limit must be positive")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Rooms == nil {
		return fmt.Errorf("rooms configuration is required")
	}
	durations := map[string]time.Duration{
		"grace period":        c.Rooms.GracePeriod,
		"max age":             c.Rooms.MaxAge,
		"max idle":            c.Rooms.MaxIdle,
		"reap interval":       c.Rooms.ReapInterval,
		"editor idle timeout": c.Rooms.EditorIdleTimeout,
		"rate window":         c.Rooms.RateWindow,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("rooms %s must be positive", name)
		}
	}
	if c.Rooms.RateLimit <= 0 {
		return fmt.Errorf("rooms rate limit must be positive")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// SetDefaults registers every key so environment overrides resolve through AutomaticEnv
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.mode", d.HTTP.Mode)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.pong_wait", d.WebSocket.PongWait)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.send_buffer", d.WebSocket.SendBuffer)
	v.SetDefault("websocket.read_limit", d.WebSocket.ReadLimit)
	v.SetDefault("websocket.allowed_origins", d.WebSocket.AllowedOrigins)

	v.SetDefault("database.path", d.Database.DatabasePath)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.write_queue_size", d.Database.WriteQueueSize)

	v.SetDefault("rooms.grace_period", d.Rooms.GracePeriod)
	v.SetDefault("rooms.max_age", d.Rooms.MaxAge)
	v.SetDefault("rooms.max_idle", d.Rooms.MaxIdle)
	v.SetDefault("rooms.reap_interval", d.Rooms.ReapInterval)
	v.SetDefault("rooms.interviewer_auto_create", d.Rooms.InterviewerAutoCreate)
	v.SetDefault("rooms.editor_idle_timeout", d.Rooms.EditorIdleTimeout)
	v.SetDefault("rooms.rate_limit", d.Rooms.RateLimit)
	v.SetDefault("rooms.rate_window", d.Rooms.RateWindow)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration with precedence env > file > defaults
func Load(path string) (*Config, error) {
	return LoadWithViper(viper.New(), path)
}

// LoadWithViper loads into v, which may already carry bound CLI flags.
// FUNCTIONAL DISCOVERY: Configuration precedence: flags > env > file > defaults,
// with .env filling the environment before anything is read
func LoadWithViper(v *viper.Viper, path string) (*Config, error) {
	loadDotEnv(".env")

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			// Missing file is tolerated - environment/defaults still work
			logrus.WithField("path", path).Warn("Config file not found, using defaults")
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// loadDotEnv populates the process environment from files, never overriding set variables
func loadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}
}
