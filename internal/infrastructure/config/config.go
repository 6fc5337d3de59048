package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LogConfig        `mapstructure:"logging"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`

	// File the values came from; empty when running on defaults+env only.
	Source string `mapstructure:"-"`
}

// ServerConfig configures the admin HTTP server and its sessions.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	JWTSecret       string `mapstructure:"jwt_secret"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours"`
}

// DatabaseConfig selects the embedded store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	DSN    string `mapstructure:"dsn"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// TelegramConfig tunes the polling workers. An empty APIEndpoint keeps
// the library default; tests point it at a local fake.
type TelegramConfig struct {
	APIEndpoint        string `mapstructure:"api_endpoint"`
	PollTimeoutSeconds int    `mapstructure:"poll_timeout_seconds"`
}

// LLMConfig tunes outbound provider calls.
type LLMConfig struct {
	RequestTimeoutSeconds    int `mapstructure:"request_timeout_seconds"`
	StreamIdleTimeoutSeconds int `mapstructure:"stream_idle_timeout_seconds"`
}

// SupervisorConfig tunes the bot lifecycle supervisor. The delay knobs
// exist so tests can shrink the start/stop waits.
type SupervisorConfig struct {
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
	StartDelayMs             int `mapstructure:"start_delay_ms"`
	StopQuiesceMs            int `mapstructure:"stop_quiesce_ms"`
}

// RequestTimeout returns the provider call timeout as a duration.
func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// StreamIdleTimeout returns the per-read SSE deadline as a duration.
func (c LLMConfig) StreamIdleTimeout() time.Duration {
	return time.Duration(c.StreamIdleTimeoutSeconds) * time.Second
}

// ReconcileInterval returns the reconciler period as a duration.
func (c SupervisorConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// StartDelay returns the pre-start settle wait as a duration.
func (c SupervisorConfig) StartDelay() time.Duration {
	return time.Duration(c.StartDelayMs) * time.Millisecond
}

// StopQuiesce returns the post-stop settle wait as a duration.
func (c SupervisorConfig) StopQuiesce() time.Duration {
	return time.Duration(c.StopQuiesceMs) * time.Millisecond
}

// SessionTTL returns the admin session lifetime as a duration.
func (c ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Load reads configuration. When path is non-empty that exact file is
// used; otherwise config.yaml is searched in ., ./config and
// /etc/botforge. Environment variables win over the file
// (BOTFORGE_SERVER_PORT overrides server.port).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/botforge")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("BOTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.jwt_secret", "botforge-dev-secret-change-me")
	v.SetDefault("server.session_ttl_hours", 24)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "botforge.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	v.SetDefault("telegram.api_endpoint", "")
	v.SetDefault("telegram.poll_timeout_seconds", 30)

	v.SetDefault("llm.request_timeout_seconds", 60)
	v.SetDefault("llm.stream_idle_timeout_seconds", 30)

	v.SetDefault("supervisor.reconcile_interval_seconds", 60)
	v.SetDefault("supervisor.start_delay_ms", 1000)
	v.SetDefault("supervisor.stop_quiesce_ms", 500)
}
