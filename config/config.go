// Package config loads the spideysync configuration from a YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SPIDEY_SERVER_PORT.
const EnvPrefix = "SPIDEY_"

// DefaultPort is the UDP port clients send to unless configured otherwise.
const DefaultPort = 5154

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Levels    LevelsConfig    `yaml:"levels" envPrefix:"LEVELS_"`
	Sink      SinkConfig      `yaml:"sink" envPrefix:"SINK_"`
	Observers ObserversConfig `yaml:"observers" envPrefix:"OBSERVERS_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
}

// ServerConfig contains the UDP session configuration
type ServerConfig struct {
	// BindAddress empty means all interfaces.
	BindAddress string `yaml:"bind_address" env:"BIND_ADDRESS"`
	Port        int    `yaml:"port" env:"PORT"`
	// ReadBuffer is the kernel receive buffer in bytes; 0 keeps the OS default.
	ReadBuffer int `yaml:"read_buffer" env:"READ_BUFFER"`
}

type LevelsConfig struct {
	// File is a level table; empty uses the built-in table.
	File string `yaml:"file" env:"FILE"`
}

// sink kinds
const (
	SinkLog    = "log"
	SinkMemory = "memory"
)

type SinkConfig struct {
	Kind         string  `yaml:"kind" env:"KIND"`
	PID          int     `yaml:"pid" env:"PID"`
	Process      string  `yaml:"process" env:"PROCESS"`
	PlayerBase   Address `yaml:"player_base" env:"PLAYER_BASE"`
	PlayerStride Address `yaml:"player_stride" env:"PLAYER_STRIDE"`
	LevelBase    Address `yaml:"level_base" env:"LEVEL_BASE"`
	CountAddress Address `yaml:"count_address" env:"COUNT_ADDRESS"`
}

type ObserversConfig struct {
	QueueSize     int    `yaml:"queue_size" env:"QUEUE_SIZE"`
	NATSURL       string `yaml:"nats_url" env:"NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

type MetricsConfig struct {
	// Address of the /metrics endpoint; empty disables it.
	Address string `yaml:"address" env:"ADDRESS"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	// Output is stdout, stderr or a file path rotated by size.
	Output     string `yaml:"output" env:"OUTPUT"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// Address is a memory address accepting decimal or 0x prefixed hex.
type Address uint64

func (a *Address) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(strings.TrimSpace(string(text)), 0, 64)
	if err != nil {
		return fmt.Errorf("address %q: %w", text, err)
	}
	*a = Address(v)
	return nil
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: DefaultPort,
		},
		Sink: SinkConfig{
			Kind: SinkLog,
		},
		Observers: ObserversConfig{
			QueueSize:     256,
			SubjectPrefix: "spidey",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
	}
}

// Load reads path on top of Default. An empty path returns Default.
// The result is not validated yet since flags and environment may still
// override it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with SPIDEY_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("%w: server: %w", ErrInvalidConfig, err)
	}
	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("%w: sink: %w", ErrInvalidConfig, err)
	}
	if c.Observers.QueueSize < 1 {
		return fmt.Errorf("%w: observers: queue_size must be positive, got %d", ErrInvalidConfig, c.Observers.QueueSize)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	if s.BindAddress != "" && net.ParseIP(s.BindAddress) == nil {
		return fmt.Errorf("bind_address %q is not an IP address", s.BindAddress)
	}
	if s.ReadBuffer < 0 {
		return fmt.Errorf("read_buffer cannot be negative, got %d", s.ReadBuffer)
	}
	return nil
}

// BindIP is nil for all interfaces.
func (s *ServerConfig) BindIP() net.IP {
	if s.BindAddress == "" {
		return nil
	}
	return net.ParseIP(s.BindAddress)
}

func (s *SinkConfig) Validate() error {
	switch s.Kind {
	case SinkLog:
		return nil
	case SinkMemory:
		if s.PID <= 0 && s.Process == "" {
			return errors.New("memory sink needs pid or process")
		}
		if s.PlayerBase == 0 || s.PlayerStride == 0 {
			return errors.New("memory sink needs player_base and player_stride")
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn or error, got %q", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("format must be json or console, got %q", l.Format)
	}
	if l.Output == "" {
		return errors.New("output cannot be empty")
	}
	return nil
}
