package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Environments selecting the log setup
const (
	EnvLocal = "local"
	EnvDebug = "debug"
	EnvProd  = "prod"
)

// Default values
const (
	DefaultPort        = 8000
	DefaultMaxParallel = 8
	MinMaxParallel     = 1
	MaxMaxParallel     = 32
)

// ConfigPathEnv names the optional YAML config file
const ConfigPathEnv = "CONFIG_PATH"

// Config is the process configuration read from an optional YAML file and the environment
type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"prod"`
	LogLevel string   `yaml:"log_level" env:"LOG_LEVEL"`
	HTTP     HTTP     `yaml:"http"`
	Download Download `yaml:"download"`
}

// HTTP configures the listener
type HTTP struct {
	Host            string        `yaml:"host" env:"HOST" env-default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"PORT" env-default:"8000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"0s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// Download configures the job runner
type Download struct {
	Dir             string        `yaml:"dir" env:"DOWNLOAD_DIR" env-default:"downloads"`
	MaxParallel     int           `yaml:"max_parallel" env:"MAX_PARALLEL" env-default:"8"`
	ExtractorRPS    int           `yaml:"extractor_rps" env:"EXTRACTOR_RPS" env-default:"4"`
	InfoCacheTTL    time.Duration `yaml:"info_cache_ttl" env:"INFO_CACHE_TTL" env-default:"5m"`
	JobRetention    time.Duration `yaml:"job_retention" env:"JOB_RETENTION" env-default:"1h"`
	SweepInterval   time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"5m"`
	CleanupFiles    bool          `yaml:"cleanup_files" env:"CLEANUP_FILES" env-default:"false"`
	CookiePaths     []string      `yaml:"cookie_paths" env:"COOKIE_PATHS" env-separator:"," env-default:"/etc/secrets/cookies.txt,cookies.txt"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF" env-default:"1s"`
	PlaylistTimeout time.Duration `yaml:"playlist_timeout" env:"PLAYLIST_TIMEOUT" env-default:"60s"`
}

// Load reads the config file named by CONFIG_PATH when set, else the environment only
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and clamps the parallel limit
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDebug, EnvProd:
	default:
		return fmt.Errorf("unknown env %q: want %s, %s or %s", c.Env, EnvLocal, EnvDebug, EnvProd)
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.HTTP.Port)
	}

	if c.Download.Dir == "" {
		return fmt.Errorf("download dir is empty")
	}

	c.Download.MaxParallel = ClampMaxParallel(c.Download.MaxParallel)
	if c.Download.ExtractorRPS < 1 {
		c.Download.ExtractorRPS = 1
	}

	cookies := c.Download.CookiePaths[:0]
	for _, p := range c.Download.CookiePaths {
		if p = strings.TrimSpace(p); p != "" {
			cookies = append(cookies, p)
		}
	}
	c.Download.CookiePaths = cookies

	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}

// ClampMaxParallel keeps the parallel download limit in range
func ClampMaxParallel(count int) int {
	if count < MinMaxParallel {
		return MinMaxParallel
	}
	if count > MaxMaxParallel {
		return MaxMaxParallel
	}
	return count
}
