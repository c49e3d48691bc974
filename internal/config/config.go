package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
)

const (
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultHistoryLimit   = 100
	defaultEnvFile        = ".env"
)

// Solver modes.
const (
	SolverLocal  = "local"
	SolverRemote = "remote"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	LogLevel             string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	InitialParameters    optimizer.Parameters
	Solver               SolverConfig
	Engine               EngineConfig
	Storage              StorageConfig
}

// SolverConfig selects which optimizer serves requests.
type SolverConfig struct {
	Mode        string
	URL         string
	Timeout     time.Duration
	MaxAttempts int
}

// EngineConfig tunes the local engine.
type EngineConfig struct {
	Strategy string
	Jitter   float64
	Seed     uint64
}

// StorageConfig selects where run history is kept.
type StorageConfig struct {
	Backend      string
	RedisURL     string
	PostgresDSN  string
	HistoryLimit int
	TTL          time.Duration
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string         `yaml:"port"`
	LogLevel             string         `yaml:"log_level"`
	ShutdownGracePeriod  string         `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string         `yaml:"read_header_timeout"`
	WriteTimeout         string         `yaml:"write_timeout"`
	IdleTimeout          string         `yaml:"idle_timeout"`
	EnableRequestLogging *bool          `yaml:"enable_request_logging"`
	RateLimit            *yamlRateLimit `yaml:"rate_limit"`
	Solver               yamlSolver     `yaml:"solver"`
	Engine               yamlEngine     `yaml:"engine"`
	Storage              yamlStorage    `yaml:"storage"`
	Parameters           *yaml.Node     `yaml:"parameters"`

	// params is Parameters decoded over optimizer.BaseParameters.
	params *optimizer.Parameters
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type yamlSolver struct {
	Mode        string `yaml:"mode"`
	URL         string `yaml:"url"`
	Timeout     string `yaml:"timeout"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type yamlEngine struct {
	Strategy string   `yaml:"strategy"`
	Jitter   *float64 `yaml:"jitter"`
	Seed     *uint64  `yaml:"seed"`
}

type yamlStorage struct {
	Backend      string `yaml:"backend"`
	RedisURL     string `yaml:"redis_url"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	HistoryLimit int    `yaml:"history_limit"`
	TTL          string `yaml:"ttl"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	LogLevel       *string
	SolverMode     *string
	SolverURL      *string
	Strategy       *string
	StorageBackend *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	envFile := ""
	if overrides != nil {
		envFile = overrides.EnvFile
	}
	if err := loadDotEnv(envFile); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	applyEnvConfig(&cfg)

	// Load from YAML file if specified
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		applyYAMLConfig(&cfg, yamlCfg)
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		LogLevel:             defaultLogLevel,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         120 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		InitialParameters:    optimizer.DefaultParameters(),
		Solver: SolverConfig{
			Mode:        SolverLocal,
			Timeout:     90 * time.Second,
			MaxAttempts: 3,
		},
		Engine: EngineConfig{
			Strategy: string(optimizer.StrategyBlend),
		},
		Storage: StorageConfig{
			Backend:      StorageMemory,
			HistoryLimit: defaultHistoryLimit,
		},
	}
}

// loadDotEnv reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing default file is fine.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if yamlCfg.Parameters != nil {
		params := optimizer.BaseParameters()
		if err := yamlCfg.Parameters.Decode(&params); err != nil {
			return nil, fmt.Errorf("parse YAML parameters: %w", err)
		}
		yamlCfg.params = &params
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	setDuration(&cfg.ShutdownGracePeriod, yamlCfg.ShutdownGracePeriod)
	setDuration(&cfg.ReadHeaderTimeout, yamlCfg.ReadHeaderTimeout)
	setDuration(&cfg.WriteTimeout, yamlCfg.WriteTimeout)
	setDuration(&cfg.IdleTimeout, yamlCfg.IdleTimeout)

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit != nil {
		if yamlCfg.RateLimit.RPS >= 0 {
			cfg.RateLimitRPS = yamlCfg.RateLimit.RPS
		}
		if yamlCfg.RateLimit.Burst >= 0 {
			cfg.RateLimitBurst = yamlCfg.RateLimit.Burst
		}
	}

	if yamlCfg.Solver.Mode != "" {
		cfg.Solver.Mode = yamlCfg.Solver.Mode
	}
	if yamlCfg.Solver.URL != "" {
		cfg.Solver.URL = yamlCfg.Solver.URL
	}
	setDuration(&cfg.Solver.Timeout, yamlCfg.Solver.Timeout)
	if yamlCfg.Solver.MaxAttempts > 0 {
		cfg.Solver.MaxAttempts = yamlCfg.Solver.MaxAttempts
	}

	if yamlCfg.Engine.Strategy != "" {
		cfg.Engine.Strategy = yamlCfg.Engine.Strategy
	}
	if yamlCfg.Engine.Jitter != nil {
		cfg.Engine.Jitter = *yamlCfg.Engine.Jitter
	}
	if yamlCfg.Engine.Seed != nil {
		cfg.Engine.Seed = *yamlCfg.Engine.Seed
	}

	if yamlCfg.Storage.Backend != "" {
		cfg.Storage.Backend = yamlCfg.Storage.Backend
	}
	if yamlCfg.Storage.RedisURL != "" {
		cfg.Storage.RedisURL = yamlCfg.Storage.RedisURL
	}
	if yamlCfg.Storage.PostgresDSN != "" {
		cfg.Storage.PostgresDSN = yamlCfg.Storage.PostgresDSN
	}
	if yamlCfg.Storage.HistoryLimit > 0 {
		cfg.Storage.HistoryLimit = yamlCfg.Storage.HistoryLimit
	}
	setDuration(&cfg.Storage.TTL, yamlCfg.Storage.TTL)

	if yamlCfg.params != nil {
		cfg.InitialParameters = *yamlCfg.params
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := env("PORT"); port != "" {
		cfg.Port = port
	}

	if level := env("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if rps := env("RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := env("RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if mode := env("SOLVER_MODE"); mode != "" {
		cfg.Solver.Mode = mode
	}

	if url := env("SOLVER_URL"); url != "" {
		cfg.Solver.URL = url
	}

	if strategy := env("ENGINE_STRATEGY"); strategy != "" {
		cfg.Engine.Strategy = strategy
	}

	if jitter := env("ENGINE_JITTER"); jitter != "" {
		if value, err := strconv.ParseFloat(jitter, 64); err == nil {
			cfg.Engine.Jitter = value
		}
	}

	if seed := env("ENGINE_SEED"); seed != "" {
		if value, err := strconv.ParseUint(seed, 10, 64); err == nil {
			cfg.Engine.Seed = value
		}
	}

	if backend := env("STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}

	if url := env("REDIS_URL"); url != "" {
		cfg.Storage.RedisURL = url
	}

	if dsn := env("DATABASE_URL"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}

	if limit := env("HISTORY_LIMIT"); limit != "" {
		if value, err := strconv.Atoi(limit); err == nil && value > 0 {
			cfg.Storage.HistoryLimit = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	setString(&cfg.Port, overrides.Port)
	setString(&cfg.LogLevel, overrides.LogLevel)
	setString(&cfg.Solver.Mode, overrides.SolverMode)
	setString(&cfg.Solver.URL, overrides.SolverURL)
	setString(&cfg.Engine.Strategy, overrides.Strategy)
	setString(&cfg.Storage.Backend, overrides.StorageBackend)

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}

	switch cfg.Solver.Mode {
	case SolverLocal:
	case SolverRemote:
		if cfg.Solver.URL == "" {
			return fmt.Errorf("solver url is required in %s mode", SolverRemote)
		}
		if cfg.WriteTimeout > 0 && cfg.Solver.Timeout >= cfg.WriteTimeout {
			return fmt.Errorf("solver timeout %s must be shorter than write_timeout %s", cfg.Solver.Timeout, cfg.WriteTimeout)
		}
	default:
		return fmt.Errorf("solver mode must be %q or %q, got %q", SolverLocal, SolverRemote, cfg.Solver.Mode)
	}

	if _, err := optimizer.ParseStrategy(cfg.Engine.Strategy); err != nil {
		return err
	}
	if math.IsNaN(cfg.Engine.Jitter) || cfg.Engine.Jitter < 0 || cfg.Engine.Jitter > 1 {
		return fmt.Errorf("engine jitter must be between 0 and 1, got %v", cfg.Engine.Jitter)
	}

	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if cfg.Storage.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s storage backend", StorageRedis)
		}
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s storage backend", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if err := cfg.InitialParameters.Validate(); err != nil {
		return fmt.Errorf("initial parameters: %w", err)
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
