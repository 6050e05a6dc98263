package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full configuration of the signal engine.
type Config struct {
	EngineConfig    EngineConfig    `json:"engine"`
	GeneratorConfig GeneratorConfig `json:"generator"`
	TrackerConfig   TrackerConfig   `json:"tracker"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	SessionConfig   SessionConfig   `json:"sessions"`
}

// EngineConfig holds the instrument universe and evaluation parameters shared
// by the generator and the tracker.
type EngineConfig struct {
	Symbols             []string `json:"symbols"`    // e.g. NIFTY50, BANKNIFTY, DOWJONES
	Timeframes          []string `json:"timeframes"` // subset of 1m,5m,15m,30m,1h,1d
	MinCandlesRequired  int      `json:"min_candles_required"`
	MinConfidenceToEmit float64  `json:"min_confidence_to_emit"`
	StopMultiplier      float64  `json:"stop_multiplier"`       // ATR multiple for the stop distance
	MinStopPercent      float64  `json:"min_stop_percent"`      // floor on stop distance as fraction of price
	RiskRewardFloor     float64  `json:"risk_reward_floor"`     // R:R below this raises an alert on the signal
	CandleFetchLimit    int      `json:"candle_fetch_limit"`    // window size requested per evaluation
	FetchRatePerSecond  float64  `json:"fetch_rate_per_second"` // sustained upstream request budget
	FetchBurst          int      `json:"fetch_burst"`           // burst allowance on top of the sustained rate
}

// GeneratorConfig drives the periodic signal generation loop.
type GeneratorConfig struct {
	PeriodSeconds          int     `json:"period_seconds"`
	FetchTimeoutSeconds    int     `json:"fetch_timeout_seconds"`
	RefreshIntervalSeconds int     `json:"refresh_interval_seconds"` // dedup window for ACTIVE signals
	ConfidenceEpsilon      float64 `json:"confidence_epsilon"`       // dedup confidence tolerance
	ExpirySeconds          int     `json:"expiry_seconds"`           // signal lifetime before timeout
	WorkerPoolSize         int     `json:"worker_pool_size"`
	CooldownBaseSeconds    int     `json:"cooldown_base_seconds"` // initial backoff after a fetch failure
	CooldownMaxSeconds     int     `json:"cooldown_max_seconds"`  // backoff cap
}

// TieBreakPolicy decides a single candle whose range covers both the stop and
// a target.
type TieBreakPolicy string

const (
	TieBreakConservative   TieBreakPolicy = "CONSERVATIVE"    // stop wins
	TieBreakAggressive     TieBreakPolicy = "AGGRESSIVE"      // target wins
	TieBreakTimestampOrder TieBreakPolicy = "TIMESTAMP_ORDER" // whichever level is nearer the open
)

// TrackerConfig drives the signal tracking loop.
type TrackerConfig struct {
	PeriodSeconds        int            `json:"period_seconds"`
	FetchTimeoutSeconds  int            `json:"fetch_timeout_seconds"`
	StopVsTargetTieBreak TieBreakPolicy `json:"stop_vs_target_tie_break"`
	UseCloseForStops     bool           `json:"use_close_for_stops"` // compare stop against close instead of low/high
}

// DatabaseConfig holds PostgreSQL connection settings for the signal store.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the candle window cache.
type RedisConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	PoolSize   int    `json:"pool_size"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// ServerConfig holds the ops HTTP server settings (health, metrics, event
// fan-out websocket).
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Console bool   `json:"console"` // human-readable console writer instead of JSON
}

// SessionConfig maps symbols to trading venues.
type SessionConfig struct {
	// VenueBySymbol maps a symbol to a venue key understood by the session
	// package (e.g. "NSE", "US"). Symbols without an entry have no session
	// schedule and the tracker will not make close/expire decisions for them.
	VenueBySymbol map[string]string `json:"venue_by_symbol"`
}

// Load reads config.json if present, then applies environment overrides.
// A missing config file is not an error; the defaults cover a full run.
func Load() (*Config, error) {
	// .env is optional, ignore load errors
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if len(c.EngineConfig.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if len(c.EngineConfig.Timeframes) == 0 {
		return fmt.Errorf("config: at least one timeframe is required")
	}
	if c.EngineConfig.MinCandlesRequired < 2 {
		return fmt.Errorf("config: min_candles_required must be at least 2, got %d", c.EngineConfig.MinCandlesRequired)
	}
	if c.EngineConfig.StopMultiplier <= 0 {
		return fmt.Errorf("config: stop_multiplier must be positive, got %v", c.EngineConfig.StopMultiplier)
	}
	if c.EngineConfig.MinStopPercent <= 0 || c.EngineConfig.MinStopPercent >= 1 {
		return fmt.Errorf("config: min_stop_percent must be in (0,1), got %v", c.EngineConfig.MinStopPercent)
	}
	if c.EngineConfig.RiskRewardFloor <= 0 {
		return fmt.Errorf("config: risk_reward_floor must be positive, got %v", c.EngineConfig.RiskRewardFloor)
	}
	if c.EngineConfig.FetchRatePerSecond <= 0 || c.EngineConfig.FetchBurst < 1 {
		return fmt.Errorf("config: fetch rate budget must be positive, got %v rps burst %d",
			c.EngineConfig.FetchRatePerSecond, c.EngineConfig.FetchBurst)
	}
	switch c.TrackerConfig.StopVsTargetTieBreak {
	case TieBreakConservative, TieBreakAggressive, TieBreakTimestampOrder:
	default:
		return fmt.Errorf("config: unknown tie-break policy %q", c.TrackerConfig.StopVsTargetTieBreak)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Engine
	if v := os.Getenv("ENGINE_SYMBOLS"); v != "" {
		cfg.EngineConfig.Symbols = splitList(v)
	}
	if v := os.Getenv("ENGINE_TIMEFRAMES"); v != "" {
		cfg.EngineConfig.Timeframes = splitList(v)
	}
	cfg.EngineConfig.MinCandlesRequired = getEnvIntOrDefault("ENGINE_MIN_CANDLES", cfg.EngineConfig.MinCandlesRequired)
	cfg.EngineConfig.MinConfidenceToEmit = getEnvFloatOrDefault("ENGINE_MIN_CONFIDENCE", cfg.EngineConfig.MinConfidenceToEmit)
	cfg.EngineConfig.StopMultiplier = getEnvFloatOrDefault("ENGINE_STOP_MULTIPLIER", cfg.EngineConfig.StopMultiplier)
	cfg.EngineConfig.MinStopPercent = getEnvFloatOrDefault("ENGINE_MIN_STOP_PERCENT", cfg.EngineConfig.MinStopPercent)
	cfg.EngineConfig.RiskRewardFloor = getEnvFloatOrDefault("ENGINE_RISK_REWARD_FLOOR", cfg.EngineConfig.RiskRewardFloor)
	cfg.EngineConfig.CandleFetchLimit = getEnvIntOrDefault("ENGINE_CANDLE_FETCH_LIMIT", cfg.EngineConfig.CandleFetchLimit)
	cfg.EngineConfig.FetchRatePerSecond = getEnvFloatOrDefault("ENGINE_FETCH_RATE_PER_SECOND", cfg.EngineConfig.FetchRatePerSecond)
	cfg.EngineConfig.FetchBurst = getEnvIntOrDefault("ENGINE_FETCH_BURST", cfg.EngineConfig.FetchBurst)

	// Generator
	cfg.GeneratorConfig.PeriodSeconds = getEnvIntOrDefault("GENERATOR_PERIOD_SECONDS", cfg.GeneratorConfig.PeriodSeconds)
	cfg.GeneratorConfig.FetchTimeoutSeconds = getEnvIntOrDefault("GENERATOR_FETCH_TIMEOUT_SECONDS", cfg.GeneratorConfig.FetchTimeoutSeconds)
	cfg.GeneratorConfig.RefreshIntervalSeconds = getEnvIntOrDefault("GENERATOR_REFRESH_INTERVAL_SECONDS", cfg.GeneratorConfig.RefreshIntervalSeconds)
	cfg.GeneratorConfig.ExpirySeconds = getEnvIntOrDefault("GENERATOR_EXPIRY_SECONDS", cfg.GeneratorConfig.ExpirySeconds)
	cfg.GeneratorConfig.WorkerPoolSize = getEnvIntOrDefault("GENERATOR_WORKER_POOL_SIZE", cfg.GeneratorConfig.WorkerPoolSize)

	// Tracker
	cfg.TrackerConfig.PeriodSeconds = getEnvIntOrDefault("TRACKER_PERIOD_SECONDS", cfg.TrackerConfig.PeriodSeconds)
	cfg.TrackerConfig.FetchTimeoutSeconds = getEnvIntOrDefault("TRACKER_FETCH_TIMEOUT_SECONDS", cfg.TrackerConfig.FetchTimeoutSeconds)
	if v := os.Getenv("TRACKER_TIE_BREAK"); v != "" {
		cfg.TrackerConfig.StopVsTargetTieBreak = TieBreakPolicy(strings.ToUpper(v))
	}

	// Database
	if v := os.Getenv("DB_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Server
	if v := os.Getenv("SERVER_ENABLED"); v != "" {
		cfg.ServerConfig.Enabled = v == "true"
	}
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_CONSOLE"); v != "" {
		cfg.LoggingConfig.Console = v == "true"
	}
}

func applyDefaults(cfg *Config) {
	if len(cfg.EngineConfig.Symbols) == 0 {
		cfg.EngineConfig.Symbols = []string{"NIFTY50", "BANKNIFTY"}
	}
	if len(cfg.EngineConfig.Timeframes) == 0 {
		cfg.EngineConfig.Timeframes = []string{"5m"}
	}
	if cfg.EngineConfig.MinCandlesRequired == 0 {
		cfg.EngineConfig.MinCandlesRequired = 30
	}
	if cfg.EngineConfig.MinConfidenceToEmit == 0 {
		cfg.EngineConfig.MinConfidenceToEmit = 55
	}
	if cfg.EngineConfig.StopMultiplier == 0 {
		cfg.EngineConfig.StopMultiplier = 1.5
	}
	if cfg.EngineConfig.MinStopPercent == 0 {
		cfg.EngineConfig.MinStopPercent = 0.005
	}
	if cfg.EngineConfig.RiskRewardFloor == 0 {
		cfg.EngineConfig.RiskRewardFloor = 1.0
	}
	if cfg.EngineConfig.CandleFetchLimit == 0 {
		cfg.EngineConfig.CandleFetchLimit = 200
	}
	if cfg.EngineConfig.FetchRatePerSecond == 0 {
		cfg.EngineConfig.FetchRatePerSecond = 5
	}
	if cfg.EngineConfig.FetchBurst == 0 {
		cfg.EngineConfig.FetchBurst = 10
	}
	if cfg.GeneratorConfig.PeriodSeconds == 0 {
		cfg.GeneratorConfig.PeriodSeconds = 60
	}
	if cfg.GeneratorConfig.FetchTimeoutSeconds == 0 {
		cfg.GeneratorConfig.FetchTimeoutSeconds = 10
	}
	if cfg.GeneratorConfig.RefreshIntervalSeconds == 0 {
		cfg.GeneratorConfig.RefreshIntervalSeconds = 120
	}
	if cfg.GeneratorConfig.ConfidenceEpsilon == 0 {
		cfg.GeneratorConfig.ConfidenceEpsilon = 5
	}
	if cfg.GeneratorConfig.ExpirySeconds == 0 {
		cfg.GeneratorConfig.ExpirySeconds = 14400
	}
	if cfg.GeneratorConfig.WorkerPoolSize == 0 {
		cfg.GeneratorConfig.WorkerPoolSize = 4
	}
	if cfg.GeneratorConfig.CooldownBaseSeconds == 0 {
		cfg.GeneratorConfig.CooldownBaseSeconds = 5
	}
	if cfg.GeneratorConfig.CooldownMaxSeconds == 0 {
		cfg.GeneratorConfig.CooldownMaxSeconds = 300
	}
	if cfg.TrackerConfig.PeriodSeconds == 0 {
		cfg.TrackerConfig.PeriodSeconds = 60
	}
	if cfg.TrackerConfig.FetchTimeoutSeconds == 0 {
		cfg.TrackerConfig.FetchTimeoutSeconds = 10
	}
	if cfg.TrackerConfig.StopVsTargetTieBreak == "" {
		cfg.TrackerConfig.StopVsTargetTieBreak = TieBreakConservative
	}
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.RedisConfig.TTLSeconds == 0 {
		cfg.RedisConfig.TTLSeconds = 30
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.SessionConfig.VenueBySymbol == nil {
		cfg.SessionConfig.VenueBySymbol = map[string]string{
			"NIFTY50":   "NSE",
			"BANKNIFTY": "NSE",
			"DOWJONES":  "US",
		}
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GeneratorPeriod returns the generator tick interval.
func (c *Config) GeneratorPeriod() time.Duration {
	return time.Duration(c.GeneratorConfig.PeriodSeconds) * time.Second
}

// TrackerPeriod returns the tracker tick interval.
func (c *Config) TrackerPeriod() time.Duration {
	return time.Duration(c.TrackerConfig.PeriodSeconds) * time.Second
}

// FetchTimeout returns the generator's upstream fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.GeneratorConfig.FetchTimeoutSeconds) * time.Second
}

// RefreshInterval returns the generator dedup window.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.GeneratorConfig.RefreshIntervalSeconds) * time.Second
}

// Expiry returns the signal lifetime before timeout.
func (c *Config) Expiry() time.Duration {
	return time.Duration(c.GeneratorConfig.ExpirySeconds) * time.Second
}
