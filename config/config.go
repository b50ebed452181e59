package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"harmonic-signals/internal/patterns"
)

type Config struct {
	HarmonicConfig HarmonicConfig `json:"harmonic"`
	FeedConfig     FeedConfig     `json:"feed"`
	EngineConfig   EngineConfig   `json:"engine"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	ServerConfig   ServerConfig   `json:"server"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
	AuthConfig     AuthConfig     `json:"auth"`
}

// HarmonicConfig holds the default settings of every strategy instance
type HarmonicConfig struct {
	TradeSize    float64         `json:"trade_size"`
	EWRate       float64         `json:"ew_rate"`       // Entry window rate on the C->D leg
	TPRate       float64         `json:"tp_rate"`       // Take-profit rate on the C->D leg
	SLRate       float64         `json:"sl_rate"`       // Stop-loss rate (negative = beyond D)
	ShowPatterns bool            `json:"show_patterns"` // Include matched patterns in results
	ShowFib      map[string]bool `json:"show_fib"`      // Enabled fib labels, e.g. {"0.618": true}
	DojiPolicy   string          `json:"doji_policy"`   // "inclusive" or "carry_forward"
}

// FeedConfig holds the market data REST feed configuration
type FeedConfig struct {
	BaseURL        string  `json:"base_url"`
	KlineLimit     int     `json:"kline_limit"`      // Candles fetched per poll
	RequestsPerSec float64 `json:"requests_per_sec"` // Client-side rate limit
	TimeoutSecs    int     `json:"timeout_secs"`
	MaxRetries     int     `json:"max_retries"`
}

// EngineConfig holds the polling engine configuration
type EngineConfig struct {
	Enabled      bool          `json:"enabled"`
	PollInterval time.Duration `json:"poll_interval"`
	Watchlist    []string      `json:"watchlist"`    // "SYMBOL:interval" entries
	WorkerCount  int           `json:"worker_count"` // Concurrent fetches in ScanOnce
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // Comma separated CORS origins
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
	RateLimit       int    `json:"rate_limit"`       // Requests per minute per path
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for result caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 mount
	SecretPath string `json:"secret_path"` // Path of the service secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// AuthConfig holds bearer token verification for mutating endpoints
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
	if err != nil {
		// If no config file, start with defaults
		cfg = Default()
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		HarmonicConfig: HarmonicConfig{
			TradeSize:    1,
			EWRate:       0.382,
			TPRate:       0.618,
			SLRate:       -0.236,
			ShowPatterns: true,
			ShowFib:      patterns.AllFibLabels(),
			DojiPolicy:   "inclusive",
		},
		FeedConfig: FeedConfig{
			BaseURL:        "https://api.binance.com",
			KlineLimit:     500,
			RequestsPerSec: 10,
			TimeoutSecs:    10,
			MaxRetries:     3,
		},
		EngineConfig: EngineConfig{
			Enabled:      true,
			PollInterval: 30 * time.Second,
			Watchlist:    []string{"BTCUSDT:1h"},
			WorkerCount:  4,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
			RateLimit:       120,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "harmonic",
			Database: "harmonic_signals",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "harmonic-signals",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Harmonic defaults
	cfg.HarmonicConfig.TradeSize = getEnvFloatOrDefault("HARMONIC_TRADE_SIZE", cfg.HarmonicConfig.TradeSize)
	cfg.HarmonicConfig.EWRate = getEnvFloatOrDefault("HARMONIC_EW_RATE", cfg.HarmonicConfig.EWRate)
	cfg.HarmonicConfig.TPRate = getEnvFloatOrDefault("HARMONIC_TP_RATE", cfg.HarmonicConfig.TPRate)
	cfg.HarmonicConfig.SLRate = getEnvFloatOrDefault("HARMONIC_SL_RATE", cfg.HarmonicConfig.SLRate)
	cfg.HarmonicConfig.ShowPatterns = getEnvBoolOrDefault("HARMONIC_SHOW_PATTERNS", cfg.HarmonicConfig.ShowPatterns)
	cfg.HarmonicConfig.DojiPolicy = getEnvOrDefault("HARMONIC_DOJI_POLICY", cfg.HarmonicConfig.DojiPolicy)
	if labels := os.Getenv("HARMONIC_SHOW_FIB"); labels != "" {
		cfg.HarmonicConfig.ShowFib = parseLabelSet(labels)
	}

	// Feed config
	cfg.FeedConfig.BaseURL = getEnvOrDefault("FEED_BASE_URL", cfg.FeedConfig.BaseURL)
	cfg.FeedConfig.KlineLimit = getEnvIntOrDefault("FEED_KLINE_LIMIT", cfg.FeedConfig.KlineLimit)
	cfg.FeedConfig.RequestsPerSec = getEnvFloatOrDefault("FEED_REQUESTS_PER_SEC", cfg.FeedConfig.RequestsPerSec)
	cfg.FeedConfig.TimeoutSecs = getEnvIntOrDefault("FEED_TIMEOUT_SECS", cfg.FeedConfig.TimeoutSecs)
	cfg.FeedConfig.MaxRetries = getEnvIntOrDefault("FEED_MAX_RETRIES", cfg.FeedConfig.MaxRetries)

	// Engine config
	cfg.EngineConfig.Enabled = getEnvBoolOrDefault("ENGINE_ENABLED", cfg.EngineConfig.Enabled)
	cfg.EngineConfig.PollInterval = getEnvDurationOrDefault("ENGINE_POLL_INTERVAL", cfg.EngineConfig.PollInterval)
	cfg.EngineConfig.WorkerCount = getEnvIntOrDefault("ENGINE_WORKER_COUNT", cfg.EngineConfig.WorkerCount)
	if watchlist := os.Getenv("ENGINE_WATCHLIST"); watchlist != "" {
		cfg.EngineConfig.Watchlist = splitList(watchlist)
	}

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", cfg.ServerConfig.ReadTimeout)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", cfg.ServerConfig.WriteTimeout)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)
	cfg.ServerConfig.RateLimit = getEnvIntOrDefault("SERVER_RATE_LIMIT", cfg.ServerConfig.RateLimit)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CA_CERT", cfg.VaultConfig.CACert)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.AuthConfig.Issuer)
}

// Validate checks the settings the engine cannot run without
func (c *Config) Validate() error {
	if c.EngineConfig.PollInterval <= 0 {
		return fmt.Errorf("engine poll interval must be positive, got %s", c.EngineConfig.PollInterval)
	}
	if c.EngineConfig.WorkerCount <= 0 {
		return fmt.Errorf("engine worker count must be positive, got %d", c.EngineConfig.WorkerCount)
	}
	if c.FeedConfig.KlineLimit <= 0 {
		return fmt.Errorf("feed kline limit must be positive, got %d", c.FeedConfig.KlineLimit)
	}
	for label := range c.HarmonicConfig.ShowFib {
		if !patterns.IsFibLabel(label) {
			return fmt.Errorf("unknown fib label %q", label)
		}
	}
	for _, entry := range c.EngineConfig.Watchlist {
		if _, _, err := ParseStream(entry); err != nil {
			return err
		}
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return fmt.Errorf("auth is enabled but no JWT secret is configured")
	}
	return nil
}

// ParseStream splits a "SYMBOL:interval" watchlist entry
func ParseStream(entry string) (symbol, interval string, err error) {
	parts := strings.Split(strings.TrimSpace(entry), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid watchlist entry %q, expected SYMBOL:interval", entry)
	}
	return strings.ToUpper(parts[0]), parts[1], nil
}

func parseLabelSet(value string) map[string]bool {
	set := make(map[string]bool)
	for _, label := range splitList(value) {
		if canonical, ok := patterns.CanonicalFibLabel(label); ok {
			label = canonical
		}
		set[label] = true
	}
	return set
}

// Origins returns the configured CORS origins as a list
func (s ServerConfig) Origins() []string {
	return splitList(s.AllowedOrigins)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	// json merges into a non-nil map, so the file's show_fib must start empty
	config.HarmonicConfig.ShowFib = nil
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if config.HarmonicConfig.ShowFib == nil {
		config.HarmonicConfig.ShowFib = patterns.AllFibLabels()
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Default()
	config.EngineConfig.Watchlist = []string{"BTCUSDT:1h", "ETHUSDT:4h"}
	config.DatabaseConfig.Enabled = true
	config.DatabaseConfig.Password = "change_me"
	config.RedisConfig.Enabled = true

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
