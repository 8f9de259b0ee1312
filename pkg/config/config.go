// Package config loads the bulk job configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/batch"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/fetch"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of a bulk compliance job.
type Config struct {
	// CoreBaseURL is the core system API root (REQUIRED).
	CoreBaseURL string

	// Uploads is the directory holding one sub-directory per tracking id (REQUIRED).
	Uploads string

	// ConditionsFile is an optional YAML reason table.
	ConditionsFile string

	// Conditions is the reason table used for inactivity reasons.
	Conditions []compliance.Reason

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RateLimit is the core request budget per second. Zero disables pacing.
	RateLimit float64
	RateBurst int

	RequestTimeout time.Duration

	BatchSize       int
	MaxWorkerGroups int
	MaxRetryRounds  int

	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration

	LogLevel  string
	LogPretty bool
}

// DefaultConfig returns the defaults used when a variable is unset.
func DefaultConfig() Config {
	retry := fetch.DefaultRetryConfig()
	return Config{
		RateLimit:           0,
		RateBurst:           batch.DefaultMaxGroups,
		RequestTimeout:      120 * time.Second,
		BatchSize:           batch.DefaultSize,
		MaxWorkerGroups:     batch.DefaultMaxGroups,
		MaxRetryRounds:      10,
		RetryInitialBackoff: retry.InitialBackoff,
		RetryMaxBackoff:     retry.MaxBackoff,
		LogLevel:            string(logging.LevelInfo),
	}
}

// Load reads the configuration from environment variables and, if
// DRS_CONDITIONS_FILE is set, the reason table it names.
func Load() (Config, error) {
	def := DefaultConfig()
	cfg := Config{
		CoreBaseURL:    getEnv("CORE_BASE_URL", ""),
		Uploads:        getEnv("DRS_UPLOADS", ""),
		ConditionsFile: getEnv("DRS_CONDITIONS_FILE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimit:      getEnvFloat("CORE_RATE_LIMIT", def.RateLimit),
		RateBurst:      getEnvInt("CORE_RATE_BURST", def.RateBurst),
		RequestTimeout: getEnvDuration("CORE_REQUEST_TIMEOUT", def.RequestTimeout),

		BatchSize:       getEnvInt("BATCH_SIZE", def.BatchSize),
		MaxWorkerGroups: getEnvInt("MAX_WORKER_GROUPS", def.MaxWorkerGroups),
		MaxRetryRounds:  getEnvInt("MAX_RETRY_ROUNDS", def.MaxRetryRounds),

		RetryInitialBackoff: getEnvDuration("RETRY_INITIAL_BACKOFF", def.RetryInitialBackoff),
		RetryMaxBackoff:     getEnvDuration("RETRY_MAX_BACKOFF", def.RetryMaxBackoff),

		LogLevel:  getEnv("LOG_LEVEL", def.LogLevel),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}

	if cfg.ConditionsFile != "" {
		reasons, err := LoadConditions(cfg.ConditionsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Conditions = reasons
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and sizes.
func (c Config) Validate() error {
	var errs []error
	if c.CoreBaseURL == "" {
		errs = append(errs, errors.New("CORE_BASE_URL is required"))
	}
	if c.Uploads == "" {
		errs = append(errs, errors.New("DRS_UPLOADS is required"))
	}
	if c.BatchSize <= 0 || c.BatchSize > batch.DefaultSize {
		errs = append(errs, fmt.Errorf("batch size must be in 1..%d (got %d)", batch.DefaultSize, c.BatchSize))
	}
	if c.MaxWorkerGroups <= 0 {
		errs = append(errs, fmt.Errorf("max worker groups must be > 0 (got %d)", c.MaxWorkerGroups))
	}
	if c.MaxRetryRounds < 0 {
		errs = append(errs, fmt.Errorf("max retry rounds must be >= 0 (got %d)", c.MaxRetryRounds))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("core rate limit must be >= 0 (got %v)", c.RateLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Fetch returns the coordinator configuration.
func (c Config) Fetch() fetch.Config {
	return fetch.Config{
		BatchSize:      c.BatchSize,
		MaxGroups:      c.MaxWorkerGroups,
		MaxRetryRounds: c.MaxRetryRounds,
		Retry: fetch.RetryConfig{
			InitialBackoff:    c.RetryInitialBackoff,
			MaxBackoff:        c.RetryMaxBackoff,
			BackoffMultiplier: fetch.DefaultRetryConfig().BackoffMultiplier,
		},
	}
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

type conditionsFile struct {
	Conditions []compliance.Reason `yaml:"conditions"`
}

// LoadConditions reads a YAML reason table:
//
//	conditions:
//	  - name: gsma_not_found
//	    reason: TAC is not found in GSMA database
func LoadConditions(path string) ([]compliance.Reason, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conditions file: %w", err)
	}

	var file conditionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse conditions file %s: %w", path, err)
	}
	for i, r := range file.Conditions {
		if r.Name == "" {
			return nil, fmt.Errorf("conditions file %s: entry %d has no name", path, i)
		}
	}
	return file.Conditions, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
