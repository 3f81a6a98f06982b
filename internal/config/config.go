// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Counter backends for the business view counter
const (
	CounterBackendSQLite = "sqlite"
	CounterBackendRedis  = "redis"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	APIKey      string   `mapstructure:"apikey"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// GeoLite auto-update; empty license key disables it
	MaxMindLicenseKey string `mapstructure:"maxmindlicensekey"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Business view counter
	CounterBackend        string `mapstructure:"counterbackend"`
	CounterTimeoutMillis  int    `mapstructure:"countertimeoutmillis"`
	RedisAddr             string `mapstructure:"redisaddr"`
	RedisPassword         string `mapstructure:"redispassword"`
	RedisDB               int    `mapstructure:"redisdb"`
	RedisCounterKeyPrefix string `mapstructure:"rediscounterkeyprefix"`

	// Ingest and read API settings
	FilterBots          bool `mapstructure:"filterbots"`
	TrackRateLimit      int  `mapstructure:"trackratelimit"`
	AggregationWorkers  int  `mapstructure:"aggregationworkers"`
	QueryTimeoutSeconds int  `mapstructure:"querytimeoutseconds"`
	ExportMaxRows       int  `mapstructure:"exportmaxrows"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "pagelens")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("counterbackend", CounterBackendSQLite)
		v.SetDefault("countertimeoutmillis", 2000)
		v.SetDefault("redisaddr", "localhost:6379")
		v.SetDefault("redisdb", 0)
		v.SetDefault("rediscounterkeyprefix", "pagelens:business")
		v.SetDefault("filterbots", true)
		v.SetDefault("trackratelimit", 120)
		v.SetDefault("aggregationworkers", 6)
		v.SetDefault("querytimeoutseconds", 30)
		v.SetDefault("exportmaxrows", 10000)
		v.SetDefault("jobintervalseconds", 60)

		v.BindEnv("appname", "PAGELENS_APP_NAME")
		v.BindEnv("appport", "PAGELENS_APP_PORT")
		v.BindEnv("environment", "PAGELENS_ENV")
		v.BindEnv("loglevel", "PAGELENS_LOG_LEVEL")
		v.BindEnv("apikey", "PAGELENS_API_KEY")
		v.BindEnv("storagepath", "PAGELENS_STORAGE_PATH")
		v.BindEnv("geodbpath", "PAGELENS_GEO_DB_PATH")
		v.BindEnv("maxmindlicensekey", "PAGELENS_MAXMIND_LICENSE_KEY")
		v.BindEnv("logsdir", "PAGELENS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "PAGELENS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "PAGELENS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "PAGELENS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "PAGELENS_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "PAGELENS_DB_MAX_IDLE_CONNS")
		v.BindEnv("counterbackend", "PAGELENS_COUNTER_BACKEND")
		v.BindEnv("countertimeoutmillis", "PAGELENS_COUNTER_TIMEOUT_MILLIS")
		v.BindEnv("redisaddr", "PAGELENS_REDIS_ADDR")
		v.BindEnv("redispassword", "PAGELENS_REDIS_PASSWORD")
		v.BindEnv("redisdb", "PAGELENS_REDIS_DB")
		v.BindEnv("rediscounterkeyprefix", "PAGELENS_REDIS_COUNTER_KEY_PREFIX")
		v.BindEnv("filterbots", "PAGELENS_FILTER_BOTS")
		v.BindEnv("trackratelimit", "PAGELENS_TRACK_RATE_LIMIT")
		v.BindEnv("aggregationworkers", "PAGELENS_AGGREGATION_WORKERS")
		v.BindEnv("querytimeoutseconds", "PAGELENS_QUERY_TIMEOUT_SECONDS")
		v.BindEnv("exportmaxrows", "PAGELENS_EXPORT_MAX_ROWS")
		v.BindEnv("jobintervalseconds", "PAGELENS_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validBackends := map[string]bool{
		CounterBackendSQLite: true,
		CounterBackendRedis:  true,
	}
	if !validBackends[c.CounterBackend] {
		return fmt.Errorf("invalid counter backend: %s", c.CounterBackend)
	}

	if c.CounterBackend == CounterBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis counter backend requires PAGELENS_REDIS_ADDR")
	}

	if c.ExportMaxRows <= 0 {
		return fmt.Errorf("export max rows must be positive, got %d", c.ExportMaxRows)
	}

	if c.AggregationWorkers <= 0 {
		return fmt.Errorf("aggregation workers must be positive, got %d", c.AggregationWorkers)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory implements cartridge.Config. pagelens serves no static assets.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix implements cartridge.Config.
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetAppName returns the application name, used for the log file name.
func (c *Config) GetAppName() string {
	return c.AppName
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (dashboard sections query concurrently)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
