// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"storefront/internal/logger"
)

type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Logging     LoggingConfig   `yaml:"logging"`
	Sheets      SheetsConfig    `yaml:"sheets"`
	Catalog     CatalogConfig   `yaml:"catalog"`
	Messaging   MessagingConfig `yaml:"messaging"`
	CORS        CORSConfig      `yaml:"cors"`
	Cleanup     CleanupConfig   `yaml:"cleanup"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Directory  string `yaml:"directory"`
	FileFormat string `yaml:"file_format"`
	TimeZone   string `yaml:"time_zone"`
	Level      string `yaml:"level"`
}

// SheetsConfig points at the spreadsheet the picks are read from.
type SheetsConfig struct {
	BaseURL       string        `yaml:"base_url"`
	SpreadsheetID string        `yaml:"spreadsheet_id"`
	Sheet         string        `yaml:"sheet"`
	Range         string        `yaml:"range"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
}

type CatalogConfig struct {
	// Path is optional; the embedded catalog is used when empty.
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type MessagingConfig struct {
	Number         string `yaml:"number"`
	PremiumMessage string `yaml:"premium_message"`
}

type CORSConfig struct {
	AllowedOrigin string `yaml:"allowed_origin"`
}

type CleanupConfig struct {
	Hour          int           `yaml:"hour"`
	CartRetention time.Duration `yaml:"cart_retention"`
	SessionIdle   time.Duration `yaml:"session_idle"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5051,
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "./data/storefront.db"},
		Logging: LoggingConfig{
			Directory:  "./logs",
			FileFormat: "server_%s.log",
			TimeZone:   "Local",
			Level:      "info",
		},
		Sheets: SheetsConfig{
			BaseURL: "https://sheets.googleapis.com",
			Sheet:   "Sheet1",
			Range:   "A:F",
			Timeout: 10 * time.Second,
		},
		Messaging: MessagingConfig{
			Number:         "529518393782",
			PremiumMessage: "Hola!, quiero Información sobre la pick premium",
		},
		CORS: CORSConfig{AllowedOrigin: "*"},
		Cleanup: CleanupConfig{
			Hour:          2,
			CartRetention: 30 * 24 * time.Hour,
			SessionIdle:   2 * time.Hour,
		},
	}
}

//
// --- Utility Helpers ---
//

// Helper: get a setting based on ENVIRONMENT (dev or prod)
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env)))
}

// lookup prefers the environment specific value and falls back to the plain name.
func lookup(name string) string {
	if v := GetEnvBasedSetting(name); v != "" {
		return v
	}
	return os.Getenv(name)
}

// Helper: log which environment is running
func LogCurrentEnvironment(cfg *Config) {
	if cfg.Environment == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in %s environment", cfg.Environment)
	}
}

//
// --- Loaders ---
//

// LoadEnv reads .env file
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}

	setString(&cfg.Server.Host, "SERVER_HOST")
	if err := setInt(&cfg.Server.Port, "SERVER_PORT"); err != nil {
		return err
	}
	setString(&cfg.Database.Path, "DATABASE_PATH")
	setString(&cfg.Logging.Directory, "LOGS_DIRECTORY")
	setString(&cfg.Logging.FileFormat, "LOG_FILE_FORMAT")
	setString(&cfg.Logging.TimeZone, "TIME_ZONE")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Sheets.BaseURL, "SHEETS_BASE_URL")
	setString(&cfg.Sheets.SpreadsheetID, "SHEETS_SPREADSHEET_ID")
	setString(&cfg.Sheets.Sheet, "SHEETS_SHEET")
	setString(&cfg.Sheets.Range, "SHEETS_RANGE")
	setString(&cfg.Sheets.APIKey, "SHEETS_API_KEY")
	if err := setDuration(&cfg.Sheets.Timeout, "SHEETS_TIMEOUT"); err != nil {
		return err
	}
	setString(&cfg.Catalog.Path, "CATALOG_PATH")
	if v := lookup("CATALOG_WATCH"); v != "" {
		cfg.Catalog.Watch = v == "true"
	}
	setString(&cfg.Messaging.Number, "MESSAGING_NUMBER")
	setString(&cfg.Messaging.PremiumMessage, "MESSAGING_PREMIUM_MESSAGE")
	setString(&cfg.CORS.AllowedOrigin, "ALLOWED_ORIGIN")
	if err := setInt(&cfg.Cleanup.Hour, "CLEANUP_HOUR"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Cleanup.CartRetention, "CART_RETENTION"); err != nil {
		return err
	}
	return setDuration(&cfg.Cleanup.SessionIdle, "SESSION_IDLE")
}

func setString(dst *string, name string) {
	if v := lookup(name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := lookup(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, name string) error {
	v := lookup(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Cleanup.Hour < 0 || c.Cleanup.Hour > 23 {
		return fmt.Errorf("cleanup hour out of range: %d", c.Cleanup.Hour)
	}
	return nil
}

// Address builds the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggerConfig returns a logger.Config struct populated from the configuration
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		LogsDirectory: c.Logging.Directory,
		LogFileFormat: c.Logging.FileFormat,
		TimeZone:      c.Logging.TimeZone,
		Level:         c.Logging.Level,
	}
}

// SheetsEnabled reports whether enough is set to reach the spreadsheet.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.SpreadsheetID != "" && c.Sheets.APIKey != ""
}

// LogCORS warns about the permissive default.
func (c *Config) LogCORS() {
	if c.CORS.AllowedOrigin == "*" {
		logger.LogWarn("ALLOWED_ORIGIN not set, using '*' (allow all origins)")
	} else {
		logger.LogInfo("Allowed Origin: %s", c.CORS.AllowedOrigin)
	}
}
