// Package config loads and validates the service configuration from the
// environment.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Environment is the deployment stage the service runs in.
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// DatabaseConfig holds the MySQL connection settings for recommendation history.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Enabled reports whether a database host was configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// WhatsAppConfig holds the WhatsApp Cloud API settings.
type WhatsAppConfig struct {
	Enabled       bool
	APIURL        string
	PhoneNumberID string
	Token         string
	CountryCode   string // prepended to 10 digit farmer mobiles
}

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes

	DatasetPath    string   // CSV reference dataset
	DatasetURL     string   // optional remote CSV, cached at DatasetPath
	ReferencePath  string   // optional YAML with concentrations and age buckets
	ReloadTimes    []string // daily HH:MM times the dataset is reloaded
	AllowedOrigins []string
	Database       DatabaseConfig
	WhatsApp       WhatsAppConfig
}

var (
	reloadTimeRegex  = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	countryCodeRegex = regexp.MustCompile(`^\d{1,3}$`)
)

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               Environment(strings.ToLower(getEnvWithDefault("ENV", string(EnvDevelopment)))),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 65536),      // 64KB
		DatasetPath:       getEnvWithDefault("DATASET_PATH", "data/poultry_dataset.csv"),
		DatasetURL:        os.Getenv("DATASET_URL"),
		ReferencePath:     os.Getenv("REFERENCE_PATH"),
		ReloadTimes:       splitList(getEnvWithDefault("RELOAD_TIMES", "06:00;18:00"), ";"),
		AllowedOrigins:    splitList(getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"), ","),
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnvWithDefault("DB_PORT", "3306"),
			User:     getEnvWithDefault("DB_USER", "root"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnvWithDefault("DB_NAME", "AgriSafe"),
		},
		WhatsApp: WhatsAppConfig{
			Enabled:       getBoolEnvWithDefault("WHATSAPP_ENABLED", false),
			APIURL:        getEnvWithDefault("WHATSAPP_API_URL", "https://graph.facebook.com/v19.0"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			Token:         os.Getenv("WHATSAPP_TOKEN"),
			CountryCode:   getEnvWithDefault("WHATSAPP_COUNTRY_CODE", "91"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if cfg.LogRetentionWeeks <= 0 || cfg.LogRetentionWeeks > 52 {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: must be between 1 and 52, got: %d", cfg.LogRetentionWeeks)
	}

	if cfg.MaxLogFileSize < 1024*1024 || cfg.MaxLogFileSize > 1024*1024*1024 {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: must be between 1MB and 1GB, got: %d bytes", cfg.MaxLogFileSize)
	}

	if cfg.MaxRequestBody <= 0 || cfg.MaxRequestBody > 10*1024*1024 {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: must be between 1 byte and 10MB, got: %d", cfg.MaxRequestBody)
	}

	if strings.TrimSpace(cfg.DatasetPath) == "" {
		return fmt.Errorf("invalid DATASET_PATH: cannot be empty")
	}

	if cfg.DatasetURL != "" && !isHTTPURL(cfg.DatasetURL) {
		return fmt.Errorf("invalid DATASET_URL: must be an http(s) URL, got: %s", cfg.DatasetURL)
	}

	if err := validateReloadTimes(cfg.ReloadTimes); err != nil {
		return fmt.Errorf("invalid RELOAD_TIMES: %w", err)
	}

	if cfg.Database.Enabled() {
		if err := validatePort(cfg.Database.Port); err != nil {
			return fmt.Errorf("invalid DB_PORT: %w", err)
		}
		if cfg.Database.Name == "" {
			return fmt.Errorf("invalid DB_NAME: cannot be empty when DB_HOST is set")
		}
	}

	if cfg.WhatsApp.Enabled {
		if cfg.WhatsApp.PhoneNumberID == "" || cfg.WhatsApp.Token == "" {
			return fmt.Errorf("WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_TOKEN are required when WHATSAPP_ENABLED is true")
		}
		if !isHTTPURL(cfg.WhatsApp.APIURL) {
			return fmt.Errorf("invalid WHATSAPP_API_URL: must be an http(s) URL, got: %s", cfg.WhatsApp.APIURL)
		}
		if !countryCodeRegex.MatchString(cfg.WhatsApp.CountryCode) {
			return fmt.Errorf("invalid WHATSAPP_COUNTRY_CODE: must be 1 to 3 digits, got: %s", cfg.WhatsApp.CountryCode)
		}
	}

	return nil
}

// validatePort validates a TCP port value
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	// Only loopback, private or unspecified addresses; the proxy owns the public side
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, bind to a private or loopback address", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env Environment) error {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return nil
	}
	return fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", env)
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	switch strings.ToLower(logLevel) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("LOG_LEVEL must be one of: [debug info warn error], got: %s", logLevel)
}

func validateReloadTimes(times []string) error {
	if len(times) == 0 {
		return fmt.Errorf("at least one HH:MM time is required")
	}
	for _, t := range times {
		if !reloadTimeRegex.MatchString(t) {
			return fmt.Errorf("%q is not a HH:MM time", t)
		}
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT", "ADDRESS", "ENV", "LOG_LEVEL", "LOG_DIR", "LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE", "MAX_REQUEST_BODY", "DATASET_PATH", "DATASET_URL", "REFERENCE_PATH",
		"RELOAD_TIMES", "CORS_ALLOWED_ORIGINS",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"WHATSAPP_ENABLED", "WHATSAPP_API_URL", "WHATSAPP_PHONE_NUMBER_ID", "WHATSAPP_TOKEN",
		"WHATSAPP_COUNTRY_CODE",
	}
}
