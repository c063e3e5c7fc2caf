// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Server   ServerConfig
	Database DatabaseConfig
	Delivery DeliveryConfig
	Dispatch DispatchConfig
	Mailer   MailerConfig
	Webhook  WebhookConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// BaseURL is the public site root used in email links.
	BaseURL string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// DeliveryConfig holds challenge/solution scheduling configuration.
type DeliveryConfig struct {
	// Hour of day (0-23, server local time) at which the daily delivery batch runs.
	Hour int
	// CooldownDays is the minimum elapsed time before the same problem may be
	// re-delivered to the same user.
	CooldownDays int
	// SolutionDelay is how long after a challenge is delivered the solution goes out.
	SolutionDelay time.Duration
	// SolutionSweepInterval is how often the solution scheduler scans for due records.
	SolutionSweepInterval time.Duration
}

// DispatchConfig holds email queue draining configuration.
type DispatchConfig struct {
	// DrainInterval is how often the dispatch worker drains the queue.
	DrainInterval time.Duration
	// BatchSize caps how many queue items one drain pass processes.
	BatchSize int
	// MaxRetries bounds send attempts per queue item.
	MaxRetries int
	// RetryBackoff is the wait before attempt N+1, indexed by retry_count-1.
	// Attempts beyond the table clamp to the last entry.
	RetryBackoff []time.Duration
	// RetryCooldown is the minimum gap between a failure and the next attempt.
	RetryCooldown time.Duration
}

// MailerConfig holds outbound mail provider configuration.
type MailerConfig struct {
	BaseURL   string  // Provider API base URL (empty selects the mock sender)
	APIKey    string  // Provider API key
	FromEmail string  // From address on outbound mail
	FromName  string  // Display name on outbound mail
	RPS       float64 // Outbound requests per second
	Burst     int     // Outbound burst size
}

// WebhookConfig holds inbound webhook configuration.
type WebhookConfig struct {
	// Secret for HMAC signature verification. Empty disables verification.
	Secret string
}

// DefaultRetryBackoff is the bounded retry schedule for failed sends.
var DefaultRetryBackoff = []time.Duration{5 * time.Minute, 30 * time.Minute, 2 * time.Hour}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dbPath := flag.String("db-path", "", "Path to SQLite database file")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	// Delivery flags
	deliveryHour := flag.String("delivery-hour", "", "Hour of day for the daily delivery batch (default: 9)")
	cooldownDays := flag.String("cooldown-days", "", "Problem resend cooldown in days (default: 30)")
	solutionDelay := flag.String("solution-delay", "", "Delay between challenge and solution email (default: 24h)")
	solutionSweep := flag.String("solution-sweep-interval", "", "Solution scheduler scan interval (default: 5m)")

	// Dispatch flags
	drainInterval := flag.String("drain-interval", "", "Email queue drain interval (default: 30s)")
	drainBatchSize := flag.String("drain-batch-size", "", "Max queue items per drain pass (default: 50)")
	maxRetries := flag.String("max-retries", "", "Max send attempts per email (default: 3)")

	// Mailer flags
	mailerBaseURL := flag.String("mailer-base-url", "", "Mail provider API base URL")
	mailerFromEmail := flag.String("mailer-from-email", "", "From address for outbound mail")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			BaseURL:     getConfigValue("", "APP_BASE_URL", "https://codedrip.dev"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Path: getConfigValue(*dbPath, "DATABASE_PATH", "codedrip.db"),
		},
		Delivery: DeliveryConfig{
			Hour:         getIntConfigValue(*deliveryHour, "DELIVERY_HOUR", 9),
			CooldownDays: getIntConfigValue(*cooldownDays, "COOLDOWN_DAYS", 30),
		},
		Dispatch: DispatchConfig{
			BatchSize:    getIntConfigValue(*drainBatchSize, "DRAIN_BATCH_SIZE", 50),
			MaxRetries:   getIntConfigValue(*maxRetries, "EMAIL_MAX_RETRIES", 3),
			RetryBackoff: DefaultRetryBackoff,
		},
		Mailer: MailerConfig{
			BaseURL:   getConfigValue(*mailerBaseURL, "MAILER_BASE_URL", ""),
			APIKey:    getConfigValue("", "MAILER_API_KEY", ""),
			FromEmail: getConfigValue(*mailerFromEmail, "MAILER_FROM_EMAIL", "challenges@codedrip.dev"),
			FromName:  getConfigValue("", "MAILER_FROM_NAME", "CodeDrip"),
			RPS:       float64(getIntConfigValue("", "MAILER_RPS", 10)),
			Burst:     getIntConfigValue("", "MAILER_BURST", 20),
		},
		Webhook: WebhookConfig{
			Secret: getConfigValue("", "WEBHOOK_SECRET", ""),
		},
	}

	// Parse durations.
	var err error
	if cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.Delivery.SolutionDelay, err = parseDurationValue(*solutionDelay, "SOLUTION_DELAY", "24h"); err != nil {
		return nil, err
	}
	if cfg.Delivery.SolutionSweepInterval, err = parseDurationValue(*solutionSweep, "SOLUTION_SWEEP_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.Dispatch.DrainInterval, err = parseDurationValue(*drainInterval, "DRAIN_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if cfg.Dispatch.RetryCooldown, err = parseDurationValue("", "RETRY_COOLDOWN", "5m"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Delivery.Hour < 0 || c.Delivery.Hour > 23 {
		return fmt.Errorf("invalid delivery hour: %d (must be 0-23)", c.Delivery.Hour)
	}

	if c.Delivery.CooldownDays < 1 {
		return fmt.Errorf("invalid cooldown days: %d (must be >= 1)", c.Delivery.CooldownDays)
	}

	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", c.Dispatch.MaxRetries)
	}

	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("invalid drain batch size: %d (must be >= 1)", c.Dispatch.BatchSize)
	}

	if len(c.Dispatch.RetryBackoff) == 0 {
		return errors.New("retry backoff table cannot be empty")
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}

	return nil
}

// Cooldown returns the resend cooldown as a duration.
func (c *DeliveryConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownDays) * 24 * time.Hour
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves a duration setting with the usual precedence.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(envKey), strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Only set if not already present in the environment.
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}
