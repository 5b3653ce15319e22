package config

import (
	"fmt"
	"os"

	"tickstream/src/helpers"
	"tickstream/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names for broker credentials. They live in the
// process environment (optionally seeded from a .env file), never in YAML.
const (
	EnvAPIKey      = "BROKER_API_KEY"
	EnvAPISecret   = "BROKER_API_SECRET"
	EnvAccessToken = "BROKER_ACCESS_TOKEN"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig

	// Broker credentials resolved from the environment.
	APIKey      string
	APISecret   string
	AccessToken string

	envPath string
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file plus environment
// credentials. envPath may be empty; when the .env file is missing,
// credentials fall back to the already-set process environment.
func NewConfig(configPath, envPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, &helpers.ConfigurationError{TickstreamError: helpers.TickstreamError{
			Message: fmt.Sprintf("failed to read config file '%s'", configPath),
			Cause:   err,
		}}
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, &helpers.ConfigurationError{TickstreamError: helpers.TickstreamError{
			Message: "failed to parse config from YAML",
			Cause:   err,
		}}
	}

	config := &Config{MConfig: &modelConfig, envPath: envPath}

	// 3. Credentials from .env / environment
	if envPath != "" {
		// A missing .env is not an error; the shell may set the env directly.
		_ = godotenv.Load(envPath)
	}
	config.APIKey = os.Getenv(EnvAPIKey)
	config.APISecret = os.Getenv(EnvAPISecret)
	config.AccessToken = os.Getenv(EnvAccessToken)

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, &helpers.ValidationError{TickstreamError: helpers.TickstreamError{
			Message: "config validation failed",
			Cause:   err,
		}}
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Broker configuration
	if c.Broker.APIBaseURL == "" {
		return fmt.Errorf("broker api base url cannot be empty")
	}
	if c.Broker.LoginURL == "" {
		return fmt.Errorf("broker login url cannot be empty")
	}
	if c.Broker.FeedURL == "" {
		return fmt.Errorf("broker feed url cannot be empty")
	}
	if c.Broker.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Broker.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Broker.RateLimitPerSec <= 0 {
		return fmt.Errorf("rate limit must be greater than 0")
	}

	// Validate Engine configuration
	if c.Engine.BroadcastIntervalSeconds <= 0 {
		return fmt.Errorf("broadcast interval must be greater than 0")
	}
	if c.Engine.ReconcileIntervalSeconds <= 0 {
		return fmt.Errorf("reconcile interval must be greater than 0")
	}
	if c.Engine.RangeTTLHours <= 0 {
		return fmt.Errorf("range ttl must be greater than 0")
	}
	if c.Engine.FetchTimeoutMs <= 0 {
		return fmt.Errorf("fetch timeout must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// SaveAccessToken persists a freshly exchanged access token back to the .env
// file so a restart does not require a new login.
func (c *Config) SaveAccessToken(token string) error {
	c.AccessToken = token
	os.Setenv(EnvAccessToken, token)

	if c.envPath == "" {
		return nil
	}

	env, err := godotenv.Read(c.envPath)
	if err != nil {
		// File may not exist yet; start a fresh one.
		env = map[string]string{}
	}
	env[EnvAccessToken] = token

	if err := godotenv.Write(env, c.envPath); err != nil {
		return fmt.Errorf("failed to write access token to '%s': %w", c.envPath, err)
	}
	return nil
}
