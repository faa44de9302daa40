package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config structure represents the application configuration
type Config struct {
	Server struct {
		Port        string `yaml:"port" env:"SERVER_PORT"`
		Mode        string `yaml:"mode" env:"SERVER_MODE"`
		BaseURL     string `yaml:"base_url" env:"SERVER_BASE_URL"`
		StoragePath string `yaml:"storage_path" env:"SERVER_STORAGE_PATH"`
	} `yaml:"server"`

	Database struct {
		Host            string `yaml:"host" env:"DB_HOST"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxConns        int    `yaml:"max_conns" env:"DB_MAX_CONNS"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	} `yaml:"database"`

	JWT struct {
		Secret                 string `yaml:"secret" env:"JWT_SECRET"`
		ConfirmationSecret     string `yaml:"confirmation_secret" env:"JWT_CONFIRMATION_SECRET"`
		SessionTokenExpiration string `yaml:"session_token_expiration" env:"JWT_SESSION_TOKEN_EXPIRATION"`
		ConfirmTokenExpiration string `yaml:"confirm_token_expiration" env:"JWT_CONFIRM_TOKEN_EXPIRATION"`
		Issuer                 string `yaml:"issuer" env:"JWT_ISSUER"`
	} `yaml:"jwt"`

	Security struct {
		BcryptCost       int    `yaml:"bcrypt_cost" env:"SECURITY_BCRYPT_COST"`
		MaxLoginAttempts int    `yaml:"max_login_attempts" env:"SECURITY_MAX_LOGIN_ATTEMPTS"`
		LockoutDuration  string `yaml:"lockout_duration" env:"SECURITY_LOCKOUT_DURATION"`
	} `yaml:"security"`

	SMTP struct {
		Host      string `yaml:"host" env:"SMTP_HOST"`
		Port      int    `yaml:"port" env:"SMTP_PORT"`
		Username  string `yaml:"username" env:"SMTP_USERNAME"`
		Password  string `yaml:"password" env:"SMTP_PASSWORD"`
		FromName  string `yaml:"from_name" env:"SMTP_FROM_NAME"`
		FromEmail string `yaml:"from_email" env:"SMTP_FROM_EMAIL"`
		UseTLS    bool   `yaml:"use_tls" env:"SMTP_USE_TLS"`
	} `yaml:"smtp"`

	RateLimit struct {
		RedisAddr     string `yaml:"redis_addr" env:"RATELIMIT_REDIS_ADDR"`
		SweepInterval string `yaml:"sweep_interval" env:"RATELIMIT_SWEEP_INTERVAL"`
	} `yaml:"ratelimit"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	// Config file is optional; environment variables can carry everything
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.Server.Port = "8080"
	config.Server.Mode = "development"
	config.Server.BaseURL = "http://localhost:8080"
	config.Server.StoragePath = "uploads"

	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "maarif"
	config.Database.SSLMode = "disable"
	config.Database.MaxConns = 20
	config.Database.ConnMaxLifetime = "1h"

	config.JWT.SessionTokenExpiration = "168h"
	config.JWT.ConfirmTokenExpiration = "1h"
	config.JWT.Issuer = "maarif.app"

	config.Security.BcryptCost = 12
	config.Security.MaxLoginAttempts = 5
	config.Security.LockoutDuration = "15m"

	config.SMTP.Port = 587
	config.SMTP.FromName = "Maarif"
	config.SMTP.FromEmail = "noreply@maarif.app"

	config.RateLimit.SweepInterval = "5m"

	config.Logging.Level = "info"
	config.Logging.Format = "json"
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(config *Config) error {
	return processStructFields(config)
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if config.JWT.ConfirmationSecret == "" {
		return fmt.Errorf("JWT confirmation secret is required")
	}

	if _, err := time.ParseDuration(config.JWT.SessionTokenExpiration); err != nil {
		return fmt.Errorf("invalid session token expiration format: %w", err)
	}

	if _, err := time.ParseDuration(config.JWT.ConfirmTokenExpiration); err != nil {
		return fmt.Errorf("invalid confirmation token expiration format: %w", err)
	}

	if _, err := time.ParseDuration(config.Security.LockoutDuration); err != nil {
		return fmt.Errorf("invalid lockout duration format: %w", err)
	}

	return nil
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "production"
}
