package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Payments      PaymentsConfig      `json:"payments"`
	Escrow        EscrowConfig        `json:"escrow"`
	Notifications NotificationsConfig `json:"notifications"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
	Invoices      InvoicesConfig      `json:"invoices"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host             string        `json:"host"`
	Port             int           `json:"port"`
	User             string        `json:"user"`
	Password         string        `json:"password"`
	DBName           string        `json:"db_name"`
	SSLMode          string        `json:"ssl_mode"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleConns     int           `json:"max_idle_conns"`
	MaxLifetime      time.Duration `json:"max_lifetime"`
	StatementTimeout time.Duration `json:"statement_timeout"`
}

// PaymentsConfig holds the payment gateway settings
type PaymentsConfig struct {
	Provider  string `json:"provider"`
	SecretKey string `json:"secret_key"`
}

// EscrowConfig holds marketplace settlement defaults
type EscrowConfig struct {
	DefaultPlatformFeePercent float64       `json:"default_platform_fee_percent"`
	InviteTTL                 time.Duration `json:"invite_ttl"`
}

// NotificationsConfig configures outbound notification channels
type NotificationsConfig struct {
	EmailSender string `json:"email_sender"`
	AWSRegion   string `json:"aws_region"`
	SMSEnabled  bool   `json:"sms_enabled"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// InvoicesConfig configures invoice generation and archiving
type InvoicesConfig struct {
	S3Bucket string `json:"s3_bucket"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:             "localhost",
			Port:             5432,
			User:             os.Getenv("USER"),
			DBName:           "expertmarket",
			SSLMode:          "disable",
			MaxConnections:   25,
			MaxIdleConns:     5,
			StatementTimeout: 30 * time.Second,
		},
		Escrow: EscrowConfig{
			DefaultPlatformFeePercent: 10,
			InviteTTL:                 72 * time.Hour,
		},
		Invoices: InvoicesConfig{
			S3Bucket: "expertmarket-invoices",
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if key := os.Getenv("PAYMENT_GATEWAY_SECRET"); key != "" {
		config.Payments.SecretKey = key
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Notifications.AWSRegion = region
	}
	if sender := os.Getenv("NOTIFICATIONS_EMAIL_SENDER"); sender != "" {
		config.Notifications.EmailSender = sender
	}
	if bucket := os.Getenv("INVOICES_S3_BUCKET"); bucket != "" {
		config.Invoices.S3Bucket = bucket
	}
}

// GetDatabaseURL returns the database connection string. A statement timeout
// is pushed down so a stuck unit of work cannot hold a row lock indefinitely.
func (c *DatabaseConfig) GetDatabaseURL() string {
	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
	if c.StatementTimeout > 0 {
		url += fmt.Sprintf("&statement_timeout=%d", c.StatementTimeout.Milliseconds())
	}
	return url
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
