package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// Chat / negotiation subsystem knobs
	Chat ChatConfig `json:"chat"`

	// External collaborators
	Services ServicesConfig `json:"services"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	ChatServicePort string `json:"chat_service_port"`
	Host            string `json:"host"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	Environment     string `json:"environment"` // development, staging, production
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// ChatConfig contains the negotiation messaging knobs
type ChatConfig struct {
	JWTSecret      string        `json:"-"`
	MaxMessageSize int           `json:"max_message_size"` // bytes, plain message body
	IdleTimeout    time.Duration `json:"idle_timeout"`     // pong wait before an idle connection is dropped
	OfferTTL       time.Duration `json:"offer_ttl"`        // proposed offers older than this are swept to expired
	SweepInterval  time.Duration `json:"sweep_interval"`
	BackfillLimit  int           `json:"backfill_limit"` // max messages per listSince page
}

// ServicesConfig contains base URLs of the external collaborators
type ServicesConfig struct {
	OrderServiceURL  string `json:"order_service_url"`
	UserDirectoryURL string `json:"user_directory_url"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, text
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ChatServicePort: getEnv("CHAT_SERVICE_PORT", "7003"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:    getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			Environment:     getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("MYSQL_HOST", "localhost"),
			Port:         getEnv("MYSQL_PORT", "3306"),
			Username:     getEnv("MYSQL_USERNAME", "streetsource"),
			Password:     getEnv("MYSQL_PASSWORD", "streetsource123"),
			DatabaseName: getEnv("MYSQL_DATABASE", "streetsource"),
			MaxOpenConns: getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 5),
		},
		Chat: ChatConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			MaxMessageSize: getEnvAsInt("CHAT_MAX_MESSAGE_SIZE", 4096),
			IdleTimeout:    getEnvAsDuration("CHAT_IDLE_TIMEOUT", 60*time.Second),
			OfferTTL:       getEnvAsDuration("OFFER_TTL", 48*time.Hour),
			SweepInterval:  getEnvAsDuration("OFFER_SWEEP_INTERVAL", 5*time.Minute),
			BackfillLimit:  getEnvAsInt("CHAT_BACKFILL_LIMIT", 100),
		},
		Services: ServicesConfig{
			OrderServiceURL:  getEnv("ORDER_SERVICE_URL", "http://localhost:7005"),
			UserDirectoryURL: getEnv("USER_DIRECTORY_URL", "http://localhost:7001"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
	}
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
