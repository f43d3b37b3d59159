package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleOff disables the periodic directory rebuild
const ScheduleOff = "off"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Bearer token verification
	Auth AuthConfig

	// User directory read model
	Directory DirectoryConfig

	// Invitation settings
	Invitation InvitationConfig

	// Role lookup cache
	RoleCache RoleCacheConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadSize   int64 // bytes accepted for CSV uploads
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	MigrationsPath string
}

// AuthConfig holds the shared secret used to verify HS256 access tokens
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// DirectoryConfig holds read model rebuild settings
type DirectoryConfig struct {
	RefreshSchedule string // cron expression, "off" disables the periodic rebuild
	RefreshTimeout  time.Duration
	RefreshOnStart  bool
}

// InvitationConfig holds invitation settings
type InvitationConfig struct {
	TTL          time.Duration
	TokenLength  int
	PasswordCost int // bcrypt cost for temporary passwords
}

// RoleCacheConfig holds the role-by-name cache settings
type RoleCacheConfig struct {
	Size int
	TTL  time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxUploadSize:   int64(getIntEnv("MAX_UPLOAD_SIZE", 1024*1024)),
		},
		Database: loadDatabase(),
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", ""),
		},
		Directory: DirectoryConfig{
			RefreshSchedule: getEnv("DIRECTORY_REFRESH_SCHEDULE", "@every 15m"),
			RefreshTimeout:  getDurationEnv("DIRECTORY_REFRESH_TIMEOUT", 30*time.Second),
			RefreshOnStart:  getBoolEnv("DIRECTORY_REFRESH_ON_START", true),
		},
		Invitation: InvitationConfig{
			TTL:          getDurationEnv("INVITATION_TTL", 7*24*time.Hour),
			TokenLength:  getIntEnv("INVITATION_TOKEN_LENGTH", 32),
			PasswordCost: getIntEnv("PASSWORD_HASH_COST", 10),
		},
		RoleCache: RoleCacheConfig{
			Size: getIntEnv("ROLE_CACHE_SIZE", 64),
			TTL:  getDurationEnv("ROLE_CACHE_TTL", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings. Tools that never serve
// requests, such as the migrate command, use it instead of Load.
func LoadDatabase() (*DatabaseConfig, error) {
	db := loadDatabase()
	if err := db.Validate(); err != nil {
		return nil, err
	}
	return &db, nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           getEnv("DB_PORT", "5432"),
		User:           getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", "postgres"),
		Name:           getEnv("DB_NAME", "community"),
		SSLMode:        getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
		MaxLifetime:    getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}
}

// Validate checks the connection settings
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Invitation.TTL <= 0 {
		return fmt.Errorf("INVITATION_TTL must be positive")
	}
	if c.Invitation.TokenLength < 16 {
		return fmt.Errorf("INVITATION_TOKEN_LENGTH must be at least 16")
	}
	if s := c.Directory.RefreshSchedule; s != "" && s != ScheduleOff {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("DIRECTORY_REFRESH_SCHEDULE is invalid: %w", err)
		}
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
