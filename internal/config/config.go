package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

// SecurityConfig holds the process-wide account-security knobs. Read-only
// after startup; components receive it through their constructors.
type SecurityConfig struct {
	MaxLoginAttempts        int
	LockoutDuration         time.Duration
	MaxTwoFactorAttempts    int
	TwoFactorCodeLength     int
	TwoFactorCodeExpiry     time.Duration
	VerificationTokenExpiry time.Duration
	SessionTimeout          time.Duration
	SessionSweepInterval    time.Duration
	TimingDelayBaseMs       int
	TimingDelayRandomMs     int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	BaseURL     string
	SendTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authcore"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCSV(getEnv("TRUSTED_PROXIES", "")),
		},
		Security: SecurityConfig{
			MaxLoginAttempts:        getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:         getEnvAsDuration("LOCKOUT_DURATION", 1*time.Hour),
			MaxTwoFactorAttempts:    getEnvAsInt("MAX_2FA_ATTEMPTS", 3),
			TwoFactorCodeLength:     getEnvAsInt("TWO_FACTOR_CODE_LENGTH", 6),
			TwoFactorCodeExpiry:     getEnvAsDuration("TWO_FACTOR_CODE_EXPIRY", 5*time.Minute),
			VerificationTokenExpiry: getEnvAsDuration("VERIFICATION_TOKEN_EXPIRY", 24*time.Hour),
			SessionTimeout:          getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
			SessionSweepInterval:    getEnvAsDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
			TimingDelayBaseMs:       getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:     getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			BaseURL:     getEnv("EMAIL_BASE_URL", "http://localhost:8080"),
			SendTimeout: getEnvAsDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecurity(&cfg.Security); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity rejects values that would disable the protections outright
func validateSecurity(sec *SecurityConfig) error {
	if sec.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1 (got %d)", sec.MaxLoginAttempts)
	}
	if sec.MaxTwoFactorAttempts < 1 {
		return fmt.Errorf("MAX_2FA_ATTEMPTS must be at least 1 (got %d)", sec.MaxTwoFactorAttempts)
	}
	if sec.TwoFactorCodeLength < 4 || sec.TwoFactorCodeLength > 10 {
		return fmt.Errorf("TWO_FACTOR_CODE_LENGTH must be between 4 and 10 (got %d)", sec.TwoFactorCodeLength)
	}
	if sec.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if sec.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if sec.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCSV(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseCSV(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
