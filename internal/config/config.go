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
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	Audit   AuditConfig
	Email   EmailConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	TrustedProxies []string
}

type StorageConfig struct {
	DataDir           string
	SessionPassphrase string
}

type AuthConfig struct {
	SessionTTL           time.Duration
	AdminSessionTTL      time.Duration
	SweepInterval        time.Duration
	LoginMaxAttempts     int
	LoginWindow          time.Duration
	LoginBlockDuration   time.Duration
	AdminMaxAttempts     int
	AdminWindow          time.Duration
	AdminBlockDuration   time.Duration
	PasswordMinLength    int
	PasswordRequireUpper bool
	PasswordRequireLower bool
	PasswordRequireDigit bool
	PasswordMaxAgeDays   int
}

type AuditConfig struct {
	MaxSizeBytes int64
	Retention    int
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	passphrase := getEnv("SESSION_STORE_PASSPHRASE", "")
	if passphrase == "" {
		return nil, fmt.Errorf("SESSION_STORE_PASSPHRASE is required")
	}
	if err := validatePassphrase(passphrase, env); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			TrustedProxies: parseTrustedProxies(),
		},
		Storage: StorageConfig{
			DataDir:           getEnv("DATA_DIR", "./data"),
			SessionPassphrase: passphrase,
		},
		Auth: AuthConfig{
			SessionTTL:           getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			AdminSessionTTL:      getEnvAsDuration("ADMIN_SESSION_TTL", 8*time.Hour),
			SweepInterval:        getEnvAsDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
			LoginMaxAttempts:     getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:          getEnvAsDuration("LOGIN_WINDOW", 15*time.Minute),
			LoginBlockDuration:   getEnvAsDuration("LOGIN_BLOCK_DURATION", 15*time.Minute),
			AdminMaxAttempts:     getEnvAsInt("ADMIN_MAX_ATTEMPTS", 60),
			AdminWindow:          getEnvAsDuration("ADMIN_WINDOW", 1*time.Minute),
			AdminBlockDuration:   getEnvAsDuration("ADMIN_BLOCK_DURATION", 5*time.Minute),
			PasswordMinLength:    getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
			PasswordRequireUpper: getEnvAsBool("PASSWORD_REQUIRE_UPPER", true),
			PasswordRequireLower: getEnvAsBool("PASSWORD_REQUIRE_LOWER", true),
			PasswordRequireDigit: getEnvAsBool("PASSWORD_REQUIRE_DIGIT", true),
			PasswordMaxAgeDays:   getEnvAsInt("PASSWORD_MAX_AGE_DAYS", 90),
		},
		Audit: AuditConfig{
			MaxSizeBytes: int64(getEnvAsInt("AUDIT_MAX_SIZE_BYTES", 1<<20)),
			Retention:    getEnvAsInt("AUDIT_RETENTION", 5),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", ""),
		},
	}

	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when EMAIL_ENABLED is set")
	}

	return cfg, nil
}

// validatePassphrase enforces minimum strength for the session-store key.
// A weak passphrase makes the encrypted snapshot trivially crackable.
func validatePassphrase(passphrase, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}
	if len(passphrase) < minLength {
		return fmt.Errorf("SESSION_STORE_PASSPHRASE must be at least %d characters in %s environment (got %d)",
			minLength, env, len(passphrase))
	}

	weakValues := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}
	lower := strings.ToLower(passphrase)
	for _, weak := range weakValues {
		if lower == weak {
			return fmt.Errorf("SESSION_STORE_PASSPHRASE cannot be a common weak value")
		}
	}
	return nil
}

func parseTrustedProxies() []string {
	raw := getEnv("TRUSTED_PROXIES", "")
	if raw == "" {
		return nil
	}
	proxies := strings.Split(raw, ",")
	for i, p := range proxies {
		proxies[i] = strings.TrimSpace(p)
	}
	return proxies
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

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
