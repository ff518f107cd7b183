package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the full configuration tree for the auth service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	JWT      JWTConfig      `yaml:"jwt"`
	Security SecurityConfig `yaml:"security"`
	MFA      MFAConfig      `yaml:"mfa"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type DatabaseConfig struct {
	Host        string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port        int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User        string `yaml:"user" env:"DB_USER" env-default:"auth"`
	Password    string `yaml:"password" env:"DB_PASSWORD"`
	DBName      string `yaml:"dbname" env:"DB_NAME" env-default:"auth"`
	SSLMode     string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"false"`

	MigrationsPath string `yaml:"migrations_path" env:"DB_MIGRATIONS_PATH" env-default:"migrations"`
}

// DSN renders the connection URL used by both pgx and the migration runner.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"auth-events"`
}

type JWTConfig struct {
	// Secret signs access tokens. Reset and verification tokens are signed
	// with a key derived from this secret and the user's rotating secret.
	Secret          string        `yaml:"secret" env:"JWT_SECRET"`
	Issuer          string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"driftline-auth"`
	Audience        string        `yaml:"audience" env:"JWT_AUDIENCE" env-default:"driftline"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"JWT_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"JWT_REFRESH_TOKEN_TTL" env-default:"720h"`
	ResetTokenTTL   time.Duration `yaml:"reset_token_ttl" env:"JWT_RESET_TOKEN_TTL" env-default:"30m"`
}

type SecurityConfig struct {
	// EncryptionKeyHex is the 32-byte key for TOTP secret encryption, hex encoded.
	EncryptionKeyHex string `yaml:"encryption_key" env:"SECURITY_ENCRYPTION_KEY"`

	SessionCacheTTL       time.Duration `yaml:"session_cache_ttl" env:"SECURITY_SESSION_CACHE_TTL" env-default:"20m"`
	VerificationWindowTTL time.Duration `yaml:"verification_window_ttl" env:"SECURITY_VERIFICATION_WINDOW_TTL" env-default:"5m"`
	PasswordResetTTL      time.Duration `yaml:"password_reset_ttl" env:"SECURITY_PASSWORD_RESET_TTL" env-default:"30m"`

	MaxFailedAttempts int           `yaml:"max_failed_attempts" env:"SECURITY_MAX_FAILED_ATTEMPTS" env-default:"10"`
	LockoutDuration   time.Duration `yaml:"lockout_duration" env:"SECURITY_LOCKOUT_DURATION" env-default:"15m"`

	Argon2Memory      uint32 `yaml:"argon2_memory" env:"SECURITY_ARGON2_MEMORY" env-default:"65536"`
	Argon2Iterations  uint32 `yaml:"argon2_iterations" env:"SECURITY_ARGON2_ITERATIONS" env-default:"3"`
	Argon2Parallelism uint8  `yaml:"argon2_parallelism" env:"SECURITY_ARGON2_PARALLELISM" env-default:"2"`
	Argon2SaltLength  uint32 `yaml:"argon2_salt_length" env:"SECURITY_ARGON2_SALT_LENGTH" env-default:"16"`
	Argon2KeyLength   uint32 `yaml:"argon2_key_length" env:"SECURITY_ARGON2_KEY_LENGTH" env-default:"32"`
}

type MFAConfig struct {
	Issuer            string        `yaml:"issuer" env:"MFA_ISSUER" env-default:"Driftline"`
	ChallengeLifetime time.Duration `yaml:"challenge_lifetime" env:"MFA_CHALLENGE_LIFETIME" env-default:"5m"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Environment string `yaml:"environment" env:"APP_ENV" env-default:"development"`
}

// LoadConfig reads configuration from an optional YAML file and the
// environment. A .env file, if present, is loaded first.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Security.EncryptionKeyHex == "" {
		return nil, fmt.Errorf("SECURITY_ENCRYPTION_KEY is required")
	}
	return cfg, nil
}
