package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	S3        S3Config
	LLM       LLMConfig
	RateLimit RateLimitConfig
	VNC       VNCConfig
	Sandbox   SandboxConfig
	Agent     AgentConfig
	Sentry    SentryConfig
	Secrets   SecretsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
	// Host is the externally visible host used to build VNC viewer URLs.
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	// AdminEmails bypass rate limiting entirely.
	AdminEmails []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// S3Config holds S3 storage configuration
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// LLMConfig holds model backend configuration
type LLMConfig struct {
	APIKey          string
	Model           string
	MaxTokens       int
	EssayMaxTokens  int
	RequestTimeout  time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

// RateLimitConfig holds the default windows and counts for every
// recognized limit key. All values are overridable per environment.
type RateLimitConfig struct {
	LLMPerMinute        int
	LLMPerDay           int
	TailoringPerUserDay int
	ApplicationsPerUserDay int
	APIPerUserMinute    int
	ConcurrentTailoring int
	ConcurrentSessions  int
}

// VNCConfig holds the fleet port layout
type VNCConfig struct {
	DisplayBase    int
	PortBase       int
	WebSocketBase  int
	MaxSessions    int
	RecoveryWindow time.Duration
	IdleHorizon    time.Duration
	SweepInterval  time.Duration
}

// SandboxConfig holds the browser sandbox settings
type SandboxConfig struct {
	HomeRoot    string
	RunAsUser   string
	ChromiumBin string
	XvfbBin     string
	X11VNCBin   string
}

// AgentConfig holds form-filling tunables
type AgentConfig struct {
	MaxPasses            int
	MaxRetries           int
	SettleWait           time.Duration
	SkillMatchThreshold  float64
	MaxSkills            int
	MaxBatchURLs         int
	RulesFile            string
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN string
}

// SecretsConfig holds the at-rest encryption key
type SecretsConfig struct {
	EncryptionKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
			Host: getEnv("SERVER_HOST", "localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "launchway"),
			Password:        getEnv("DB_PASSWORD", "launchway"),
			DBName:          getEnv("DB_NAME", "launchway"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
			AdminEmails:   getEnvAsList("ADMIN_EMAILS"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "eu-central"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		LLM: LLMConfig{
			APIKey:         getEnv("ANTHROPIC_API_KEY", ""),
			Model:          getEnv("LLM_MODEL", "claude-sonnet-4-5"),
			MaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 1024),
			EssayMaxTokens: getEnvAsInt("LLM_ESSAY_MAX_TOKENS", 600),
			RequestTimeout: getEnvAsDuration("LLM_REQUEST_TIMEOUT", 45*time.Second),
			MaxRetries:     getEnvAsInt("LLM_MAX_RETRIES", 3),
			RetryBaseDelay: getEnvAsDuration("LLM_RETRY_BASE_DELAY", time.Second),
		},
		RateLimit: RateLimitConfig{
			LLMPerMinute:           getEnvAsInt("RATE_LLM_PER_MINUTE", 50),
			LLMPerDay:              getEnvAsInt("RATE_LLM_PER_DAY", 2000),
			TailoringPerUserDay:    getEnvAsInt("RATE_TAILORING_PER_USER_DAY", 20),
			ApplicationsPerUserDay: getEnvAsInt("RATE_APPLICATIONS_PER_USER_DAY", 50),
			APIPerUserMinute:       getEnvAsInt("RATE_API_PER_USER_MINUTE", 120),
			ConcurrentTailoring:    getEnvAsInt("RATE_CONCURRENT_TAILORING", 2),
			ConcurrentSessions:     getEnvAsInt("RATE_CONCURRENT_SESSIONS", 3),
		},
		VNC: VNCConfig{
			DisplayBase:    getEnvAsInt("VNC_DISPLAY_BASE", 100),
			PortBase:       getEnvAsInt("VNC_PORT_BASE", 5900),
			WebSocketBase:  getEnvAsInt("VNC_WEBSOCKET_BASE", 6080),
			MaxSessions:    getEnvAsInt("VNC_MAX_SESSIONS", 10),
			RecoveryWindow: getEnvAsDuration("VNC_RECOVERY_WINDOW", 24*time.Hour),
			IdleHorizon:    getEnvAsDuration("VNC_IDLE_HORIZON", time.Hour),
			SweepInterval:  getEnvAsDuration("VNC_SWEEP_INTERVAL", 10*time.Minute),
		},
		Sandbox: SandboxConfig{
			HomeRoot:    getEnv("SANDBOX_HOME_ROOT", "/var/lib/launchway/sessions"),
			RunAsUser:   getEnv("SANDBOX_RUN_AS_USER", "lw-browser"),
			ChromiumBin: getEnv("SANDBOX_CHROMIUM_BIN", "/usr/bin/chromium"),
			XvfbBin:     getEnv("SANDBOX_XVFB_BIN", "/usr/bin/Xvfb"),
			X11VNCBin:   getEnv("SANDBOX_X11VNC_BIN", "/usr/bin/x11vnc"),
		},
		Agent: AgentConfig{
			MaxPasses:           getEnvAsInt("AGENT_MAX_PASSES", 4),
			MaxRetries:          getEnvAsInt("AGENT_MAX_RETRIES", 3),
			SettleWait:          getEnvAsDuration("AGENT_SETTLE_WAIT", 300*time.Millisecond),
			SkillMatchThreshold: getEnvAsFloat("AGENT_SKILL_MATCH_THRESHOLD", 0.8),
			MaxSkills:           getEnvAsInt("AGENT_MAX_SKILLS", 10),
			MaxBatchURLs:        getEnvAsInt("AGENT_MAX_BATCH_URLS", 10),
			RulesFile:           getEnv("AGENT_RULES_FILE", ""),
		},
		Sentry: SentryConfig{
			DSN: getEnv("SENTRY_DSN", ""),
		},
		Secrets: SecretsConfig{
			EncryptionKey: getEnv("SECRETS_ENCRYPTION_KEY", ""),
		},
	}

	// Validate required fields
	if cfg.JWT.AccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.JWT.RefreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_SECRET is required")
	}
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if cfg.Secrets.EncryptionKey == "" {
		return nil, fmt.Errorf("SECRETS_ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
