package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	eventadapter "github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/events"
)

// Config is the resolved runtime configuration for the auth service.
type Config struct {
	ServiceID string
	Env       string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	TokenIssuer        string
	JWTAccessSecret    string
	JWTRefreshSecret   string
	JWTTwoFactorSecret string
	AllowEphemeralJWT  bool
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TwoFactorTokenTTL  time.Duration

	BcryptCost int
	TOTPIssuer string

	InspectorAccessKey string
	InspectorUsername  string

	SessionTTL              time.Duration
	SessionCleanupEnabled   bool
	SessionCleanupCron      string
	SessionRevokedRetention time.Duration
	SessionIdleRetention    time.Duration
	ReaperLeaseTTL          time.Duration

	LockoutDuration time.Duration
	FailedThreshold int

	KafkaBrokers     []string
	KafkaTopicPrefix string

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// Production reports whether the service runs with production hardening.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// UsesEphemeralSecrets reports whether token secrets must be generated at startup.
func (c Config) UsesEphemeralSecrets() bool {
	return c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" || c.JWTTwoFactorSecret == ""
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		Env      string `yaml:"env"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Tokens struct {
		Issuer           string `yaml:"issuer"`
		AllowEphemeral   *bool  `yaml:"allow_ephemeral"`
		AccessMinutes    int    `yaml:"access_ttl_minutes"`
		RefreshDays      int    `yaml:"refresh_ttl_days"`
		TwoFactorMinutes int    `yaml:"two_factor_ttl_minutes"`
	} `yaml:"tokens"`
	Sessions struct {
		CleanupCron           string `yaml:"cleanup_cron"`
		CleanupEnabled        *bool  `yaml:"cleanup_enabled"`
		TTLDays               int    `yaml:"ttl_days"`
		RevokedRetentionDays  int    `yaml:"revoked_retention_days"`
		IdleRetentionDays     int    `yaml:"idle_retention_days"`
		ReaperLeaseTTLMinutes int    `yaml:"reaper_lease_ttl_minutes"`
	} `yaml:"sessions"`
	Inspector struct {
		Username string `yaml:"username"`
	} `yaml:"inspector"`
	Events struct {
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"events"`
	TOTP struct {
		Issuer string `yaml:"issuer"`
	} `yaml:"totp"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// Secrets are only ever read from the environment.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:               "inspection-auth-service",
		Env:                     "development",
		HTTPPort:                8080,
		GRPCPort:                9090,
		TokenIssuer:             "inspection-auth-service",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         7 * 24 * time.Hour,
		TwoFactorTokenTTL:       5 * time.Minute,
		BcryptCost:              10,
		TOTPIssuer:              "Inspection App",
		InspectorUsername:       "inspector",
		SessionTTL:              7 * 24 * time.Hour,
		SessionCleanupEnabled:   true,
		SessionCleanupCron:      "0 0 * * *",
		SessionRevokedRetention: 7 * 24 * time.Hour,
		SessionIdleRetention:    30 * 24 * time.Hour,
		ReaperLeaseTTL:          10 * time.Minute,
		LockoutDuration:         15 * time.Minute,
		FailedThreshold:         5,
		KafkaTopicPrefix:        "inspection",
		MaxDBConns:              20,
		OutboxPollInterval:      2 * time.Second,
		OutboxBatchSize:         100,
		OutboxClaimTTL:          30 * time.Second,
		OutboxMaxRetries:        5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	}

	cfg.Env = envOrDefault("APP_ENV", cfg.Env)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTAccessSecret = envOrDefault("JWT_ACCESS_SECRET", cfg.JWTAccessSecret)
	cfg.JWTRefreshSecret = envOrDefault("JWT_REFRESH_SECRET", cfg.JWTRefreshSecret)
	cfg.JWTTwoFactorSecret = envOrDefault("JWT_2FA_SECRET", cfg.JWTTwoFactorSecret)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.InspectorAccessKey = envOrDefault("INSPECTOR_ACCESS_KEY", cfg.InspectorAccessKey)
	cfg.InspectorUsername = envOrDefault("INSPECTOR_USERNAME", cfg.InspectorUsername)
	cfg.TOTPIssuer = envOrDefault("TOTP_ISSUER", cfg.TOTPIssuer)
	cfg.SessionCleanupCron = envOrDefault("SESSION_CLEANUP_CRON", cfg.SessionCleanupCron)
	cfg.SessionCleanupEnabled = envBool("SESSION_CLEANUP_ENABLED", cfg.SessionCleanupEnabled)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicPrefix = envOrDefault("KAFKA_TOPIC_PREFIX", cfg.KafkaTopicPrefix)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.SessionTTL = envDays("SESSION_TTL_DAYS", cfg.SessionTTL)
	cfg.SessionRevokedRetention = envDays("SESSION_REVOKED_RETENTION_DAYS", cfg.SessionRevokedRetention)
	cfg.SessionIdleRetention = envDays("SESSION_IDLE_RETENTION_DAYS", cfg.SessionIdleRetention)
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.Env != "" {
		cfg.Env = f.Service.Env
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Tokens.Issuer != "" {
		cfg.TokenIssuer = f.Tokens.Issuer
	}
	if f.Tokens.AllowEphemeral != nil {
		cfg.AllowEphemeralJWT = *f.Tokens.AllowEphemeral
	}
	if f.Tokens.AccessMinutes > 0 {
		cfg.AccessTokenTTL = time.Duration(f.Tokens.AccessMinutes) * time.Minute
	}
	if f.Tokens.RefreshDays > 0 {
		cfg.RefreshTokenTTL = time.Duration(f.Tokens.RefreshDays) * 24 * time.Hour
	}
	if f.Tokens.TwoFactorMinutes > 0 {
		cfg.TwoFactorTokenTTL = time.Duration(f.Tokens.TwoFactorMinutes) * time.Minute
	}
	if f.Sessions.CleanupCron != "" {
		cfg.SessionCleanupCron = f.Sessions.CleanupCron
	}
	if f.Sessions.CleanupEnabled != nil {
		cfg.SessionCleanupEnabled = *f.Sessions.CleanupEnabled
	}
	if f.Sessions.TTLDays > 0 {
		cfg.SessionTTL = time.Duration(f.Sessions.TTLDays) * 24 * time.Hour
	}
	if f.Sessions.RevokedRetentionDays > 0 {
		cfg.SessionRevokedRetention = time.Duration(f.Sessions.RevokedRetentionDays) * 24 * time.Hour
	}
	if f.Sessions.IdleRetentionDays > 0 {
		cfg.SessionIdleRetention = time.Duration(f.Sessions.IdleRetentionDays) * 24 * time.Hour
	}
	if f.Sessions.ReaperLeaseTTLMinutes > 0 {
		cfg.ReaperLeaseTTL = time.Duration(f.Sessions.ReaperLeaseTTLMinutes) * time.Minute
	}
	if f.Inspector.Username != "" {
		cfg.InspectorUsername = f.Inspector.Username
	}
	if f.Events.TopicPrefix != "" {
		cfg.KafkaTopicPrefix = f.Events.TopicPrefix
	}
	if f.TOTP.Issuer != "" {
		cfg.TOTPIssuer = f.TOTP.Issuer
	}
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("missing REDIS_URL")
	}
	if c.UsesEphemeralSecrets() && !c.AllowEphemeralJWT {
		return fmt.Errorf("missing JWT_ACCESS_SECRET, JWT_REFRESH_SECRET or JWT_2FA_SECRET")
	}
	secrets := map[string]string{}
	for name, secret := range map[string]string{
		"JWT_ACCESS_SECRET":  c.JWTAccessSecret,
		"JWT_REFRESH_SECRET": c.JWTRefreshSecret,
		"JWT_2FA_SECRET":     c.JWTTwoFactorSecret,
	} {
		if secret == "" {
			continue
		}
		if other, dup := secrets[secret]; dup {
			return fmt.Errorf("%s and %s must differ", other, name)
		}
		secrets[secret] = name
	}
	if c.SessionCleanupEnabled {
		if _, err := eventadapter.ParseSchedule(c.SessionCleanupCron); err != nil {
			return fmt.Errorf("SESSION_CLEANUP_CRON: %w", err)
		}
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.TwoFactorTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDays(name string, fallback time.Duration) time.Duration {
	days := envInt(name, int(fallback.Hours()/24))
	if days <= 0 {
		return fallback
	}
	return time.Duration(days) * 24 * time.Hour
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
