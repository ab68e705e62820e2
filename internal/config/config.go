// Package config loads the server process configuration from TS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/truesplit/tsauth"
	"github.com/truesplit/tsauth/jwt"
	"github.com/truesplit/tsauth/mailer"
	"github.com/truesplit/tsauth/middleware"
	"github.com/truesplit/tsauth/oauth"
)

// Config is everything the server binary needs.
type Config struct {
	Addr        string
	FrontendURL string
	LogLevel    slog.Level
	LogFormat   string

	PostgresDSN string
	Redis       RedisConfig

	Engine tsauth.Config
	Cookie middleware.CookieConfig

	// SMTP is nil when no host is configured; OTPs are then logged.
	SMTP *mailer.SMTPConfig
	// OAuth is nil unless both the client id and secret are set.
	OAuth *oauth.Config

	MetricsEnabled bool
	// OTLPMetrics is nil unless TS_OTLP_METRICS_ENDPOINT is set.
	OTLPMetrics *OTLPConfig

	ShutdownTimeout time.Duration
}

// OTLPConfig points the OTLP/HTTP metrics push at a collector.
type OTLPConfig struct {
	Endpoint string
	Interval time.Duration
}

// RedisConfig addresses the OTP Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// rawEnv holds raw env values.
type rawEnv struct {
	Addr            string        `env:"TS_HTTP_ADDR"          envDefault:":8080"`
	FrontendURL     string        `env:"TS_FRONTEND_URL"       envDefault:"http://localhost:5173"`
	LogLevel        string        `env:"TS_LOG_LEVEL"          envDefault:"info"`
	LogFormat       string        `env:"TS_LOG_FORMAT"         envDefault:"json"`
	ShutdownTimeout time.Duration `env:"TS_SHUTDOWN_TIMEOUT"   envDefault:"10s"`

	PostgresDSN string `env:"TS_POSTGRES_DSN" envDefault:"postgres://localhost:5432/truesplit?sslmode=disable"`

	RedisAddr     string `env:"TS_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"TS_REDIS_PASSWORD"`
	RedisDB       int    `env:"TS_REDIS_DB"       envDefault:"0"`

	JWTSecret string        `env:"TS_JWT_SECRET"`
	JWTTTL    time.Duration `env:"TS_JWT_TTL"    envDefault:"24h"`
	JWTIssuer string        `env:"TS_JWT_ISSUER"`

	OTPValidity      time.Duration `env:"TS_OTP_VALIDITY"       envDefault:"60s"`
	OTPSweepInterval time.Duration `env:"TS_OTP_SWEEP_INTERVAL" envDefault:"90s"`
	OTPMaxAttempts   int           `env:"TS_OTP_MAX_ATTEMPTS"   envDefault:"0"`
	OTPRedisPrefix   string        `env:"TS_OTP_REDIS_PREFIX"   envDefault:"tso"`

	CookieSecure bool          `env:"TS_COOKIE_SECURE" envDefault:"false"`
	CookieTTL    time.Duration `env:"TS_COOKIE_TTL"    envDefault:"24h"`

	SMTPHost     string        `env:"TS_SMTP_HOST"`
	SMTPPort     int           `env:"TS_SMTP_PORT"     envDefault:"587"`
	SMTPUsername string        `env:"TS_SMTP_USERNAME"`
	SMTPPassword string        `env:"TS_SMTP_PASSWORD"`
	SMTPFrom     string        `env:"TS_SMTP_FROM"`
	SMTPPlain    bool          `env:"TS_SMTP_PLAIN"    envDefault:"false"`
	SMTPTimeout  time.Duration `env:"TS_SMTP_TIMEOUT"  envDefault:"10s"`

	GoogleClientID     string   `env:"TS_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"TS_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string   `env:"TS_GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/login/oauth2/code/google"`
	GoogleScopes       []string `env:"TS_GOOGLE_SCOPES"       envSeparator:","`

	AuditEnabled   bool `env:"TS_AUDIT_ENABLED"   envDefault:"true"`
	MetricsEnabled bool `env:"TS_METRICS_ENABLED" envDefault:"true"`

	OTLPMetricsEndpoint string        `env:"TS_OTLP_METRICS_ENDPOINT"`
	OTLPMetricsInterval time.Duration `env:"TS_OTLP_METRICS_INTERVAL" envDefault:"30s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw rawEnv) (Config, error) {
	if raw.JWTSecret == "" {
		return Config{}, errors.New("TS_JWT_SECRET is required")
	}
	if len(raw.JWTSecret) < jwt.MinSecretBytes {
		return Config{}, fmt.Errorf("TS_JWT_SECRET must be at least %d bytes", jwt.MinSecretBytes)
	}

	level, err := parseLevel(raw.LogLevel)
	if err != nil {
		return Config{}, err
	}
	format := strings.ToLower(raw.LogFormat)
	if format != "json" && format != "text" {
		return Config{}, fmt.Errorf("TS_LOG_FORMAT must be json or text, got %q", raw.LogFormat)
	}

	if raw.CookieTTL <= 0 {
		return Config{}, errors.New("TS_COOKIE_TTL must be positive")
	}

	engine := tsauth.DefaultConfig()
	engine.JWT.Secret = []byte(raw.JWTSecret)
	engine.JWT.TTL = raw.JWTTTL
	engine.JWT.Issuer = raw.JWTIssuer
	engine.OTP.Validity = raw.OTPValidity
	engine.OTP.SweepInterval = raw.OTPSweepInterval
	engine.OTP.MaxVerifyAttempts = raw.OTPMaxAttempts
	engine.OTP.RedisPrefix = raw.OTPRedisPrefix
	engine.Audit.Enabled = raw.AuditEnabled
	engine.Metrics.Enabled = raw.MetricsEnabled
	engine.Metrics.EnableLatencyHistograms = raw.MetricsEnabled
	if err := engine.Validate(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:        raw.Addr,
		FrontendURL: strings.TrimRight(raw.FrontendURL, "/"),
		LogLevel:    level,
		LogFormat:   format,
		PostgresDSN: raw.PostgresDSN,
		Redis: RedisConfig{
			Addr:     raw.RedisAddr,
			Password: raw.RedisPassword,
			DB:       raw.RedisDB,
		},
		Engine: engine,
		Cookie: middleware.CookieConfig{
			Name:   middleware.DefaultCookieName,
			Path:   "/",
			Secure: raw.CookieSecure,
			TTL:    raw.CookieTTL,
		},
		MetricsEnabled:  raw.MetricsEnabled,
		ShutdownTimeout: raw.ShutdownTimeout,
	}

	if raw.SMTPHost != "" {
		if raw.SMTPFrom == "" {
			return Config{}, errors.New("TS_SMTP_FROM is required when TS_SMTP_HOST is set")
		}
		cfg.SMTP = &mailer.SMTPConfig{
			Host:     raw.SMTPHost,
			Port:     raw.SMTPPort,
			Username: raw.SMTPUsername,
			Password: raw.SMTPPassword,
			From:     raw.SMTPFrom,
			Plain:    raw.SMTPPlain,
			Timeout:  raw.SMTPTimeout,
		}
	}

	if raw.GoogleClientID != "" && raw.GoogleClientSecret != "" {
		cfg.OAuth = &oauth.Config{
			ClientID:     raw.GoogleClientID,
			ClientSecret: raw.GoogleClientSecret,
			RedirectURL:  raw.GoogleRedirectURL,
			Scopes:       raw.GoogleScopes,
			StateSecret:  []byte(raw.JWTSecret),
		}
	}

	if raw.MetricsEnabled && raw.OTLPMetricsEndpoint != "" {
		if raw.OTLPMetricsInterval <= 0 {
			return Config{}, errors.New("TS_OTLP_METRICS_INTERVAL must be positive")
		}
		cfg.OTLPMetrics = &OTLPConfig{
			Endpoint: raw.OTLPMetricsEndpoint,
			Interval: raw.OTLPMetricsInterval,
		}
	}

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("TS_LOG_LEVEL: %w", err)
	}
	return level, nil
}
