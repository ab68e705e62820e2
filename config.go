package tsauth

import (
	"errors"
	"time"

	"github.com/truesplit/tsauth/jwt"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override fields; Build rejects it if [Config.Validate] fails.
type Config struct {
	JWT      JWTConfig
	OTP      OTPConfig
	Password PasswordConfig
	Account  AccountConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the session token settings. Secret is the HS256 key and is
// required; Issuer is optional and, when set, is both written and enforced.
type JWTConfig struct {
	TTL    time.Duration
	Secret []byte
	Issuer string
	Leeway time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls email one-time codes.
//
// Validity is the logical lifetime checked on verify. RecordGrace is added to
// the Redis TTL of an unverified record so the sweeper, not Redis expiry, is
// the normal path that removes it. VerifiedRetention bounds how long a
// verified record waits for a Signup. MaxVerifyAttempts of zero means
// mismatches are never counted.
type OTPConfig struct {
	Validity          time.Duration
	SweepInterval     time.Duration
	RecordGrace       time.Duration
	VerifiedRetention time.Duration
	MaxVerifyAttempts int
	CodeDigits        int
	RedisPrefix       string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets the argon2id cost shared by password and OTP hashes.
// MinLength applies to signup passwords only; MaxBytes caps any hashed input.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxBytes    int
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls local signup and login.
type AccountConfig struct {
	DefaultRole string
	// LoginByUsername lets Login fall back to a username lookup when no user
	// has the identifier as email.
	LoginByUsername bool
	// ExternalDefaultName is the display name given to external accounts
	// whose provider supplied none.
	ExternalDefaultName string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig sizes the asynchronous audit buffer. With DropIfFull set a full
// buffer drops events and counts them; otherwise emitters block.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig turns the in-process counters on. Latency histograms are
// recorded only when both flags are set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the engine defaults. JWT.Secret is empty and must be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL: 24 * time.Hour,
		},
		OTP: OTPConfig{
			Validity:          60 * time.Second,
			SweepInterval:     90 * time.Second,
			RecordGrace:       5 * time.Minute,
			VerifiedRetention: 24 * time.Hour,
			MaxVerifyAttempts: 0,
			CodeDigits:        6,
			RedisPrefix:       "tso",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxBytes:    1024,
		},
		Account: AccountConfig{
			DefaultRole:         "ROLE_USER",
			LoginByUsername:     true,
			ExternalDefaultName: "GoogleUser",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	if len(c.JWT.Secret) < jwt.MinSecretBytes {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// OTP
	if c.OTP.Validity <= 0 {
		return errors.New("OTP Validity must be > 0")
	}
	if c.OTP.SweepInterval <= 0 {
		return errors.New("OTP SweepInterval must be > 0")
	}
	if c.OTP.RecordGrace < 0 {
		return errors.New("OTP RecordGrace must be >= 0")
	}
	if c.OTP.VerifiedRetention <= 0 {
		return errors.New("OTP VerifiedRetention must be > 0")
	}
	if c.OTP.MaxVerifyAttempts < 0 || c.OTP.MaxVerifyAttempts > 65535 {
		return errors.New("OTP MaxVerifyAttempts must be between 0 and 65535")
	}
	if c.OTP.CodeDigits < 4 || c.OTP.CodeDigits > 10 {
		return errors.New("OTP CodeDigits must be between 4 and 10")
	}
	if c.OTP.RedisPrefix == "" {
		return errors.New("OTP RedisPrefix must not be empty")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxBytes < c.Password.MinLength {
		return errors.New("Password MaxBytes must be >= MinLength")
	}

	// Account
	if c.Account.DefaultRole == "" {
		return errors.New("Account DefaultRole must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
