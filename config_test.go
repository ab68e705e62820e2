package tsauth

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "test defaults valid", mutate: func(c *Config) {}, wantValid: true},
		{name: "missing secret", mutate: func(c *Config) { c.JWT.Secret = nil }, wantValid: false},
		{name: "short secret", mutate: func(c *Config) { c.JWT.Secret = []byte("short") }, wantValid: false},
		{name: "zero ttl", mutate: func(c *Config) { c.JWT.TTL = 0 }, wantValid: false},
		{name: "leeway valid", mutate: func(c *Config) { c.JWT.Leeway = 45 * time.Second }, wantValid: true},
		{name: "leeway too large", mutate: func(c *Config) { c.JWT.Leeway = 3 * time.Minute }, wantValid: false},
		{name: "zero otp validity", mutate: func(c *Config) { c.OTP.Validity = 0 }, wantValid: false},
		{name: "zero sweep interval", mutate: func(c *Config) { c.OTP.SweepInterval = 0 }, wantValid: false},
		{name: "negative grace", mutate: func(c *Config) { c.OTP.RecordGrace = -time.Second }, wantValid: false},
		{name: "zero retention", mutate: func(c *Config) { c.OTP.VerifiedRetention = 0 }, wantValid: false},
		{name: "attempt limit valid", mutate: func(c *Config) { c.OTP.MaxVerifyAttempts = 5 }, wantValid: true},
		{name: "negative attempt limit", mutate: func(c *Config) { c.OTP.MaxVerifyAttempts = -1 }, wantValid: false},
		{name: "three digit codes", mutate: func(c *Config) { c.OTP.CodeDigits = 3 }, wantValid: false},
		{name: "empty prefix", mutate: func(c *Config) { c.OTP.RedisPrefix = "" }, wantValid: false},
		{name: "weak argon2 memory", mutate: func(c *Config) { c.Password.Memory = 1024 }, wantValid: false},
		{name: "zero min length", mutate: func(c *Config) { c.Password.MinLength = 0 }, wantValid: false},
		{name: "max below min", mutate: func(c *Config) { c.Password.MaxBytes = 4 }, wantValid: false},
		{name: "empty default role", mutate: func(c *Config) { c.Account.DefaultRole = "" }, wantValid: false},
		{name: "audit without buffer", mutate: func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, wantValid: false},
		{name: "latency without metrics", mutate: func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.EnableLatencyHistograms = true
		}, wantValid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestDefaultConfigRequiresSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without secret to be rejected")
	}

	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with secret to be valid, got %v", err)
	}
	if cfg.OTP.Validity != 60*time.Second || cfg.OTP.SweepInterval != 90*time.Second {
		t.Fatalf("unexpected otp defaults: %+v", cfg.OTP)
	}
	if cfg.OTP.MaxVerifyAttempts != 0 {
		t.Fatal("attempt counting must be off by default")
	}
}

func TestBuildConfigImmutabilityAgainstExternalMutation(t *testing.T) {
	cfg := testConfig()
	_, rdb := newTestRedis(t)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(newMockUserStore()).
		WithMailer(&fakeMailer{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	before := engine.config.JWT.Secret[0]
	cfg.JWT.Secret[0] = 'X'

	if engine.config.JWT.Secret[0] != before {
		t.Fatal("engine config secret mutated from external config after build")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	tests := []struct {
		name    string
		builder *Builder
	}{
		{name: "no redis", builder: New().WithConfig(testConfig()).WithUserStore(newMockUserStore()).WithMailer(&fakeMailer{})},
		{name: "no user store", builder: New().WithConfig(testConfig()).WithRedis(rdb).WithMailer(&fakeMailer{})},
		{name: "no mailer", builder: New().WithConfig(testConfig()).WithRedis(rdb).WithUserStore(newMockUserStore())},
		{name: "invalid config", builder: New().WithRedis(rdb).WithUserStore(newMockUserStore()).WithMailer(&fakeMailer{})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.builder.Build(); err == nil {
				t.Fatal("expected Build to fail")
			}
		})
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserStore(newMockUserStore()).WithMailer(&fakeMailer{})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
