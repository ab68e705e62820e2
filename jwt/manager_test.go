package jwt

import (
	"strings"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, ttl time.Duration, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(Config{TTL: ttl, Secret: testSecret}, opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueValidateAndSubject(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.Issue("a@x.com", []string{"ROLE_USER"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !m.Validate(token) {
		t.Fatal("expected freshly issued token to validate")
	}
	if got := m.SubjectOf(token); got != "a@x.com" {
		t.Fatalf("expected subject a@x.com, got %q", got)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "ROLE_USER" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("expected iat and exp claims")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("expected exp-iat of 1h, got %v", got)
	}
}

func TestValidateFailsAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, time.Minute, WithClock(clock.Now))

	token, err := m.Issue("a@x.com", []string{"ROLE_USER"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !m.Validate(token) {
		t.Fatal("expected token to validate immediately")
	}

	clock.Advance(59 * time.Second)
	if !m.Validate(token) {
		t.Fatal("expected token to validate before TTL")
	}

	clock.Advance(2 * time.Second)
	if m.Validate(token) {
		t.Fatal("expected token to fail validation after TTL")
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	m := newTestManager(t, time.Hour)
	other, err := NewManager(Config{TTL: time.Hour, Secret: []byte(strings.Repeat("z", 32))})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := other.Issue("a@x.com", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if m.Validate(token) {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, time.Hour)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@x.com",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	hs512, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if m.Validate(hs512) {
		t.Fatal("expected HS512 token to be rejected")
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if m.Validate(none) {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func TestValidateRejectsMissingExpiry(t *testing.T) {
	m := newTestManager(t, time.Hour)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "a@x.com"}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if m.Validate(token) {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestValidateIssuerAndLeeway(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, err := NewManager(Config{
		TTL:    time.Minute,
		Secret: testSecret,
		Issuer: "truesplit",
		Leeway: 30 * time.Second,
	}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Issue("a@x.com", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(80 * time.Second)
	if !m.Validate(token) {
		t.Fatal("expected token inside leeway to validate")
	}
	clock.Advance(20 * time.Second)
	if m.Validate(token) {
		t.Fatal("expected token past leeway to fail")
	}

	unscoped, err := NewManager(Config{TTL: time.Minute, Secret: testSecret, Issuer: "other"}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	fresh, err := m.Issue("a@x.com", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if unscoped.Validate(fresh) {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestValidateAndSubjectOfGarbage(t *testing.T) {
	m := newTestManager(t, time.Hour)

	for _, input := range []string{"", "not.a.jwt", "a.b", "eyJhbGciOiJIUzI1NiJ9.e30.xx"} {
		if m.Validate(input) {
			t.Fatalf("expected %q to be invalid", input)
		}
		if got := m.SubjectOf(input); got != "" {
			t.Fatalf("expected empty subject for %q, got %q", input, got)
		}
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	m := newTestManager(t, time.Hour)
	if _, err := m.Issue("", nil); err == nil {
		t.Fatal("expected empty subject to be rejected")
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{TTL: 0, Secret: testSecret},
		{TTL: time.Minute, Secret: []byte("short")},
		{TTL: time.Minute, Secret: testSecret, Leeway: -time.Second},
		{TTL: time.Minute, Secret: testSecret, Leeway: 3 * time.Minute},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}

func TestNewManagerCopiesSecret(t *testing.T) {
	secret := append([]byte(nil), testSecret...)
	m, err := NewManager(Config{TTL: time.Minute, Secret: secret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue("a@x.com", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	secret[0] ^= 0xFF
	if !m.Validate(token) {
		t.Fatal("expected manager to be unaffected by caller mutating the secret")
	}
}
