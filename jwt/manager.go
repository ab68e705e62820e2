package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the smallest HS256 secret NewManager accepts.
const MinSecretBytes = 32

// Config holds the HS256 token settings. Leeway is the clock skew tolerated
// on parse and may not exceed two minutes. An empty Issuer is neither
// written nor checked.
type Config struct {
	TTL    time.Duration
	Secret []byte
	Issuer string
	Leeway time.Duration
}

// Manager issues and validates HS256 session tokens. The signing secret is
// fixed at construction and never regenerated per token.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the session token payload: subject email, role list and the
// registered iat/exp (and optional iss) claims.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the time source used for iat/exp on issue and for
// expiry checks on parse.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager validates cfg and returns a Manager holding a private copy of
// the secret. It fails on a non-positive TTL, a leeway outside [0, 2m] or a
// secret shorter than MinSecretBytes.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretBytes)
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	m := &Manager{config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for subject carrying roles, valid for the configured
// TTL from now.
func (m *Manager) Issue(subject string, roles []string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject required")
	}

	now := m.now()
	claims := Claims{
		Roles: append([]string(nil), roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}

// Parse verifies signature, algorithm and expiry and returns the claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}

	return claims, nil
}

// Validate reports whether tokenStr is a well-formed, correctly signed,
// unexpired token. It never returns an error and never consults a store.
func (m *Manager) Validate(tokenStr string) bool {
	if m == nil || tokenStr == "" {
		return false
	}
	_, err := m.Parse(tokenStr)
	return err == nil
}

// SubjectOf returns the sub claim without verifying the token. Callers must
// run Validate first; for unparseable input it returns "".
func (m *Manager) SubjectOf(tokenStr string) string {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return ""
	}
	return claims.Subject
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}
