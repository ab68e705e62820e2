package tsauth

import (
	"context"
	"time"
)

// AuthProvider names how an account authenticates.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "local"
	ProviderGoogle AuthProvider = "google"
)

// User is a persisted account. Email is the unique key and is always stored
// trimmed and lower-cased. For external-only accounts PasswordHash holds the
// hash of an unusable random secret.
type User struct {
	ID            string
	Name          string
	Username      string
	Email         string
	PasswordHash  string
	PhoneNumber   string
	Roles         []string
	AuthProvider  AuthProvider
	EmailVerified bool
	Picture       string
	GoogleID      string
	CreatedAt     time.Time
}

// SignupRequest is the input to [Engine.Signup]. It deliberately carries no
// roles, verification flag or provider: those are always set by the engine.
type SignupRequest struct {
	Name        string
	Username    string
	Email       string
	Password    string
	PhoneNumber string
}

// ExternalIdentity is a profile asserted by a trusted OAuth2 provider and
// passed to [Engine.ProvisionExternal].
type ExternalIdentity struct {
	Provider AuthProvider
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// Principal is the authenticated caller attached to a request by the gate.
// User reflects the store at authentication time, not the token claims.
type Principal struct {
	User  User
	Token string
}

// UserStore is the account persistence contract the engine depends on.
//
// Lookups return [ErrUserNotFound] when nothing matches. Create returns
// [ErrDuplicateUser] when email or username collides with an existing row,
// wrapped with a detail that mentions "username" for a username collision;
// uniqueness must be enforced by the store itself, not by a prior lookup.
// Any other error is treated as the store being unavailable.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user User) (User, error)
}

// Mailer delivers a plaintext code to an address. validity is how long the
// code stays usable and is meant for the message body.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string, validity time.Duration) error
}
