package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/truesplit/tsauth"
)

const uniqueViolation = "23505"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserStore persists accounts in the users table.
type UserStore struct {
	db  DBTX
	now func() time.Time
}

var _ tsauth.UserStore = (*UserStore)(nil)

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db, now: time.Now}
}

const selectUser = `SELECT id, name, username, email, password_hash, phone_number, roles,
       auth_provider, email_verified, picture, google_id, created_at
  FROM users`

func (s *UserStore) FindByEmail(ctx context.Context, email string) (tsauth.User, error) {
	return s.findOne(ctx, selectUser+` WHERE email = $1`, email)
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (tsauth.User, error) {
	if username == "" {
		return tsauth.User{}, tsauth.ErrUserNotFound
	}
	return s.findOne(ctx, selectUser+` WHERE username = $1`, username)
}

func (s *UserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (s *UserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

// Create inserts user. A collision on email or username returns
// tsauth.ErrDuplicateUser wrapped with the violated constraint name.
func (s *UserStore) Create(ctx context.Context, user tsauth.User) (tsauth.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	if len(user.Roles) == 0 {
		user.Roles = []string{"ROLE_USER"}
	}
	if user.AuthProvider == "" {
		user.AuthProvider = tsauth.ProviderLocal
	}

	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return tsauth.User{}, fmt.Errorf("encode roles: %w", err)
	}

	query := `INSERT INTO users (id, name, username, email, password_hash, phone_number, roles,
                   auth_provider, email_verified, picture, google_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		nullable(user.Username),
		user.Email,
		user.PasswordHash,
		user.PhoneNumber,
		string(roles),
		string(user.AuthProvider),
		user.EmailVerified,
		user.Picture,
		nullable(user.GoogleID),
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return tsauth.User{}, fmt.Errorf("%w: %s", tsauth.ErrDuplicateUser, pgErr.ConstraintName)
		}
		return tsauth.User{}, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (s *UserStore) findOne(ctx context.Context, query string, arg string) (tsauth.User, error) {
	var (
		user     tsauth.User
		username sql.NullString
		googleID sql.NullString
		roles    []byte
		provider string
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&username,
		&user.Email,
		&user.PasswordHash,
		&user.PhoneNumber,
		&roles,
		&provider,
		&user.EmailVerified,
		&user.Picture,
		&googleID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tsauth.User{}, tsauth.ErrUserNotFound
		}
		return tsauth.User{}, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(roles, &user.Roles); err != nil {
		return tsauth.User{}, fmt.Errorf("decode roles: %w", err)
	}
	user.Username = username.String
	user.GoogleID = googleID.String
	user.AuthProvider = tsauth.AuthProvider(provider)

	return user, nil
}

func (s *UserStore) exists(ctx context.Context, query string, arg string) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
