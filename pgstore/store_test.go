package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/truesplit/tsauth"
)

var userColumns = []string{
	"id", "name", "username", "email", "password_hash", "phone_number", "roles",
	"auth_provider", "email_verified", "picture", "google_id", "created_at",
}

func newStoreWithMock(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewUserStore(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestFindByEmailFound(t *testing.T) {
	store, mock := newStoreWithMock(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(userColumns).AddRow(
		"6f1c", "Ada", "ada", "ada@x.com", "$argon2id$hash", "555",
		[]byte(`["ROLE_USER","ROLE_ADMIN"]`), "local", true, "", nil, created,
	)
	mock.ExpectQuery(`(?s)^SELECT .+ FROM users\s+WHERE email = \$1$`).
		WithArgs("ada@x.com").
		WillReturnRows(rows)

	got, err := store.FindByEmail(context.Background(), "ada@x.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if got.ID != "6f1c" || got.Username != "ada" || got.GoogleID != "" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if len(got.Roles) != 2 || got.Roles[1] != "ROLE_ADMIN" {
		t.Fatalf("unexpected roles: %v", got.Roles)
	}
	if got.AuthProvider != tsauth.ProviderLocal || !got.EmailVerified || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected fields: %+v", got)
	}
	expectationsMet(t, mock)
}

func TestFindByEmailNotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ WHERE email = \$1$`).
		WithArgs("ghost@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByEmail(context.Background(), "ghost@x.com")
	if !errors.Is(err, tsauth.ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}

func TestFindByUsernameNullColumns(t *testing.T) {
	store, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows(userColumns).AddRow(
		"7a2d", "GoogleUser", "bob", "bob@x.com", "$argon2id$hash", "",
		[]byte(`["ROLE_USER"]`), "google", true, "https://pic", "g-123", time.Now(),
	)
	mock.ExpectQuery(`(?s)^SELECT .+ WHERE username = \$1$`).
		WithArgs("bob").
		WillReturnRows(rows)

	got, err := store.FindByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("FindByUsername error: %v", err)
	}
	if got.AuthProvider != tsauth.ProviderGoogle || got.GoogleID != "g-123" || got.Picture != "https://pic" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestFindByUsernameEmptySkipsQuery(t *testing.T) {
	store, mock := newStoreWithMock(t)

	_, err := store.FindByUsername(context.Background(), "")
	if !errors.Is(err, tsauth.ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestFindDBErrorWrapped(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ WHERE email = \$1$`).
		WithArgs("a@x.com").
		WillReturnError(errors.New("db down"))

	_, err := store.FindByEmail(context.Background(), "a@x.com")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if errors.Is(err, tsauth.ErrUserNotFound) {
		t.Fatal("backend failure must not look like a missing user")
	}
}

func TestExistsByEmail(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`^SELECT EXISTS \(SELECT 1 FROM users WHERE email = \$1\)$`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.ExistsByEmail(context.Background(), "a@x.com")
	if err != nil || !ok {
		t.Fatalf("ExistsByEmail = %v, %v", ok, err)
	}
	expectationsMet(t, mock)
}

func TestExistsByUsername(t *testing.T) {
	store, mock := newStoreWithMock(t)

	ok, err := store.ExistsByUsername(context.Background(), "")
	if err != nil || ok {
		t.Fatalf("empty username must not exist, got %v, %v", ok, err)
	}

	mock.ExpectQuery(`^SELECT EXISTS \(SELECT 1 FROM users WHERE username = \$1\)$`).
		WithArgs("ada").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err = store.ExistsByUsername(context.Background(), "ada")
	if err != nil || ok {
		t.Fatalf("ExistsByUsername = %v, %v", ok, err)
	}
	expectationsMet(t, mock)
}

func TestCreateInsertsRow(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)^INSERT INTO users \(id, name, username, email, .+\)\s+VALUES \(\$1, .+ \$12\)$`).
		WithArgs(
			"u-1", "Ada", nil, "ada@x.com", "$argon2id$hash", "",
			`["ROLE_USER"]`, "local", true, "", nil, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := store.Create(context.Background(), tsauth.User{
		ID:            "u-1",
		Name:          "Ada",
		Email:         "ada@x.com",
		PasswordHash:  "$argon2id$hash",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.CreatedAt.IsZero() || got.AuthProvider != tsauth.ProviderLocal || got.Roles[0] != "ROLE_USER" {
		t.Fatalf("expected defaults filled, got %+v", got)
	}
	expectationsMet(t, mock)
}

func TestCreateUniqueViolationIsDuplicate(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`^INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := store.Create(context.Background(), tsauth.User{ID: "u-1", Email: "a@x.com", Username: "a"})
	if !errors.Is(err, tsauth.ErrDuplicateUser) {
		t.Fatalf("want ErrDuplicateUser, got %v", err)
	}
	if !strings.Contains(err.Error(), "users_email_key") {
		t.Fatalf("expected constraint name in %q", err)
	}
}

func TestCreateOtherPgErrorNotDuplicate(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`^INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "57P01"})

	_, err := store.Create(context.Background(), tsauth.User{ID: "u-1", Email: "a@x.com"})
	if err == nil || errors.Is(err, tsauth.ErrDuplicateUser) {
		t.Fatalf("expected non-duplicate db error, got %v", err)
	}
}

func TestMigrateRunsEmbeddedMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	var gotDir string
	orig := gooseUp
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	defer func() { gooseUp = orig }()

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if gotDir != "migrations" {
		t.Fatalf("unexpected migrations dir %q", gotDir)
	}

	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("expected embedded migrations, got %v (%v)", files, err)
	}
	data, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "users_email_key", "WHERE username IS NOT NULL", "JSONB"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}

func TestMigrateWrapsError(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUp
	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("boom") }
	defer func() { gooseUp = orig }()

	err = Migrate(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "migration error: boom") {
		t.Fatalf("expected wrapped migration error, got %v", err)
	}
}
