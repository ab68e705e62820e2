// Package pgstore is the PostgreSQL implementation of tsauth.UserStore.
//
// It talks to Postgres through database/sql with the pgx stdlib driver and
// ships its schema as goose migrations embedded in the binary. Email and
// username uniqueness is enforced by unique indexes; a violation surfaces as
// tsauth.ErrDuplicateUser so concurrent signups resolve in the database.
package pgstore
