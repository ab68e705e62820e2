// Package tsauth implements TrueSplit authentication: email OTP verification,
// local signup and login with argon2id passwords, OAuth2 account provisioning,
// and HS256 session tokens that are re-checked against the user store on
// every request.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// tsauth is the public surface. It exposes [Engine], [Builder], [Config], the
// [UserStore] and [Mailer] contracts, and value types. OTP persistence and
// audit dispatch live under internal/ and are never exported. Concrete stores,
// mailers, HTTP handlers and the OAuth2 client live in sibling packages that
// import tsauth, never the other way round.
//
// # What this package must NOT do
//
//   - Return or log plaintext OTP codes or passwords.
//   - Expose Redis clients or the OTP record encoding in its public API.
//   - Import any sub-package that re-imports tsauth (no import cycles).
package tsauth
