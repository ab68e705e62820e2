// Package password implements argon2id hashing and verification.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the cost parameters from the stored hash, so raising the
// configured cost does not invalidate existing account passwords or OTP codes.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the Engine at signup.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets; callers supply plaintext and receive hashes.
//   - Import any other tsauth package.
//   - Log plaintext secrets or hash parameters at runtime.
package password
