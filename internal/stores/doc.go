// Package stores provides the Redis-backed OTP record store.
//
// # Design
//
// Each record is a versioned, binary-encoded value under one key per email,
// plus a member in a sorted-set expiry index scored by expiresAt. Writes that
// depend on a prior read (mark verified, count a mismatch, delete on expiry)
// run as Lua scripts that compare the stored bytes against the bytes the
// caller read, so a concurrent request-code for the same email always wins.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for OTP records. It
// does NOT generate or hash codes, send mail, or decide whether a code matches;
// those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import tsauth or any sibling internal package.
//   - Store or log plaintext codes.
package stores
