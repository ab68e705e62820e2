// Package jwt issues and validates the HS256 session tokens that carry an
// authenticated subject (email) and its role list.
//
// Validation checks signature, algorithm and expiry only. Whether the subject
// still exists is the caller's concern.
package jwt
