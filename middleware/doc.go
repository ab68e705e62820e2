// Package middleware puts the tsauth request authentication gate in front of
// net/http handlers.
//
// [Gate] reads the session token from the TS_AUTH cookie or, failing that,
// an Authorization Bearer header, resolves it through the engine and stores
// the resulting principal in the request context. A request without a usable
// token passes through unauthenticated; [RequireAuth] is the downstream
// check that rejects it. A token naming a deleted user ends the request with
// 401 and clears the cookie.
//
// This package does not parse tokens or touch any store itself; every
// decision is delegated to the engine.
package middleware
