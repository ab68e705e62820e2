// Package oauth implements Google sign-in for tsauth with
// golang.org/x/oauth2.
//
// The flow is stateless on the server: [Google.Begin] returns the provider
// redirect URL and a signed value holding the CSRF state and the PKCE
// verifier, which the HTTP layer stores in a short-lived cookie.
// [Google.Complete] checks that value against the callback, exchanges the
// code and returns the asserted profile as a tsauth.ExternalIdentity.
package oauth
