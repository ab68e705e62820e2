// Package internal holds helpers private to tsauth, currently the OTP code
// generator.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: TS_* environment loading for the server binary
//   - httpapi: chi routes and handlers for the auth API
//   - stores: Redis OTP record store
package internal
