// Package httpapi is the JSON HTTP surface of the TrueSplit auth service.
//
// Routes are mounted on a chi router. Every request passes through the
// session gate, so handlers read the caller from the request context and
// never look at tokens themselves.
package httpapi
