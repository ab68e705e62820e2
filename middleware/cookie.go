package middleware

import (
	"net/http"
	"time"
)

// DefaultCookieName is the session cookie set on signup and login.
const DefaultCookieName = "TS_AUTH"

// CookieConfig describes the session cookie attributes.
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
	TTL    time.Duration
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

// SessionCookie returns the HttpOnly cookie carrying token.
func (c CookieConfig) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     c.path(),
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie returns a cookie that makes the browser drop the session.
func (c CookieConfig) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     c.path(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
