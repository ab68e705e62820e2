package httpapi

import (
	"net/http"
	"strings"

	"github.com/truesplit/tsauth/oauth"
)

func (s *Server) oauthStart(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		http.NotFound(w, r)
		return
	}

	authURL, state := s.oauth.Begin()
	http.SetCookie(w, &http.Cookie{
		Name:     oauth.StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauth.StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		http.NotFound(w, r)
		return
	}

	var stateCookie string
	if c, err := r.Cookie(oauth.StateCookieName); err == nil {
		stateCookie = c.Value
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauth.StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		s.logger.WarnContext(r.Context(), "oauth provider returned error", "error", providerErr)
		s.redirectFrontend(w, r, "/login?error=oauth")
		return
	}

	identity, err := s.oauth.Complete(r.Context(), stateCookie, q.Get("state"), q.Get("code"))
	if err != nil {
		s.logger.WarnContext(r.Context(), "oauth callback rejected", "error", err)
		s.redirectFrontend(w, r, "/login?error=oauth")
		return
	}

	token, err := s.engine.ProvisionExternal(r.Context(), identity)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "oauth provisioning failed", "error", err)
		s.redirectFrontend(w, r, "/login?error=oauth")
		return
	}

	http.SetCookie(w, s.cookies.SessionCookie(token))
	s.redirectFrontend(w, r, "/dashboard")
}

func (s *Server) redirectFrontend(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, strings.TrimRight(s.frontendURL, "/")+path, http.StatusFound)
}
