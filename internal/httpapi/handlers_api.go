package httpapi

import (
	"net/http"

	"github.com/truesplit/tsauth"
	"github.com/truesplit/tsauth/middleware"
)

type profileBody struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email"`
	PhoneNumber   string   `json:"phoneNumber"`
	Roles         []string `json:"roles"`
	AuthProvider  string   `json:"authProvider"`
	EmailVerified bool     `json:"emailVerified"`
	Picture       string   `json:"picture"`
}

func profileOf(u tsauth.User) profileBody {
	return profileBody{
		ID:            u.ID,
		Name:          u.Name,
		Username:      u.Username,
		Email:         u.Email,
		PhoneNumber:   u.PhoneNumber,
		Roles:         u.Roles,
		AuthProvider:  string(u.AuthProvider),
		EmailVerified: u.EmailVerified,
		Picture:       u.Picture,
	}
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		s.writeError(w, r, tsauth.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, profileOf(p.User))
}

func (s *Server) protected(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, "This is a protected route")
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.engine != nil && !s.engine.Health(r.Context()).RedisAvailable {
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
