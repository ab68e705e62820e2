package httpapi

import (
	"net/http"
	"strings"

	"github.com/truesplit/tsauth"
	"github.com/truesplit/tsauth/middleware"
)

type requestOTPRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type signupRequest struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) requestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		badRequest(w, "email is required")
		return
	}

	if err := s.engine.RequestCode(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "OTP sent if email is valid")
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		badRequest(w, "email and code are required")
		return
	}

	ok, err := s.engine.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, tsauth.ErrInvalidOTP)
		return
	}
	writeMessage(w, "OTP verified")
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}

	token, err := s.engine.Signup(r.Context(), tsauth.SignupRequest{
		Name:        req.Name,
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, s.cookies.SessionCookie(token))
	writeJSON(w, http.StatusOK, tokenBody{Token: token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	token, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, s.cookies.SessionCookie(token))
	writeJSON(w, http.StatusOK, tokenBody{Token: token})
}

// logout clears the cookie. Tokens are stateless, so a copied token stays
// valid until it expires.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	subject := ""
	if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		subject = p.User.Email
	}
	s.engine.RecordLogout(r.Context(), subject)

	http.SetCookie(w, s.cookies.ExpiredCookie())
	writeMessage(w, "Logged out")
}
