package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/truesplit/tsauth"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

type tokenBody struct {
	Token string `json:"token"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, messageBody{Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps engine errors onto statuses and the client-facing messages.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tsauth.ErrValidation):
		badRequest(w, strings.TrimPrefix(err.Error(), tsauth.ErrValidation.Error()+": "))
	case errors.Is(err, tsauth.ErrEmailInUse):
		badRequest(w, "Email already in use")
	case errors.Is(err, tsauth.ErrUsernameInUse):
		badRequest(w, "Username already in use")
	case errors.Is(err, tsauth.ErrEmailNotVerified):
		badRequest(w, "Email is not verified using OTP")
	case errors.Is(err, tsauth.ErrInvalidCredentials):
		badRequest(w, "Invalid credentials")
	case errors.Is(err, tsauth.ErrInvalidOTP):
		badRequest(w, "Invalid or expired OTP")
	case errors.Is(err, tsauth.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, tsauth.ErrStaleSession):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "User deleted"})
	case errors.Is(err, tsauth.ErrUserStoreUnavailable),
		errors.Is(err, tsauth.ErrOTPUnavailable),
		errors.Is(err, tsauth.ErrMailUnavailable):
		s.logger.ErrorContext(r.Context(), "backend unavailable", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "service unavailable"})
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}
