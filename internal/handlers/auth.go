package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mwestergaard/hearth/internal/auth"
	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/services"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
)

// AuthHandler handles the login surface and session lifecycle endpoints
type AuthHandler struct {
	authService *services.AuthService
	sessions    *services.SessionService
	audit       *services.AuditService
	ipConfig    *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService, sessions *services.SessionService, audit *services.AuditService, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
		audit:       audit,
		ipConfig:    ipConfig,
	}
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=64"`
	Secret string `json:"secret" validate:"required"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Token           string    `json:"token"`
	ExpiresAt       time.Time `json:"expires_at"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	PasswordExpired bool      `json:"password_expired,omitempty"`
}

// RefreshResponse carries the replacement token after a refresh
type RefreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChangePasswordRequest is the request body for a self-service secret change
type ChangePasswordRequest struct {
	Current string `json:"current" validate:"required"`
	Next    string `json:"next" validate:"required"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.authService.Login(req.Name, req.Secret, clientIP)
	if err != nil {
		var rateErr *services.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", rateErr.RetryAfter)
		case errors.Is(err, models.ErrUnauthorized):
			// One generic rejection for every authentication failure mode
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:           result.Token,
		ExpiresAt:       result.ExpiresAt,
		Name:            result.Identifier,
		Role:            string(result.Role),
		PasswordExpired: result.PasswordExpired,
	})
}

// Refresh handles POST /auth/refresh: the old token is invalidated and a new
// one with a fresh TTL window is returned
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
		return
	}

	result, ok := h.sessions.Refresh(token)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Invalid or expired session")
		return
	}

	session := auth.SessionFromContext(r)
	if session != nil {
		h.audit.Record(models.AuditEventSessionRefreshed, map[string]any{
			"identifier": session.Identifier,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, RefreshResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

// Logout handles POST /auth/logout; idempotent
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
		return
	}

	session := auth.SessionFromContext(r)
	if h.sessions.Destroy(token) && session != nil {
		h.audit.Record(models.AuditEventLogout, map[string]any{
			"identifier": session.Identifier,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /auth/password for the authenticated profile
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.authService.ChangePassword(session.Identifier, req.Current, req.Next); err != nil {
		var policyErr *services.PolicyValidationError
		switch {
		case errors.As(err, &policyErr):
			pkghttp.WriteValidationError(w, "Secret does not satisfy policy", policyErr.Violations)
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
