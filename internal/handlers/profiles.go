package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mwestergaard/hearth/internal/auth"
	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/services"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
)

// ProfileHandler handles the admin-management surface
type ProfileHandler struct {
	service *services.ProfileService
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(service *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// CreateProfileRequest is the request body for provisioning a profile
type CreateProfileRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=64"`
	Role  string `json:"role" validate:"required,oneof=readonly user manager admin"`
	Email string `json:"email" validate:"omitempty,email"`
}

// CreateProfileResponse returns the provisioned profile and its generated
// secret, shown exactly once
type CreateProfileResponse struct {
	Profile *services.ProfileView `json:"profile"`
	Secret  string                `json:"secret"`
}

// SetRoleRequest is the request body for a role change
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=readonly user manager admin"`
}

// SetStatusRequest is the request body for toggling the disabled flag
type SetStatusRequest struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

// ResetPinRequest optionally names a delivery address for the new secret
type ResetPinRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// ResetPinResponse returns the regenerated secret, shown exactly once
type ResetPinResponse struct {
	Secret string `json:"secret"`
}

// List handles GET /profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.List())
}

// Create handles POST /profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)

	var req CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	view, secret, err := h.service.Create(session.Identifier, req.Name, req.Role, req.Email)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, CreateProfileResponse{Profile: view, Secret: secret})
}

// SetRole handles PUT /profiles/{name}/role
func (h *ProfileHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)
	target := chi.URLParam(r, "name")

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.SetRole(session.Identifier, session.Role, target, req.Role); err != nil {
		writeProfileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus handles PUT /profiles/{name}/status
func (h *ProfileHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)
	target := chi.URLParam(r, "name")

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.SetDisabled(session.Identifier, session.Role, target, *req.Disabled); err != nil {
		writeProfileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPin handles POST /profiles/{name}/reset-pin
func (h *ProfileHandler) ResetPin(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)
	target := chi.URLParam(r, "name")

	var req ResetPinRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return
		}
		if err := ValidateRequest(req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
	}

	secret, err := h.service.ResetPin(session.Identifier, session.Role, target, req.Email)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, ResetPinResponse{Secret: secret})
}

// Delete handles DELETE /profiles/{name}
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)
	target := chi.URLParam(r, "name")

	if err := h.service.Delete(session.Identifier, session.Role, target); err != nil {
		writeProfileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Profile not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Profile already exists")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Insufficient permissions")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
