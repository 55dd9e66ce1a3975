package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/assaytrack/apiserver/internal/services"
	"github.com/assaytrack/apiserver/types"
)

// UserHandler serves account administration and self-service profile
// updates.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes. The caller wraps the router with
// auth middleware; the service enforces the admin-only operations.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)

	r.Get("/", handler.List)
	r.Patch("/me", handler.UpdateProfile)
	r.Patch("/{userID}/role", handler.SetRole)
	r.Post("/{userID}/deactivate", handler.Deactivate)
}

// List returns all accounts, paginated. Admin only.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, total, err := h.userService.List(r.Context(), identityFromContext(r.Context()), offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Users: users,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

type UserListResponse struct {
	Users []types.User `json:"users"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Company  *string `json:"company"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
}

// UpdateProfile applies a self-service update to the caller's account.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	patch := services.ProfilePatch{
		Name:    req.Name,
		Company: req.Company,
		Phone:   req.Phone,
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update profile")
			return
		}
		hash := string(hashed)
		patch.PasswordHash = &hash
	}

	user, err := h.userService.UpdateProfile(r.Context(), patch, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

// SetRole changes an account's role. Admin only.
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	role := types.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	user, err := h.userService.SetRole(r.Context(), id, role, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Deactivate disables an account. Admin only; accounts are never deleted.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Deactivate(r.Context(), id, identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
