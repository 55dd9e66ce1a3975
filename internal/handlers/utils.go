package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// identityFromContext returns the authenticated caller, or the zero
// (anonymous) identity when the request carried no valid credential.
func identityFromContext(ctx context.Context) types.Identity {
	if identity, ok := ctx.Value(contextIdentityKey).(types.Identity); ok {
		return identity
	}
	return types.Identity{}
}

func withIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error  string             `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

// writeServiceError maps service-layer error kinds onto HTTP statuses.
// Access and authentication failures stay generic so they leak nothing
// about which resources exist.
func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *apperr.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: vErr.Fields})
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, errorMessage(err, apperr.ErrValidation))
	case errors.Is(err, apperr.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, apperr.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, errorMessage(err, apperr.ErrNotFound))
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, errorMessage(err, apperr.ErrConflict))
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// errorMessage strips the sentinel suffix added by wrapping, leaving the
// human-readable reason.
func errorMessage(err error, sentinel error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = 1
	limit = 20

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseIDParam(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// Healthz is a liveness probe.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
