package services

import (
	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

// Ownership carries the facts about a resource that an access decision
// needs: who owns it and, for samples, who is assigned to it.
type Ownership struct {
	ClientID  int
	AnalystID *int
}

// CanAccess is the single authorization decision applied to every sample,
// report, and document accessor. ADMIN and SUPERVISOR see everything; the
// owning client sees its own resources; an assigned analyst sees the
// samples assigned to them. Everything else, including anonymous callers,
// is denied; public routes never reach this function.
func CanAccess(identity types.Identity, owner Ownership) bool {
	if identity.Anonymous() {
		return false
	}
	if identity.Role.Privileged() {
		return true
	}
	if identity.UserID == owner.ClientID {
		return true
	}
	if identity.Role == types.RoleAnalyst && owner.AnalystID != nil && identity.UserID == *owner.AnalystID {
		return true
	}
	return false
}

// RequireAccess converts a negative CanAccess decision into the
// appropriate typed error.
func RequireAccess(identity types.Identity, owner Ownership) error {
	if identity.Anonymous() {
		return apperr.ErrAuthentication
	}
	if !CanAccess(identity, owner) {
		return apperr.Denied("not permitted to access this resource")
	}
	return nil
}
