package services

import (
	"context"
	"time"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id int, at time.Time) error
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) TouchLastLogin(ctx context.Context, id int, at time.Time) error {
	return s.repo.TouchLastLogin(ctx, id, at)
}

// List returns all accounts; admin only.
func (s *UserService) List(ctx context.Context, requester types.Identity, offset, limit int) ([]types.User, int, error) {
	if requester.Role != types.RoleAdmin {
		return nil, 0, apperr.Denied("listing users requires admin role")
	}
	return s.repo.List(ctx, offset, limit)
}

// ProfilePatch holds self-service profile fields; nil means untouched.
type ProfilePatch struct {
	Name         *string
	Company      *string
	Phone        *string
	PasswordHash *string
}

// UpdateProfile applies a self-service update to the caller's account.
func (s *UserService) UpdateProfile(ctx context.Context, patch ProfilePatch, requester types.Identity) (types.User, error) {
	if requester.Anonymous() {
		return types.User{}, apperr.ErrAuthentication
	}
	user, err := s.repo.GetByID(ctx, requester.UserID)
	if err != nil {
		return types.User{}, err
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Company != nil {
		user.Company = *patch.Company
	}
	if patch.Phone != nil {
		user.Phone = *patch.Phone
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	return s.repo.Update(ctx, user)
}

// SetRole changes an account's role; admin only.
func (s *UserService) SetRole(ctx context.Context, id int, role types.Role, requester types.Identity) (types.User, error) {
	if requester.Role != types.RoleAdmin {
		return types.User{}, apperr.Denied("changing roles requires admin role")
	}
	if !role.Valid() {
		return types.User{}, apperr.Validation(apperr.Field("role", "unknown role"))
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.Role = role
	return s.repo.Update(ctx, user)
}

// Deactivate disables an account; admin only. Accounts are never deleted.
func (s *UserService) Deactivate(ctx context.Context, id int, requester types.Identity) (types.User, error) {
	if requester.Role != types.RoleAdmin {
		return types.User{}, apperr.Denied("deactivating users requires admin role")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.Active = false
	return s.repo.Update(ctx, user)
}
