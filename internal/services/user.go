package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemreport/apiserver/internal/access"
	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// NewUser is the input of an account creation.
type NewUser struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Name      string `json:"name" validate:"required,max=200"`
	Role      string `json:"role" validate:"required"`
	StateName string `json:"stateName" validate:"max=100"`
	PPD       string `json:"ppd" validate:"max=100"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

// UserAssignment is the admin-editable part of an account.
type UserAssignment struct {
	Name      string `json:"name" validate:"required,max=200"`
	Role      string `json:"role" validate:"required"`
	StateName string `json:"stateName" validate:"max=100"`
	PPD       string `json:"ppd" validate:"max=100"`
}

// PasswordChange is the input of a self-service password change.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	logger zerolog.Logger
}

func NewUserService(repo UserRepository, logger zerolog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Create adds an account with a temporary password. The new user must
// change it on first login.
func (s *UserService) Create(ctx context.Context, actor types.Principal, input NewUser) (types.User, error) {
	if !access.Allowed(actor.Role, access.ManageUsers) {
		return types.User{}, ErrUnauthorized
	}
	user, err := s.Register(ctx, input)
	if err != nil {
		return types.User{}, err
	}
	s.logger.Info().
		Str("actor", actor.UserID).
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("user created")
	return user, nil
}

// Register creates an account without an authorization check. It backs
// the bootstrap CLI and Create.
func (s *UserService) Register(ctx context.Context, input NewUser) (types.User, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	input.StateName = strings.TrimSpace(input.StateName)
	input.PPD = strings.TrimSpace(input.PPD)
	if err := validateStruct(input); err != nil {
		return types.User{}, err
	}
	role, err := checkAssignment(input.Role, input.StateName, input.PPD)
	if err != nil {
		return types.User{}, err
	}

	if _, err := s.repo.GetByEmail(ctx, input.Email); err == nil {
		return types.User{}, fmt.Errorf("%w: %s", ErrEmailTaken, input.Email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Email:              input.Email,
		Name:               input.Name,
		Role:               role,
		StateName:          input.StateName,
		PPD:                input.PPD,
		PasswordHash:       string(hashed),
		MustChangePassword: true,
	})
}

func (s *UserService) List(ctx context.Context, actor types.Principal) ([]types.User, error) {
	if !access.Allowed(actor.Role, access.ManageUsers) {
		return nil, ErrUnauthorized
	}
	return s.repo.List(ctx)
}

// UpdateAssignment changes the role and the state/PPD assignment of a user.
func (s *UserService) UpdateAssignment(ctx context.Context, actor types.Principal, id string, input UserAssignment) (types.User, error) {
	if !access.Allowed(actor.Role, access.ManageUsers) {
		return types.User{}, ErrUnauthorized
	}
	input.Name = strings.TrimSpace(input.Name)
	input.StateName = strings.TrimSpace(input.StateName)
	input.PPD = strings.TrimSpace(input.PPD)
	if err := validateStruct(input); err != nil {
		return types.User{}, err
	}
	role, err := checkAssignment(input.Role, input.StateName, input.PPD)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.Name = input.Name
	user.Role = role
	user.StateName = input.StateName
	user.PPD = input.PPD

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.logger.Info().
		Str("actor", actor.UserID).
		Str("user_id", updated.ID).
		Str("role", string(updated.Role)).
		Str("state", updated.StateName).
		Msg("user assignment updated")
	return updated, nil
}

// Authenticate verifies the credentials and records the login time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.User{}, validationf("missing credentials")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	return s.repo.Update(ctx, user)
}

// ChangePassword replaces the caller's password and clears the
// must-change flag.
func (s *UserService) ChangePassword(ctx context.Context, actor types.Principal, input PasswordChange) (types.User, error) {
	if err := validateStruct(input); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByID(ctx, actor.UserID)
	if err != nil {
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	if input.NewPassword == input.CurrentPassword {
		return types.User{}, validationf("newPassword must differ from currentPassword")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = string(hashed)
	user.MustChangePassword = false
	return s.repo.Update(ctx, user)
}

// checkAssignment resolves the role name and checks that state-bound roles
// carry a state, and PPD accounts a district.
func checkAssignment(rawRole, stateName, ppd string) (types.Role, error) {
	role, ok := types.ParseRole(rawRole)
	if !ok {
		return "", validationf("unknown role %q", rawRole)
	}
	switch role {
	case types.RoleNegeri:
		if stateName == "" {
			return "", validationf("stateName is required for role %s", role)
		}
	case types.RolePPD:
		if stateName == "" || ppd == "" {
			return "", validationf("stateName and ppd are required for role %s", role)
		}
	}
	return role, nil
}
