package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/folioapp/folio-server/internal/auth"
	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// UserService handles a signed-in user's own account.
type UserService struct {
	store    *sqlite.Store
	sessions *SessionService
	logger   *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(st *sqlite.Store, sessions *SessionService, logger *slog.Logger) *UserService {
	return &UserService{
		store:    st,
		sessions: sessions,
		logger:   logger,
	}
}

// UpdateMeRequest contains the account fields a user can change about
// themselves. Changing the password requires the current one and signs
// out every other device.
type UpdateMeRequest struct {
	DisplayName     *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=100"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email"`
	CurrentPassword *string `json:"current_password,omitempty"`
	NewPassword     *string `json:"new_password,omitempty" validate:"omitempty,min=8,max=1024"`
}

// Get returns the user's own account.
func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Update applies account changes for the user themselves.
func (s *UserService) Update(ctx context.Context, userID, sessionID string, req UpdateMeRequest) (*domain.User, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}

	if req.Email != nil && !strings.EqualFold(*req.Email, user.Email) {
		if _, err := s.store.GetUserByEmail(ctx, *req.Email); err == nil {
			return nil, domainerrors.AlreadyExists("email already in use")
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
		user.Email = *req.Email
	}

	passwordChanged := false
	if req.NewPassword != nil {
		if req.CurrentPassword == nil {
			return nil, domainerrors.Validation("current_password is required to change the password")
		}
		ok, err := auth.VerifyPassword(user.PasswordHash, *req.CurrentPassword)
		if err != nil {
			return nil, fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return nil, domainerrors.InvalidCredentials("current password is incorrect")
		}

		newHash, err := auth.HashPassword(*req.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = newHash
		passwordChanged = true
	}

	user.Touch()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if passwordChanged {
		s.revokeOtherSessions(ctx, userID, sessionID)
		s.logger.Info("password changed", "user_id", userID)
	}

	return user, nil
}

// revokeOtherSessions signs out every device except the one making the
// change. Failures are logged; the password change itself already took.
func (s *UserService) revokeOtherSessions(ctx context.Context, userID, keepSessionID string) {
	sessions, err := s.sessions.ListUserSessions(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to list sessions for revocation", "user_id", userID, "error", err)
		return
	}
	for _, sess := range sessions {
		if sess.ID == keepSessionID {
			continue
		}
		if err := s.sessions.DeleteSession(ctx, sess.ID); err != nil {
			s.logger.Warn("failed to revoke session", "session_id", sess.ID, "error", err)
		}
	}
}
