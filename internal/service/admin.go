package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// AdminService handles admin-only user management operations.
type AdminService struct {
	store    *sqlite.Store
	sessions *SessionService
	logger   *slog.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(st *sqlite.Store, sessions *SessionService, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:    st,
		sessions: sessions,
		logger:   logger,
	}
}

// UpdateUserRequest contains the fields an admin can change on a user.
type UpdateUserRequest struct {
	DisplayName *string      `json:"display_name,omitempty" validate:"omitempty,max=100"`
	Role        *domain.Role `json:"role,omitempty" validate:"omitempty,oneof=admin member"`
}

// ListUsers returns all non-deleted users.
func (s *AdminService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser returns a user by ID.
func (s *AdminService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateUser updates a user's details. The root user's role is fixed,
// and the last admin cannot be demoted.
func (s *AdminService) UpdateUser(ctx context.Context, adminUserID, targetUserID string, req UpdateUserRequest) (*domain.User, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	if req.Role != nil && *req.Role != user.Role {
		if user.IsRoot {
			return nil, domainerrors.Forbidden("cannot change role of the root user")
		}
		if user.Role == domain.RoleAdmin && *req.Role == domain.RoleMember {
			if err := s.ensureOtherAdminExists(ctx, targetUserID); err != nil {
				return nil, err
			}
		}
		user.Role = *req.Role
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	user.Touch()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("user updated by admin",
		"admin_id", adminUserID,
		"user_id", targetUserID,
	)

	return user, nil
}

// DeleteUser soft-deletes a user and revokes every session they hold.
// Admins cannot delete themselves, the root user, or the last admin.
func (s *AdminService) DeleteUser(ctx context.Context, adminUserID, targetUserID string) error {
	if adminUserID == targetUserID {
		return domainerrors.Forbidden("cannot delete your own account")
	}

	user, err := s.GetUser(ctx, targetUserID)
	if err != nil {
		return err
	}

	if user.IsRoot {
		return domainerrors.Forbidden("cannot delete the root user")
	}
	if user.IsAdmin() {
		if err := s.ensureOtherAdminExists(ctx, targetUserID); err != nil {
			return err
		}
	}

	if err := s.store.DeleteUser(ctx, targetUserID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	// A deleted account must not keep working tokens.
	if err := s.sessions.DeleteAllUserSessions(ctx, targetUserID); err != nil {
		s.logger.Warn("failed to revoke sessions of deleted user",
			"user_id", targetUserID,
			"error", err,
		)
	}

	s.logger.Info("user deleted by admin",
		"admin_id", adminUserID,
		"user_id", targetUserID,
		"email", user.Email,
	)

	return nil
}

// ensureOtherAdminExists checks that at least one admin besides the
// target remains.
func (s *AdminService) ensureOtherAdminExists(ctx context.Context, excludeUserID string) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		if u.ID != excludeUserID && u.IsAdmin() {
			return nil
		}
	}

	return domainerrors.Forbidden("cannot remove the last admin")
}
