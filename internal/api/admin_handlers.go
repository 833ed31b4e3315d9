package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listUsers",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/users",
		Summary:     "List users",
		Description: "Returns all accounts on this instance. Requires admin.",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListUsers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAdminUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/users/{userID}",
		Summary:     "Get user",
		Description: "Returns one account. Requires admin.",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetAdminUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateAdminUser",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/users/{userID}",
		Summary:     "Update user",
		Description: "Changes a user's display name or role. The root user's role is fixed and the last admin cannot be demoted. Requires admin.",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateAdminUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteAdminUser",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/users/{userID}",
		Summary:     "Delete user",
		Description: "Soft-deletes an account and revokes its sessions. Admins cannot delete themselves, the root user, or the last admin. Requires admin.",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteAdminUser)
}

// === DTOs ===

// AdminUserInput identifies one user for admin operations.
type AdminUserInput struct {
	AuthenticatedInput
	UserID string `path:"userID" doc:"User ID"`
}

// AdminUpdateUserRequest contains the fields an admin can change on a user.
type AdminUpdateUserRequest struct {
	DisplayName *string `json:"display_name,omitempty" maxLength:"100" doc:"New display name"`
	Role        *string `json:"role,omitempty" enum:"admin,member" doc:"New role"`
}

// AdminUpdateUserInput wraps the update request for Huma.
type AdminUpdateUserInput struct {
	AuthenticatedInput
	UserID string `path:"userID" doc:"User ID"`
	Body   AdminUpdateUserRequest
}

// UserListOutput wraps the user listing for Huma.
type UserListOutput struct {
	Body struct {
		Users []UserResponse `json:"users" doc:"All accounts on this instance"`
	}
}

// === Handlers ===

func (s *Server) handleListUsers(ctx context.Context, input *AuthenticatedInput) (*UserListOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	users, err := s.services.Admin.ListUsers(ctx)
	if err != nil {
		s.logger.Error("Failed to list users", "error", err)
		return nil, err
	}

	resp := &UserListOutput{}
	resp.Body.Users = make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp.Body.Users = append(resp.Body.Users, mapUserResponse(u))
	}
	return resp, nil
}

func (s *Server) handleGetAdminUser(ctx context.Context, input *AdminUserInput) (*UserOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	user, err := s.services.Admin.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

func (s *Server) handleUpdateAdminUser(ctx context.Context, input *AdminUpdateUserInput) (*UserOutput, error) {
	adminID, err := s.authenticateAndRequireAdmin(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	req := service.UpdateUserRequest{
		DisplayName: input.Body.DisplayName,
	}
	if input.Body.Role != nil {
		role := domain.Role(*input.Body.Role)
		req.Role = &role
	}

	user, err := s.services.Admin.UpdateUser(ctx, adminID, input.UserID, req)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

func (s *Server) handleDeleteAdminUser(ctx context.Context, input *AdminUserInput) (*MessageOutput, error) {
	adminID, err := s.authenticateAndRequireAdmin(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Admin.DeleteUser(ctx, adminID, input.UserID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "User deleted"}}, nil
}
