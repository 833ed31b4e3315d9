package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Get current user",
		Description: "Returns the authenticated user's profile",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCurrentUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateCurrentUser",
		Method:      http.MethodPatch,
		Path:        "/api/v1/users/me",
		Summary:     "Update current user",
		Description: "Updates profile fields. Password changes require the current password and revoke every other session; pass session_id to keep the calling device logged in.",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateCurrentUser)
}

// AuthenticatedInput carries the bearer token for authenticated endpoints.
type AuthenticatedInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token"`
}

// GetCurrentUserInput wraps the current user request for Huma.
type GetCurrentUserInput struct {
	AuthenticatedInput
}

// UserOutput wraps a user response for Huma.
type UserOutput struct {
	Body UserResponse
}

// UpdateMeRequest is the request body for profile updates.
type UpdateMeRequest struct {
	DisplayName     *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=100" doc:"New display name"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email" doc:"New email address"`
	CurrentPassword *string `json:"current_password,omitempty" doc:"Current password, required when changing the password"`
	NewPassword     *string `json:"new_password,omitempty" validate:"omitempty,min=8,max=1024" doc:"New password"`
	SessionID       string  `json:"session_id,omitempty" validate:"omitempty,max=100" doc:"Session to keep when other sessions are revoked"`
}

// UpdateMeInput wraps the profile update request for Huma.
type UpdateMeInput struct {
	AuthenticatedInput
	Body UpdateMeRequest
}

func (s *Server) handleGetCurrentUser(ctx context.Context, input *GetCurrentUserInput) (*UserOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	user, err := s.services.User.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

func (s *Server) handleUpdateCurrentUser(ctx context.Context, input *UpdateMeInput) (*UserOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	user, err := s.services.User.Update(ctx, userID, input.Body.SessionID, service.UpdateMeRequest{
		DisplayName:     input.Body.DisplayName,
		Email:           input.Body.Email,
		CurrentPassword: input.Body.CurrentPassword,
		NewPassword:     input.Body.NewPassword,
	})
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}
