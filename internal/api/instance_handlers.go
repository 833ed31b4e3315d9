package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerInstanceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getInstance",
		Method:      http.MethodGet,
		Path:        "/api/v1/instance",
		Summary:     "Get server instance",
		Description: "Returns server instance configuration and setup status",
		Tags:        []string{"Instance"},
	}, s.handleGetInstance)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateInstance",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/instance",
		Summary:     "Update instance settings",
		Description: "Updates the server name or remote URL. Admin only.",
		Tags:        []string{"Instance", "Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateInstance)
}

// InstanceResponse contains server instance data in API responses.
type InstanceResponse struct {
	ID               string    `json:"id" doc:"Instance ID"`
	Name             string    `json:"name" doc:"Server name"`
	Version          string    `json:"version" doc:"Server version"`
	LocalURL         string    `json:"local_url,omitempty" doc:"Local network URL"`
	RemoteURL        string    `json:"remote_url,omitempty" doc:"Remote access URL"`
	OpenRegistration bool      `json:"open_registration" doc:"Whether public registration is enabled"`
	CreatedAt        time.Time `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt        time.Time `json:"updated_at" doc:"Last update timestamp"`
	SetupRequired    bool      `json:"setup_required" doc:"Whether initial setup is needed"`
}

// InstanceOutput wraps the instance response for Huma.
type InstanceOutput struct {
	Body InstanceResponse
}

// UpdateInstanceRequest is the request body for instance settings updates.
type UpdateInstanceRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=1,max=100" doc:"Server display name"`
	RemoteURL *string `json:"remote_url,omitempty" validate:"omitempty,max=500" doc:"Public URL for remote access"`
}

// UpdateInstanceInput wraps the instance update request for Huma.
type UpdateInstanceInput struct {
	AuthenticatedInput
	Body UpdateInstanceRequest
}

func (s *Server) handleGetInstance(ctx context.Context, _ *struct{}) (*InstanceOutput, error) {
	instance, err := s.services.Instance.GetInstance(ctx)
	if err != nil {
		s.logger.Error("Failed to get instance", "error", err)
		return nil, huma.Error404NotFound("Server instance configuration not found")
	}

	return &InstanceOutput{
		Body: InstanceResponse{
			ID:               instance.ID,
			Name:             instance.Name,
			Version:          instance.Version,
			LocalURL:         instance.LocalUrl,
			RemoteURL:        instance.RemoteUrl,
			OpenRegistration: s.services.Instance.AllowRegistration(),
			CreatedAt:        instance.CreatedAt,
			UpdatedAt:        instance.UpdatedAt,
			SetupRequired:    instance.IsSetupRequired(),
		},
	}, nil
}

func (s *Server) handleUpdateInstance(ctx context.Context, input *UpdateInstanceInput) (*InstanceOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	instance, err := s.services.Instance.UpdateInstanceSettings(ctx, &service.InstanceUpdate{
		Name:      input.Body.Name,
		RemoteURL: input.Body.RemoteURL,
	})
	if err != nil {
		return nil, err
	}

	if s.onInstanceUpdated != nil {
		s.onInstanceUpdated(instance)
	}

	return &InstanceOutput{
		Body: InstanceResponse{
			ID:               instance.ID,
			Name:             instance.Name,
			Version:          instance.Version,
			LocalURL:         instance.LocalUrl,
			RemoteURL:        instance.RemoteUrl,
			OpenRegistration: s.services.Instance.AllowRegistration(),
			CreatedAt:        instance.CreatedAt,
			UpdatedAt:        instance.UpdatedAt,
			SetupRequired:    instance.IsSetupRequired(),
		},
	}, nil
}
