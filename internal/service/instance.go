// Package service contains the business logic between the API handlers
// and the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// InstanceService handles business logic for server instance configuration.
type InstanceService struct {
	store   *sqlite.Store
	logger  *slog.Logger
	config  *config.Config
	version string
}

// NewInstanceService creates a new instance service.
func NewInstanceService(st *sqlite.Store, logger *slog.Logger, cfg *config.Config, version string) *InstanceService {
	return &InstanceService{
		store:   st,
		logger:  logger,
		config:  cfg,
		version: version,
	}
}

// GetInstance retrieves the server instance configuration.
func (s *InstanceService) GetInstance(ctx context.Context) (*domain.Instance, error) {
	instance, err := s.store.GetInstance(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("instance configuration not found").WithCause(err)
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}

	return instance, nil
}

// InitializeInstance ensures a server instance configuration exists.
// This is the main entry point for instance setup on first run; config
// values override whatever the stored row carries.
func (s *InstanceService) InitializeInstance(ctx context.Context) (*domain.Instance, error) {
	name := s.config.Server.Name
	if name == "" {
		name = "Folio"
	}

	instance, err := s.store.InitializeInstance(ctx, name, s.version)
	if err != nil {
		return nil, fmt.Errorf("initialize instance: %w", err)
	}

	changed := false
	if s.config.Server.Name != "" && instance.Name != s.config.Server.Name {
		instance.Name = s.config.Server.Name
		changed = true
	}
	if s.config.Server.LocalURL != "" && instance.LocalUrl != s.config.Server.LocalURL {
		instance.LocalUrl = s.config.Server.LocalURL
		changed = true
	}
	if s.config.Server.RemoteURL != "" && instance.RemoteUrl != s.config.Server.RemoteURL {
		instance.RemoteUrl = s.config.Server.RemoteURL
		changed = true
	}

	if changed {
		instance.UpdatedAt = time.Now()
		if err := s.store.UpdateInstance(ctx, instance); err != nil {
			return nil, fmt.Errorf("apply config to instance: %w", err)
		}
	}

	return instance, nil
}

// AllowRegistration reports whether open registration is enabled.
func (s *InstanceService) AllowRegistration() bool {
	return s.config.Auth.AllowRegistration
}

// IsSetupRequired checks if the server requires initial setup.
// Setup is required until the first account has been created.
func (s *InstanceService) IsSetupRequired(ctx context.Context) (bool, error) {
	instance, err := s.store.GetInstance(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("get instance: %w", err)
	}

	return instance.IsSetupRequired(), nil
}

// MarkSetupComplete records that the first account has claimed the server.
func (s *InstanceService) MarkSetupComplete(ctx context.Context) error {
	instance, err := s.GetInstance(ctx)
	if err != nil {
		return err
	}

	if !instance.IsSetupRequired() {
		return domainerrors.AlreadyConfigured("server is already configured")
	}

	instance.MarkRootUserCreated()

	if err := s.store.UpdateInstance(ctx, instance); err != nil {
		return fmt.Errorf("update instance: %w", err)
	}

	s.logger.Info("server setup complete", "instance_id", instance.ID)

	return nil
}

// InstanceUpdate contains optional fields for updating instance settings.
type InstanceUpdate struct {
	Name      *string
	RemoteURL *string
}

// UpdateInstanceSettings updates mutable instance fields.
// Only non-nil fields are applied. Returns the updated instance.
func (s *InstanceService) UpdateInstanceSettings(ctx context.Context, update *InstanceUpdate) (*domain.Instance, error) {
	instance, err := s.GetInstance(ctx)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		instance.Name = *update.Name
	}
	if update.RemoteURL != nil {
		instance.RemoteUrl = *update.RemoteURL
	}
	instance.UpdatedAt = time.Now()

	if err := s.store.UpdateInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("update instance: %w", err)
	}

	s.logger.Info("instance settings updated",
		"instance_id", instance.ID,
		"name", instance.Name,
		"remote_url", instance.RemoteUrl,
	)

	return instance, nil
}
