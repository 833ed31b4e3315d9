package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/folioapp/folio-server/internal/api"
	"github.com/folioapp/folio-server/internal/backup"
	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/logger"
	"github.com/folioapp/folio-server/internal/mdns"
	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/service"
	"github.com/folioapp/folio-server/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	coverStorage := do.MustInvoke[*images.Storage](i)
	log := do.MustInvoke[*logger.Logger](i)

	// Get all services
	instanceService := do.MustInvoke[*service.InstanceService](i)
	authService := do.MustInvoke[*service.AuthService](i)
	userService := do.MustInvoke[*service.UserService](i)
	adminService := do.MustInvoke[*service.AdminService](i)
	novelService := do.MustInvoke[*service.NovelService](i)
	chapterService := do.MustInvoke[*service.ChapterService](i)
	annotationService := do.MustInvoke[*service.AnnotationService](i)
	bookmarkService := do.MustInvoke[*service.BookmarkService](i)
	positionService := do.MustInvoke[*service.PositionService](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	readaloudService := do.MustInvoke[*service.ReadaloudService](i)

	sseHandler := sse.NewHandler(sseHandle.Manager, api.SSEIdentity(authService), log.Logger)

	services := &api.Services{
		Instance:   instanceService,
		Auth:       authService,
		User:       userService,
		Admin:      adminService,
		Novel:      novelService,
		Chapter:    chapterService,
		Annotation: annotationService,
		Bookmark:   bookmarkService,
		Position:   positionService,
		Search:     searchService,
		Readaloud:  readaloudService,
	}

	// Create backup services
	backupDir := filepath.Join(cfg.Data.BasePath, "backups")
	backupSvc := backup.NewBackupService(storeHandle.Store, coverStorage, sseHandle.Manager, backupDir, mdns.ServerVersion, log.Logger)
	restoreSvc := backup.NewRestoreService(storeHandle.Store, coverStorage, log.Logger)

	handler := api.NewServer(storeHandle.Store, services, coverStorage, sseHandler, sseHandle.Manager, backupSvc, restoreSvc, log.Logger)

	// Wire mDNS refresh callback for when instance settings change
	mdnsHandle := do.MustInvoke[*MDNSServiceHandle](i)
	if mdnsHandle.Service != nil && mdnsHandle.started {
		port := 8080
		fmt.Sscanf(cfg.Server.Port, "%d", &port)
		handler.SetOnInstanceUpdated(func(instance *domain.Instance) {
			if err := mdnsHandle.Service.Refresh(instance, port); err != nil {
				log.Warn("Failed to refresh mDNS after instance update", "error", err)
			}
		})
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.started && h.Service != nil {
		h.Stop()
	}
	return nil
}

// ProvideMDNSService provides the mDNS advertisement service.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	instanceService := do.MustInvoke[*service.InstanceService](i)

	// Always initialize instance regardless of mDNS config.
	ctx := context.Background()
	instanceConfig, err := instanceService.InitializeInstance(ctx)
	if err != nil {
		return nil, err
	}

	// Log server instance state
	if !instanceConfig.IsSetupRequired() {
		log.Info("Server instance is configured and ready",
			"instance_id", instanceConfig.ID,
			"instance_name", instanceConfig.Name,
			"created_at", instanceConfig.CreatedAt,
		)
	} else {
		log.Warn("Server instance needs setup - no root user configured",
			"instance_id", instanceConfig.ID,
			"setup_required", true,
		)
	}

	if !cfg.Server.AdvertiseMDNS {
		log.Info("mDNS advertisement disabled by configuration")
		return &MDNSServiceHandle{Service: nil, started: false}, nil
	}

	svc := mdns.NewService(log.Logger)

	// Parse port
	port := 8080
	if _, err := fmt.Sscanf(cfg.Server.Port, "%d", &port); err != nil {
		log.Warn("Failed to parse server port for mDNS, using default", "port", cfg.Server.Port)
	}

	if err := svc.Start(instanceConfig, port); err != nil {
		log.Warn("mDNS advertisement unavailable", "error", err)
		// Non-fatal: server works without mDNS (e.g., Docker, cloud)
		return &MDNSServiceHandle{Service: svc, started: false}, nil
	}

	return &MDNSServiceHandle{Service: svc, started: true}, nil
}
