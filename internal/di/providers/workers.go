package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/logger"
	"github.com/folioapp/folio-server/internal/sideload"
	"github.com/folioapp/folio-server/internal/tts"
)

// ReadaloudWorkerHandle wraps the readaloud poll worker with shutdown capability.
type ReadaloudWorkerHandle struct {
	Worker  *tts.Worker
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *ReadaloudWorkerHandle) Shutdown() error {
	if h.started {
		h.Worker.Stop()
	}
	return nil
}

// ProvideReadaloudWorker provides the worker that polls the speech vendor
// for job progress and caches finished segments.
func ProvideReadaloudWorker(i do.Injector) (*ReadaloudWorkerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*TTSClientHandle](i)
	cacheHandle := do.MustInvoke[*TTSCacheHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	worker := tts.NewWorker(
		clientHandle.Client,
		cacheHandle.Cache,
		sseHandle.Manager,
		cfg.Readaloud.PollInterval,
		log.Logger,
	)

	if !cfg.Readaloud.Enabled {
		log.Info("Readaloud disabled, poll worker not started")
		return &ReadaloudWorkerHandle{Worker: worker}, nil
	}

	worker.Start()
	log.Info("Readaloud worker started", "poll_interval", cfg.Readaloud.PollInterval)

	return &ReadaloudWorkerHandle{Worker: worker, started: true}, nil
}

// SideloadHandle wraps the sideload inbox watcher with shutdown capability.
type SideloadHandle struct {
	Service *sideload.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *SideloadHandle) Shutdown() error {
	if h.started {
		h.Service.Stop()
	}
	return nil
}

// ProvideSideloadService provides the inbox watcher that imports dropped
// EPUB and Markdown files as novels.
func ProvideSideloadService(i do.Injector) (*SideloadHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	svc := sideload.NewService(cfg.Sideload, storeHandle.Store, sseHandle.Manager, log.Logger)

	if !cfg.Sideload.Enabled {
		log.Info("Sideload disabled, inbox watcher not started")
		return &SideloadHandle{Service: svc}, nil
	}

	if err := svc.Start(); err != nil {
		return nil, err
	}

	log.Info("Sideload watcher started", "inbox", cfg.Sideload.InboxPath)

	return &SideloadHandle{Service: svc, started: true}, nil
}

// SessionCleanupJob runs periodic session cleanup.
type SessionCleanupJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *SessionCleanupJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideSessionCleanupJob provides the periodic session cleanup job.
func ProvideSessionCleanupJob(i do.Injector) (*SessionCleanupJob, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		// Initial cleanup on startup
		if count, err := storeHandle.DeleteExpiredSessions(ctx); err != nil {
			log.Warn("Initial session cleanup failed", "error", err)
		} else if count > 0 {
			log.Info("Initial session cleanup completed", "deleted", count)
		}

		for {
			select {
			case <-ticker.C:
				if count, err := storeHandle.DeleteExpiredSessions(ctx); err != nil {
					log.Warn("Session cleanup failed", "error", err)
				} else if count > 0 {
					log.Info("Session cleanup completed", "deleted", count)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Session cleanup job started")

	return &SessionCleanupJob{cancel: cancel}, nil
}
