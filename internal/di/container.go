// Package di provides dependency injection configuration for the Folio server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/folioapp/folio-server/internal/auth"
	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/di/providers"
	"github.com/folioapp/folio-server/internal/logger"
	"github.com/folioapp/folio-server/internal/media/covers"
	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Data layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Media and outbound fetching
	do.Provide(injector, providers.ProvideCoverStorage)
	do.Provide(injector, providers.ProvideCoverDownloader)
	do.Provide(injector, providers.ProvideScraper)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchService)

	// Speech vendor proxy
	do.Provide(injector, providers.ProvideTTSClient)
	do.Provide(injector, providers.ProvideTTSCache)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideInstanceService)
	do.Provide(injector, providers.ProvideSessionService)
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideUserService)
	do.Provide(injector, providers.ProvideAdminService)
	do.Provide(injector, providers.ProvideNovelService)
	do.Provide(injector, providers.ProvideChapterService)
	do.Provide(injector, providers.ProvideAnnotationService)
	do.Provide(injector, providers.ProvideBookmarkService)
	do.Provide(injector, providers.ProvidePositionService)
	do.Provide(injector, providers.ProvideReadaloudService)

	// Workers
	do.Provide(injector, providers.ProvideReadaloudWorker)
	do.Provide(injector, providers.ProvideSideloadService)
	do.Provide(injector, providers.ProvideSessionCleanupJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*images.Storage](injector)
	_ = do.MustInvoke[*covers.Downloader](injector)
	_ = do.MustInvoke[*providers.ScraperHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*service.SearchService](injector)
	_ = do.MustInvoke[*providers.TTSClientHandle](injector)
	_ = do.MustInvoke[*providers.TTSCacheHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*service.InstanceService](injector)
	_ = do.MustInvoke[*service.SessionService](injector)
	_ = do.MustInvoke[*service.AuthService](injector)
	_ = do.MustInvoke[*service.UserService](injector)
	_ = do.MustInvoke[*service.AdminService](injector)
	_ = do.MustInvoke[*service.NovelService](injector)
	_ = do.MustInvoke[*service.ChapterService](injector)
	_ = do.MustInvoke[*service.AnnotationService](injector)
	_ = do.MustInvoke[*service.BookmarkService](injector)
	_ = do.MustInvoke[*service.PositionService](injector)
	_ = do.MustInvoke[*service.ReadaloudService](injector)

	// Workers
	_ = do.MustInvoke[*providers.ReadaloudWorkerHandle](injector)
	_ = do.MustInvoke[*providers.SideloadHandle](injector)
	_ = do.MustInvoke[*providers.SessionCleanupJob](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	// Trigger search reindex if needed
	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
