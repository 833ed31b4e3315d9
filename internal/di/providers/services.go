package providers

import (
	"github.com/samber/do/v2"

	"github.com/folioapp/folio-server/internal/auth"
	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/logger"
	"github.com/folioapp/folio-server/internal/mdns"
	"github.com/folioapp/folio-server/internal/media/covers"
	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/service"
)

// ProvideInstanceService provides the server instance service.
func ProvideInstanceService(i do.Injector) (*service.InstanceService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)
	cfg := do.MustInvoke[*config.Config](i)

	return service.NewInstanceService(storeHandle.Store, log.Logger, cfg, mdns.ServerVersion), nil
}

// ProvideSessionService provides the session management service.
func ProvideSessionService(i do.Injector) (*service.SessionService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSessionService(storeHandle.Store, tokenService, log.Logger), nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	sessionService := do.MustInvoke[*service.SessionService](i)
	instanceService := do.MustInvoke[*service.InstanceService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, cfg, tokenService, sessionService, instanceService, log.Logger), nil
}

// ProvideUserService provides the user self-service operations.
func ProvideUserService(i do.Injector) (*service.UserService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sessionService := do.MustInvoke[*service.SessionService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewUserService(storeHandle.Store, sessionService, log.Logger), nil
}

// ProvideAdminService provides the admin user management service.
func ProvideAdminService(i do.Injector) (*service.AdminService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sessionService := do.MustInvoke[*service.SessionService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAdminService(storeHandle.Store, sessionService, log.Logger), nil
}

// ProvideNovelService provides the novel library service.
func ProvideNovelService(i do.Injector) (*service.NovelService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	scraperHandle := do.MustInvoke[*ScraperHandle](i)
	coverDownloader := do.MustInvoke[*covers.Downloader](i)
	coverStorage := do.MustInvoke[*images.Storage](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewNovelService(
		storeHandle.Store,
		scraperHandle.Client,
		coverDownloader,
		coverStorage,
		indexHandle.SearchIndex,
		sseHandle.Manager,
		log.Logger,
	), nil
}

// ProvideChapterService provides the chapter content service.
func ProvideChapterService(i do.Injector) (*service.ChapterService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	novelService := do.MustInvoke[*service.NovelService](i)
	scraperHandle := do.MustInvoke[*ScraperHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewChapterService(
		storeHandle.Store,
		novelService,
		scraperHandle.Client,
		sseHandle.Manager,
		log.Logger,
	), nil
}

// ProvideAnnotationService provides the annotation sync service.
func ProvideAnnotationService(i do.Injector) (*service.AnnotationService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	novelService := do.MustInvoke[*service.NovelService](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAnnotationService(
		storeHandle.Store,
		novelService,
		indexHandle.SearchIndex,
		sseHandle.Manager,
		log.Logger,
	), nil
}

// ProvideBookmarkService provides the bookmark service.
func ProvideBookmarkService(i do.Injector) (*service.BookmarkService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	novelService := do.MustInvoke[*service.NovelService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewBookmarkService(storeHandle.Store, novelService, log.Logger), nil
}

// ProvidePositionService provides the reading position service.
func ProvidePositionService(i do.Injector) (*service.PositionService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	novelService := do.MustInvoke[*service.NovelService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewPositionService(storeHandle.Store, novelService, sseHandle.Manager, log.Logger), nil
}

// ProvideReadaloudService provides the readaloud orchestration service.
func ProvideReadaloudService(i do.Injector) (*service.ReadaloudService, error) {
	clientHandle := do.MustInvoke[*TTSClientHandle](i)
	cacheHandle := do.MustInvoke[*TTSCacheHandle](i)
	novelService := do.MustInvoke[*service.NovelService](i)
	chapterService := do.MustInvoke[*service.ChapterService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReadaloudService(
		clientHandle.Client,
		cacheHandle.Cache,
		novelService,
		chapterService,
		log.Logger,
	), nil
}
