package api

import (
	"github.com/folioapp/folio-server/internal/service"
)

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Instance   *service.InstanceService
	Auth       *service.AuthService
	User       *service.UserService
	Admin      *service.AdminService
	Novel      *service.NovelService
	Chapter    *service.ChapterService
	Annotation *service.AnnotationService
	Bookmark   *service.BookmarkService
	Position   *service.PositionService
	Search     *service.SearchService
	Readaloud  *service.ReadaloudService
}
