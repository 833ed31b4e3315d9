// Package api provides the HTTP API server and handlers for Folio.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/folioapp/folio-server/internal/backup"
	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      *sqlite.Store
	services   *Services
	covers     *images.Storage
	sseHandler *sse.Handler
	sseManager *sse.Manager
	backup     *backup.BackupService
	restore    *backup.RestoreService

	router          *chi.Mux
	api             huma.API
	authRateLimiter *RateLimiter
	logger          *slog.Logger

	onInstanceUpdated func(instance *domain.Instance)
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(
	st *sqlite.Store,
	services *Services,
	covers *images.Storage,
	sseHandler *sse.Handler,
	sseManager *sse.Manager,
	backupSvc *backup.BackupService,
	restoreSvc *backup.RestoreService,
	logger *slog.Logger,
) *Server {
	s := &Server{
		store:           st,
		services:        services,
		covers:          covers,
		sseHandler:      sseHandler,
		sseManager:      sseManager,
		backup:          backupSvc,
		restore:         restoreSvc,
		router:          chi.NewRouter(),
		authRateLimiter: NewRateLimiter(60, time.Minute, 20),
		logger:          logger,
	}

	s.setupMiddleware()
	s.setupAPI()
	s.registerRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetOnInstanceUpdated registers a callback invoked after instance
// settings change, so mDNS advertisements can be refreshed.
func (s *Server) SetOnInstanceUpdated(fn func(instance *domain.Instance)) {
	s.onInstanceUpdated = fn
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// E-reader clients talk to the server from file:// origins and
	// local web UIs from arbitrary LAN hosts, so origins stay open and
	// auth rides in the Authorization header rather than cookies.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	// Brute-force guard on the credential endpoints only.
	authLimited := RateLimitMiddleware(s.authRateLimiter, s.logger)
	s.router.Use(func(next http.Handler) http.Handler {
		limited := authLimited(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	s.router.Use(authMiddleware(s.services.Auth))
}

func (s *Server) setupAPI() {
	humaConfig := huma.DefaultConfig("Folio API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()
}

func (s *Server) registerRoutes() {
	// Huma-managed JSON endpoints.
	s.registerHealthRoutes()
	s.registerInstanceRoutes()
	s.registerAuthRoutes()
	s.registerUserRoutes()
	s.registerNovelRoutes()
	s.registerChapterRoutes()
	s.registerAnnotationRoutes()
	s.registerBookmarkRoutes()
	s.registerPositionRoutes()
	s.registerSyncRoutes()
	s.registerSearchRoutes()
	s.registerReadaloudRoutes()
	s.registerAdminRoutes()
	s.registerAdminBackupRoutes()

	// Raw chi endpoints: streams, binary bodies, and multipart forms
	// that do not fit the JSON envelope.
	s.router.Get("/healthz", s.handleLiveness)
	s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	s.router.Get("/api/v1/novels/{novelID}/cover", s.handleGetCover)
	s.router.Get("/api/v1/proxy", s.handleProxy)
	s.router.Get("/api/v1/readaloud/{jobID}/segments/{index}/audio", s.handleSegmentAudio)
	s.router.Post("/api/v1/admin/restore/upload", s.handleUploadRestore)
}
