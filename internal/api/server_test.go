package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioapp/folio-server/internal/auth"
	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/id"
	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/search"
	"github.com/folioapp/folio-server/internal/service"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// testEnvelope mirrors the response envelope with typed data so tests
// can unmarshal straight to the DTO under test.
type testEnvelope[T any] struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// testServer wraps the API server with everything handler tests need.
type testServer struct {
	*Server
	api          humatest.TestAPI
	tokenService *auth.TokenService
	cleanup      func()
}

// setupTestServer builds a full server against a temporary database and
// an in-memory search index. Readaloud and backup stay nil; their
// endpoints are not exercised here.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "folio-api-test-*")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := sqlite.Open(filepath.Join(tmpDir, "test.db"), logger)
	require.NoError(t, err)

	index, err := search.NewSearchIndex(search.Options{InMemory: true, Logger: logger})
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Name:     "Test Server",
			LocalURL: "http://localhost:8080",
		},
		Auth: config.AuthConfig{
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 30 * 24 * time.Hour,
			AllowRegistration:    true,
		},
	}

	authKey, err := auth.LoadOrGenerateKey(tmpDir)
	require.NoError(t, err)
	cfg.Auth.AccessTokenKey = authKey

	tokenService, err := auth.NewTokenService(
		hex.EncodeToString(authKey),
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
	)
	require.NoError(t, err)

	sseManager := sse.NewManager(logger)

	instanceService := service.NewInstanceService(st, logger, cfg, "test")
	sessionService := service.NewSessionService(st, tokenService, logger)
	authService := service.NewAuthService(st, cfg, tokenService, sessionService, instanceService, logger)
	userService := service.NewUserService(st, sessionService, logger)
	adminService := service.NewAdminService(st, sessionService, logger)
	novelService := service.NewNovelService(st, nil, nil, nil, index, sseManager, logger)
	chapterService := service.NewChapterService(st, novelService, nil, sseManager, logger)
	annotationService := service.NewAnnotationService(st, novelService, index, sseManager, logger)
	bookmarkService := service.NewBookmarkService(st, novelService, logger)
	positionService := service.NewPositionService(st, novelService, sseManager, logger)
	searchService := service.NewSearchService(index, st, logger)

	services := &Services{
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
	}

	coverStorage, err := images.NewStorage(tmpDir)
	require.NoError(t, err)

	sseHandler := sse.NewHandler(sseManager, SSEIdentity(authService), logger)

	server := NewServer(st, services, coverStorage, sseHandler, sseManager, nil, nil, logger)

	_, err = instanceService.InitializeInstance(context.Background())
	require.NoError(t, err)

	return &testServer{
		Server:       server,
		api:          humatest.Wrap(t, server.api),
		tokenService: tokenService,
		cleanup: func() {
			_ = index.Close()
			_ = st.Close()
			_ = os.RemoveAll(tmpDir)
		},
	}
}

// createTestUserAndLogin registers the first account (which becomes the
// root admin) and returns its access token.
func (ts *testServer) createTestUserAndLogin(t *testing.T) string {
	t.Helper()
	return ts.register(t, "admin@example.com", "Admin")
}

// register creates an account and returns its access token.
func (ts *testServer) register(t *testing.T, email, displayName string) string {
	t.Helper()

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":        email,
		"password":     "SecurePassword123!",
		"display_name": displayName,
	})
	require.Equal(t, http.StatusOK, resp.Code, "Registration failed: %s", resp.Body.String())

	var envelope testEnvelope[AuthResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.AccessToken)

	return envelope.Data.AccessToken
}

// createTestNovel inserts a novel row directly into the store.
func (ts *testServer) createTestNovel(t *testing.T, ownerID, title string) *domain.Novel {
	t.Helper()

	novelID, err := id.Generate("nvl")
	require.NoError(t, err)

	novel := &domain.Novel{
		Syncable:  domain.Syncable{ID: novelID},
		OwnerID:   ownerID,
		Title:     title,
		Author:    "Test Author",
		Slug:      "test-novel",
		SourceURL: "https://example.com/novels/" + novelID,
		Language:  "en",
		Status:    domain.NovelStatusOngoing,
	}
	novel.InitTimestamps()

	require.NoError(t, ts.store.CreateNovel(context.Background(), novel))
	return novel
}

// userIDForToken resolves a token back to its user ID.
func (ts *testServer) userIDForToken(t *testing.T, token string) string {
	t.Helper()

	claims, err := ts.tokenService.VerifyAccessToken(token)
	require.NoError(t, err)
	return claims.UserID
}

func TestLiveness(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", http.NoBody)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	// E-reader web views send file:// origins; the server must accept them.
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", http.NoBody)
	req.Header.Set("Origin", "null")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
