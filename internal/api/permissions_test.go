package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminListUsers_RequiresAdmin(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	_ = ts.createTestUserAndLogin(t)
	memberToken := ts.register(t, "member@example.com", "Member")

	resp := ts.api.Get("/api/v1/admin/users",
		"Authorization: Bearer "+memberToken)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAdminListUsers_AsAdmin(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	adminToken := ts.createTestUserAndLogin(t)
	_ = ts.register(t, "member@example.com", "Member")

	resp := ts.api.Get("/api/v1/admin/users",
		"Authorization: Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, resp.Code)

	var envelope testEnvelope[struct {
		Users []UserResponse `json:"users"`
	}]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))

	require.Len(t, envelope.Data.Users, 2)
}

func TestAdminListUsers_Unauthenticated(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	resp := ts.api.Get("/api/v1/admin/users")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminPromoteUser(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	adminToken := ts.createTestUserAndLogin(t)
	memberToken := ts.register(t, "member@example.com", "Member")
	memberID := ts.userIDForToken(t, memberToken)

	resp := ts.api.Patch("/api/v1/admin/users/"+memberID,
		"Authorization: Bearer "+adminToken,
		map[string]any{"role": "admin"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope testEnvelope[UserResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "admin", envelope.Data.Role)

	// The promoted account can now use admin endpoints.
	resp = ts.api.Get("/api/v1/admin/users",
		"Authorization: Bearer "+memberToken)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminCannotDemoteRoot(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	adminToken := ts.createTestUserAndLogin(t)
	rootID := ts.userIDForToken(t, adminToken)

	resp := ts.api.Patch("/api/v1/admin/users/"+rootID,
		"Authorization: Bearer "+adminToken,
		map[string]any{"role": "member"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAdminDeleteUser(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	adminToken := ts.createTestUserAndLogin(t)
	memberToken := ts.register(t, "member@example.com", "Member")
	memberID := ts.userIDForToken(t, memberToken)

	resp := ts.api.Delete("/api/v1/admin/users/"+memberID,
		"Authorization: Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// Deleted accounts can no longer authenticate.
	resp = ts.api.Get("/api/v1/sync/manifest",
		"Authorization: Bearer "+memberToken)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminCannotDeleteRoot(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	adminToken := ts.createTestUserAndLogin(t)
	rootID := ts.userIDForToken(t, adminToken)

	resp := ts.api.Delete("/api/v1/admin/users/"+rootID,
		"Authorization: Bearer "+adminToken)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestMemberCannotTouchAdminUserRoutes(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	adminToken := ts.createTestUserAndLogin(t)
	adminID := ts.userIDForToken(t, adminToken)
	memberToken := ts.register(t, "member@example.com", "Member")

	resp := ts.api.Get("/api/v1/admin/users/"+adminID,
		"Authorization: Bearer "+memberToken)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = ts.api.Patch("/api/v1/admin/users/"+adminID,
		"Authorization: Bearer "+memberToken,
		map[string]any{"display_name": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = ts.api.Delete("/api/v1/admin/users/"+adminID,
		"Authorization: Bearer "+memberToken)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
