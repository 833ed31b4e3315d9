package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
)

// authenticateRequest validates the Authorization header and returns the user ID.
func (s *Server) authenticateRequest(ctx context.Context, authHeader string) (string, error) {
	if authHeader == "" {
		return "", huma.Error401Unauthorized("Missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", huma.Error401Unauthorized("Invalid authorization header format")
	}

	user, _, err := s.services.Auth.VerifyAccessToken(ctx, parts[1])
	if err != nil {
		return "", huma.Error401Unauthorized("Invalid or expired token")
	}

	return user.ID, nil
}

// rawRequestUserID resolves the user for raw (non-huma) endpoints. It
// falls back to a "token" query parameter because e-reader image and
// audio elements cannot attach an Authorization header.
func (s *Server) rawRequestUserID(r *http.Request) (string, bool) {
	if userID, err := GetUserID(r.Context()); err == nil {
		return userID, true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		if user, _, err := s.services.Auth.VerifyAccessToken(r.Context(), token); err == nil {
			return user.ID, true
		}
	}
	return "", false
}

// authenticateAndRequireAdmin validates the token and requires admin role.
func (s *Server) authenticateAndRequireAdmin(ctx context.Context, authHeader string) (string, error) {
	userID, err := s.authenticateRequest(ctx, authHeader)
	if err != nil {
		return "", err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", huma.Error401Unauthorized("User not found")
	}

	if !user.IsAdmin() {
		return "", domainerrors.Forbidden("Admin access required")
	}

	return userID, nil
}
