package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/auth"
	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/register",
		Summary:     "Register new user",
		Description: "Creates a new user account and logs it in. The first account becomes the root admin and completes server setup; later registrations require open registration to be enabled.",
		Tags:        []string{"Authentication"},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "User login",
		Description: "Authenticates a user and returns access and refresh tokens",
		Tags:        []string{"Authentication"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "refresh",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/refresh",
		Summary:     "Refresh tokens",
		Description: "Exchanges a refresh token for new tokens. The old refresh token is consumed.",
		Tags:        []string{"Authentication"},
	}, s.handleRefresh)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout",
		Summary:     "Logout",
		Description: "Revokes the specified session",
		Tags:        []string{"Authentication"},
	}, s.handleLogout)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout-all",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout-all",
		Summary:     "Logout everywhere",
		Description: "Revokes every session belonging to the authenticated user",
		Tags:        []string{"Authentication"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleLogoutAll)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/auth/sessions",
		Summary:     "List active sessions",
		Description: "Returns the authenticated user's active sessions with device metadata",
		Tags:        []string{"Authentication"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListSessions)
}

// === DTOs ===

// DeviceInfo contains device metadata for session tracking.
type DeviceInfo struct {
	DeviceType      string `json:"device_type,omitempty" validate:"omitempty,max=50" doc:"Device type (ereader, mobile, tablet, desktop, web)"`
	Platform        string `json:"platform,omitempty" validate:"omitempty,max=50" doc:"Platform (KOReader, iOS, Android, Windows, macOS, Linux, Web)"`
	PlatformVersion string `json:"platform_version,omitempty" validate:"omitempty,max=50" doc:"Platform version (2024.11, 17.2, etc.)"`
	ClientName      string `json:"client_name,omitempty" validate:"omitempty,max=100" doc:"Client name (Folio Reader, etc.)"`
	ClientVersion   string `json:"client_version,omitempty" validate:"omitempty,max=50" doc:"Client version (1.0.0)"`
	ClientBuild     string `json:"client_build,omitempty" validate:"omitempty,max=50" doc:"Client build number"`
	DeviceName      string `json:"device_name,omitempty" validate:"omitempty,max=100" doc:"Human-readable device name"`
	DeviceModel     string `json:"device_model,omitempty" validate:"omitempty,max=100" doc:"Device model (Kobo Libra 2, etc.)"`
}

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Email       string     `json:"email" validate:"required,email,max=254" doc:"User email address"`
	Password    string     `json:"password" validate:"required,min=8,max=1024" doc:"User password"`
	DisplayName string     `json:"display_name" validate:"required,min=1,max=100" doc:"Display name"`
	DeviceInfo  DeviceInfo `json:"device_info,omitempty" doc:"Client device info"`
}

// RegisterInput wraps the register request with headers for Huma.
type RegisterInput struct {
	Body          RegisterRequest
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Email      string     `json:"email" validate:"required,email,max=254" doc:"User email"`
	Password   string     `json:"password" validate:"required,max=1024" doc:"User password"`
	DeviceInfo DeviceInfo `json:"device_info,omitempty" doc:"Client device info"`
}

// LoginInput wraps the login request with headers for Huma.
type LoginInput struct {
	Body          LoginRequest
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// RefreshRequest is the request body for token refresh.
type RefreshRequest struct {
	RefreshToken string     `json:"refresh_token" validate:"required" doc:"Refresh token"`
	DeviceInfo   DeviceInfo `json:"device_info,omitempty" doc:"Updated device info"`
}

// RefreshInput wraps the refresh request with headers for Huma.
type RefreshInput struct {
	Body          RefreshRequest
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// LogoutRequest is the request body for logout.
type LogoutRequest struct {
	SessionID string `json:"session_id" validate:"required,max=100" doc:"Session ID to revoke"`
}

// LogoutInput wraps the logout request for Huma.
type LogoutInput struct {
	Body LogoutRequest
}

// UserResponse contains user information in auth responses.
type UserResponse struct {
	ID          string    `json:"id" doc:"User ID"`
	Email       string    `json:"email" doc:"User email"`
	DisplayName string    `json:"display_name" doc:"Display name"`
	Role        string    `json:"role" doc:"User role (admin, member)"`
	IsRoot      bool      `json:"is_root" doc:"Whether user is the root admin"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt   time.Time `json:"updated_at" doc:"Last update timestamp"`
	LastLoginAt time.Time `json:"last_login_at" doc:"Last login timestamp"`
}

// AuthResponse contains authentication tokens and user info.
type AuthResponse struct {
	AccessToken  string       `json:"access_token" doc:"PASETO access token"`
	RefreshToken string       `json:"refresh_token" doc:"Refresh token"`
	SessionID    string       `json:"session_id" doc:"Session identifier"`
	TokenType    string       `json:"token_type" doc:"Token type (Bearer)"`
	ExpiresIn    int          `json:"expires_in" doc:"Token expiry in seconds"`
	User         UserResponse `json:"user" doc:"Authenticated user"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// SessionInfo describes one active session.
type SessionInfo struct {
	ID              string    `json:"id" doc:"Session ID"`
	CreatedAt       time.Time `json:"created_at" doc:"When the session was created"`
	LastSeenAt      time.Time `json:"last_seen_at" doc:"Last token refresh"`
	ExpiresAt       time.Time `json:"expires_at" doc:"When the refresh token expires"`
	IPAddress       string    `json:"ip_address,omitempty" doc:"Last known client IP"`
	DeviceType      string    `json:"device_type,omitempty" doc:"Device type"`
	Platform        string    `json:"platform,omitempty" doc:"Platform"`
	PlatformVersion string    `json:"platform_version,omitempty" doc:"Platform version"`
	ClientName      string    `json:"client_name,omitempty" doc:"Client name"`
	ClientVersion   string    `json:"client_version,omitempty" doc:"Client version"`
	DeviceName      string    `json:"device_name,omitempty" doc:"Device name"`
	DeviceModel     string    `json:"device_model,omitempty" doc:"Device model"`
}

// SessionsInput wraps the session list request for Huma.
type SessionsInput struct {
	AuthenticatedInput
}

// SessionsOutput wraps the session list response for Huma.
type SessionsOutput struct {
	Body struct {
		Sessions []SessionInfo `json:"sessions" doc:"Active sessions"`
	}
}

// LogoutAllInput wraps the logout-all request for Huma.
type LogoutAllInput struct {
	AuthenticatedInput
}

// MessageResponse contains a simple message.
type MessageResponse struct {
	Message string `json:"message" doc:"Success message"`
}

// MessageOutput wraps the message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*AuthOutput, error) {
	req := service.RegisterRequest{
		Email:       input.Body.Email,
		Password:    input.Body.Password,
		DisplayName: input.Body.DisplayName,
	}

	resp, err := s.services.Auth.Register(ctx, req, mapDeviceInfo(input.Body.DeviceInfo), extractIP(input.XForwardedFor, input.XRealIP))
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Body: mapAuthResponse(resp)}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	req := service.LoginRequest{
		Email:      input.Body.Email,
		Password:   input.Body.Password,
		DeviceInfo: mapDeviceInfo(input.Body.DeviceInfo),
		IPAddress:  extractIP(input.XForwardedFor, input.XRealIP),
	}

	resp, err := s.services.Auth.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Body: mapAuthResponse(resp)}, nil
}

func (s *Server) handleRefresh(ctx context.Context, input *RefreshInput) (*AuthOutput, error) {
	req := service.RefreshRequest{
		RefreshToken: input.Body.RefreshToken,
		DeviceInfo:   mapDeviceInfo(input.Body.DeviceInfo),
		IPAddress:    extractIP(input.XForwardedFor, input.XRealIP),
	}

	resp, err := s.services.Auth.RefreshTokens(ctx, req)
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Body: mapAuthResponse(resp)}, nil
}

func (s *Server) handleLogout(ctx context.Context, input *LogoutInput) (*MessageOutput, error) {
	if err := s.services.Auth.Logout(ctx, input.Body.SessionID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Logged out successfully"}}, nil
}

func (s *Server) handleLogoutAll(ctx context.Context, input *LogoutAllInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Auth.LogoutAll(ctx, userID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "All sessions revoked"}}, nil
}

func (s *Server) handleListSessions(ctx context.Context, input *SessionsInput) (*SessionsOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	sessions, err := s.services.Auth.Sessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &SessionsOutput{}
	out.Body.Sessions = make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out.Body.Sessions = append(out.Body.Sessions, mapSessionInfo(sess))
	}
	return out, nil
}

// === Helpers ===

func mapDeviceInfo(d DeviceInfo) auth.DeviceInfo {
	return auth.DeviceInfo{
		DeviceType:      d.DeviceType,
		Platform:        d.Platform,
		PlatformVersion: d.PlatformVersion,
		ClientName:      d.ClientName,
		ClientVersion:   d.ClientVersion,
		ClientBuild:     d.ClientBuild,
		DeviceName:      d.DeviceName,
		DeviceModel:     d.DeviceModel,
	}
}

func mapAuthResponse(resp *service.AuthResponse) AuthResponse {
	return AuthResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		SessionID:    resp.SessionID,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		User:         mapUserResponse(resp.User),
	}
}

func mapUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
		IsRoot:      user.IsRoot,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

func mapSessionInfo(sess *domain.Session) SessionInfo {
	return SessionInfo{
		ID:              sess.ID,
		CreatedAt:       sess.CreatedAt,
		LastSeenAt:      sess.LastSeenAt,
		ExpiresAt:       sess.ExpiresAt,
		IPAddress:       sess.IPAddress,
		DeviceType:      sess.DeviceType,
		Platform:        sess.Platform,
		PlatformVersion: sess.PlatformVersion,
		ClientName:      sess.ClientName,
		ClientVersion:   sess.ClientVersion,
		DeviceName:      sess.DeviceName,
		DeviceModel:     sess.DeviceModel,
	}
}

func extractIP(xForwardedFor, xRealIP string) string {
	if xForwardedFor != "" {
		for i := 0; i < len(xForwardedFor); i++ {
			if xForwardedFor[i] == ',' {
				return xForwardedFor[:i]
			}
		}
		return xForwardedFor
	}
	return xRealIP
}
