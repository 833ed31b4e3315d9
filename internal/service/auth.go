package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/folioapp/folio-server/internal/auth"
	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/id"
	"github.com/folioapp/folio-server/internal/ratelimit"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
	"github.com/folioapp/folio-server/internal/validation"
)

// validate is the shared request validator for the service layer.
var validate = validation.New()

// AuthService handles registration, login, and token verification.
// Session lifecycle is delegated to SessionService.
type AuthService struct {
	store           *sqlite.Store
	config          *config.Config
	tokenService    *auth.TokenService
	sessionService  *SessionService
	instanceService *InstanceService
	loginLimiter    *ratelimit.KeyedRateLimiter
	logger          *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	st *sqlite.Store,
	cfg *config.Config,
	tokenService *auth.TokenService,
	sessionService *SessionService,
	instanceService *InstanceService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:           st,
		config:          cfg,
		tokenService:    tokenService,
		sessionService:  sessionService,
		instanceService: instanceService,
		// A failed login costs an attacker a second; a reader mistyping
		// their password never notices the limit.
		loginLimiter: ratelimit.New(1, 5),
		logger:       logger,
	}
}

// RegisterRequest contains user registration data.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
}

// LoginRequest contains user credentials and device information.
type LoginRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required"`
	DeviceInfo auth.DeviceInfo `json:"device_info"`
	IPAddress  string          `json:"-"` // Extracted from the request by the handler
}

// RefreshRequest contains the refresh token and updated device info.
type RefreshRequest struct {
	RefreshToken string          `json:"refresh_token" validate:"required"`
	DeviceInfo   auth.DeviceInfo `json:"device_info"` // Optional updates
	IPAddress    string          `json:"-"`
}

// AuthResponse contains authentication tokens and user data.
type AuthResponse struct {
	User *domain.User `json:"user"`
	SessionResponse
}

// Register creates a new user account and logs it in. The first account
// claims the server: it becomes the root admin and completes setup. Later
// registrations create plain members, and only while the config allows
// open registration.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, deviceInfo auth.DeviceInfo, ipAddress string) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	setupRequired, err := s.instanceService.IsSetupRequired(ctx)
	if err != nil {
		return nil, fmt.Errorf("check setup status: %w", err)
	}

	if !setupRequired && !s.config.Auth.AllowRegistration {
		return nil, domainerrors.Forbidden("registration is disabled on this server")
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := id.Generate("usr")
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		Syncable: domain.Syncable{
			ID: userID,
		},
		Email:        req.Email,
		PasswordHash: passwordHash,
		IsRoot:       setupRequired,
		Role:         domain.RoleMember,
		DisplayName:  req.DisplayName,
		LastLoginAt:  now,
	}
	if setupRequired {
		user.Role = domain.RoleAdmin
	}
	user.InitTimestamps()

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.AlreadyExists("email already in use")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if setupRequired {
		if err := s.instanceService.MarkSetupComplete(ctx); err != nil {
			return nil, fmt.Errorf("complete setup: %w", err)
		}
		s.logger.Info("server claimed by first account",
			"user_id", userID,
			"email", user.Email,
		)
	} else {
		s.logger.Info("user registered",
			"user_id", userID,
			"email", user.Email,
		)
	}

	if !deviceInfo.IsValid() {
		// Registration straight from a browser form.
		deviceInfo = auth.DeviceInfo{
			DeviceType: "web",
			Platform:   "Web",
			ClientName: "Folio Web",
		}
	}

	sessionResp, err := s.sessionService.CreateSession(ctx, user, deviceInfo, ipAddress)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &AuthResponse{
		User:            user,
		SessionResponse: *sessionResp,
	}, nil
}

// Login authenticates a user and creates a new session.
// Attempts are rate limited per client IP.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	if !req.DeviceInfo.IsValid() {
		return nil, domainerrors.Validation("device_info is required (device_type and platform)")
	}

	if req.IPAddress != "" && !s.loginLimiter.Allow(req.IPAddress) {
		return nil, domainerrors.RateLimited("too many login attempts, try again shortly")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Don't leak whether the email exists.
			return nil, domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	valid, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	user.LastLoginAt = time.Now()
	user.Touch()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		// Log but don't fail the login.
		s.logger.Warn("failed to update last login time",
			"user_id", user.ID,
			"error", err,
		)
	}

	sessionResp, err := s.sessionService.CreateSession(ctx, user, req.DeviceInfo, req.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("user logged in",
		"user_id", user.ID,
		"device", req.DeviceInfo.Platform,
	)

	return &AuthResponse{
		User:            user,
		SessionResponse: *sessionResp,
	}, nil
}

// RefreshTokens generates new tokens using a refresh token.
// The old refresh token is invalidated (token rotation).
func (s *AuthService) RefreshTokens(ctx context.Context, req RefreshRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	sessionResp, user, err := s.sessionService.RefreshSession(ctx, req.RefreshToken, req.DeviceInfo, req.IPAddress)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:            user,
		SessionResponse: *sessionResp,
	}, nil
}

// Logout revokes a session, invalidating its refresh token.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessionService.DeleteSession(ctx, sessionID)
}

// LogoutAll revokes every session the user holds.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	return s.sessionService.DeleteAllUserSessions(ctx, userID)
}

// Sessions returns the user's active sessions for display.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.sessionService.ListUserSessions(ctx, userID)
}

// VerifyAccessToken validates a token and returns the associated user.
// Used by the authentication middleware.
func (s *AuthService) VerifyAccessToken(ctx context.Context, tokenString string) (*domain.User, *auth.AccessClaims, error) {
	claims, err := s.tokenService.VerifyAccessToken(tokenString)
	if err != nil {
		return nil, nil, domainerrors.Unauthorized("invalid token").WithCause(err)
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, domainerrors.Unauthorized("user no longer exists")
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	return user, claims, nil
}

// Close releases the login limiter's cleanup goroutine.
func (s *AuthService) Close() {
	s.loginLimiter.Stop()
}
