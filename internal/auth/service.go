package auth

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"agendly/internal/types"
)

const bcryptCost = 12

// UserRepo defines the data access methods needed by the LoginService.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	UpdateLastLogin(ctx context.Context, userID string) error
}

// PasswordHasher abstracts password hashing for testability.
type PasswordHasher interface {
	GenerateFromPassword(password string) (string, error)
	CompareHashAndPassword(hashedPassword, password string) error
}

// bcryptHasher is the production PasswordHasher backed by bcrypt.
type bcryptHasher struct{}

func (bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// LoginService verifies credentials and issues sessions.
type LoginService struct {
	userRepo   UserRepo
	sessionSvc *SessionService
	hasher     PasswordHasher
	logger     *slog.Logger
}

// LoginServiceConfig bundles the dependencies of a LoginService.
// If Hasher is nil, a bcrypt hasher is used.
// If Logger is nil, slog.Default() is used.
type LoginServiceConfig struct {
	UserRepo       UserRepo
	SessionService *SessionService
	Hasher         PasswordHasher
	Logger         *slog.Logger
}

// NewLoginService creates a new LoginService.
func NewLoginService(cfg LoginServiceConfig) *LoginService {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = bcryptHasher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginService{
		userRepo:   cfg.UserRepo,
		sessionSvc: cfg.SessionService,
		hasher:     hasher,
		logger:     logger,
	}
}

// Login verifies credentials and creates a session.
//
//  1. Fetch user by canonicalized email.
//  2. Verify password hash (bcrypt). If invalid, return ErrCodeAuthInvalidCreds.
//  3. Check user status is 'active'.
//  4. Update last_login_at and create a session.
//
// Enumeration protection: user-not-found and invalid-password both surface
// the same generic "invalid email or password" error.
func (s *LoginService) Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundUser {
			return nil, nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, nil, "", err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	if user.Status != types.UserStatusActive {
		return nil, nil, "", types.NewAppError(types.ErrCodeAuthAccountNotActive, "account not active", nil)
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		// Last-login tracking must not block the login itself.
		s.logger.Warn("failed to update last login",
			"user_id", user.ID,
			"error", err,
		)
	}

	session, rawID, err := s.sessionSvc.CreateSession(ctx, user.ID, user.TenantID, ip, userAgent)
	if err != nil {
		return nil, nil, "", err
	}

	s.logger.Info("user logged in",
		"user_id", user.ID,
		"tenant_id", user.TenantID,
	)

	return user, session, rawID, nil
}

// Logout invalidates the given session. An unknown session ID is treated as
// already logged out.
func (s *LoginService) Logout(ctx context.Context, sessionID string) error {
	return s.sessionSvc.InvalidateSession(ctx, sessionID)
}

// HashPassword hashes a plaintext password for storage. Used by signup and
// admin bootstrap flows.
func (s *LoginService) HashPassword(password string) (string, error) {
	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}
	return hash, nil
}
