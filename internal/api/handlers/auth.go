package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agendly/internal/auth"
	"agendly/internal/core"
	"agendly/internal/types"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries the session credential the dashboard presents as a
// bearer token on subsequent requests.
type AuthResponse struct {
	Token     string      `json:"token"`
	User      *types.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// LoginService verifies credentials and manages the session lifecycle.
type LoginService interface {
	Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandler maps the auth endpoints onto the login service.
type AuthHandler struct {
	login     LoginService
	logger    *slog.Logger
	validator *core.Validator
}

func NewAuthHandler(login LoginService, logger *slog.Logger, validator *core.Validator) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{login: login, logger: logger, validator: validator}
}

// RegisterRoutes mounts the auth routes. Login is a public path; logout
// runs behind the auth middleware and invalidates the presented session.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
}

// HandleLogin processes POST /auth/login. Invalid email and invalid
// password surface identically to prevent account enumeration.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	email := auth.CanonicalizeEmail(req.Email)
	ip := extractClientIP(r)

	user, session, rawID, err := h.login.Login(r.Context(), email, req.Password, ip, r.UserAgent())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AuthResponse{
		Token:     rawID,
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}})
}

// HandleLogout processes POST /auth/logout. The session to invalidate is
// the one presented as the bearer credential. An absent or unknown session
// is treated as already logged out.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	credential := bearerCredential(r)
	if credential == "" || !strings.HasPrefix(credential, "sess_") {
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"logged_out": true}})
		return
	}

	if err := h.login.Logout(r.Context(), credential); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"logged_out": true}})
}

func bearerCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
