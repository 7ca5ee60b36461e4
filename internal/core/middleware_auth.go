package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"agendly/internal/auth"
	"agendly/internal/types"
)

// authPublicPaths are exact-match paths the AuthMiddleware skips. Login
// has no credential yet, the plan listing backs the public pricing page,
// the Stripe webhook authenticates by signature, and the bootstrap
// endpoint is gated by the setup secret instead.
var authPublicPaths = map[string]struct{}{
	"/health":             {},
	"/v1/auth/login":      {},
	"/v1/plans":           {},
	"/v1/billing/webhook": {},
	"/v1/admin/bootstrap": {},
}

// authPublicPrefixes are path prefixes the AuthMiddleware skips. Cron
// endpoints are gated by the shared cron secret instead of bearer auth.
var authPublicPrefixes = []string{
	"/v1/cron/",
	"/v1/plans/",
}

func isPublicPath(path string) bool {
	if _, ok := authPublicPaths[path]; ok {
		return true
	}
	for _, prefix := range authPublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractBearerToken pulls the credential out of the Authorization header.
// Returns "" when the header is absent or not a Bearer scheme.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware resolves the bearer credential to a Principal and stores
// the resulting Actor in the request context. Identity failures are
// answered with 401-class errors here; permission decisions happen later,
// in RequireAdmin or in the handlers, and answer 403.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		credential := extractBearerToken(r)
		if credential == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
				"missing or malformed Authorization header", nil))
			return
		}

		principal, err := s.Authenticator.Authenticate(r.Context(), credential)
		if err != nil {
			Error(w, r, err)
			return
		}

		actor := types.Actor{
			ID:       principal.UID,
			Type:     types.ActorTypeUser,
			TenantID: principal.TenantID,
			Email:    principal.Email,
			Admin:    principal.AdminClaim,
		}
		ctx := types.WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin guards admin endpoints. The composite authorizer grants
// access when any of its mechanisms vouches for the principal; a caller
// who is authenticated but not vouched for gets 403, never 401.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
				"authentication required", nil))
			return
		}

		principal := &auth.Principal{
			UID:        actor.ID,
			Email:      actor.Email,
			TenantID:   actor.TenantID,
			AdminClaim: actor.Admin,
		}
		if err := s.Admin.RequireAdmin(r.Context(), principal); err != nil {
			Error(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireCronSecret gates scheduled batch endpoints behind the shared cron
// secret carried as a bearer credential. Comparison is constant time.
func (s *Server) RequireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := extractBearerToken(r)
		expected := s.Config.Cron.Secret.Unmask()

		if presented == "" || expected == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthCronSecret,
				"invalid cron secret", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireSetupSecret gates the one-time admin bootstrap endpoint behind
// the setup secret carried in the X-Setup-Secret header.
func (s *Server) RequireSetupSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := strings.TrimSpace(r.Header.Get("X-Setup-Secret"))
		expected := s.Config.Admin.SetupSecret.Unmask()

		if presented == "" || expected == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthSetupSecret,
				"invalid setup secret", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
