package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"agendly/internal/types"
)

// Principal is the resolved identity of an authenticated caller.
type Principal struct {
	UID      string
	Email    string
	TenantID string

	// AdminClaim mirrors the boolean "admin" claim on the bearer
	// credential. Only a literal true grants the claim path.
	AdminClaim bool
}

// idTokenClaims is the claim set Agendly issues on ID tokens.
type idTokenClaims struct {
	Email    string `json:"email,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	Admin    bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies signed ID tokens carrying the admin claim.
type TokenVerifier struct {
	signingKey types.SecretString
}

// NewTokenVerifier creates a TokenVerifier for HMAC-signed ID tokens.
func NewTokenVerifier(signingKey types.SecretString) *TokenVerifier {
	return &TokenVerifier{signingKey: signingKey}
}

// Verify parses and validates a signed ID token and returns the Principal
// it identifies. Any parse, signature, or expiry failure surfaces as an
// authentication error, never as a silent denial.
func (v *TokenVerifier) Verify(tokenStr string) (*Principal, error) {
	claims := &idTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unexpected signing method", nil)
		}
		return []byte(v.signingKey.Unmask()), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", err)
	}
	if !token.Valid {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil)
	}

	return &Principal{
		UID:        claims.Subject,
		Email:      CanonicalizeEmail(claims.Email),
		TenantID:   claims.TenantID,
		AdminClaim: claims.Admin,
	}, nil
}

// Issue signs a new ID token for the given principal. Used by the admin
// bootstrap flow and by tests.
func (v *TokenVerifier) Issue(p *Principal, registered jwt.RegisteredClaims) (string, error) {
	registered.Subject = p.UID
	claims := idTokenClaims{
		Email:            p.Email,
		TenantID:         p.TenantID,
		Admin:            p.AdminClaim,
		RegisteredClaims: registered,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(v.signingKey.Unmask()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to sign token", err)
	}
	return signed, nil
}

// userLookup resolves a session's user record during authentication.
type userLookup interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// Authenticator resolves a raw bearer credential into a Principal. It
// accepts either an opaque session ID (resolved against the session store)
// or a signed ID token.
type Authenticator struct {
	sessions *SessionService
	users    userLookup
	verifier *TokenVerifier
}

// NewAuthenticator creates an Authenticator over both credential kinds.
func NewAuthenticator(sessions *SessionService, users userLookup, verifier *TokenVerifier) *Authenticator {
	return &Authenticator{sessions: sessions, users: users, verifier: verifier}
}

// Authenticate answers "who are you" for a raw credential. A missing or
// invalid credential raises an authentication error so callers can return
// 401 rather than 403.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing credential", nil)
	}

	if strings.HasPrefix(credential, "sess_") {
		return a.authenticateSession(ctx, credential)
	}
	return a.verifier.Verify(credential)
}

func (a *Authenticator) authenticateSession(ctx context.Context, sessionID string) (*Principal, error) {
	session, err := a.sessions.ValidateSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, session.UserID)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundUser {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session user no longer exists", nil)
		}
		return nil, err
	}

	return &Principal{
		UID:        user.ID,
		Email:      CanonicalizeEmail(user.Email),
		TenantID:   user.TenantID,
		AdminClaim: user.AdminClaim,
	}, nil
}
