package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agendly/internal/types"
)

const testSigningKey = types.SecretString("0123456789abcdef0123456789abcdef")

// --- Mock SessionRepo ---

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, session *types.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) GetByID(ctx context.Context, sessionID string) (*types.Session, error) {
	args := m.Called(ctx, sessionID)
	if s := args.Get(0); s != nil {
		return s.(*types.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepo) Touch(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockSessionRepo) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock user lookup ---

type mockUserLookup struct {
	mock.Mock
}

func (m *mockUserLookup) GetByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Fixed clock ---

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func issuedToken(t *testing.T, p *Principal, expiresAt time.Time) string {
	t.Helper()
	verifier := NewTokenVerifier(testSigningKey)
	token, err := verifier.Issue(p, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(testNow),
	})
	require.NoError(t, err)
	return token
}

// --- TokenVerifier ---

func TestTokenVerifier_RoundTrip(t *testing.T) {
	verifier := NewTokenVerifier(testSigningKey)
	token := issuedToken(t, &Principal{
		UID:        "usr_1",
		Email:      "Owner@Salon.App",
		TenantID:   "ten_1",
		AdminClaim: true,
	}, time.Now().Add(time.Hour))

	p, err := verifier.Verify(token)

	require.NoError(t, err)
	assert.Equal(t, "usr_1", p.UID)
	assert.Equal(t, "owner@salon.app", p.Email)
	assert.Equal(t, "ten_1", p.TenantID)
	assert.True(t, p.AdminClaim)
}

func TestTokenVerifier_WrongKeyRejected(t *testing.T) {
	token := issuedToken(t, &Principal{UID: "usr_1"}, time.Now().Add(time.Hour))

	other := NewTokenVerifier("ffffffffffffffffffffffffffffffff")
	_, err := other.Verify(token)

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestTokenVerifier_ExpiredToken(t *testing.T) {
	verifier := NewTokenVerifier(testSigningKey)
	token := issuedToken(t, &Principal{UID: "usr_1"}, time.Now().Add(-time.Hour))

	_, err := verifier.Verify(token)

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuthTokenExpired, appErr.Code)
}

func TestTokenVerifier_GarbageRejected(t *testing.T) {
	verifier := NewTokenVerifier(testSigningKey)

	_, err := verifier.Verify("not-a-token")

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

// --- Authenticator ---

func newTestAuthenticator(repo SessionRepo, users userLookup) *Authenticator {
	sessions := NewSessionService(repo, NewCryptoTokenGenerator(), DefaultSessionConfig(), fixedClock{now: testNow}, discardLogger())
	return NewAuthenticator(sessions, users, NewTokenVerifier(testSigningKey))
}

func TestAuthenticator_EmptyCredentialIsMissing(t *testing.T) {
	authn := newTestAuthenticator(&mockSessionRepo{}, &mockUserLookup{})

	_, err := authn.Authenticate(context.Background(), "  ")

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuthTokenMissing, appErr.Code)
}

func TestAuthenticator_SessionCredentialResolvesUser(t *testing.T) {
	repo := &mockSessionRepo{}
	repo.On("GetByID", mock.Anything, "sess_abc").Return(&types.Session{
		ID:        "sess_abc",
		UserID:    "usr_1",
		TenantID:  "ten_1",
		ExpiresAt: testNow.Add(time.Hour),
	}, nil)
	repo.On("Touch", mock.Anything, "sess_abc").Return(nil)

	users := &mockUserLookup{}
	users.On("GetByID", mock.Anything, "usr_1").Return(&types.User{
		ID:         "usr_1",
		TenantID:   "ten_1",
		Email:      "Owner@Salon.App",
		AdminClaim: true,
		Status:     types.UserStatusActive,
	}, nil)

	authn := newTestAuthenticator(repo, users)
	p, err := authn.Authenticate(context.Background(), "sess_abc")

	require.NoError(t, err)
	assert.Equal(t, "usr_1", p.UID)
	assert.Equal(t, "owner@salon.app", p.Email)
	assert.Equal(t, "ten_1", p.TenantID)
	assert.True(t, p.AdminClaim)
}

func TestAuthenticator_ExpiredSessionIsAuthError(t *testing.T) {
	repo := &mockSessionRepo{}
	repo.On("GetByID", mock.Anything, "sess_old").Return(&types.Session{
		ID:        "sess_old",
		UserID:    "usr_1",
		ExpiresAt: testNow.Add(-time.Minute),
	}, nil)

	authn := newTestAuthenticator(repo, &mockUserLookup{})
	_, err := authn.Authenticate(context.Background(), "sess_old")

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuthSessionExpired, appErr.Code)
	repo.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything)
}

func TestAuthenticator_OrphanedSessionIsAuthError(t *testing.T) {
	repo := &mockSessionRepo{}
	repo.On("GetByID", mock.Anything, "sess_abc").Return(&types.Session{
		ID:        "sess_abc",
		UserID:    "usr_gone",
		ExpiresAt: testNow.Add(time.Hour),
	}, nil)
	repo.On("Touch", mock.Anything, "sess_abc").Return(nil)

	users := &mockUserLookup{}
	users.On("GetByID", mock.Anything, "usr_gone").Return(nil,
		types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil))

	authn := newTestAuthenticator(repo, users)
	_, err := authn.Authenticate(context.Background(), "sess_abc")

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestAuthenticator_BearerTokenPath(t *testing.T) {
	token := issuedToken(t, &Principal{UID: "usr_1", AdminClaim: true}, time.Now().Add(time.Hour))

	authn := newTestAuthenticator(&mockSessionRepo{}, &mockUserLookup{})
	p, err := authn.Authenticate(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "usr_1", p.UID)
	assert.True(t, p.AdminClaim)
}
