package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agendly/internal/core"
	"agendly/internal/types"
)

// mockLoginService implements LoginService with injectable behavior.
type mockLoginService struct {
	loginFn  func(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error)
	logoutFn func(ctx context.Context, sessionID string) error

	logoutCalls []string
}

func (m *mockLoginService) Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error) {
	return m.loginFn(ctx, email, password, ip, userAgent)
}

func (m *mockLoginService) Logout(ctx context.Context, sessionID string) error {
	m.logoutCalls = append(m.logoutCalls, sessionID)
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func newAuthTestHandler(svc *mockLoginService) *AuthHandler {
	return NewAuthHandler(svc, slog.New(slog.DiscardHandler), core.NewValidator())
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	expires := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	var gotEmail, gotIP string
	svc := &mockLoginService{
		loginFn: func(_ context.Context, email, password, ip, _ string) (*types.User, *types.Session, string, error) {
			gotEmail, gotIP = email, ip
			return &types.User{ID: "usr_1", Email: email},
				&types.Session{ID: "hash", ExpiresAt: expires},
				"sess_raw_credential", nil
		},
	}
	h := newAuthTestHandler(svc)

	body := `{"email":"  Owner@Salon.example ","password":"hunter2hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotEmail != "owner@salon.example" {
		t.Errorf("email not canonicalized: %q", gotEmail)
	}
	if gotIP != "203.0.113.9" {
		t.Errorf("ip = %q", gotIP)
	}

	var resp AuthResponse
	decodeData(t, rec, &resp)
	if resp.Token != "sess_raw_credential" {
		t.Errorf("token = %q", resp.Token)
	}
	if !resp.ExpiresAt.Equal(expires) {
		t.Errorf("expires_at = %v", resp.ExpiresAt)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	svc := &mockLoginService{
		loginFn: func(context.Context, string, string, string, string) (*types.User, *types.Session, string, error) {
			return nil, nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		},
	}
	h := newAuthTestHandler(svc)

	body := `{"email":"owner@salon.example","password":"wrong-password"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleLogin_ValidationFailure(t *testing.T) {
	h := newAuthTestHandler(&mockLoginService{
		loginFn: func(context.Context, string, string, string, string) (*types.User, *types.Session, string, error) {
			t.Fatal("service should not be called for invalid input")
			return nil, nil, "", nil
		},
	})

	body := `{"email":"not-an-email","password":""}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLogout_InvalidatesPresentedSession(t *testing.T) {
	svc := &mockLoginService{}
	h := newAuthTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer sess_abc123")
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.logoutCalls) != 1 || svc.logoutCalls[0] != "sess_abc123" {
		t.Errorf("logout calls = %v", svc.logoutCalls)
	}
}

func TestHandleLogout_NoSessionIsIdempotent(t *testing.T) {
	svc := &mockLoginService{}
	h := newAuthTestHandler(svc)

	for _, header := range []string{"", "Bearer eyJhbGciOi.jwt.token"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.HandleLogout(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("header %q: status = %d, want 200", header, rec.Code)
		}
	}
	if len(svc.logoutCalls) != 0 {
		t.Errorf("logout should not be called without a session credential: %v", svc.logoutCalls)
	}
}
