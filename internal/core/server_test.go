package core

import (
	"context"
	"log/slog"
	"testing"

	"agendly/internal/auth"
	"agendly/internal/config"
	"agendly/internal/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server: config.ServerConfig{
			CorsAllowedOrigins: []string{"*"},
		},
		Admin: config.AdminConfig{
			SetupSecret: types.SecretString("setup-secret-value"),
		},
		Cron: config.CronConfig{
			Secret: types.SecretString("cron-secret-value"),
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// stubAuthenticator resolves every credential to a fixed principal, or
// fails with the configured error.
type stubAuthenticator struct {
	principal *auth.Principal
	err       error

	credentials []string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, credential string) (*auth.Principal, error) {
	s.credentials = append(s.credentials, credential)
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

// stubAdminGate grants or denies every principal.
type stubAdminGate struct {
	err error

	principals []*auth.Principal
}

func (s *stubAdminGate) RequireAdmin(_ context.Context, p *auth.Principal) error {
	s.principals = append(s.principals, p)
	return s.err
}

func TestNewServer_NilConfig(t *testing.T) {
	if _, err := NewServer(nil, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewServer_NilLogger(t *testing.T) {
	if _, err := NewServer(testConfig(), nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Close() { c.closed = true }

func TestShutdown_ClosesDB(t *testing.T) {
	srv := newTestServer(t)
	db := &closeRecorder{}
	srv.DB = db

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !db.closed {
		t.Error("expected database pool to be closed")
	}
}

func TestShutdown_NoDB(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown without DB: %v", err)
	}
}
