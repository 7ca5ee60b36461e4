// Package core provides the API chassis for the Agendly platform. It
// creates a chi router that works both behind standard HTTP (local dev)
// and AWS Lambda proxy integration, and enforces cross-cutting concerns
// (recovery, request IDs, logging, metrics, authentication) before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agendly/internal/auth"
	"agendly/internal/config"
	"agendly/internal/types"
)

// RouteRegistrar attaches a group of domain endpoints to the v1 router.
// The application entry point populates Server.V1RouteRegistrars with one
// registrar per handler package, which avoids import cycles between core
// and the handler packages.
type RouteRegistrar func(r chi.Router)

// Server holds every dependency the API chassis needs. Fields are exported
// so the entry point and tests can inject alternatives.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       types.MetricsCollector
	Authenticator CredentialResolver
	Admin         AdminGate

	// V1RouteRegistrars is consumed by MountRoutes.
	V1RouteRegistrars []RouteRegistrar

	// HealthProbes are checked concurrently by the health endpoint.
	HealthProbes []HealthProbe

	// DB is closed during Shutdown when set. Satisfied by *pgxpool.Pool.
	DB interface{ Close() }

	router *chi.Mux
}

// CredentialResolver answers "who are you" for a raw bearer credential.
// Implemented by auth.Authenticator.
type CredentialResolver interface {
	Authenticate(ctx context.Context, credential string) (*auth.Principal, error)
}

// AdminGate answers "may this principal act as an administrator".
// Implemented by auth.AdminAuthorizer.
type AdminGate interface {
	RequireAdmin(ctx context.Context, p *auth.Principal) error
}

// NewServer validates the critical dependencies and prepares the router.
// Routes are mounted separately (MountRoutes) so tests can customize
// registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler. Used by
// http.ListenAndServe locally and by chiadapter on Lambda.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources. Currently that means closing the
// database pool, when one was attached.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if s.DB != nil {
		s.DB.Close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
