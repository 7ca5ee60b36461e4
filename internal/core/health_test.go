package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticProbe struct {
	name string
	err  error
}

func (p staticProbe) Name() string                  { return p.name }
func (p staticProbe) Check(_ context.Context) error { return p.err }

type panicProbe struct{}

func (panicProbe) Name() string                  { return "flaky" }
func (panicProbe) Check(_ context.Context) error { panic("probe blew up") }

func runHealth(t *testing.T, srv *Server) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	return rec, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t)

	rec, resp := runHealth(t, srv)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		staticProbe{name: "database"},
		staticProbe{name: "gateway"},
	}

	rec, resp := runHealth(t, srv)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp.Components["database"].Status != "healthy" {
		t.Errorf("database = %+v", resp.Components["database"])
	}
	if resp.Components["gateway"].Status != "healthy" {
		t.Errorf("gateway = %+v", resp.Components["gateway"])
	}
}

func TestHandleHealth_OneUnhealthyComponent(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		staticProbe{name: "database"},
		staticProbe{name: "gateway", err: errors.New("connect: connection refused")},
	}

	rec, resp := runHealth(t, srv)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Components["database"].Status != "healthy" {
		t.Errorf("database = %+v", resp.Components["database"])
	}
	gw := resp.Components["gateway"]
	if gw.Status != "unhealthy" || gw.Message == "" {
		t.Errorf("gateway = %+v", gw)
	}
}

func TestHandleHealth_PanickingProbeIsUnhealthy(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		staticProbe{name: "database"},
		panicProbe{},
	}

	rec, resp := runHealth(t, srv)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if resp.Components["flaky"].Status != "unhealthy" {
		t.Errorf("flaky = %+v", resp.Components["flaky"])
	}
}
