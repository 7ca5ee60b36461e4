package external

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agendly/internal/types"
)

func newTestCEPClient(serverURL string) *CEPClient {
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"cep-test",
		RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond},
		"Agendly-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewCEPClientWithBase(base, serverURL, slog.New(slog.DiscardHandler))
}

func TestLookup_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/01310100/json/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"cep":"01310-100","logradouro":"Avenida Paulista","bairro":"Bela Vista","localidade":"São Paulo","uf":"SP"}`))
	}))
	defer server.Close()

	client := newTestCEPClient(server.URL)
	addr, err := client.Lookup(context.Background(), "01310-100")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if addr.Street != "Avenida Paulista" || addr.City != "São Paulo" || addr.State != "SP" {
		t.Errorf("unexpected address: %+v", addr)
	}
}

func TestLookup_UnknownCodeIsValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"erro": true}`))
	}))
	defer server.Close()

	client := newTestCEPClient(server.URL)
	_, err := client.Lookup(context.Background(), "99999999")

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidCEP {
		t.Errorf("expected %s, got %s", types.ErrCodeValidationInvalidCEP, appErr.Code)
	}
}

func TestLookup_MalformedCodeRejectedLocally(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := newTestCEPClient(server.URL)

	for _, cep := range []string{"123", "1231231b", "12345-6789"} {
		_, err := client.Lookup(context.Background(), cep)
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidCEP {
			t.Errorf("cep %q: expected local validation error, got %v", cep, err)
		}
	}
	if calls != 0 {
		t.Errorf("malformed codes must not reach the upstream, got %d calls", calls)
	}
}

func TestLookup_OutageMapsToAddressLookupCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestCEPClient(server.URL)
	_, err := client.Lookup(context.Background(), "01310100")

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamAddressLookup {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamAddressLookup, appErr.Code)
	}
}

func TestNormalizeCEP(t *testing.T) {
	got, err := NormalizeCEP(" 01310-100 ")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if got != "01310100" {
		t.Errorf("expected 01310100, got %s", got)
	}
}
