package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agendly/internal/types"
)

type mockVerifier struct {
	err     error
	headers []string
}

func (m *mockVerifier) Verify(_ []byte, header string, _ types.SecretString) error {
	m.headers = append(m.headers, header)
	return m.err
}

type mockProcessor struct {
	err      error
	payloads [][]byte
}

func (m *mockProcessor) Process(_ context.Context, payload []byte) error {
	m.payloads = append(m.payloads, payload)
	return m.err
}

func newWebhookTestHandler(v *mockVerifier, p *mockProcessor) *StripeWebhookHandler {
	return NewStripeWebhookHandler(v, p, types.SecretString("whsec_test"), slog.New(slog.DiscardHandler))
}

func TestHandleWebhook_VerifiedEventIsProcessed(t *testing.T) {
	verifier := &mockVerifier{}
	processor := &mockProcessor{}
	h := newWebhookTestHandler(verifier, processor)

	payload := `{"id":"evt_1","type":"invoice.paid"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(verifier.headers) != 1 || verifier.headers[0] != "t=1,v1=sig" {
		t.Errorf("signature header not forwarded: %v", verifier.headers)
	}
	if len(processor.payloads) != 1 || string(processor.payloads[0]) != payload {
		t.Errorf("payload not forwarded verbatim")
	}
}

func TestHandleWebhook_BadSignatureIsRejected(t *testing.T) {
	verifier := &mockVerifier{err: errors.New("signature mismatch")}
	processor := &mockProcessor{}
	h := newWebhookTestHandler(verifier, processor)

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(processor.payloads) != 0 {
		t.Error("unverified payload must never reach the processor")
	}
}

func TestHandleWebhook_ProcessingFailureStillAcks(t *testing.T) {
	verifier := &mockVerifier{}
	processor := &mockProcessor{err: errors.New("tenant lookup failed")}
	h := newWebhookTestHandler(verifier, processor)

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader(`{"id":"evt_2"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 despite processing failure", rec.Code)
	}
}

func TestHandleWebhook_OversizePayloadRejected(t *testing.T) {
	verifier := &mockVerifier{}
	processor := &mockProcessor{}
	h := newWebhookTestHandler(verifier, processor)

	big := strings.Repeat("x", maxWebhookBodySize+1)
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader(big))
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(verifier.headers) != 0 {
		t.Error("oversize payload should not reach verification")
	}
}
