package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agendly/internal/campaign"
	"agendly/internal/core"
	"agendly/internal/types"
)

type mockCampaignService struct {
	dispatchFn func(ctx context.Context, tenantID string, req campaign.DispatchRequest) (*types.Campaign, error)
	campaigns  map[string]*types.Campaign
}

func (m *mockCampaignService) Dispatch(ctx context.Context, tenantID string, req campaign.DispatchRequest) (*types.Campaign, error) {
	return m.dispatchFn(ctx, tenantID, req)
}

func (m *mockCampaignService) Get(_ context.Context, tenantID, campaignID string) (*types.Campaign, error) {
	if cmp, ok := m.campaigns[campaignID]; ok && cmp.TenantID == tenantID {
		return cmp, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundCampaign, "campaign not found", nil)
}

func (m *mockCampaignService) List(_ context.Context, tenantID string, _ int) ([]*types.Campaign, error) {
	var out []*types.Campaign
	for _, cmp := range m.campaigns {
		if cmp.TenantID == tenantID {
			out = append(out, cmp)
		}
	}
	return out, nil
}

type mockExporter struct {
	payload string
	count   int
	err     error
}

func (m *mockExporter) Export(_ context.Context, _, _ string, w io.Writer) (int, error) {
	_, _ = w.Write([]byte(m.payload))
	return m.count, m.err
}

func newCampaignsTestHandler(svc *mockCampaignService, exp *mockExporter) *CampaignsHandler {
	return NewCampaignsHandler(svc, exp, slog.New(slog.DiscardHandler), core.NewValidator())
}

func TestHandleDispatch_Accepted(t *testing.T) {
	var gotTenant string
	var gotReq campaign.DispatchRequest
	svc := &mockCampaignService{
		dispatchFn: func(_ context.Context, tenantID string, req campaign.DispatchRequest) (*types.Campaign, error) {
			gotTenant, gotReq = tenantID, req
			return &types.Campaign{ID: "cmp_1", TenantID: tenantID, Status: types.CampaignStatusDispatched}, nil
		},
	}
	h := newCampaignsTestHandler(svc, &mockExporter{})

	body := `{"name":"Spring promo","message_text":"20% off this week!"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/v1/campaigns", strings.NewReader(body)), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleDispatch(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotTenant != "ten_1" {
		t.Errorf("tenant = %q", gotTenant)
	}
	if gotReq.Name != "Spring promo" || gotReq.MessageText != "20% off this week!" {
		t.Errorf("request not forwarded: %+v", gotReq)
	}
}

func TestHandleDispatch_EntitlementDeniedIs403(t *testing.T) {
	svc := &mockCampaignService{
		dispatchFn: func(context.Context, string, campaign.DispatchRequest) (*types.Campaign, error) {
			return nil, types.NewAppError(types.ErrCodePermissionFeature, "plan does not include bulk messaging", nil)
		},
	}
	h := newCampaignsTestHandler(svc, &mockExporter{})

	body := `{"name":"Promo","message_text":"hello"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/v1/campaigns", strings.NewReader(body)), "ten_free")
	rec := httptest.NewRecorder()
	h.HandleDispatch(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandleDispatch_MissingMessageRejected(t *testing.T) {
	h := newCampaignsTestHandler(&mockCampaignService{
		dispatchFn: func(context.Context, string, campaign.DispatchRequest) (*types.Campaign, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}, &mockExporter{})

	body := `{"name":"Promo"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/v1/campaigns", strings.NewReader(body)), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleDispatch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGet_CrossTenantIs404(t *testing.T) {
	svc := &mockCampaignService{campaigns: map[string]*types.Campaign{
		"cmp_1": {ID: "cmp_1", TenantID: "ten_other"},
	}}
	h := newCampaignsTestHandler(svc, &mockExporter{})

	req := withActor(chiRequestWithParam(http.MethodGet, "/v1/campaigns/cmp_1", "id", "cmp_1"), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleGet(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleExport_StreamsAttachment(t *testing.T) {
	svc := &mockCampaignService{campaigns: map[string]*types.Campaign{
		"cmp_1": {ID: "cmp_1", TenantID: "ten_1"},
	}}
	exp := &mockExporter{payload: "compressed-bytes", count: 3}
	h := newCampaignsTestHandler(svc, exp)

	req := withActor(chiRequestWithParam(http.MethodGet, "/v1/campaigns/cmp_1/export", "id", "cmp_1"), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "cmp_1.jsonl.zst") {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Body.String() != "compressed-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleExport_UnknownCampaignIs404(t *testing.T) {
	h := newCampaignsTestHandler(&mockCampaignService{}, &mockExporter{})

	req := withActor(chiRequestWithParam(http.MethodGet, "/v1/campaigns/cmp_missing/export", "id", "cmp_missing"), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleExport(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleList_BadLimit(t *testing.T) {
	h := newCampaignsTestHandler(&mockCampaignService{}, &mockExporter{})

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/campaigns?limit=-3", nil), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
