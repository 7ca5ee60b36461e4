package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"agendly/internal/types"
)

type stubCatalog struct {
	plans map[string]*types.Plan
}

func (s *stubCatalog) GetPlan(_ context.Context, planID string) (*types.Plan, error) {
	plan, ok := s.plans[planID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return plan, nil
}

func (s *stubCatalog) ListActivePlans(context.Context) ([]*types.Plan, error) {
	return []*types.Plan{s.plans["plan_basic"], s.plans["plan_pro"]}, nil
}

func newPlansTestHandler() *PlansHandler {
	return NewPlansHandler(&stubCatalog{plans: map[string]*types.Plan{
		"plan_basic": {ID: "plan_basic", Name: "Basic", PriceCents: 4900, Status: types.PlanStatusActive},
		"plan_pro":   {ID: "plan_pro", Name: "Pro", PriceCents: 9900, Status: types.PlanStatusActive},
	}})
}

func TestHandlePlansList(t *testing.T) {
	h := newPlansTestHandler()

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/v1/plans", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []*types.Plan
	decodeData(t, rec, &got)
	if len(got) != 2 {
		t.Fatalf("len(plans) = %d, want 2", len(got))
	}
	if got[0].ID != "plan_basic" || got[1].ID != "plan_pro" {
		t.Errorf("plan order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestHandlePlansGet(t *testing.T) {
	h := newPlansTestHandler()

	rec := httptest.NewRecorder()
	h.HandleGet(rec, chiRequestWithParam(http.MethodGet, "/v1/plans/plan_pro", "id", "plan_pro"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got types.Plan
	decodeData(t, rec, &got)
	if got.PriceCents != 9900 {
		t.Errorf("price = %d, want 9900", got.PriceCents)
	}
}

func TestHandlePlansGet_Unknown(t *testing.T) {
	h := newPlansTestHandler()

	rec := httptest.NewRecorder()
	h.HandleGet(rec, chiRequestWithParam(http.MethodGet, "/v1/plans/plan_nope", "id", "plan_nope"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
