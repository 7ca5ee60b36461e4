package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agendly/internal/core"
	"agendly/internal/types"
)

type fakeCustomerStore struct {
	customers map[string]*types.Customer
	visits    map[string]time.Time
}

func newFakeCustomerStore() *fakeCustomerStore {
	return &fakeCustomerStore{
		customers: map[string]*types.Customer{},
		visits:    map[string]time.Time{},
	}
}

func (s *fakeCustomerStore) Create(_ context.Context, customer *types.Customer) error {
	s.customers[customer.ID] = customer
	return nil
}

func (s *fakeCustomerStore) GetByID(_ context.Context, tenantID, id string) (*types.Customer, error) {
	customer, ok := s.customers[id]
	if !ok || customer.TenantID != tenantID {
		return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
	}
	return customer, nil
}

func (s *fakeCustomerStore) ListByTenant(_ context.Context, tenantID string) ([]*types.Customer, error) {
	var out []*types.Customer
	for _, customer := range s.customers {
		if customer.TenantID == tenantID {
			out = append(out, customer)
		}
	}
	return out, nil
}

func (s *fakeCustomerStore) RecordVisit(_ context.Context, tenantID, id string, visitedAt time.Time) error {
	if _, ok := s.customers[id]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
	}
	s.visits[id] = visitedAt
	return nil
}

func newCustomersTestHandler(store *fakeCustomerStore, now time.Time) *CustomersHandler {
	return NewCustomersHandler(store, tenantClock{now: now}, nil, core.NewValidator())
}

func TestHandleCustomerCreate(t *testing.T) {
	store := newFakeCustomerStore()
	h := newCustomersTestHandler(store, time.Now())

	body := `{"name":"Dana Reyes","phone":"+5511987654321","birthday":"1991-04-17"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/v1/customers", strings.NewReader(body)), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got types.Customer
	decodeData(t, rec, &got)
	if !strings.HasPrefix(got.ID, "cus_") {
		t.Errorf("id = %q, want cus_ prefix", got.ID)
	}
	if got.TenantID != "ten_1" {
		t.Errorf("tenant = %q, want actor's tenant", got.TenantID)
	}
	if got.Birthday == nil || got.Birthday.Format(types.QuotaDateLayout) != "1991-04-17" {
		t.Errorf("birthday = %v", got.Birthday)
	}
	if len(store.customers) != 1 {
		t.Errorf("stored %d customers", len(store.customers))
	}
}

func TestHandleCustomerCreate_NoBirthday(t *testing.T) {
	h := newCustomersTestHandler(newFakeCustomerStore(), time.Now())

	body := `{"name":"Dana Reyes","phone":"+5511987654321"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/v1/customers", strings.NewReader(body)), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var got types.Customer
	decodeData(t, rec, &got)
	if got.Birthday != nil {
		t.Errorf("birthday = %v, want nil", got.Birthday)
	}
}

func TestHandleCustomerCreate_BadBirthday(t *testing.T) {
	store := newFakeCustomerStore()
	h := newCustomersTestHandler(store, time.Now())

	body := `{"name":"Dana Reyes","phone":"+5511987654321","birthday":"17/04/1991"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/v1/customers", strings.NewReader(body)), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(store.customers) != 0 {
		t.Errorf("customer stored despite invalid birthday")
	}
}

func TestHandleCustomerCreate_NoActor(t *testing.T) {
	h := newCustomersTestHandler(newFakeCustomerStore(), time.Now())

	body := `{"name":"Dana Reyes","phone":"+5511987654321"}`
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/v1/customers", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleCustomerList_ScopedToTenant(t *testing.T) {
	store := newFakeCustomerStore()
	store.customers["cus_1"] = &types.Customer{ID: "cus_1", TenantID: "ten_1", Name: "Ours"}
	store.customers["cus_2"] = &types.Customer{ID: "cus_2", TenantID: "ten_2", Name: "Theirs"}
	h := newCustomersTestHandler(store, time.Now())

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/customers", nil), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []*types.Customer
	decodeData(t, rec, &got)
	if len(got) != 1 || got[0].ID != "cus_1" {
		t.Errorf("customers = %+v, want only ten_1's", got)
	}
}

func TestHandleCustomerGet_CrossTenant(t *testing.T) {
	store := newFakeCustomerStore()
	store.customers["cus_2"] = &types.Customer{ID: "cus_2", TenantID: "ten_2"}
	h := newCustomersTestHandler(store, time.Now())

	req := withActor(chiRequestWithParam(http.MethodGet, "/v1/customers/cus_2", "id", "cus_2"), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleGet(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another tenant's customer", rec.Code)
	}
}

func TestHandleRecordVisit_UsesClock(t *testing.T) {
	now := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	store := newFakeCustomerStore()
	store.customers["cus_1"] = &types.Customer{ID: "cus_1", TenantID: "ten_1"}
	h := newCustomersTestHandler(store, now)

	req := withActor(chiRequestWithParam(http.MethodPost, "/v1/customers/cus_1/visit", "id", "cus_1"), "ten_1")
	rec := httptest.NewRecorder()
	h.HandleRecordVisit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !store.visits["cus_1"].Equal(now) {
		t.Errorf("visited_at = %v, want %v", store.visits["cus_1"], now)
	}
}
