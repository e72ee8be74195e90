package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mmararief/dante-propolis/internal/orders"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/outbox"
)

type stubOrdersService struct {
	order      *models.Order
	err        error
	actor      orders.Actor
	proof      orders.PaymentProofInput
	ship       orders.ShipInput
	listParams orders.ListParams
}

func (s *stubOrdersService) Get(_ context.Context, _ uuid.UUID, actor orders.Actor) (*models.Order, error) {
	s.actor = actor
	return s.order, s.err
}

func (s *stubOrdersService) List(_ context.Context, params orders.ListParams) (*orders.ListResult, error) {
	s.listParams = params
	if s.err != nil {
		return nil, s.err
	}
	return &orders.ListResult{Orders: []models.Order{*s.order}, NextCursor: "next"}, nil
}

func (s *stubOrdersService) AttachPaymentProof(_ context.Context, input orders.PaymentProofInput) (*models.Order, error) {
	s.proof = input
	return s.order, s.err
}

func (s *stubOrdersService) Ship(_ context.Context, input orders.ShipInput) (*models.Order, error) {
	s.ship = input
	return s.order, s.err
}

func (s *stubOrdersService) Complete(_ context.Context, _ uuid.UUID, actor orders.Actor) (*models.Order, error) {
	s.actor = actor
	return s.order, s.err
}

type stubCommitter struct {
	order   *models.Order
	err     error
	orderID uuid.UUID
	actor   *outbox.ActorRef
}

func (s *stubCommitter) CommitAllocation(_ context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error) {
	s.orderID = orderID
	s.actor = actor
	return s.order, s.err
}

func sampleOrder(status enums.OrderStatus) *models.Order {
	return &models.Order{ID: uuid.New(), UserID: uuid.New(), Status: status, PaymentMethod: enums.PaymentMethodBCA}
}

func TestGetOrderPassesActor(t *testing.T) {
	order := sampleOrder(enums.OrderStatusUnpaid)
	svc := &stubOrdersService{order: order}
	req := newRequest(http.MethodGet, "/api/orders/"+order.ID.String(), nil, order.UserID, enums.UserRoleCustomer, map[string]string{"orderId": order.ID.String()})
	resp := httptest.NewRecorder()
	GetOrder(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.actor.UserID != order.UserID || svc.actor.IsAdmin() {
		t.Fatalf("unexpected actor %+v", svc.actor)
	}
}

func TestGetOrderRejectsBadID(t *testing.T) {
	svc := &stubOrdersService{}
	req := newRequest(http.MethodGet, "/api/orders/nope", nil, uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": "nope"})
	resp := httptest.NewRecorder()
	GetOrder(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAttachPaymentProofValidatesURL(t *testing.T) {
	order := sampleOrder(enums.OrderStatusAwaitingConfirmation)
	svc := &stubOrdersService{order: order}
	params := map[string]string{"orderId": order.ID.String()}

	bad := newRequest(http.MethodPost, "/", strings.NewReader(`{"payment_proof_url":"not a url"}`), order.UserID, enums.UserRoleCustomer, params)
	resp := httptest.NewRecorder()
	AttachPaymentProof(svc, nil).ServeHTTP(resp, bad)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	good := newRequest(http.MethodPost, "/", strings.NewReader(`{"payment_proof_url":"https://cdn.example.com/proof.jpg"}`), order.UserID, enums.UserRoleCustomer, params)
	resp = httptest.NewRecorder()
	AttachPaymentProof(svc, nil).ServeHTTP(resp, good)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.proof.OrderID != order.ID || svc.proof.ProofURL != "https://cdn.example.com/proof.jpg" {
		t.Fatalf("unexpected proof input %+v", svc.proof)
	}
}

func TestVerifyPaymentCommitsWithAdminActor(t *testing.T) {
	order := sampleOrder(enums.OrderStatusProcessing)
	committer := &stubCommitter{order: order}
	adminID := uuid.New()
	req := newRequest(http.MethodPost, "/", nil, adminID, enums.UserRoleAdmin, map[string]string{"orderId": order.ID.String()})
	resp := httptest.NewRecorder()
	VerifyPayment(committer, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if committer.orderID != order.ID {
		t.Fatalf("unexpected order id %s", committer.orderID)
	}
	if committer.actor == nil || committer.actor.UserID != adminID || committer.actor.Role != string(enums.UserRoleAdmin) {
		t.Fatalf("unexpected actor %+v", committer.actor)
	}
}

func TestVerifyPaymentRepeatIsConflict(t *testing.T) {
	committer := &stubCommitter{err: pkgerrors.InvalidOrderState("o-1", string(enums.OrderStatusProcessing), "commit")}
	orderID := uuid.New()
	req := newRequest(http.MethodPost, "/", nil, uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	VerifyPayment(committer, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeInvalidOrderState) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestShipOrderRequiresTrackingNumber(t *testing.T) {
	order := sampleOrder(enums.OrderStatusShipped)
	svc := &stubOrdersService{order: order}
	params := map[string]string{"orderId": order.ID.String()}

	req := newRequest(http.MethodPost, "/", strings.NewReader(`{}`), uuid.New(), enums.UserRoleAdmin, params)
	resp := httptest.NewRecorder()
	ShipOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	req = newRequest(http.MethodPost, "/", strings.NewReader(`{"tracking_number":" JNE123 "}`), uuid.New(), enums.UserRoleAdmin, params)
	resp = httptest.NewRecorder()
	ShipOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.ship.TrackingNumber != "JNE123" {
		t.Fatalf("expected trimmed tracking number, got %q", svc.ship.TrackingNumber)
	}
}

func TestListOrdersScopesCustomersToThemselves(t *testing.T) {
	svc := &stubOrdersService{order: sampleOrder(enums.OrderStatusUnpaid)}
	userID := uuid.New()
	other := uuid.New()
	req := newRequest(http.MethodGet, "/api/orders?status=unpaid&user_id="+other.String(), nil, userID, enums.UserRoleCustomer, nil)
	resp := httptest.NewRecorder()
	ListOrders(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.listParams.Filters.UserID == nil || *svc.listParams.Filters.UserID != userID {
		t.Fatalf("expected own user filter, got %+v", svc.listParams.Filters)
	}
	if svc.listParams.Filters.Status == nil || *svc.listParams.Filters.Status != enums.OrderStatusUnpaid {
		t.Fatalf("expected status filter, got %+v", svc.listParams.Filters)
	}

	var body orderListResponse
	if err := json.Unmarshal(decodeEnvelope(t, resp).Data, &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Orders) != 1 || body.NextCursor != "next" {
		t.Fatalf("unexpected list %+v", body)
	}
}

func TestListOrdersAdminFilters(t *testing.T) {
	svc := &stubOrdersService{order: sampleOrder(enums.OrderStatusProcessing)}
	target := uuid.New()
	req := newRequest(http.MethodGet, "/api/admin/orders?user_id="+target.String(), nil, uuid.New(), enums.UserRoleAdmin, nil)
	resp := httptest.NewRecorder()
	ListOrders(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.listParams.Filters.UserID == nil || *svc.listParams.Filters.UserID != target {
		t.Fatalf("expected requested user filter, got %+v", svc.listParams.Filters)
	}

	bad := newRequest(http.MethodGet, "/api/admin/orders?status=lost", nil, uuid.New(), enums.UserRoleAdmin, nil)
	resp = httptest.NewRecorder()
	ListOrders(svc, nil).ServeHTTP(resp, bad)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
