package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirana-commerce/kirana-commerce/internal/cod"
	"github.com/kirana-commerce/kirana-commerce/internal/ledger"
	"github.com/kirana-commerce/kirana-commerce/internal/masterdata/products"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
)

type mockRepo struct {
	orders map[int64]*Order
	nextID int64
	seq    int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{orders: make(map[int64]*Order)}
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func copyOrder(o *Order) *Order {
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}

func (m *mockRepo) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *mockRepo) GetByNumber(ctx context.Context, number string) (*Order, error) {
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return copyOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(ctx context.Context, req ListRequest) ([]Order, int, error) {
	var out []Order
	for _, o := range m.orders {
		if req.Status != nil && o.Status != *req.Status {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	return out, len(out), nil
}

func (m *mockRepo) ListFinalInvoicePending(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	for id, o := range m.orders {
		if o.FinalInvoicePending && o.Status == StatusDelivered {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockRepo) GetByIDForUpdate(ctx context.Context, id int64) (*Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) GenerateOrderNumber(ctx context.Context, at time.Time) (string, error) {
	m.seq++
	return fmt.Sprintf("ORD-%s-%04d", at.Format("200601"), m.seq), nil
}

func (m *mockRepo) CreateOrder(ctx context.Context, o Order) (int64, error) {
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	o.Items = nil
	m.orders[o.ID] = &o
	return o.ID, nil
}

func (m *mockRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	o, ok := m.orders[item.OrderID]
	if !ok {
		return 0, ErrNotFound
	}
	item.ID = int64(len(o.Items) + 1)
	o.Items = append(o.Items, item)
	return item.ID, nil
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]interface{}) error {
	merged := map[string]interface{}{"status": status}
	for k, v := range updates {
		merged[k] = v
	}
	return m.UpdateOrder(ctx, id, merged)
}

func (m *mockRepo) UpdateOrder(ctx context.Context, id int64, updates map[string]interface{}) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	for col, val := range updates {
		switch col {
		case "status":
			o.Status = val.(Status)
		case "payment_status":
			o.PaymentStatus = val.(PaymentStatus)
		case "payment_id":
			s := val.(string)
			o.PaymentID = &s
		case "paid_at":
			ts := val.(time.Time)
			o.PaidAt = &ts
		case "courier_name":
			s := val.(string)
			o.CourierName = &s
		case "tracking_id":
			s := val.(string)
			o.TrackingID = &s
		case "tracking_url":
			o.TrackingURL = val.(*string)
		case "expected_delivery_date":
			o.ExpectedDeliveryDate = val.(*time.Time)
		case "shipped_at":
			ts := val.(time.Time)
			o.ShippedAt = &ts
		case "delivered_at":
			ts := val.(time.Time)
			o.DeliveredAt = &ts
		case "final_invoice_pending":
			o.FinalInvoicePending = val.(bool)
		case "cod_state":
			o.CODState = cod.State(val.(string))
		case "cancelled_by":
			id := val.(int64)
			o.CancelledBy = &id
		case "cancelled_at":
			ts := val.(time.Time)
			o.CancelledAt = &ts
		case "cancellation_reason":
			s := val.(string)
			o.CancellationReason = &s
		}
	}
	o.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepo) DeleteInvoicesForOrder(ctx context.Context, orderID int64) (int64, error) {
	return 2, nil
}

func (m *mockRepo) DeleteItems(ctx context.Context, orderID int64) error {
	if o, ok := m.orders[orderID]; ok {
		o.Items = nil
	}
	return nil
}

func (m *mockRepo) DeleteOrder(ctx context.Context, orderID int64) error {
	if _, ok := m.orders[orderID]; !ok {
		return ErrNotFound
	}
	delete(m.orders, orderID)
	return nil
}

type fakeCatalog map[int64]products.Product

func (f fakeCatalog) GetMany(ctx context.Context, ids []int64) (map[int64]products.Product, error) {
	out := make(map[int64]products.Product)
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeIssuer struct {
	proformas []int64
	finals    []int64
	failFinal bool
}

func (f *fakeIssuer) IssueProforma(ctx context.Context, orderID, actorID int64) (string, error) {
	f.proformas = append(f.proformas, orderID)
	return fmt.Sprintf("PI-202608-%04d", len(f.proformas)), nil
}

func (f *fakeIssuer) EnsureFinal(ctx context.Context, orderID, actorID int64) (string, error) {
	if f.failFinal {
		return "", fmt.Errorf("invoice store down")
	}
	f.finals = append(f.finals, orderID)
	return fmt.Sprintf("INV-202608-%04d", len(f.finals)), nil
}

type fakeStock struct {
	appends []ledger.AppendInput
	refKeys map[string]bool
}

func newFakeStock() *fakeStock {
	return &fakeStock{refKeys: make(map[string]bool)}
}

func (f *fakeStock) Append(ctx context.Context, input ledger.AppendInput) (ledger.Entry, error) {
	if input.RefKey != "" && f.refKeys[input.RefKey] {
		return ledger.Entry{}, ledger.ErrDuplicateRef
	}
	if input.RefKey != "" {
		f.refKeys[input.RefKey] = true
	}
	f.appends = append(f.appends, input)
	return ledger.Entry{Delta: input.Delta}, nil
}

type finalizeCall struct {
	orderID int64
	actorID int64
}

type fakeEnqueuer struct {
	calls []finalizeCall
}

func (f *fakeEnqueuer) EnqueueFinalize(ctx context.Context, orderID, actorID int64) error {
	f.calls = append(f.calls, finalizeCall{orderID: orderID, actorID: actorID})
	return nil
}

type testHarness struct {
	repo     *mockRepo
	issuer   *fakeIssuer
	stock    *fakeStock
	enqueuer *fakeEnqueuer
	svc      *Service
}

func newHarness() *testHarness {
	repo := newMockRepo()
	issuer := &fakeIssuer{}
	stock := newFakeStock()
	enqueuer := &fakeEnqueuer{}
	catalog := fakeCatalog{
		1: {ID: 1, Name: "Basmati Rice 5kg", Price: 500, CostPrice: 400, IsActive: true},
		2: {ID: 2, Name: "Ghee 1l", Price: 700, CostPrice: 550, IsActive: true, GSTRatePercent: ptrFloat(5)},
		3: {ID: 3, Name: "Retired Item", Price: 100, IsActive: false},
	}
	svc := NewService(repo, ServiceConfig{
		Catalog:     catalog,
		Issuer:      issuer,
		Stock:       stock,
		Enqueuer:    enqueuer,
		SellerState: "Maharashtra",
	})
	return &testHarness{repo: repo, issuer: issuer, stock: stock, enqueuer: enqueuer, svc: svc}
}

func ptrFloat(v float64) *float64 { return &v }

var testActor = shared.Actor{ID: 2, Name: "back-office", Role: "admin"}

func baseCreateRequest() CreateRequest {
	return CreateRequest{
		CustomerName:   "Asha Traders",
		CustomerEmail:  "asha@example.com",
		ShipAddress:    "14 MG Road",
		ShipCity:       "Pune",
		ShipState:      "Maharashtra",
		ShipPincode:    "411001",
		PaymentMethod:  PaymentMethodOnline,
		ShippingAmount: 50,
		Items:          []CreateItemReq{{ProductID: 1, Quantity: 2}},
	}
}

func TestCreateSplitsGSTIntraState(t *testing.T) {
	h := newHarness()
	order, err := h.svc.Create(context.Background(), testActor, baseCreateRequest())
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, 1000.0, item.TaxableValue)
	assert.Equal(t, 18.0, item.GSTRatePercent)
	assert.Equal(t, 90.0, item.CGSTAmount)
	assert.Equal(t, 90.0, item.SGSTAmount)
	assert.Equal(t, 0.0, item.IGSTAmount)

	assert.Equal(t, 1000.0, order.Subtotal)
	assert.Equal(t, 180.0, order.TaxAmount)
	assert.Equal(t, 1230.0, order.TotalAmount)
	assert.Equal(t, StatusPending, order.Status)
	assert.Regexp(t, `^ORD-\d{6}-\d{4}$`, order.OrderNumber)
	assert.Equal(t, []int64{order.ID}, h.issuer.proformas)
}

func TestCreateChargesIGSTInterState(t *testing.T) {
	h := newHarness()
	req := baseCreateRequest()
	req.ShipState = "Karnataka"
	order, err := h.svc.Create(context.Background(), testActor, req)
	require.NoError(t, err)

	item := order.Items[0]
	assert.Equal(t, 0.0, item.CGSTAmount)
	assert.Equal(t, 0.0, item.SGSTAmount)
	assert.Equal(t, 180.0, item.IGSTAmount)
	assert.Equal(t, 180.0, order.TaxAmount)
}

func TestCreateUsesProductRateOverDefault(t *testing.T) {
	h := newHarness()
	req := baseCreateRequest()
	req.Items = []CreateItemReq{{ProductID: 2, Quantity: 1}}
	order, err := h.svc.Create(context.Background(), testActor, req)
	require.NoError(t, err)

	item := order.Items[0]
	assert.Equal(t, 5.0, item.GSTRatePercent)
	assert.Equal(t, 17.5, item.CGSTAmount)
	assert.Equal(t, 17.5, item.SGSTAmount)
}

func TestCreateCODConfirmsImmediately(t *testing.T) {
	h := newHarness()
	req := baseCreateRequest()
	req.PaymentMethod = PaymentMethodCOD
	order, err := h.svc.Create(context.Background(), testActor, req)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, order.Status)
	assert.Equal(t, "PENDING", string(order.CODState))
}

func TestCreateRejectsInactiveProduct(t *testing.T) {
	h := newHarness()
	req := baseCreateRequest()
	req.Items = []CreateItemReq{{ProductID: 3, Quantity: 1}}
	_, err := h.svc.Create(context.Background(), testActor, req)
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestCreateRequiresActor(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Create(context.Background(), shared.Actor{}, baseCreateRequest())
	assert.ErrorIs(t, err, shared.ErrActorRequired)
}

func shippingDetails() *ShippingDetails {
	return &ShippingDetails{CourierName: "Delhivery", TrackingID: "DL123"}
}

func (h *testHarness) createOrder(t *testing.T, method PaymentMethod) *Order {
	t.Helper()
	req := baseCreateRequest()
	req.PaymentMethod = method
	order, err := h.svc.Create(context.Background(), testActor, req)
	require.NoError(t, err)
	return order
}

func TestTransitionAllowsForwardSkips(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodCOD)

	// Confirmed straight to shipped, skipping packing and pickup.
	updated, err := h.svc.Transition(context.Background(), testActor, order.ID, TransitionRequest{
		Target:          StatusShipped,
		ShippingDetails: shippingDetails(),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)
	require.NotNil(t, updated.CourierName)
	assert.Equal(t, "Delhivery", *updated.CourierName)
	assert.NotNil(t, updated.ShippedAt)
}

func TestTransitionRejectsBackwards(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodCOD)

	_, err := h.svc.Transition(context.Background(), testActor, order.ID, TransitionRequest{
		Target:          StatusShipped,
		ShippingDetails: shippingDetails(),
	})
	require.NoError(t, err)

	_, err = h.svc.Transition(context.Background(), testActor, order.ID, TransitionRequest{Target: StatusPacking})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestTransitionShippedRequiresDetails(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodCOD)

	_, err := h.svc.Transition(context.Background(), testActor, order.ID, TransitionRequest{Target: StatusShipped})
	assert.ErrorIs(t, err, ErrShippingDetailsRequired)
}

func TestDeliveredDeductsStockAndIssuesFinalInvoice(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodCOD)

	updated, err := h.svc.Transition(context.Background(), testActor, order.ID, TransitionRequest{Target: StatusDelivered})
	require.NoError(t, err)

	assert.Equal(t, StatusDelivered, updated.Status)
	assert.False(t, updated.FinalInvoicePending)
	assert.Equal(t, []int64{order.ID}, h.issuer.finals)

	require.Len(t, h.stock.appends, 1)
	assert.Equal(t, ledger.ActionUse, h.stock.appends[0].Action)
	assert.Equal(t, -2.0, h.stock.appends[0].Delta)
	assert.Equal(t, fmt.Sprintf("order:%d:delivery:1", order.ID), h.stock.appends[0].RefKey)
	assert.Empty(t, h.enqueuer.calls)
}

func TestFinalizeRetryIsIdempotent(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodCOD)
	h.issuer.failFinal = true

	_, err := h.svc.Transition(context.Background(), testActor, order.ID, TransitionRequest{Target: StatusDelivered})
	require.NoError(t, err)

	// Invoice generation failed after the status commit: the retry marker
	// stays set and a retry was scheduled.
	stored, err := h.repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, stored.Status)
	assert.True(t, stored.FinalInvoicePending)
	// The retry carries the delivering actor so the deferred writes stay
	// attributed to them.
	assert.Equal(t, []finalizeCall{{orderID: order.ID, actorID: testActor.ID}}, h.enqueuer.calls)
	require.Len(t, h.stock.appends, 1)

	// The retry finishes the job without double-deducting stock.
	h.issuer.failFinal = false
	require.NoError(t, h.svc.FinalizeDelivered(context.Background(), order.ID, testActor.ID))

	stored, err = h.repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, stored.FinalInvoicePending)
	assert.Len(t, h.stock.appends, 1)
	assert.Equal(t, []int64{order.ID}, h.issuer.finals)

	// A redelivered task after success is a no-op.
	require.NoError(t, h.svc.FinalizeDelivered(context.Background(), order.ID, testActor.ID))
	assert.Len(t, h.issuer.finals, 1)
}

func TestCancelFromAnyNonTerminalStatus(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodOnline)

	cancelled, err := h.svc.Cancel(context.Background(), testActor, order.ID, CancelRequest{Reason: "customer changed mind"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "customer changed mind", *cancelled.CancellationReason)
}

func TestCancelRejectsDelivered(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodCOD)
	_, err := h.svc.Transition(context.Background(), testActor, order.ID, TransitionRequest{Target: StatusDelivered})
	require.NoError(t, err)

	_, err = h.svc.Cancel(context.Background(), testActor, order.ID, CancelRequest{Reason: "too late now"})
	assert.ErrorIs(t, err, ErrCannotCancel)
}

func TestConfirmPaymentMarksPaidAndConfirms(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodOnline)

	paid, err := h.svc.ConfirmPayment(context.Background(), PaymentConfirmation{
		OrderID:   order.ID,
		PaymentID: "pay_123",
		Amount:    order.TotalAmount,
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, StatusConfirmed, paid.Status)
	require.NotNil(t, paid.PaidAt)
}

func TestConfirmPaymentReplaySameIDIsNoop(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodOnline)

	conf := PaymentConfirmation{OrderID: order.ID, PaymentID: "pay_123", Amount: order.TotalAmount}
	_, err := h.svc.ConfirmPayment(context.Background(), conf)
	require.NoError(t, err)

	replayed, err := h.svc.ConfirmPayment(context.Background(), conf)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, replayed.PaymentStatus)
}

func TestConfirmPaymentRejectsSecondPaymentID(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodOnline)

	_, err := h.svc.ConfirmPayment(context.Background(), PaymentConfirmation{
		OrderID: order.ID, PaymentID: "pay_123", Amount: order.TotalAmount,
	})
	require.NoError(t, err)

	_, err = h.svc.ConfirmPayment(context.Background(), PaymentConfirmation{
		OrderID: order.ID, PaymentID: "pay_456", Amount: order.TotalAmount,
	})
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestConfirmPaymentRejectsCODOrder(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodCOD)

	_, err := h.svc.ConfirmPayment(context.Background(), PaymentConfirmation{
		OrderID: order.ID, PaymentID: "pay_123", Amount: order.TotalAmount,
	})
	assert.ErrorIs(t, err, ErrNotOnlineOrder)

	// The stray confirmation must leave the order untouched.
	stored, err := h.repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, stored.PaymentStatus)
	assert.Nil(t, stored.PaymentID)
	assert.Equal(t, "PENDING", string(stored.CODState))
}

func TestConfirmPaymentRejectsAmountMismatch(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodOnline)

	_, err := h.svc.ConfirmPayment(context.Background(), PaymentConfirmation{
		OrderID: order.ID, PaymentID: "pay_123", Amount: order.TotalAmount - 10,
	})
	assert.ErrorIs(t, err, ErrPaymentAmountMismatch)
}

func TestDeleteRemovesOrder(t *testing.T) {
	h := newHarness()
	order := h.createOrder(t, PaymentMethodOnline)

	require.NoError(t, h.svc.Delete(context.Background(), testActor, order.ID))
	_, err := h.svc.Get(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
