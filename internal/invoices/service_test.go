package invoices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirana-commerce/kirana-commerce/internal/shared"
)

type mockRepo struct {
	invoices map[int64]*Invoice
	nextID   int64
	seq      map[InvoiceType]int64

	// duplicateFinalOnce makes the next final Insert fail the way the
	// one-final-per-order index would, simulating a lost race.
	duplicateFinalOnce *Invoice
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		invoices: make(map[int64]*Invoice),
		seq:      make(map[InvoiceType]int64),
	}
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func copyInvoice(inv *Invoice) *Invoice {
	clone := *inv
	clone.Lines = append([]Line(nil), inv.Lines...)
	return &clone
}

func (m *mockRepo) GetByID(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInvoice(inv), nil
}

func (m *mockRepo) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.InvoiceNumber == number {
			return copyInvoice(inv), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) FindFinalForOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.InvoiceType == TypeFinal && !inv.Voided &&
			inv.OrderID != nil && *inv.OrderID == orderID {
			return copyInvoice(inv), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(ctx context.Context, req ListRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if req.InvoiceType != nil && inv.InvoiceType != *req.InvoiceType {
			continue
		}
		out = append(out, *copyInvoice(inv))
	}
	return out, len(out), nil
}

func (m *mockRepo) GenerateNumber(ctx context.Context, invoiceType InvoiceType, at time.Time) (string, error) {
	prefix := "PI"
	if invoiceType == TypeFinal {
		prefix = "INV"
	}
	m.seq[invoiceType]++
	return fmt.Sprintf("%s-%s-%04d", prefix, at.Format("200601"), m.seq[invoiceType]), nil
}

func (m *mockRepo) Insert(ctx context.Context, inv Invoice) (int64, error) {
	if inv.InvoiceType == TypeFinal {
		if winner := m.duplicateFinalOnce; winner != nil {
			m.duplicateFinalOnce = nil
			m.nextID++
			winner.ID = m.nextID
			m.invoices[winner.ID] = winner
			return 0, ErrDuplicateFinal
		}
		if existing, err := m.FindFinalForOrder(ctx, *inv.OrderID); err == nil && existing != nil {
			return 0, ErrDuplicateFinal
		}
	}
	m.nextID++
	inv.ID = m.nextID
	inv.IssuedAt = time.Now()
	m.invoices[inv.ID] = copyInvoice(&inv)
	return inv.ID, nil
}

func (m *mockRepo) MarkVoided(ctx context.Context, id, actorID int64, reason string) error {
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	if inv.Voided {
		return ErrAlreadyVoided
	}
	now := time.Now()
	inv.Voided = true
	inv.VoidedBy = &actorID
	inv.VoidedAt = &now
	inv.VoidReason = &reason
	return nil
}

type fakeOrders map[int64]*OrderInfo

func (f fakeOrders) OrderInfo(ctx context.Context, orderID int64) (*OrderInfo, error) {
	info, ok := f[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	clone := *info
	return &clone, nil
}

var testActor = shared.Actor{ID: 2, Name: "back-office"}

func deliveredOrder(id int64) *OrderInfo {
	deliveredAt := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	return &OrderInfo{
		ID:            id,
		OrderNumber:   fmt.Sprintf("ORD-202608-%04d", id),
		CustomerName:  "Asha Traders",
		CustomerEmail: "asha@example.com",
		ShipAddress:   "14 MG Road",
		ShipCity:      "Pune",
		ShipState:     "Maharashtra",
		ShipPincode:   "411001",
		Delivered:     true,
		DeliveredAt:   &deliveredAt,
		Lines: []OrderLine{
			{Description: "Basmati Rice 5kg", Quantity: 2, UnitPrice: 500, GSTRatePercent: 18},
		},
	}
}

func newTestService(repo *mockRepo, orders fakeOrders) *Service {
	return NewService(repo, ServiceConfig{Orders: orders, SellerState: "Maharashtra"})
}

func TestIssueProformaComputesTotals(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{1: deliveredOrder(1)})

	number, err := svc.IssueProforma(context.Background(), 1, testActor.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^PI-\d{6}-\d{4}$`, number)

	inv, err := svc.GetByNumber(context.Background(), number)
	require.NoError(t, err)
	assert.Equal(t, TypeProforma, inv.InvoiceType)
	assert.Equal(t, 1000.0, inv.Subtotal)
	assert.Equal(t, 90.0, inv.CGSTTotal)
	assert.Equal(t, 90.0, inv.SGSTTotal)
	assert.Equal(t, 0.0, inv.IGSTTotal)
	assert.Equal(t, 1180.0, inv.GrandTotal)
	assert.False(t, inv.InterState)
	assert.Equal(t, "14 MG Road, Pune, Maharashtra, 411001", inv.BuyerAddress)
}

func TestIssueProformaAllowsMultiplePerOrder(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{1: deliveredOrder(1)})
	ctx := context.Background()

	first, err := svc.IssueProforma(ctx, 1, testActor.ID)
	require.NoError(t, err)
	second, err := svc.IssueProforma(ctx, 1, testActor.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEnsureFinalIsIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{1: deliveredOrder(1)})
	ctx := context.Background()

	first, err := svc.EnsureFinal(ctx, 1, testActor.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^INV-\d{6}-\d{4}$`, first)

	second, err := svc.EnsureFinal(ctx, 1, testActor.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	finalType := TypeFinal
	list, total, err := repo.List(ctx, ListRequest{InvoiceType: &finalType})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

func TestEnsureFinalAdoptsConcurrentWinner(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{1: deliveredOrder(1)})

	// Another process inserts its final invoice between this caller's
	// existence check and its own insert.
	orderID := int64(1)
	repo.duplicateFinalOnce = &Invoice{
		InvoiceNumber: "INV-202608-0042",
		InvoiceType:   TypeFinal,
		OrderID:       &orderID,
		BuyerName:     "Asha Traders",
	}

	number, err := svc.EnsureFinal(context.Background(), 1, testActor.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-202608-0042", number)
}

func TestEnsureFinalRejectsUndeliveredOrder(t *testing.T) {
	repo := newMockRepo()
	info := deliveredOrder(1)
	info.Delivered = false
	svc := newTestService(repo, fakeOrders{1: info})

	_, err := svc.EnsureFinal(context.Background(), 1, testActor.ID)
	assert.ErrorIs(t, err, ErrNotDelivered)
}

func TestEnsureFinalUnknownOrder(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{})

	_, err := svc.EnsureFinal(context.Background(), 404, testActor.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFinalInvoiceChargesIGSTInterState(t *testing.T) {
	repo := newMockRepo()
	info := deliveredOrder(1)
	info.ShipState = "Karnataka"
	svc := newTestService(repo, fakeOrders{1: info})

	number, err := svc.EnsureFinal(context.Background(), 1, testActor.ID)
	require.NoError(t, err)

	inv, err := svc.GetByNumber(context.Background(), number)
	require.NoError(t, err)
	assert.True(t, inv.InterState)
	assert.Equal(t, 0.0, inv.CGSTTotal)
	assert.Equal(t, 0.0, inv.SGSTTotal)
	assert.Equal(t, 180.0, inv.IGSTTotal)
}

func TestFinalInvoiceCarriesDeliveryDate(t *testing.T) {
	repo := newMockRepo()
	info := deliveredOrder(1)
	svc := newTestService(repo, fakeOrders{1: info})
	ctx := context.Background()

	proformaNumber, err := svc.IssueProforma(ctx, 1, testActor.ID)
	require.NoError(t, err)
	proforma, err := svc.GetByNumber(ctx, proformaNumber)
	require.NoError(t, err)
	assert.Nil(t, proforma.DeliveryDate)

	// The final invoice dates the supply even when cut days after delivery.
	finalNumber, err := svc.EnsureFinal(ctx, 1, testActor.ID)
	require.NoError(t, err)
	final, err := svc.GetByNumber(ctx, finalNumber)
	require.NoError(t, err)
	require.NotNil(t, final.DeliveryDate)
	assert.True(t, final.DeliveryDate.Equal(*info.DeliveredAt))
}

func TestManualProformaUsesDefaultRate(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{})

	inv, err := svc.CreateManualProforma(context.Background(), testActor, ManualProformaRequest{
		BuyerName:    "Walk-in Wholesale",
		BuyerAddress: "2 FC Road, Pune",
		BuyerState:   "Maharashtra",
		Lines: []ManualLineRequest{
			{Description: "Catering pack", Quantity: 1, UnitPrice: 2000},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, inv.OrderID)
	assert.Equal(t, 18.0, inv.Lines[0].GSTRatePercent)
	assert.Equal(t, 2360.0, inv.GrandTotal)
}

func TestManualProformaRequiresLines(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{})

	_, err := svc.CreateManualProforma(context.Background(), testActor, ManualProformaRequest{
		BuyerName:    "Walk-in Wholesale",
		BuyerAddress: "2 FC Road, Pune",
		BuyerState:   "Maharashtra",
	})
	assert.ErrorIs(t, err, ErrEmptyLines)
}

func TestVoidReopensFinalSlot(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{1: deliveredOrder(1)})
	ctx := context.Background()

	first, err := svc.EnsureFinal(ctx, 1, testActor.ID)
	require.NoError(t, err)
	inv, err := svc.GetByNumber(ctx, first)
	require.NoError(t, err)

	voided, err := svc.Void(ctx, testActor, inv.ID, VoidRequest{Reason: "wrong buyer GSTIN"})
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	require.NotNil(t, voided.VoidReason)
	assert.Equal(t, "wrong buyer GSTIN", *voided.VoidReason)

	// With the first document voided a corrected final can be issued.
	second, err := svc.EnsureFinal(ctx, 1, testActor.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVoidTwiceRejected(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, fakeOrders{1: deliveredOrder(1)})
	ctx := context.Background()

	number, err := svc.IssueProforma(ctx, 1, testActor.ID)
	require.NoError(t, err)
	inv, err := svc.GetByNumber(ctx, number)
	require.NoError(t, err)

	_, err = svc.Void(ctx, testActor, inv.ID, VoidRequest{Reason: "duplicate issue"})
	require.NoError(t, err)
	_, err = svc.Void(ctx, testActor, inv.ID, VoidRequest{Reason: "duplicate issue"})
	assert.ErrorIs(t, err, ErrAlreadyVoided)
}
