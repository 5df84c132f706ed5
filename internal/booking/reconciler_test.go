package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/payment"
)

func paidResult(b *model.Booking) payment.Result {
	return payment.Result{
		TransactionID: "txn-" + b.ID,
		Status:        payment.StatusPaid,
		Amount:        b.TotalAmount,
	}
}

func awaitingBooking(t *testing.T, f *fixture, qty int) *model.Booking {
	t.Helper()
	res, err := f.orch.Create(context.Background(), CreateRequest{
		BuyerID: "usr-1",
		EventID: testEventID,
		Items:   []ItemRequest{{CategoryID: "cat-a", Quantity: qty}},
	})
	require.NoError(t, err)
	require.Equal(t, model.BookingAwaitingPayment, res.Booking.Status)
	return res.Booking
}

func newReconciler(f *fixture) *Reconciler {
	return NewReconciler(f.ledger, f.store, f.tickets, f.gateway, f.dir, f.dir, f.notifier)
}

func TestApplyPaidConfirmsAndActivates(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 2)
	rec := newReconciler(f)

	require.NoError(t, rec.Apply(context.Background(), paidResult(b)))

	got, err := f.store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, payment.StatusPaid, got.Payment.Status)

	tickets, err := f.tickets.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, model.TicketActive, tk.Status)
	}

	// Inventory stays reserved for confirmed bookings.
	assert.Equal(t, 2, f.ledger.reservedOf("cat-a"))

	require.Len(t, f.notifier.confirmed, 1)
	ev := f.notifier.confirmed[0]
	assert.Equal(t, b.ID, ev.BookingID)
	assert.Equal(t, "jo@example.com", ev.BuyerContact)
	assert.Equal(t, "Autumn Open Air", ev.EventName)
	assert.Len(t, ev.TicketNumbers, 2)
}

func TestApplyPaidIsIdempotent(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 1)
	rec := newReconciler(f)

	require.NoError(t, rec.Apply(context.Background(), paidResult(b)))
	require.NoError(t, rec.Apply(context.Background(), paidResult(b)))
	require.NoError(t, rec.Apply(context.Background(), paidResult(b)))

	got, err := f.store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	// Side effects ran exactly once.
	assert.Len(t, f.notifier.confirmed, 1)
	assert.Equal(t, 1, f.ledger.reservedOf("cat-a"))
}

func TestApplyFailedKeepsBookingAndInventory(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 3)
	rec := newReconciler(f)

	res := paidResult(b)
	res.Status = payment.StatusFailed
	require.NoError(t, rec.Apply(context.Background(), res))

	// A failed attempt may be retried; only the sweep releases units.
	got, err := f.store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingAwaitingPayment, got.Status)
	assert.Equal(t, payment.StatusFailed, got.Payment.Status)
	assert.Equal(t, 3, f.ledger.reservedOf("cat-a"))

	tickets, err := f.tickets.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, model.TicketPending, tk.Status)
	}
	assert.Empty(t, f.notifier.cancelled)
}

func TestApplyPaidAfterFailedAttemptStillConfirms(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 1)
	rec := newReconciler(f)

	failed := paidResult(b)
	failed.Status = payment.StatusFailed
	require.NoError(t, rec.Apply(context.Background(), failed))
	require.NoError(t, rec.Apply(context.Background(), paidResult(b)))

	got, err := f.store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, 1, f.ledger.reservedOf("cat-a"))
}

func TestApplyFailedAfterPaidIsNoOp(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 1)
	rec := newReconciler(f)

	require.NoError(t, rec.Apply(context.Background(), paidResult(b)))

	late := paidResult(b)
	late.Status = payment.StatusFailed
	require.NoError(t, rec.Apply(context.Background(), late))

	got, err := f.store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, 1, f.ledger.reservedOf("cat-a"))
}

func TestApplyPendingLeavesBookingAlone(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 1)
	rec := newReconciler(f)

	res := paidResult(b)
	res.Status = payment.StatusPending
	require.NoError(t, rec.Apply(context.Background(), res))

	got, err := f.store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingAwaitingPayment, got.Status)
}

func TestApplyUnknownTransaction(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	rec := newReconciler(f)

	err := rec.Apply(context.Background(), payment.Result{
		TransactionID: "txn-ghost",
		Status:        payment.StatusPaid,
	})
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}

func TestSyncPullsGatewayState(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 1)
	rec := newReconciler(f)

	f.gateway.mu.Lock()
	f.gateway.queryResults["txn-"+b.ID] = &payment.Result{
		TransactionID: "txn-" + b.ID,
		Status:        payment.StatusPaid,
	}
	f.gateway.mu.Unlock()

	got, err := rec.Sync(context.Background(), b.ID, "usr-1", false)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
}

func TestSyncEnforcesOwnership(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	b := awaitingBooking(t, f, 1)
	rec := newReconciler(f)

	_, err := rec.Sync(context.Background(), b.ID, "usr-9", false)
	assert.ErrorIs(t, err, ErrForbidden)
}
