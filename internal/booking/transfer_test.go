package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/ticketing/internal/credential"
	"github.com/attendly/ticketing/internal/model"
)

// confirmedBooking creates a booking and drives it to CONFIRMED through
// the reconciler, returning its tickets.
func confirmedBooking(t *testing.T, f *fixture, buyerID string, items []ItemRequest, group bool) (*model.Booking, []*model.Ticket) {
	t.Helper()
	res, err := f.orch.Create(context.Background(), CreateRequest{
		BuyerID:     buyerID,
		EventID:     testEventID,
		Items:       items,
		GroupTicket: group,
	})
	require.NoError(t, err)

	rec := NewReconciler(f.ledger, f.store, f.tickets, f.gateway, f.dir, f.dir, f.notifier)
	require.NoError(t, rec.Apply(context.Background(), paidResult(res.Booking)))

	b, err := f.store.GetByID(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	require.Equal(t, model.BookingConfirmed, b.Status)
	tickets, err := f.tickets.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	return b, tickets
}

func TestTransferRotatesCredential(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	_, tickets := confirmedBooking(t, f, "usr-1",
		[]ItemRequest{{CategoryID: "cat-a", Quantity: 1}}, false)
	tk := tickets[0]
	oldSecret := tk.CredentialSecret
	oldEncoded := tk.EncodedCredential

	moved, err := f.orch.Transfer(context.Background(), tk.ID, "usr-1", "usr-2")
	require.NoError(t, err)

	assert.Equal(t, "usr-2", moved.OwnerID)
	assert.NotEqual(t, oldSecret, moved.CredentialSecret)
	assert.NotEqual(t, oldEncoded, moved.EncodedCredential)
	require.Len(t, moved.Transfers, 1)
	assert.Equal(t, "usr-1", moved.Transfers[0].FromUserID)
	assert.Equal(t, "usr-2", moved.Transfers[0].ToUserID)

	// The pre-transfer credential no longer verifies.
	p, err := credential.Decode(oldEncoded)
	require.NoError(t, err)
	assert.ErrorIs(t, credential.Verify(moved.CredentialSecret, p.Secret), credential.ErrMismatch)

	// The new one carries the new owner and verifies.
	np, err := credential.Decode(moved.EncodedCredential)
	require.NoError(t, err)
	assert.NoError(t, credential.Verify(moved.CredentialSecret, np.Secret))
}

func TestTransferRequiresOwnership(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	_, tickets := confirmedBooking(t, f, "usr-1",
		[]ItemRequest{{CategoryID: "cat-a", Quantity: 1}}, false)

	_, err := f.orch.Transfer(context.Background(), tickets[0].ID, "usr-3", "usr-2")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransferRejectsNonActiveTickets(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))

	// Pending ticket: booking created but payment not settled.
	res, err := f.orch.Create(context.Background(), CreateRequest{
		BuyerID: "usr-1",
		EventID: testEventID,
		Items:   []ItemRequest{{CategoryID: "cat-a", Quantity: 1}},
	})
	require.NoError(t, err)
	tickets, err := f.tickets.ListByBooking(context.Background(), res.Booking.ID)
	require.NoError(t, err)

	_, err = f.orch.Transfer(context.Background(), tickets[0].ID, "usr-1", "usr-2")
	assert.ErrorIs(t, err, ErrNotTransferable)
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(testCategory("cat-a", "45.00", 100))
	_, tickets := confirmedBooking(t, f, "usr-1",
		[]ItemRequest{{CategoryID: "cat-a", Quantity: 1}}, false)

	_, err := f.orch.Transfer(context.Background(), tickets[0].ID, "usr-1", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orch.Transfer(context.Background(), tickets[0].ID, "usr-1", "usr-1")
	assert.ErrorIs(t, err, ErrValidation)
}
