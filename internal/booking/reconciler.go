package booking

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/attendly/ticketing/internal/directory"
	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/monitoring"
	"github.com/attendly/ticketing/internal/notify"
	"github.com/attendly/ticketing/internal/payment"
	"github.com/attendly/ticketing/internal/repository"
)

// Reconciler applies gateway payment results to bookings.  Results
// arrive from three directions with no ordering guarantee: provider
// callbacks, buyer-triggered sync calls and the expiry sweep.  Applying
// the same result twice is a no-op; the booking status CAS decides
// which caller actually performs the transition.
type Reconciler struct {
	ledger   Ledger
	store    Store
	tickets  TicketStore
	gateway  payment.Gateway
	events   directory.EventDirectory
	identity directory.Identity
	notifier Notifier
	now      func() time.Time
}

// NewReconciler wires a Reconciler.
func NewReconciler(ledger Ledger, store Store, tickets TicketStore, gw payment.Gateway, events directory.EventDirectory, id directory.Identity, n Notifier) *Reconciler {
	return &Reconciler{
		ledger:   ledger,
		store:    store,
		tickets:  tickets,
		gateway:  gw,
		events:   events,
		identity: id,
		notifier: n,
		now:      time.Now,
	}
}

// Apply folds one gateway result into the booking it references.
// Unknown transactions are an error; results for bookings already in a
// terminal state return nil without touching anything.
func (r *Reconciler) Apply(ctx context.Context, res payment.Result) error {
	b, err := r.store.GetByTransactionID(ctx, res.TransactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownTransaction
		}
		return err
	}
	if model.BookingTerminal(b.Status) {
		return nil
	}

	switch res.Status {
	case payment.StatusPaid:
		return r.confirm(ctx, b, res)
	case payment.StatusFailed:
		return r.fail(ctx, b, res)
	case payment.StatusPending:
		return nil
	default:
		log.Printf("reconciler: ignoring unexpected status %q for transaction %s", res.Status, res.TransactionID)
		return nil
	}
}

// confirm settles a paid booking: flip the status, activate tickets,
// emit the confirmation.  Only the CAS winner runs the side effects.
func (r *Reconciler) confirm(ctx context.Context, b *model.Booking, res payment.Result) error {
	won, err := r.store.ConfirmPayment(ctx, b.ID, payment.StatusPaid)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	if err := r.tickets.ActivateByBooking(ctx, b.ID); err != nil {
		return err
	}
	monitoring.BookingsConfirmed.Inc()

	if r.notifier != nil {
		ev := notify.BookingConfirmedEvent{
			BookingID:   b.ID,
			BuyerID:     b.BuyerID,
			EventID:     b.EventID,
			TotalAmount: b.TotalAmount,
			Currency:    b.Currency,
			ConfirmedAt: r.now().UTC().Format(time.RFC3339),
		}
		// Enrich best effort; the event is useful without either lookup.
		if r.identity != nil {
			if buyer, err := r.identity.GetBuyer(ctx, b.BuyerID); err == nil {
				ev.BuyerContact = buyer.Contact
			}
		}
		if r.events != nil {
			if info, err := r.events.GetEvent(ctx, b.EventID); err == nil {
				ev.EventName = info.Name
			}
		}
		if tickets, err := r.tickets.ListByBooking(ctx, b.ID); err == nil {
			for _, t := range tickets {
				ev.TicketNumbers = append(ev.TicketNumbers, t.Number)
			}
		}
		if err := r.notifier.BookingConfirmed(ctx, ev); err != nil {
			log.Printf("reconciler: publish confirmation for %s: %v", b.ID, err)
		}
	}
	return nil
}

// fail records a failed gateway attempt.  The booking stays awaiting
// payment with its inventory held: a failed attempt may be followed by
// a retried, ultimately successful one, and releasing units here would
// let them be resold underneath that payment.  Abandoned bookings are
// handed back by the expiry sweep.
func (r *Reconciler) fail(ctx context.Context, b *model.Booking, res payment.Result) error {
	if err := r.store.SetPaymentStatus(ctx, b.ID, payment.StatusFailed); err != nil {
		return err
	}
	log.Printf("reconciler: payment attempt failed for booking %s (transaction %s)", b.ID, res.TransactionID)
	return nil
}

// Sync pulls the authoritative transaction state from the gateway and
// applies it.  Used by the buyer-facing sync endpoint when a callback
// went missing.
func (r *Reconciler) Sync(ctx context.Context, bookingID, requesterID string, admin bool) (*model.Booking, error) {
	b, err := r.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !admin && b.BuyerID != requesterID {
		return nil, ErrForbidden
	}
	if model.BookingTerminal(b.Status) || b.Payment.TransactionID == "" {
		return b, nil
	}
	res, err := r.gateway.QueryStatus(ctx, b.Payment.TransactionID)
	if err != nil {
		return nil, err
	}
	if err := r.Apply(ctx, *res); err != nil {
		return nil, err
	}
	return r.store.GetByID(ctx, bookingID)
}
