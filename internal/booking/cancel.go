package booking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/ticketing/internal/directory"
	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/monitoring"
	"github.com/attendly/ticketing/internal/notify"
	"github.com/attendly/ticketing/internal/payment"
)

// RefundPolicy holds the cancellation rules.  Leads are measured from
// the cancellation instant to the event start.
type RefundPolicy struct {
	// FullRefundLead grants a 100% refund at or beyond this lead.
	FullRefundLead time.Duration
	// HalfRefundLead grants a 50% refund at or beyond this lead.
	HalfRefundLead time.Duration
	// BlackoutLead refuses buyer cancellation inside this lead.
	// Administrative cancellation ignores it.
	BlackoutLead time.Duration
}

// DefaultRefundPolicy mirrors the published terms: full refund three
// days out, half refund two days out, nothing after, and no buyer
// cancellation in the final day.
var DefaultRefundPolicy = RefundPolicy{
	FullRefundLead: 72 * time.Hour,
	HalfRefundLead: 48 * time.Hour,
	BlackoutLead:   24 * time.Hour,
}

// RefundFraction returns the refundable share for a cancellation at the
// given lead before the event.
func (p RefundPolicy) RefundFraction(lead time.Duration) decimal.Decimal {
	switch {
	case lead >= p.FullRefundLead:
		return decimal.NewFromInt(1)
	case lead >= p.HalfRefundLead:
		return decimal.RequireFromString("0.5")
	default:
		return decimal.Zero
	}
}

// Canceller tears bookings down: buyer and admin cancellation with
// tiered refunds, and expiry of bookings whose payment never settled.
type Canceller struct {
	ledger   Ledger
	store    Store
	tickets  TicketStore
	gateway  payment.Gateway
	events   directory.EventDirectory
	notifier Notifier
	policy   RefundPolicy

	paymentTimeout time.Duration
	reconciler     *Reconciler
	now            func() time.Time
}

// NewCanceller wires a Canceller.  The reconciler is consulted by the
// expiry sweep so a booking that actually got paid while we weren't
// looking confirms instead of expiring.
func NewCanceller(ledger Ledger, store Store, tickets TicketStore, gw payment.Gateway, events directory.EventDirectory, n Notifier, policy RefundPolicy, paymentTimeout time.Duration, rec *Reconciler) *Canceller {
	return &Canceller{
		ledger:         ledger,
		store:          store,
		tickets:        tickets,
		gateway:        gw,
		events:         events,
		notifier:       n,
		policy:         policy,
		paymentTimeout: paymentTimeout,
		reconciler:     rec,
		now:            time.Now,
	}
}

// Cancel cancels a booking on behalf of its owner or an administrator.
// Confirmed bookings are refunded according to the policy; bookings
// still awaiting payment release their inventory and refund nothing.
// The cancel CAS is pinned to the status each attempt observed, so a
// booking that confirms between the read and the write is re-read and
// judged by the Confirmed rules (blackout, refund tier) instead of
// being cancelled for free.
func (c *Canceller) Cancel(ctx context.Context, bookingID, requesterID, reason string, admin bool) (*model.Booking, error) {
	var b *model.Booking
	var refund decimal.Decimal

	const attempts = 3
	won := false
	for i := 0; i < attempts && !won; i++ {
		var err error
		b, err = c.store.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if !admin && b.BuyerID != requesterID {
			return nil, ErrForbidden
		}
		if b.Status == model.BookingCancelled || b.Status == model.BookingRefunded {
			return nil, ErrNotCancellable
		}

		tickets, err := c.tickets.ListByBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		for _, t := range tickets {
			if t.Status == model.TicketUsed {
				return nil, fmt.Errorf("%w: ticket %s already used", ErrNotCancellable, t.Number)
			}
		}

		now := c.now().UTC()
		refund = decimal.Zero
		if b.Status == model.BookingConfirmed {
			ev, err := c.events.GetEvent(ctx, b.EventID)
			if err != nil {
				return nil, err
			}
			lead := ev.StartsAt.Sub(now)
			if !admin && lead < c.policy.BlackoutLead {
				return nil, ErrBlackout
			}
			refund = b.TotalAmount.Mul(c.policy.RefundFraction(lead)).Round(2)
		}

		if reason == "" {
			reason = "cancelled by buyer"
			if admin {
				reason = "cancelled by administrator"
			}
		}
		won, err = c.store.MarkCancelled(ctx, bookingID, b.Status, reason, now)
		if err != nil {
			return nil, err
		}
	}
	if !won {
		return nil, ErrNotCancellable
	}
	if err := c.tickets.VoidByBooking(ctx, bookingID, model.TicketCancelled); err != nil {
		return nil, err
	}
	for _, li := range b.LineItems {
		if err := c.ledger.Release(ctx, li.CategoryID, li.Quantity); err != nil {
			log.Printf("cancel: release %d units of %s: %v", li.Quantity, li.CategoryID, err)
		}
	}
	monitoring.BookingsCancelled.WithLabelValues(cancelMetricReason(admin)).Inc()

	if refund.IsPositive() && b.Payment.TransactionID != "" {
		if _, err := c.gateway.Refund(ctx, b.Payment.TransactionID, refund); err != nil {
			// The cancellation itself stands; the refund is retried by
			// support tooling against the recorded cancel.
			log.Printf("cancel: refund %s on %s failed: %v", refund.StringFixed(2), bookingID, err)
		} else {
			if err := c.store.MarkRefunded(ctx, bookingID, refund, c.now().UTC()); err != nil {
				log.Printf("cancel: record refund on %s: %v", bookingID, err)
			}
			monitoring.RefundsIssued.Inc()
		}
	}

	c.publishCancelled(ctx, b, reason, refund)
	return c.store.GetByID(ctx, bookingID)
}

func cancelMetricReason(admin bool) string {
	if admin {
		return "admin"
	}
	return "buyer"
}

// ExpireStale cancels bookings stuck in AWAITING_PAYMENT past the
// payment timeout.  Each candidate is first synced against the gateway;
// a payment that settled while the callback was lost confirms instead.
// Returns the number of bookings expired.
func (c *Canceller) ExpireStale(ctx context.Context) (int, error) {
	cutoff := c.now().UTC().Add(-c.paymentTimeout)
	ids, err := c.store.ListAwaitingPaymentBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		b, err := c.store.GetByID(ctx, id)
		if err != nil {
			log.Printf("sweep: load booking %s: %v", id, err)
			continue
		}
		if b.Payment.TransactionID != "" && c.reconciler != nil {
			if res, err := c.gateway.QueryStatus(ctx, b.Payment.TransactionID); err == nil {
				if err := c.reconciler.Apply(ctx, *res); err != nil {
					log.Printf("sweep: apply gateway state for %s: %v", id, err)
				}
				if res.Status == payment.StatusPaid {
					continue
				}
			}
		}

		won, err := c.store.MarkExpired(ctx, id, "payment window expired", c.now().UTC())
		if err != nil {
			log.Printf("sweep: expire booking %s: %v", id, err)
			continue
		}
		if !won {
			continue
		}
		if err := c.tickets.VoidByBooking(ctx, id, model.TicketExpired); err != nil {
			log.Printf("sweep: void tickets of %s: %v", id, err)
		}
		for _, li := range b.LineItems {
			if err := c.ledger.Release(ctx, li.CategoryID, li.Quantity); err != nil {
				log.Printf("sweep: release %d units of %s: %v", li.Quantity, li.CategoryID, err)
			}
		}
		monitoring.BookingsCancelled.WithLabelValues("expired").Inc()
		c.publishCancelled(ctx, b, "payment window expired", decimal.Zero)
		expired++
	}
	return expired, nil
}

// RunSweep runs ExpireStale on the given interval until ctx is done.
func (c *Canceller) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.ExpireStale(ctx); err != nil {
				log.Printf("sweep: %v", err)
			} else if n > 0 {
				log.Printf("sweep: expired %d stale bookings", n)
			}
		}
	}
}

func (c *Canceller) publishCancelled(ctx context.Context, b *model.Booking, reason string, refund decimal.Decimal) {
	if c.notifier == nil {
		return
	}
	ev := notify.BookingCancelledEvent{
		BookingID:    b.ID,
		BuyerID:      b.BuyerID,
		EventID:      b.EventID,
		Reason:       reason,
		RefundAmount: refund,
		Currency:     b.Currency,
		CancelledAt:  c.now().UTC().Format(time.RFC3339),
	}
	if err := c.notifier.BookingCancelled(ctx, ev); err != nil {
		log.Printf("cancel: publish cancellation for %s: %v", b.ID, err)
	}
}
