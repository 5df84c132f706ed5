package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attendly/ticketing/internal/credential"
	"github.com/attendly/ticketing/internal/directory"
	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/monitoring"
	"github.com/attendly/ticketing/internal/notify"
	"github.com/attendly/ticketing/internal/payment"
	"github.com/attendly/ticketing/internal/repository"
)

// ItemRequest is one (category, quantity) pair in a purchase request.
type ItemRequest struct {
	CategoryID string `json:"category_id"`
	Quantity   int    `json:"quantity"`
}

// CreateRequest describes a purchase.  GroupTicket collapses the whole
// booking into a single credential admitting everyone at once.
type CreateRequest struct {
	BuyerID     string        `json:"-"`
	EventID     string        `json:"event_id"`
	Items       []ItemRequest `json:"items"`
	GroupTicket bool          `json:"group_ticket"`
}

// CreateResult is the orchestrator's answer: the stored booking plus,
// for paid bookings, the gateway URL where the buyer completes payment.
type CreateResult struct {
	Booking    *model.Booking `json:"booking"`
	PaymentURL string         `json:"payment_url,omitempty"`
}

// Orchestrator drives the purchase flow: validate, reserve inventory,
// persist booking and tickets, initiate payment.  Inventory is reserved
// before the booking row exists, so every failure after a successful
// reservation runs the compensating release.
type Orchestrator struct {
	ledger   Ledger
	store    Store
	tickets  TicketStore
	gateway  payment.Gateway
	events   directory.EventDirectory
	notifier Notifier
	now      func() time.Time
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(ledger Ledger, store Store, tickets TicketStore, gw payment.Gateway, events directory.EventDirectory, n Notifier) *Orchestrator {
	return &Orchestrator{
		ledger:   ledger,
		store:    store,
		tickets:  tickets,
		gateway:  gw,
		events:   events,
		notifier: n,
		now:      time.Now,
	}
}

// ticketNumber generates a human-readable ticket number.
func ticketNumber() string {
	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	return "TKT-" + strings.ToUpper(hex.EncodeToString(buf))
}

// Create runs one purchase attempt end to end.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.BuyerID == "" || req.EventID == "" || len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: buyer, event and at least one item are required", ErrValidation)
	}
	seen := make(map[string]bool, len(req.Items))
	for _, it := range req.Items {
		if it.CategoryID == "" || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: each item needs a category and a positive quantity", ErrValidation)
		}
		if seen[it.CategoryID] {
			return nil, fmt.Errorf("%w: duplicate category %s", ErrValidation, it.CategoryID)
		}
		seen[it.CategoryID] = true
	}

	if _, err := o.events.GetEvent(ctx, req.EventID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown event %s", ErrValidation, req.EventID)
		}
		return nil, err
	}

	// Load and validate every category before touching the ledger.  The
	// sale-window and capacity reads here are advisory: only TryReserve's
	// conditional update is authoritative, but rejecting up front keeps a
	// doomed multi-item request from reserving and then compensating.
	now := o.now().UTC()
	currency := ""
	categories := make([]*model.TicketCategory, len(req.Items))
	for i, it := range req.Items {
		c, err := o.ledger.GetByID(ctx, it.CategoryID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown category %s", ErrValidation, it.CategoryID)
			}
			return nil, err
		}
		if c.EventID != req.EventID {
			return nil, fmt.Errorf("%w: category %s belongs to another event", ErrValidation, it.CategoryID)
		}
		if !c.OnSale(now) {
			monitoring.ReservationRejections.WithLabelValues("sale_closed").Inc()
			return nil, fmt.Errorf("%w: category %s", ErrSaleClosed, it.CategoryID)
		}
		if it.Quantity > c.Remaining() {
			monitoring.ReservationRejections.WithLabelValues("capacity").Inc()
			return nil, fmt.Errorf("%w: category %s", ErrInsufficientInventory, it.CategoryID)
		}
		if currency == "" {
			currency = c.Currency
		} else if c.Currency != currency {
			return nil, fmt.Errorf("%w: mixed currencies in one booking", ErrValidation)
		}
		if c.MaxPerBuyer > 0 {
			held, err := o.store.CountByBuyerAndCategory(ctx, req.BuyerID, it.CategoryID)
			if err != nil {
				return nil, err
			}
			if held+it.Quantity > c.MaxPerBuyer {
				return nil, fmt.Errorf("%w: category %s allows %d per buyer", ErrLimitExceeded, it.CategoryID, c.MaxPerBuyer)
			}
		}
		categories[i] = c
	}

	// Reserve item by item; on any failure release what was taken.
	reserved := 0
	for i, it := range req.Items {
		if err := o.ledger.TryReserve(ctx, it.CategoryID, it.Quantity); err != nil {
			o.releaseItems(ctx, req.Items[:reserved])
			switch {
			case errors.Is(err, repository.ErrInsufficientCapacity):
				monitoring.ReservationRejections.WithLabelValues("capacity").Inc()
				return nil, fmt.Errorf("%w: category %s", ErrInsufficientInventory, it.CategoryID)
			case errors.Is(err, repository.ErrSaleClosed):
				monitoring.ReservationRejections.WithLabelValues("sale_closed").Inc()
				return nil, fmt.Errorf("%w: category %s", ErrSaleClosed, it.CategoryID)
			default:
				return nil, err
			}
		}
		reserved = i + 1
	}

	b := &model.Booking{
		ID:       uuid.NewString(),
		BuyerID:  req.BuyerID,
		EventID:  req.EventID,
		Currency: currency,
		Status:   model.BookingPending,
	}
	total := decimal.Zero
	for i, it := range req.Items {
		li := model.LineItem{
			CategoryID:   it.CategoryID,
			CategoryName: categories[i].Name,
			Quantity:     it.Quantity,
			UnitPrice:    categories[i].UnitPrice,
		}
		b.LineItems = append(b.LineItems, li)
		total = total.Add(li.Subtotal())
	}
	b.TotalAmount = total

	tickets, err := o.issueTickets(b, req.GroupTicket)
	if err != nil {
		o.releaseItems(ctx, req.Items)
		return nil, err
	}

	if b.Zero() {
		// Nothing to collect: confirm immediately, tickets born active.
		b.Status = model.BookingConfirmed
		for _, t := range tickets {
			t.Status = model.TicketActive
		}
	}

	if err := o.store.CreateWithTickets(ctx, b, tickets); err != nil {
		o.releaseItems(ctx, req.Items)
		return nil, err
	}
	for _, t := range tickets {
		b.TicketIDs = append(b.TicketIDs, t.ID)
	}
	monitoring.BookingsCreated.Inc()

	if b.Zero() {
		monitoring.BookingsConfirmed.Inc()
		o.publishConfirmed(ctx, b, tickets)
		return &CreateResult{Booking: b}, nil
	}

	ch, err := o.gateway.InitiateCharge(ctx, payment.Charge{
		BookingID:   b.ID,
		BuyerID:     b.BuyerID,
		Amount:      b.TotalAmount,
		Currency:    b.Currency,
		Description: fmt.Sprintf("Tickets for event %s", b.EventID),
	})
	if err != nil {
		// The reservation is kept: a gateway hiccup must not free units
		// that a retried payment still expects to hold.  The booking
		// moves to awaiting payment without a transaction handle and is
		// picked up by the expiry sweep if nothing retries it.
		if perr := o.store.SetPaymentRef(ctx, b.ID, model.PaymentRef{Method: "gateway"}); perr != nil {
			log.Printf("booking: park booking %s after failed initiate: %v", b.ID, perr)
		}
		log.Printf("booking: initiate payment for %s: %v", b.ID, err)
		return nil, err
	}

	ref := model.PaymentRef{
		Method:        "gateway",
		TransactionID: ch.TransactionID,
		Status:        ch.Status,
	}
	if err := o.store.SetPaymentRef(ctx, b.ID, ref); err != nil {
		return nil, err
	}
	b.Status = model.BookingAwaitingPayment
	b.Payment = ref

	return &CreateResult{Booking: b, PaymentURL: ch.PaymentURL}, nil
}

// issueTickets builds the pending tickets for a booking: one group
// ticket covering every line item, or one ticket per admitted person.
func (o *Orchestrator) issueTickets(b *model.Booking, group bool) ([]*model.Ticket, error) {
	var out []*model.Ticket
	if group {
		t := &model.Ticket{
			ID:        uuid.NewString(),
			Number:    ticketNumber(),
			BookingID: b.ID,
			EventID:   b.EventID,
			OwnerID:   b.BuyerID,
			IsGroup:   true,
			Status:    model.TicketPending,
		}
		for _, li := range b.LineItems {
			t.GroupLineItems = append(t.GroupLineItems, model.GroupLineItem{
				Name:      li.CategoryName,
				Quantity:  li.Quantity,
				UnitPrice: li.UnitPrice,
			})
		}
		secret, encoded, err := credential.Issue(t)
		if err != nil {
			return nil, err
		}
		t.CredentialSecret = secret
		t.EncodedCredential = encoded
		return []*model.Ticket{t}, nil
	}

	for _, li := range b.LineItems {
		for i := 0; i < li.Quantity; i++ {
			t := &model.Ticket{
				ID:         uuid.NewString(),
				Number:     ticketNumber(),
				BookingID:  b.ID,
				EventID:    b.EventID,
				OwnerID:    b.BuyerID,
				CategoryID: li.CategoryID,
				Status:     model.TicketPending,
			}
			secret, encoded, err := credential.Issue(t)
			if err != nil {
				return nil, err
			}
			t.CredentialSecret = secret
			t.EncodedCredential = encoded
			out = append(out, t)
		}
	}
	return out, nil
}

// releaseItems hands reserved units back to the ledger.  Failures are
// logged, not returned: the caller is already unwinding and the release
// is floored at zero so a later retry cannot overshoot.
func (o *Orchestrator) releaseItems(ctx context.Context, items []ItemRequest) {
	for _, it := range items {
		if err := o.ledger.Release(ctx, it.CategoryID, it.Quantity); err != nil {
			log.Printf("booking: release %d units of %s: %v", it.Quantity, it.CategoryID, err)
		}
	}
}

// publishConfirmed emits the confirmation event.  Best effort; the
// booking is already committed.
func (o *Orchestrator) publishConfirmed(ctx context.Context, b *model.Booking, tickets []*model.Ticket) {
	if o.notifier == nil {
		return
	}
	ev := notify.BookingConfirmedEvent{
		BookingID:   b.ID,
		BuyerID:     b.BuyerID,
		EventID:     b.EventID,
		TotalAmount: b.TotalAmount,
		Currency:    b.Currency,
		ConfirmedAt: o.now().UTC().Format(time.RFC3339),
	}
	for _, t := range tickets {
		ev.TicketNumbers = append(ev.TicketNumbers, t.Number)
	}
	if err := o.notifier.BookingConfirmed(ctx, ev); err != nil {
		log.Printf("booking: publish confirmation for %s: %v", b.ID, err)
	}
}

// Get returns a booking to its owner (or an admin).
func (o *Orchestrator) Get(ctx context.Context, bookingID, requesterID string, admin bool) (*model.Booking, error) {
	b, err := o.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !admin && b.BuyerID != requesterID {
		return nil, ErrForbidden
	}
	return b, nil
}

// ListForBuyer returns the buyer's bookings, newest first.
func (o *Orchestrator) ListForBuyer(ctx context.Context, buyerID string) ([]*model.Booking, error) {
	return o.store.ListByBuyer(ctx, buyerID)
}

// Tickets returns the tickets of a booking to its owner (or an admin).
func (o *Orchestrator) Tickets(ctx context.Context, bookingID, requesterID string, admin bool) ([]*model.Ticket, error) {
	b, err := o.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !admin && b.BuyerID != requesterID {
		return nil, ErrForbidden
	}
	return o.tickets.ListByBooking(ctx, bookingID)
}
