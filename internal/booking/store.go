package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/notify"
)

// Ledger is the inventory view the services need.  Implemented by
// repository.CategoryRepo; every reservation and release goes through
// it so the capacity bound is enforced in one place.
type Ledger interface {
	GetByID(ctx context.Context, id string) (*model.TicketCategory, error)
	TryReserve(ctx context.Context, categoryID string, qty int) error
	Release(ctx context.Context, categoryID string, qty int) error
}

// Store is the booking persistence the services need.  Implemented by
// repository.BookingRepo.
type Store interface {
	CreateWithTickets(ctx context.Context, b *model.Booking, tickets []*model.Ticket) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetByTransactionID(ctx context.Context, txnID string) (*model.Booking, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*model.Booking, error)
	SetPaymentRef(ctx context.Context, bookingID string, ref model.PaymentRef) error
	ConfirmPayment(ctx context.Context, bookingID string, paymentStatus string) (bool, error)
	SetPaymentStatus(ctx context.Context, bookingID, paymentStatus string) error
	MarkCancelled(ctx context.Context, bookingID, fromStatus, reason string, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, bookingID, reason string, at time.Time) (bool, error)
	MarkRefunded(ctx context.Context, bookingID string, amount decimal.Decimal, at time.Time) error
	CountByBuyerAndCategory(ctx context.Context, buyerID, categoryID string) (int, error)
	ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// TicketStore is the ticket persistence the services need.  Implemented
// by repository.TicketRepo.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	ListByBooking(ctx context.Context, bookingID string) ([]*model.Ticket, error)
	ActivateByBooking(ctx context.Context, bookingID string) error
	VoidByBooking(ctx context.Context, bookingID, status string) error
	Transfer(ctx context.Context, ticketID, fromUserID, toUserID, newSecret, newEncoded string, at time.Time) (bool, error)
}

// Notifier publishes the domain events the services emit.  Implemented
// by notify.Publisher; publish failures never fail the request.
type Notifier interface {
	BookingConfirmed(ctx context.Context, ev notify.BookingConfirmedEvent) error
	BookingCancelled(ctx context.Context, ev notify.BookingCancelledEvent) error
}
