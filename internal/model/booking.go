package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking status values.  A booking moves forward only:
// PENDING -> {AWAITING_PAYMENT | CONFIRMED} -> {CANCELLED | REFUNDED}.
// CONFIRMED is reachable directly from PENDING for zero-amount bookings.
// Bookings are never deleted; terminal states are soft.
const (
	BookingPending         = "PENDING"
	BookingAwaitingPayment = "AWAITING_PAYMENT"
	BookingConfirmed       = "CONFIRMED"
	BookingCancelled       = "CANCELLED"
	BookingRefunded        = "REFUNDED"
)

// BookingTerminal reports whether the status admits no further transitions
// from the payment reconciler's point of view.
func BookingTerminal(status string) bool {
	return status == BookingConfirmed || status == BookingCancelled || status == BookingRefunded
}

// LineItem is one (category, quantity) pair inside a booking.  The unit
// price is captured at purchase time so later category edits do not
// change what the buyer owes or is refunded.
type LineItem struct {
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// Subtotal returns quantity * unit price for this line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// PaymentRef records the external payment transaction attached to a
// booking.  TransactionID is indexed so gateway results can be applied
// idempotently by transaction id alone.
type PaymentRef struct {
	Method        string `json:"method"`
	TransactionID string `json:"gateway_transaction_id"`
	Status        string `json:"status"`
}

// Booking is one purchase transaction covering one or more tickets.  A
// booking is created once per purchase attempt and is immutable except
// for status, the payment reference and the refund fields.
type Booking struct {
	ID           string           `json:"id"`
	BuyerID      string           `json:"buyer_id"`
	EventID      string           `json:"event_id"`
	LineItems    []LineItem       `json:"line_items"`
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	Currency     string           `json:"currency"`
	Status       string           `json:"status"`
	Payment      PaymentRef       `json:"payment"`
	TicketIDs    []string         `json:"ticket_ids"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundedAt   *time.Time       `json:"refunded_at,omitempty"`
	CancelledAt  *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason string           `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Zero reports whether the booking total is zero, i.e. no payment flow
// is required and the booking confirms immediately.
func (b *Booking) Zero() bool {
	return b.TotalAmount.IsZero()
}
