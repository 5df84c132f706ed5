// Package notify publishes ticketing domain events to RabbitMQ and runs
// the background consumer that turns them into buyer receipts.  Payloads
// carry enough information for downstream consumers to log, notify or
// trigger analytics without querying the primary database.
package notify

import "github.com/shopspring/decimal"

// Queue names.  Durable queues on the default exchange, routing key
// equals queue name.
const (
	QueueBookingConfirmed = "ticketing.booking.confirmed"
	QueueBookingCancelled = "ticketing.booking.cancelled"
	QueueTicketCheckedIn  = "ticketing.ticket.checked_in"
)

// BookingConfirmedEvent is published when payment settles and the
// booking's tickets activate.
type BookingConfirmedEvent struct {
	BookingID     string          `json:"booking_id"`
	BuyerID       string          `json:"buyer_id"`
	BuyerContact  string          `json:"buyer_contact,omitempty"`
	EventID       string          `json:"event_id"`
	EventName     string          `json:"event_name,omitempty"`
	TicketNumbers []string        `json:"ticket_numbers"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	ConfirmedAt   string          `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled or
// expired, with the refund granted (zero when none).
type BookingCancelledEvent struct {
	BookingID    string          `json:"booking_id"`
	BuyerID      string          `json:"buyer_id"`
	EventID      string          `json:"event_id"`
	Reason       string          `json:"reason"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Currency     string          `json:"currency"`
	CancelledAt  string          `json:"cancelled_at"`
}

// TicketCheckedInEvent is published when a credential is accepted at the
// gate.
type TicketCheckedInEvent struct {
	TicketID     string `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	EventID      string `json:"event_id"`
	OwnerID      string `json:"owner_id"`
	StaffID      string `json:"staff_id"`
	IsGroup      bool   `json:"is_group"`
	CheckedInAt  string `json:"checked_in_at"`
}
