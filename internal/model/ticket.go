package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket status values.  Transitions move forward only:
// PENDING -> ACTIVE -> USED; PENDING/ACTIVE may instead reach CANCELLED,
// REFUNDED or EXPIRED from the cancellation engine.  USED is terminal
// except administrative override.
const (
	TicketPending   = "PENDING"
	TicketActive    = "ACTIVE"
	TicketUsed      = "USED"
	TicketCancelled = "CANCELLED"
	TicketRefunded  = "REFUNDED"
	TicketExpired   = "EXPIRED"
)

// GroupLineItem summarizes one category inside a group ticket.  Group
// tickets aggregate several line items under a single credential and
// admit the whole group in one scan.
type GroupLineItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// TransferRecord is one hop in a ticket's ownership history.
type TransferRecord struct {
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	At         time.Time `json:"at"`
}

// Ticket represents either a single admission or, when IsGroup is set, a
// group ticket covering every line item of its booking.  The credential
// secret is generated once at issuance and changes only when the ticket
// is transferred (rotation invalidates the old credential).  The secret
// itself is never serialized in API responses; clients only ever see the
// encoded credential payload.
type Ticket struct {
	ID                string           `json:"id"`
	Number            string           `json:"number"`
	BookingID         string           `json:"booking_id"`
	EventID           string           `json:"event_id"`
	OwnerID           string           `json:"owner_id"`
	CategoryID        string           `json:"category_id,omitempty"`
	IsGroup           bool             `json:"is_group"`
	GroupLineItems    []GroupLineItem  `json:"group_line_items,omitempty"`
	CredentialSecret  string           `json:"-"`
	EncodedCredential string           `json:"encoded_credential"`
	Status            string           `json:"status"`
	CheckedInAt       *time.Time       `json:"checked_in_at,omitempty"`
	CheckedInBy       string           `json:"checked_in_by,omitempty"`
	Transfers         []TransferRecord `json:"transfers,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
