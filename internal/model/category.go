package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketCategory is a priced class of admission for an event with a
// bounded capacity.  The reserved counter is the only globally shared
// mutable value in the system and is mutated exclusively through the
// ledger's TryReserve/Release operations; the store guarantees
// 0 <= reserved <= capacity at all times.
//
// Fields:
//
//	ID           – primary key identifier (UUID string).
//	EventID      – event this category belongs to (owned externally).
//	Name         – display name, e.g. "Early Bird", "VIP".
//	UnitPrice    – price for a single admission.
//	Currency     – ISO 4217 currency code.
//	Capacity     – maximum number of admissions; may only be revised upward.
//	Reserved     – admissions currently reserved or sold.
//	MaxPerBuyer  – per-purchase quantity limit.
//	SaleStartsAt – start of the sale window (UTC).
//	SaleEndsAt   – end of the sale window (UTC).
//	Active       – categories flagged inactive reject reservations.
type TicketCategory struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Currency     string          `json:"currency"`
	Capacity     int             `json:"capacity"`
	Reserved     int             `json:"reserved"`
	MaxPerBuyer  int             `json:"max_per_buyer"`
	SaleStartsAt time.Time       `json:"sale_starts_at"`
	SaleEndsAt   time.Time       `json:"sale_ends_at"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Remaining returns the number of admissions still available for sale.
func (c *TicketCategory) Remaining() int {
	if r := c.Capacity - c.Reserved; r > 0 {
		return r
	}
	return 0
}

// OnSale reports whether the category accepts reservations at the given
// instant.  The sale window is half-open: [SaleStartsAt, SaleEndsAt).
func (c *TicketCategory) OnSale(now time.Time) bool {
	return c.Active && !now.Before(c.SaleStartsAt) && now.Before(c.SaleEndsAt)
}
