// Package directory looks up events and buyers in the upstream catalog
// and identity services.  The booking and check-in services only need a
// narrow read view, so the interfaces here stay small and the HTTP
// clients implement them against the internal APIs.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the upstream service does not know the
// requested id.
var ErrNotFound = errors.New("directory: not found")

// EventInfo is the slice of event data the ticketing flows need: the
// schedule for check-in windows and refund tiers, the name for
// notifications.
type EventInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Venue    string     `json:"venue,omitempty"`
}

// Buyer is the identity view of a purchaser.
type Buyer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// EventDirectory resolves event ids to their schedule.
type EventDirectory interface {
	GetEvent(ctx context.Context, eventID string) (*EventInfo, error)
}

// Identity resolves buyer ids to their contact details.
type Identity interface {
	GetBuyer(ctx context.Context, buyerID string) (*Buyer, error)
}
