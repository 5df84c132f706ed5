// Package booking implements the purchase lifecycle: creating bookings
// against the inventory ledger, reconciling gateway payment results,
// cancelling with tiered refunds, transferring tickets and expiring
// abandoned payments.  Services speak to persistence through the narrow
// store interfaces in store.go so tests run against in-memory fakes.
package booking

import "errors"

// ErrValidation is returned when the request itself is malformed:
// no line items, non-positive quantities, mixed currencies, unknown
// event or category references.
var ErrValidation = errors.New("booking: invalid request")

// ErrInsufficientInventory is returned when a requested category does
// not have enough remaining units.
var ErrInsufficientInventory = errors.New("booking: insufficient inventory")

// ErrSaleClosed is returned when a requested category is outside its
// sale window or deactivated.
var ErrSaleClosed = errors.New("booking: sale closed")

// ErrLimitExceeded is returned when the purchase would push the buyer
// past a category's per-buyer limit.
var ErrLimitExceeded = errors.New("booking: per-buyer limit exceeded")

// ErrForbidden is returned when the requester does not own the booking
// or ticket being acted on.
var ErrForbidden = errors.New("booking: forbidden")

// ErrNotCancellable is returned when a booking cannot be cancelled:
// already cancelled or refunded, or one of its tickets was used.
var ErrNotCancellable = errors.New("booking: not cancellable")

// ErrBlackout is returned when cancellation is requested inside the
// pre-event blackout window.
var ErrBlackout = errors.New("booking: cancellation blackout in effect")

// ErrNotTransferable is returned when a ticket is not in a state that
// admits transfer.
var ErrNotTransferable = errors.New("booking: ticket not transferable")

// ErrUnknownTransaction is returned by the reconciler when no booking
// carries the reported gateway transaction id.
var ErrUnknownTransaction = errors.New("booking: unknown gateway transaction")
