// Package payment integrates the external payment gateway.  The Gateway
// interface is the only surface the rest of the service sees; the HTTP
// client below implements it against the provider's REST API.  Gateway
// outages surface as ErrUnavailable so callers can distinguish "try
// again later" from a declined payment.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction status values as reported by the gateway.
const (
	StatusPending  = "PENDING"
	StatusPaid     = "PAID"
	StatusFailed   = "FAILED"
	StatusRefunded = "REFUNDED"
)

// ErrUnavailable is returned when the gateway cannot be reached, times
// out, or the circuit breaker is open.  The payment outcome is unknown;
// callers must not treat it as a decline.
var ErrUnavailable = errors.New("payment: gateway unavailable")

// Charge describes a payment to initiate.
type Charge struct {
	BookingID   string
	BuyerID     string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// ChargeResult is the gateway's answer to an initiate call.  PaymentURL
// is where the buyer completes the payment.
type ChargeResult struct {
	TransactionID string
	Status        string
	PaymentURL    string
}

// Result is the settled view of a transaction, from a status query or a
// refund call.
type Result struct {
	TransactionID string
	Status        string
	Amount        decimal.Decimal
	SettledAt     time.Time
}

// Gateway is the payment provider abstraction.
type Gateway interface {
	// InitiateCharge registers a pending payment and returns the
	// transaction handle plus the URL the buyer pays at.
	InitiateCharge(ctx context.Context, ch Charge) (*ChargeResult, error)

	// QueryStatus fetches the authoritative state of a transaction.
	QueryStatus(ctx context.Context, transactionID string) (*Result, error)

	// Refund asks the gateway to return the given amount on a settled
	// transaction.
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (*Result, error)
}
