package booking

import (
	"context"
	"fmt"

	"github.com/attendly/ticketing/internal/credential"
	"github.com/attendly/ticketing/internal/model"
)

// Transfer reassigns an active ticket to another user.  The credential
// secret is rotated in the same operation, so any copy of the old QR
// code held by the previous owner stops verifying the moment the
// transfer lands.
func (o *Orchestrator) Transfer(ctx context.Context, ticketID, fromUserID, toUserID string) (*model.Ticket, error) {
	if toUserID == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if toUserID == fromUserID {
		return nil, fmt.Errorf("%w: cannot transfer a ticket to its current owner", ErrValidation)
	}

	t, err := o.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != fromUserID {
		return nil, ErrForbidden
	}
	if t.Status != model.TicketActive {
		return nil, fmt.Errorf("%w: ticket is %s", ErrNotTransferable, t.Status)
	}

	newSecret, err := credential.NewSecret()
	if err != nil {
		return nil, err
	}
	// Encode against the post-transfer view of the ticket.
	rotated := *t
	rotated.OwnerID = toUserID
	newEncoded, err := credential.Encode(&rotated, newSecret)
	if err != nil {
		return nil, err
	}

	won, err := o.tickets.Transfer(ctx, ticketID, fromUserID, toUserID, newSecret, newEncoded, o.now().UTC())
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the owner/status guard to a concurrent transfer,
		// check-in or cancellation.
		return nil, fmt.Errorf("%w: ticket state changed", ErrNotTransferable)
	}
	return o.tickets.GetByID(ctx, ticketID)
}
