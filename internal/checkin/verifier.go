// Package checkin verifies admission credentials at the gate and
// records exactly one admission per ticket.  The database CAS on the
// ticket status is what makes a duplicate scan lose; everything else in
// this package is classification of why a scan was refused.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/attendly/ticketing/internal/credential"
	"github.com/attendly/ticketing/internal/directory"
	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/monitoring"
	"github.com/attendly/ticketing/internal/notify"
	"github.com/attendly/ticketing/internal/repository"
)

// ErrInvalidCredential is returned when the presented credential does
// not decode, references an unknown ticket, or fails the secret check.
var ErrInvalidCredential = errors.New("checkin: invalid credential")

// ErrWrongEvent is returned when a valid credential is presented at a
// gate serving a different event.
var ErrWrongEvent = errors.New("checkin: credential is for another event")

// ErrModeMismatch is returned when a group ticket reaches an individual
// gate or an individual ticket reaches a group gate.
var ErrModeMismatch = errors.New("checkin: ticket mode does not match gate mode")

// ErrOutsideWindow is returned when the scan is before the check-in
// window opens or after it closes.
var ErrOutsideWindow = errors.New("checkin: outside check-in window")

// ErrNotAdmittable is returned when the ticket is not in a state that
// admits entry (cancelled, refunded, expired or still pending payment).
var ErrNotAdmittable = errors.New("checkin: ticket not admittable")

// AlreadyCheckedInError reports a duplicate scan, carrying when and by
// whom the ticket was first admitted so the gate can display it.
type AlreadyCheckedInError struct {
	At time.Time
	By string
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("checkin: already checked in at %s by %s", e.At.Format(time.RFC3339), e.By)
}

// TicketStore is the ticket access the verifier needs.  Implemented by
// repository.TicketRepo.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	GetByShortCode(ctx context.Context, eventID, code string) (*model.Ticket, error)
	CheckIn(ctx context.Context, ticketID, staffID string, at time.Time) (bool, error)
}

// Notifier publishes check-in events.  Implemented by notify.Publisher.
type Notifier interface {
	TicketCheckedIn(ctx context.Context, ev notify.TicketCheckedInEvent) error
}

// Verifier is the gate-side service.  Lead is how long before the event
// start the window opens; DefaultDuration bounds the window for events
// without a published end time.
type Verifier struct {
	tickets  TicketStore
	events   directory.EventDirectory
	notifier Notifier

	lead            time.Duration
	defaultDuration time.Duration
	now             func() time.Time
}

// NewVerifier wires a Verifier.
func NewVerifier(tickets TicketStore, events directory.EventDirectory, n Notifier, lead, defaultDuration time.Duration) *Verifier {
	return &Verifier{
		tickets:         tickets,
		events:          events,
		notifier:        n,
		lead:            lead,
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// VerifyCredential admits the ticket behind a scanned QR payload.
// gateEventID is the event the gate serves; groupGate selects which
// ticket mode the gate accepts.
func (v *Verifier) VerifyCredential(ctx context.Context, encoded, gateEventID, staffID string, groupGate bool) (*model.Ticket, error) {
	p, err := credential.Decode(encoded)
	if err != nil {
		monitoring.CheckIns.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredential
	}
	t, err := v.tickets.GetByID(ctx, p.TicketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			monitoring.CheckIns.WithLabelValues("rejected").Inc()
			return nil, ErrInvalidCredential
		}
		return nil, err
	}
	if err := credential.Verify(t.CredentialSecret, p.Secret); err != nil {
		// A rotated secret lands here: the payload decoded fine but
		// belongs to a pre-transfer credential.
		monitoring.CheckIns.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredential
	}
	// Every identifying field must match the stored ticket; a payload
	// that gets the secret right but rewrites the rest is a forgery.
	if p.TicketNumber != t.Number || p.EventID != t.EventID || p.IsGroup != t.IsGroup {
		monitoring.CheckIns.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredential
	}
	return v.admit(ctx, t, gateEventID, staffID, groupGate)
}

// VerifyShortCode admits the ticket behind a manually typed fallback
// code.
func (v *Verifier) VerifyShortCode(ctx context.Context, code, gateEventID, staffID string, groupGate bool) (*model.Ticket, error) {
	t, err := v.tickets.GetByShortCode(ctx, gateEventID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			monitoring.CheckIns.WithLabelValues("rejected").Inc()
			return nil, ErrInvalidCredential
		}
		return nil, err
	}
	if !credential.MatchesShortCode(t.CredentialSecret, code) {
		monitoring.CheckIns.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredential
	}
	return v.admit(ctx, t, gateEventID, staffID, groupGate)
}

// admit runs the shared admission checks and performs the CAS.
func (v *Verifier) admit(ctx context.Context, t *model.Ticket, gateEventID, staffID string, groupGate bool) (*model.Ticket, error) {
	reject := func(err error) (*model.Ticket, error) {
		monitoring.CheckIns.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if t.EventID != gateEventID {
		return reject(ErrWrongEvent)
	}
	if t.IsGroup != groupGate {
		return reject(ErrModeMismatch)
	}
	switch t.Status {
	case model.TicketActive:
	case model.TicketUsed:
		monitoring.CheckIns.WithLabelValues("duplicate").Inc()
		return nil, duplicateError(t)
	default:
		return reject(fmt.Errorf("%w: ticket is %s", ErrNotAdmittable, t.Status))
	}

	ev, err := v.events.GetEvent(ctx, t.EventID)
	if err != nil {
		return nil, err
	}
	now := v.now().UTC()
	opens := ev.StartsAt.Add(-v.lead)
	closes := ev.StartsAt.Add(v.defaultDuration)
	if ev.EndsAt != nil {
		closes = *ev.EndsAt
	}
	if now.Before(opens) || now.After(closes) {
		return reject(ErrOutsideWindow)
	}

	won, err := v.tickets.CheckIn(ctx, t.ID, staffID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the CAS to a concurrent scan; reload for the first
		// admission's details.
		monitoring.CheckIns.WithLabelValues("duplicate").Inc()
		fresh, err := v.tickets.GetByID(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		return nil, duplicateError(fresh)
	}
	monitoring.CheckIns.WithLabelValues("admitted").Inc()

	t.Status = model.TicketUsed
	t.CheckedInAt = &now
	t.CheckedInBy = staffID

	if v.notifier != nil {
		err := v.notifier.TicketCheckedIn(ctx, notify.TicketCheckedInEvent{
			TicketID:     t.ID,
			TicketNumber: t.Number,
			EventID:      t.EventID,
			OwnerID:      t.OwnerID,
			StaffID:      staffID,
			IsGroup:      t.IsGroup,
			CheckedInAt:  now.Format(time.RFC3339),
		})
		if err != nil {
			log.Printf("checkin: publish event for %s: %v", t.ID, err)
		}
	}
	return t, nil
}

func duplicateError(t *model.Ticket) error {
	e := &AlreadyCheckedInError{By: t.CheckedInBy}
	if t.CheckedInAt != nil {
		e.At = *t.CheckedInAt
	}
	return e
}
