package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/attendly/ticketing/internal/model"
)

// TicketRepo provides data access to tickets, their group line items and
// their transfer history.  Check-in and transfer are conditional updates
// keyed on the current status and owner, so two scanners presenting the
// same credential, or two transfer calls racing, resolve to exactly one
// winner at the database.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// insertTicketTx writes a ticket and its group line items inside the
// caller's transaction.  Invoked from BookingRepo.CreateWithTickets so
// booking and tickets appear atomically.
func insertTicketTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	const q = `INSERT INTO tickets
	           (id, number, booking_id, event_id, owner_id, category_id, is_group,
	            credential_secret, encoded_credential, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var categoryID sql.NullString
	if t.CategoryID != "" {
		categoryID = sql.NullString{String: t.CategoryID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, q,
		t.ID, t.Number, t.BookingID, t.EventID, t.OwnerID, categoryID, t.IsGroup,
		t.CredentialSecret, t.EncodedCredential, t.Status,
	); err != nil {
		return err
	}
	for i, gi := range t.GroupLineItems {
		const giQ = `INSERT INTO ticket_group_items (ticket_id, position, name, quantity, unit_price)
		             VALUES (?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, giQ, t.ID, i, gi.Name, gi.Quantity, gi.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

const ticketColumns = `id, number, booking_id, event_id, owner_id, category_id, is_group,
       credential_secret, encoded_credential, status, checked_in_at, checked_in_by,
       created_at, updated_at`

func (r *TicketRepo) scanTicket(ctx context.Context, row *sql.Row) (*model.Ticket, error) {
	var t model.Ticket
	var categoryID, checkedInBy sql.NullString
	var checkedInAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.Number, &t.BookingID, &t.EventID, &t.OwnerID, &categoryID, &t.IsGroup,
		&t.CredentialSecret, &t.EncodedCredential, &t.Status, &checkedInAt, &checkedInBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		t.CategoryID = categoryID.String
	}
	if checkedInAt.Valid {
		at := checkedInAt.Time
		t.CheckedInAt = &at
	}
	if checkedInBy.Valid {
		t.CheckedInBy = checkedInBy.String
	}
	if err := r.loadChildren(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TicketRepo) loadChildren(ctx context.Context, t *model.Ticket) error {
	if t.IsGroup {
		const giQ = `SELECT name, quantity, unit_price FROM ticket_group_items
		             WHERE ticket_id = ? ORDER BY position`
		rows, err := r.db.QueryContext(ctx, giQ, t.ID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var gi model.GroupLineItem
			if err := rows.Scan(&gi.Name, &gi.Quantity, &gi.UnitPrice); err != nil {
				return err
			}
			t.GroupLineItems = append(t.GroupLineItems, gi)
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}

	const trQ = `SELECT from_user_id, to_user_id, transferred_at FROM ticket_transfers
	             WHERE ticket_id = ? ORDER BY transferred_at`
	rows, err := r.db.QueryContext(ctx, trQ, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tr model.TransferRecord
		if err := rows.Scan(&tr.FromUserID, &tr.ToUserID, &tr.At); err != nil {
			return err
		}
		t.Transfers = append(t.Transfers, tr)
	}
	return rows.Err()
}

// GetByID loads a ticket with its group line items and transfer history.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	return r.scanTicket(ctx, r.db.QueryRowContext(ctx, q, id))
}

// GetByShortCode resolves a manual fallback code for an event.  The code
// is the leading prefix of the credential secret, matched
// case-insensitively; secrets are stored lowercase.
func (r *TicketRepo) GetByShortCode(ctx context.Context, eventID, code string) (*model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets
	           WHERE event_id = ? AND LEFT(credential_secret, CHAR_LENGTH(?)) = LOWER(?)`
	return r.scanTicket(ctx, r.db.QueryRowContext(ctx, q, eventID, code, code))
}

// ListByBooking returns all tickets of a booking ordered by number.
func (r *TicketRepo) ListByBooking(ctx context.Context, bookingID string) ([]*model.Ticket, error) {
	const q = `SELECT id FROM tickets WHERE booking_id = ? ORDER BY number`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]*model.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ActivateByBooking moves every pending ticket of a booking to ACTIVE.
// Called by the reconciler when the booking confirms; already-active
// tickets are left untouched so the call is safe to repeat.
func (r *TicketRepo) ActivateByBooking(ctx context.Context, bookingID string) error {
	const q = `UPDATE tickets SET status = ?, updated_at = UTC_TIMESTAMP()
	           WHERE booking_id = ? AND status = ?`
	_, err := r.db.ExecContext(ctx, q, model.TicketActive, bookingID, model.TicketPending)
	return err
}

// VoidByBooking moves every pending or active ticket of a booking to the
// given terminal status (CANCELLED, REFUNDED or EXPIRED).  USED tickets
// are never voided.
func (r *TicketRepo) VoidByBooking(ctx context.Context, bookingID, status string) error {
	const q = `UPDATE tickets SET status = ?, updated_at = UTC_TIMESTAMP()
	           WHERE booking_id = ? AND status IN (?, ?)`
	_, err := r.db.ExecContext(ctx, q, status, bookingID, model.TicketPending, model.TicketActive)
	return err
}

// CheckIn flips the ticket from ACTIVE to USED and records who admitted
// it.  Returns true when this caller performed the transition; false
// means the ticket was no longer ACTIVE, typically because a concurrent
// scan got there first.
func (r *TicketRepo) CheckIn(ctx context.Context, ticketID, staffID string, at time.Time) (bool, error) {
	const q = `UPDATE tickets
	           SET status = ?, checked_in_at = ?, checked_in_by = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q,
		model.TicketUsed, at.UTC(), staffID, ticketID, model.TicketActive,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Transfer reassigns an ACTIVE ticket from its current owner to another
// user and installs the rotated credential, invalidating the previous
// one.  The owner guard in the WHERE clause makes a stale transfer call
// lose cleanly; the transfer record is written in the same transaction.
func (r *TicketRepo) Transfer(ctx context.Context, ticketID, fromUserID, toUserID, newSecret, newEncoded string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const upd = `UPDATE tickets
	             SET owner_id = ?, credential_secret = ?, encoded_credential = ?,
	                 updated_at = UTC_TIMESTAMP()
	             WHERE id = ? AND owner_id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, upd,
		toUserID, newSecret, newEncoded, ticketID, fromUserID, model.TicketActive,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	const ins = `INSERT INTO ticket_transfers (ticket_id, from_user_id, to_user_id, transferred_at)
	             VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins, ticketID, fromUserID, toUserID, at.UTC()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}
