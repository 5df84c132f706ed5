package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/ticketing/internal/model"
)

// BookingRepo provides data access to bookings, booking_line_items and,
// at creation time only, the tickets issued under a booking.  A booking
// exclusively owns its tickets, so both are written in one transaction;
// afterwards tickets transition through TicketRepo and bookings through
// the conditional updates below.  Status changes are single-row CAS
// statements: concurrent writers race on the WHERE clause, exactly one
// wins, and losers observe an unchanged row instead of a lost update.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateWithTickets inserts a booking, its line items and its tickets in
// a single transaction.  The inventory has already been reserved through
// the ledger; if this transaction fails the caller must run the
// compensating release.
func (r *BookingRepo) CreateWithTickets(ctx context.Context, b *model.Booking, tickets []*model.Ticket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const ins = `INSERT INTO bookings
	             (id, buyer_id, event_id, total_amount, currency, status,
	              payment_method, gateway_transaction_id, payment_status)
	             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var txnID sql.NullString
	if b.Payment.TransactionID != "" {
		txnID = sql.NullString{String: b.Payment.TransactionID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, ins,
		b.ID, b.BuyerID, b.EventID, b.TotalAmount, b.Currency, b.Status,
		b.Payment.Method, txnID, b.Payment.Status,
	); err != nil {
		return err
	}

	if len(b.LineItems) > 0 {
		q := `INSERT INTO booking_line_items (booking_id, category_id, category_name, quantity, unit_price) VALUES `
		args := make([]any, 0, len(b.LineItems)*5)
		for i, li := range b.LineItems {
			if i > 0 {
				q += ","
			}
			q += "(?, ?, ?, ?, ?)"
			args = append(args, b.ID, li.CategoryID, li.CategoryName, li.Quantity, li.UnitPrice)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}

	for _, t := range tickets {
		if err := insertTicketTx(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

const bookingColumns = `id, buyer_id, event_id, total_amount, currency, status,
       payment_method, gateway_transaction_id, payment_status,
       refund_amount, refunded_at, cancelled_at, cancel_reason, created_at, updated_at`

func (r *BookingRepo) scanBooking(ctx context.Context, row *sql.Row) (*model.Booking, error) {
	var b model.Booking
	var txnID, cancelReason sql.NullString
	var refundAmount decimal.NullDecimal
	var refundedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.BuyerID, &b.EventID, &b.TotalAmount, &b.Currency, &b.Status,
		&b.Payment.Method, &txnID, &b.Payment.Status,
		&refundAmount, &refundedAt, &cancelledAt, &cancelReason, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if txnID.Valid {
		b.Payment.TransactionID = txnID.String
	}
	if refundAmount.Valid {
		b.RefundAmount = &refundAmount.Decimal
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		b.RefundedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	if cancelReason.Valid {
		b.CancelReason = cancelReason.String
	}
	if err := r.loadChildren(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) loadChildren(ctx context.Context, b *model.Booking) error {
	const liQ = `SELECT category_id, category_name, quantity, unit_price
	             FROM booking_line_items WHERE booking_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, liQ, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var li model.LineItem
		if err := rows.Scan(&li.CategoryID, &li.CategoryName, &li.Quantity, &li.UnitPrice); err != nil {
			return err
		}
		b.LineItems = append(b.LineItems, li)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	const tQ = `SELECT id FROM tickets WHERE booking_id = ? ORDER BY number`
	trows, err := r.db.QueryContext(ctx, tQ, b.ID)
	if err != nil {
		return err
	}
	defer trows.Close()
	for trows.Next() {
		var id string
		if err := trows.Scan(&id); err != nil {
			return err
		}
		b.TicketIDs = append(b.TicketIDs, id)
	}
	return trows.Err()
}

// GetByID loads a booking with its line items and ticket ids.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return r.scanBooking(ctx, r.db.QueryRowContext(ctx, q, id))
}

// GetByTransactionID loads the booking attached to a gateway transaction.
// gateway_transaction_id is indexed; this is the reconciler's entry point.
func (r *BookingRepo) GetByTransactionID(ctx context.Context, txnID string) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE gateway_transaction_id = ?`
	return r.scanBooking(ctx, r.db.QueryRowContext(ctx, q, txnID))
}

// ListByBuyer returns the buyer's bookings, newest first, without child
// rows; listings only need the summary.
func (r *BookingRepo) ListByBuyer(ctx context.Context, buyerID string) ([]*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE buyer_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Booking, 0)
	for rows.Next() {
		var b model.Booking
		var txnID, cancelReason sql.NullString
		var refundAmount decimal.NullDecimal
		var refundedAt, cancelledAt sql.NullTime
		if err := rows.Scan(
			&b.ID, &b.BuyerID, &b.EventID, &b.TotalAmount, &b.Currency, &b.Status,
			&b.Payment.Method, &txnID, &b.Payment.Status,
			&refundAmount, &refundedAt, &cancelledAt, &cancelReason, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if txnID.Valid {
			b.Payment.TransactionID = txnID.String
		}
		if refundAmount.Valid {
			b.RefundAmount = &refundAmount.Decimal
		}
		if refundedAt.Valid {
			t := refundedAt.Time
			b.RefundedAt = &t
		}
		if cancelledAt.Valid {
			t := cancelledAt.Time
			b.CancelledAt = &t
		}
		if cancelReason.Valid {
			b.CancelReason = cancelReason.String
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// SetPaymentRef attaches the gateway transaction handle after a
// successful initiate call and moves the booking to AWAITING_PAYMENT.
func (r *BookingRepo) SetPaymentRef(ctx context.Context, bookingID string, ref model.PaymentRef) error {
	const q = `UPDATE bookings
	           SET payment_method = ?, gateway_transaction_id = ?, payment_status = ?,
	               status = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q,
		ref.Method, ref.TransactionID, ref.Status,
		model.BookingAwaitingPayment, bookingID, model.BookingPending,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ConfirmPayment flips the booking to CONFIRMED provided it is still in
// a payable state.  The bool reports whether this caller won the CAS;
// a false result with nil error means someone else already confirmed,
// the idempotent no-op case.
func (r *BookingRepo) ConfirmPayment(ctx context.Context, bookingID string, paymentStatus string) (bool, error) {
	const q = `UPDATE bookings
	           SET status = ?, payment_status = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status IN (?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		model.BookingConfirmed, paymentStatus,
		bookingID, model.BookingPending, model.BookingAwaitingPayment,
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

// SetPaymentStatus records a gateway status (e.g. a failure) without
// changing the booking status; the buyer may retry and inventory stays
// reserved until an explicit cancel or timeout.
func (r *BookingRepo) SetPaymentStatus(ctx context.Context, bookingID, paymentStatus string) error {
	const q = `UPDATE bookings SET payment_status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, paymentStatus, bookingID)
	return err
}

// MarkCancelled moves the booking to CANCELLED, but only from the status
// the caller observed.  Pinning the guard to fromStatus means a booking
// that transitioned underneath the caller (e.g. a payment callback
// confirming after the caller's read) loses the CAS, so refund and
// blackout decisions derived from the stale read never apply to the new
// state.  Returns false when the CAS lost.
func (r *BookingRepo) MarkCancelled(ctx context.Context, bookingID, fromStatus, reason string, at time.Time) (bool, error) {
	const q = `UPDATE bookings
	           SET status = ?, cancel_reason = ?, cancelled_at = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q,
		model.BookingCancelled, reason, at.UTC(),
		bookingID, fromStatus,
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

// MarkExpired cancels a booking only while it is still unpaid.  The
// narrow guard keeps the expiry sweep from cancelling a booking whose
// payment settled between the sweep's read and this write.
func (r *BookingRepo) MarkExpired(ctx context.Context, bookingID, reason string, at time.Time) (bool, error) {
	const q = `UPDATE bookings
	           SET status = ?, cancel_reason = ?, cancelled_at = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status IN (?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		model.BookingCancelled, reason, at.UTC(),
		bookingID, model.BookingPending, model.BookingAwaitingPayment,
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

// MarkRefunded records a successful gateway refund on a cancelled
// booking.
func (r *BookingRepo) MarkRefunded(ctx context.Context, bookingID string, amount decimal.Decimal, at time.Time) error {
	const q = `UPDATE bookings
	           SET status = ?, refund_amount = ?, refunded_at = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q,
		model.BookingRefunded, amount, at.UTC(), bookingID, model.BookingCancelled,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// CountByBuyerAndCategory sums the quantity a buyer already holds in a
// category across bookings that are not cancelled or refunded.  Used to
// enforce per-buyer limits; a pending booking counts so a buyer cannot
// oversubscribe through parallel checkouts.
func (r *BookingRepo) CountByBuyerAndCategory(ctx context.Context, buyerID, categoryID string) (int, error) {
	const q = `SELECT COALESCE(SUM(li.quantity), 0)
	           FROM booking_line_items li
	           JOIN bookings b ON b.id = li.booking_id
	           WHERE b.buyer_id = ? AND li.category_id = ? AND b.status NOT IN (?, ?)`
	var n int
	err := r.db.QueryRowContext(ctx, q, buyerID, categoryID,
		model.BookingCancelled, model.BookingRefunded).Scan(&n)
	return n, err
}

// ListAwaitingPaymentBefore returns ids of bookings that have been
// waiting for a gateway result since before the cutoff.  PENDING rows
// are included: a crash between the insert and the payment-ref update
// leaves a booking there, and the sweep is its only way out.
func (r *BookingRepo) ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	const q = `SELECT id FROM bookings WHERE status IN (?, ?) AND created_at < ?`
	rows, err := r.db.QueryContext(ctx, q, model.BookingPending, model.BookingAwaitingPayment, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
