package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/attendly/ticketing/internal/model"
)

// CategoryRepo is the inventory ledger.  It owns every mutation of the
// reserved counter on ticket_categories; no other component touches it.
// Reservation and release are single conditional UPDATE statements so
// the bound 0 <= reserved <= capacity is checked by the database in the
// same round trip that increments the counter, so concurrent callers
// racing for the last unit cannot both succeed.
type CategoryRepo struct {
	db *sql.DB
}

// NewCategoryRepo returns a CategoryRepo bound to the given database.
func NewCategoryRepo(db *sql.DB) *CategoryRepo { return &CategoryRepo{db: db} }

const categoryColumns = `id, event_id, name, unit_price, currency, capacity, reserved,
       max_per_buyer, sale_starts_at, sale_ends_at, active, created_at, updated_at`

func scanCategory(row interface{ Scan(...any) error }) (*model.TicketCategory, error) {
	var c model.TicketCategory
	err := row.Scan(
		&c.ID, &c.EventID, &c.Name, &c.UnitPrice, &c.Currency, &c.Capacity, &c.Reserved,
		&c.MaxPerBuyer, &c.SaleStartsAt, &c.SaleEndsAt, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new ticket category.  Reserved always starts at 0.
func (r *CategoryRepo) Create(ctx context.Context, c *model.TicketCategory) error {
	const q = `INSERT INTO ticket_categories
	           (id, event_id, name, unit_price, currency, capacity, reserved,
	            max_per_buyer, sale_starts_at, sale_ends_at, active)
	           VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.EventID, c.Name, c.UnitPrice, c.Currency, c.Capacity,
		c.MaxPerBuyer, c.SaleStartsAt.UTC(), c.SaleEndsAt.UTC(), c.Active,
	)
	return err
}

// GetByID loads a single category.  Returns ErrNotFound when absent.
func (r *CategoryRepo) GetByID(ctx context.Context, id string) (*model.TicketCategory, error) {
	const q = `SELECT ` + categoryColumns + ` FROM ticket_categories WHERE id = ?`
	c, err := scanCategory(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListByEvent returns all categories for an event ordered by name.
func (r *CategoryRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.TicketCategory, error) {
	const q = `SELECT ` + categoryColumns + ` FROM ticket_categories WHERE event_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.TicketCategory, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TryReserve atomically increments reserved by qty provided the category
// is active, inside its sale window and has qty units remaining.  The
// whole decision is a single conditional UPDATE; RowsAffected tells us
// whether we won.  On failure a diagnostic read classifies the reason.
// That read may race with other writers, but it only picks an error
// message and never mutates anything.
func (r *CategoryRepo) TryReserve(ctx context.Context, categoryID string, qty int) error {
	const q = `UPDATE ticket_categories
	           SET reserved = reserved + ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND active = 1
	             AND sale_starts_at <= UTC_TIMESTAMP() AND UTC_TIMESTAMP() < sale_ends_at
	             AND reserved + ? <= capacity`
	res, err := r.db.ExecContext(ctx, q, qty, categoryID, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	c, err := r.GetByID(ctx, categoryID)
	if err != nil {
		return err
	}
	if !c.OnSale(time.Now().UTC()) {
		return ErrSaleClosed
	}
	return ErrInsufficientCapacity
}

// Release atomically returns qty units to the pool, floored at zero so a
// duplicate compensation can never drive the counter negative.
func (r *CategoryRepo) Release(ctx context.Context, categoryID string, qty int) error {
	const q = `UPDATE ticket_categories
	           SET reserved = GREATEST(reserved - ?, 0), updated_at = UTC_TIMESTAMP()
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, qty, categoryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RaiseCapacity revises the capacity upward.  Lowering capacity, or
// setting it below the current reserved count, is rejected with
// ErrConflict; the guard lives in the WHERE clause so a concurrent
// reservation cannot slip under a shrinking bound.
func (r *CategoryRepo) RaiseCapacity(ctx context.Context, categoryID string, capacity int) error {
	const q = `UPDATE ticket_categories
	           SET capacity = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND capacity <= ? AND reserved <= ?`
	res, err := r.db.ExecContext(ctx, q, capacity, categoryID, capacity, capacity)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, gerr := r.GetByID(ctx, categoryID); gerr != nil {
			return gerr
		}
		return ErrConflict
	}
	return nil
}

// SetActive flips the active flag, opening or closing the category for
// sale independently of its window.
func (r *CategoryRepo) SetActive(ctx context.Context, categoryID string, active bool) error {
	const q = `UPDATE ticket_categories SET active = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, active, categoryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
