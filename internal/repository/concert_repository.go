package repository

import (
	"context"
	"database/sql"

	"github.com/trove/ticket-trove/internal/model"
)

// ConcertRepo provides CRUD operations for concerts.  Concerts are the
// aggregate root of ticketing: seat grades and tickets both reference a
// concert row by ID.  All timestamp fields are stored in UTC.
type ConcertRepo struct {
	db *sql.DB
}

// NewConcertRepo returns a new ConcertRepo bound to the given database.
func NewConcertRepo(db *sql.DB) *ConcertRepo { return &ConcertRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// spanning multiple repositories.
func (r *ConcertRepo) DB() *sql.DB { return r.db }

// CreateTx inserts a new concert within the scope of an existing
// transaction.  The (concert_name, performer) unique index is the final
// arbiter against duplicate registrations; a violation is mapped to
// ErrConcertExists.  The generated ID and database-assigned timestamps
// are populated on the provided record.  The caller must commit or
// rollback the transaction.
func (r *ConcertRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.Concert) error {
	const q = `INSERT INTO concerts (concert_name, performer, show_start, show_end, ticketing_time)
	           VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, c.ConcertName, c.Performer, c.ShowStart.UTC(), c.ShowEnd.UTC(), c.TicketingTime.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConcertExists
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults
	const sel = `SELECT created_at, updated_at FROM concerts WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, c.ID).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetByID returns a single concert by its identifier.  When no concert
// exists, ErrConcertNotFound is returned.
func (r *ConcertRepo) GetByID(ctx context.Context, id uint64) (*model.Concert, error) {
	const q = `SELECT id, concert_name, performer, show_start, show_end, ticketing_time, created_at, updated_at
	           FROM concerts WHERE id = ?`
	var c model.Concert
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.ConcertName, &c.Performer, &c.ShowStart, &c.ShowEnd,
		&c.TicketingTime, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrConcertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ExistsByNameAndPerformer reports whether a concert with the given
// name/performer pair is already registered.  Used as a friendly
// pre-check before the unique index rejects the insert.
func (r *ConcertRepo) ExistsByNameAndPerformer(ctx context.Context, name, performer string) (bool, error) {
	const q = `SELECT COUNT(*) FROM concerts WHERE concert_name = ? AND performer = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, name, performer).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOrderByShowStart returns one page of concerts ordered by show
// start time ascending, so the next upcoming show always lists first.
// Page numbering is zero-based.
func (r *ConcertRepo) ListOrderByShowStart(ctx context.Context, page, size int) ([]model.Concert, error) {
	const q = `SELECT id, concert_name, performer, show_start, show_end, ticketing_time, created_at, updated_at
	           FROM concerts ORDER BY show_start ASC, id ASC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, size, page*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	concerts := make([]model.Concert, 0, size)
	for rows.Next() {
		var c model.Concert
		if err := rows.Scan(
			&c.ID, &c.ConcertName, &c.Performer, &c.ShowStart, &c.ShowEnd,
			&c.TicketingTime, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		concerts = append(concerts, c)
	}
	return concerts, rows.Err()
}

// UpdateTx writes the mutable fields of a concert back to the database
// within a transaction and refreshes its UpdatedAt.  Callers apply
// partial changes to the struct first; every listed column is written.
func (r *ConcertRepo) UpdateTx(ctx context.Context, tx *sql.Tx, c *model.Concert) error {
	const q = `UPDATE concerts
	           SET concert_name = ?, performer = ?, show_start = ?, show_end = ?, ticketing_time = ?,
	               updated_at = UTC_TIMESTAMP()
	           WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, c.ConcertName, c.Performer, c.ShowStart.UTC(), c.ShowEnd.UTC(), c.TicketingTime.UTC(), c.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConcertExists
		}
		return err
	}
	const sel = `SELECT updated_at FROM concerts WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, c.ID).Scan(&c.UpdatedAt)
}

// DeleteTx removes a concert row within a transaction.  Seat grades
// are deleted first by the caller; ticket rows follow through their
// ON DELETE CASCADE foreign keys.
func (r *ConcertRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `DELETE FROM concerts WHERE id = ?`
	result, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConcertNotFound
	}
	return nil
}
