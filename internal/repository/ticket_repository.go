package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/trove/ticket-trove/internal/model"
)

// TicketRepo is the authoritative store for sold seats.  A ticket row
// is created by Insert, soft-deleted by SoftDelete and never removed
// by normal application flow.  Every read in this repository carries
// an explicit `deleted_at IS NULL` predicate: cancelled tickets are
// out of existence for callers.
//
// The no-double-sale invariant lives in the schema, not here.  The
// tickets table has a unique index over (concert_id, seat_grade_id,
// seat_number, active) where `active` is 1 on live rows and NULL once
// soft-deleted; MySQL unique indexes skip NULLs, so cancelled seats
// can be sold again while two concurrent purchases of the same live
// seat resolve to exactly one success and one duplicate-key error.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// Insert creates an active ticket row.  There is no preceding
// availability check: the INSERT runs straight into the unique index
// and a collision is mapped to ErrSeatTaken, so concurrent purchases
// of the same seat are serialized by the database alone.  On success
// the generated ID and timestamps are populated on the record.
func (r *TicketRepo) Insert(ctx context.Context, t *model.Ticket) error {
	const q = `INSERT INTO tickets (concert_id, seat_grade_id, buyer_name, buyer_email, seat_number, active)
	           VALUES (?, ?, ?, ?, ?, 1)`
	result, err := r.db.ExecContext(ctx, q, t.ConcertID, t.SeatGradeID, t.BuyerName, t.BuyerEmail, t.SeatNumber)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrSeatTaken
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	const sel = `SELECT created_at, updated_at FROM tickets WHERE id = ?`
	return r.db.QueryRowContext(ctx, sel, t.ID).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// SoftDelete cancels the active ticket identified by concert, grade
// label, seat number and buyer email.  It is a single UPDATE that
// stamps deleted_at, refreshes updated_at and clears the `active`
// marker so the seat becomes sellable again.  The `deleted_at IS NULL`
// predicate makes cancellation race-safe and non-idempotent by
// contract: a second cancellation matches zero rows and returns
// ErrTicketNotFound.
func (r *TicketRepo) SoftDelete(ctx context.Context, concertID uint64, grade string, seatNumber int, email string) error {
	const q = `UPDATE tickets t
	           JOIN seat_grades sg ON sg.id = t.seat_grade_id
	           SET t.deleted_at = UTC_TIMESTAMP(), t.updated_at = UTC_TIMESTAMP(), t.active = NULL
	           WHERE t.concert_id = ? AND sg.grade = ? AND t.seat_number = ? AND t.buyer_email = ?
	             AND t.deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, q, concertID, strings.ToUpper(grade), seatNumber, email)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// FindActive returns the flattened detail of the live ticket matching
// the lookup key, or ErrTicketNotFound.  The query walks the
// (concert_id, seat_grade_id, seat_number, buyer_email) index and
// filters soft-deleted rows explicitly.
func (r *TicketRepo) FindActive(ctx context.Context, concertID uint64, grade string, seatNumber int, email string) (*model.TicketDetail, error) {
	const q = detailSelect + `
	           WHERE t.concert_id = ? AND sg.grade = ? AND t.seat_number = ? AND t.buyer_email = ?
	             AND t.deleted_at IS NULL`
	var d model.TicketDetail
	err := scanDetail(r.db.QueryRowContext(ctx, q, concertID, strings.ToUpper(grade), seatNumber, email), &d)
	if err == sql.ErrNoRows {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListActiveByConcert returns the flattened details of every live
// ticket of a concert.  This is the source the cache mirror is rebuilt
// from, so its output must match what purchase writes into the mirror.
func (r *TicketRepo) ListActiveByConcert(ctx context.Context, concertID uint64) ([]model.TicketDetail, error) {
	const q = detailSelect + `
	           WHERE t.concert_id = ? AND t.deleted_at IS NULL
	           ORDER BY t.id ASC`
	rows, err := r.db.QueryContext(ctx, q, concertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []model.TicketDetail
	for rows.Next() {
		var d model.TicketDetail
		if err := scanDetail(rows, &d); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// detailSelect joins a ticket with its concert and grade to produce
// the same flattened snapshot shape the cache mirror stores.
const detailSelect = `SELECT t.id, t.buyer_name, t.buyer_email,
	                  c.id, c.concert_name, c.performer, c.show_start, c.show_end,
	                  sg.grade, t.seat_number, sg.price, t.created_at, t.deleted_at
	           FROM tickets t
	           JOIN concerts c ON c.id = t.concert_id
	           JOIN seat_grades sg ON sg.id = t.seat_grade_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDetail(s rowScanner, d *model.TicketDetail) error {
	var deletedAt sql.NullTime
	if err := s.Scan(
		&d.TicketID, &d.Name, &d.Email,
		&d.ConcertID, &d.Concert, &d.Performer, &d.ShowStart, &d.ShowEnd,
		&d.Grade, &d.SeatNumber, &d.Price, &d.CreatedAt, &deletedAt,
	); err != nil {
		return err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		d.DeletedAt = &t
	}
	return nil
}
