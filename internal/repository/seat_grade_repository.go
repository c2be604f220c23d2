package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/trove/ticket-trove/internal/model"
)

// SeatGradeRepo manages the pricing tiers of concerts.  Grade labels
// are normalized to upper case before every write and lookup so "vip"
// and "VIP" address the same tier.  The (concert_id, grade, price)
// unique index guards against duplicate tier definitions.
type SeatGradeRepo struct {
	db *sql.DB
}

// NewSeatGradeRepo returns a new SeatGradeRepo bound to the given database.
func NewSeatGradeRepo(db *sql.DB) *SeatGradeRepo { return &SeatGradeRepo{db: db} }

// CreateBulkTx inserts the grade tiers of a concert in a single
// statement inside the concert-creation transaction.  Labels are
// upper-cased before insertion.  A duplicate (grade, price) pair in
// the submission trips the unique index and is surfaced as
// ErrSeatGradeExists rather than masked.  Passing an empty slice has
// no effect and returns nil.
func (r *SeatGradeRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, concertID uint64, grades []model.SeatGrade) error {
	if len(grades) == 0 {
		return nil
	}
	query := `INSERT INTO seat_grades (concert_id, grade, price, total_seat) VALUES `
	args := make([]interface{}, 0, len(grades)*4)
	for i := range grades {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, concertID, strings.ToUpper(grades[i].Grade), grades[i].Price, grades[i].TotalSeat)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return ErrSeatGradeExists
		}
		return err
	}
	return nil
}

// dbtx is the slice of *sql.DB and *sql.Tx the grade lookups run
// against, so they behave identically inside and outside a
// transaction.
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetByIDTx returns the grade row with the given identifier inside an
// open transaction, restricted to the given concert.  Returns
// ErrSeatGradeNotFound when absent.
func (r *SeatGradeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, concertID, id uint64) (*model.SeatGrade, error) {
	return r.getByID(ctx, tx, concertID, id)
}

func (r *SeatGradeRepo) getByID(ctx context.Context, run dbtx, concertID, id uint64) (*model.SeatGrade, error) {
	const q = `SELECT id, concert_id, grade, price, total_seat, created_at, updated_at
	           FROM seat_grades WHERE id = ? AND concert_id = ?`
	return r.scanOne(run.QueryRowContext(ctx, q, id, concertID))
}

// GetByGradeAndPrice locates a tier by the (grade, price) pair it
// currently carries.  The grade label is upper-cased before the
// lookup.  Returns ErrSeatGradeNotFound when no row matches.
func (r *SeatGradeRepo) GetByGradeAndPrice(ctx context.Context, concertID uint64, grade string, price int64) (*model.SeatGrade, error) {
	return r.getByGradeAndPrice(ctx, r.db, concertID, grade, price)
}

// GetByGradeAndPriceTx is GetByGradeAndPrice inside an open transaction.
func (r *SeatGradeRepo) GetByGradeAndPriceTx(ctx context.Context, tx *sql.Tx, concertID uint64, grade string, price int64) (*model.SeatGrade, error) {
	return r.getByGradeAndPrice(ctx, tx, concertID, grade, price)
}

func (r *SeatGradeRepo) getByGradeAndPrice(ctx context.Context, run dbtx, concertID uint64, grade string, price int64) (*model.SeatGrade, error) {
	const q = `SELECT id, concert_id, grade, price, total_seat, created_at, updated_at
	           FROM seat_grades WHERE concert_id = ? AND grade = ? AND price = ?`
	return r.scanOne(run.QueryRowContext(ctx, q, concertID, strings.ToUpper(grade), price))
}

// ListByConcert returns every tier of a concert ordered by price
// descending, ties broken by insertion order.  The ordering is a
// contract observable to callers: the most expensive tier lists first.
func (r *SeatGradeRepo) ListByConcert(ctx context.Context, concertID uint64) ([]model.SeatGrade, error) {
	const q = `SELECT id, concert_id, grade, price, total_seat, created_at, updated_at
	           FROM seat_grades WHERE concert_id = ? ORDER BY price DESC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, concertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []model.SeatGrade
	for rows.Next() {
		var sg model.SeatGrade
		if err := rows.Scan(&sg.ID, &sg.ConcertID, &sg.Grade, &sg.Price, &sg.TotalSeat, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
			return nil, err
		}
		grades = append(grades, sg)
	}
	return grades, rows.Err()
}

// UpdateTx writes the mutable fields of a grade row inside an open
// transaction.  The caller mutates the struct it loaded first, so
// absent request fields keep their previous values.  The label is
// upper-cased on the way in and a collision with another
// (grade, price) row maps to ErrSeatGradeExists.
func (r *SeatGradeRepo) UpdateTx(ctx context.Context, tx *sql.Tx, sg *model.SeatGrade) error {
	const q = `UPDATE seat_grades
	           SET grade = ?, price = ?, total_seat = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ?`
	sg.Grade = strings.ToUpper(sg.Grade)
	result, err := tx.ExecContext(ctx, q, sg.Grade, sg.Price, sg.TotalSeat, sg.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrSeatGradeExists
		}
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// RowsAffected is also zero for a no-op update; confirm the row exists.
		if _, err := r.scanOne(tx.QueryRowContext(ctx,
			`SELECT id, concert_id, grade, price, total_seat, created_at, updated_at FROM seat_grades WHERE id = ?`,
			sg.ID)); err != nil {
			return err
		}
	}
	const sel = `SELECT updated_at FROM seat_grades WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, sg.ID).Scan(&sg.UpdatedAt)
}

// DeleteAllByConcertTx removes every tier of a concert inside the
// concert-deletion transaction.
func (r *SeatGradeRepo) DeleteAllByConcertTx(ctx context.Context, tx *sql.Tx, concertID uint64) error {
	const q = `DELETE FROM seat_grades WHERE concert_id = ?`
	_, err := tx.ExecContext(ctx, q, concertID)
	return err
}

func (r *SeatGradeRepo) scanOne(row *sql.Row) (*model.SeatGrade, error) {
	var sg model.SeatGrade
	err := row.Scan(&sg.ID, &sg.ConcertID, &sg.Grade, &sg.Price, &sg.TotalSeat, &sg.CreatedAt, &sg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSeatGradeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sg, nil
}
