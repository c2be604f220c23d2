package repository

import (
	"context"
	"database/sql"

	"github.com/trove/ticket-trove/internal/model"
)

// ConcertStore bundles the concert and seat grade repositories behind
// the transactional operations the handlers need.  A concert and its
// grade tiers are created and deleted together, so those flows run in
// one transaction here rather than being stitched together by HTTP
// glue.
type ConcertStore struct {
	db       *sql.DB
	Concerts *ConcertRepo
	Grades   *SeatGradeRepo
}

// NewConcertStore returns a ConcertStore bound to the given database.
func NewConcertStore(db *sql.DB) *ConcertStore {
	return &ConcertStore{
		db:       db,
		Concerts: NewConcertRepo(db),
		Grades:   NewSeatGradeRepo(db),
	}
}

// CreateWithGrades registers a concert together with its pricing tiers
// in a single transaction.  The (name, performer) pair is pre-checked
// for a friendlier error, with the unique index as the real guard.
// A duplicate (grade, price) pair inside the submission surfaces as
// ErrSeatGradeExists and rolls the whole creation back.
func (s *ConcertStore) CreateWithGrades(ctx context.Context, c *model.Concert, grades []model.SeatGrade) error {
	exists, err := s.Concerts.ExistsByNameAndPerformer(ctx, c.ConcertName, c.Performer)
	if err != nil {
		return err
	}
	if exists {
		return ErrConcertExists
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.Concerts.CreateTx(ctx, tx, c); err != nil {
		return err
	}
	if err := s.Grades.CreateBulkTx(ctx, tx, c.ID, grades); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID returns a single concert, ErrConcertNotFound when absent.
func (s *ConcertStore) GetByID(ctx context.Context, id uint64) (*model.Concert, error) {
	return s.Concerts.GetByID(ctx, id)
}

// ListOrderByShowStart returns one zero-based page of concerts ordered
// by show start ascending.
func (s *ConcertStore) ListOrderByShowStart(ctx context.Context, page, size int) ([]model.Concert, error) {
	return s.Concerts.ListOrderByShowStart(ctx, page, size)
}

// GradeUpdate describes one tier mutation inside a concert update.
// The tier is located by its stable SeatGradeID when supplied,
// otherwise by the (PreviousGrade, PreviousPrice) pair it carried
// before the update.  Nil update fields keep their previous values.
type GradeUpdate struct {
	SeatGradeID   *uint64
	PreviousGrade *string
	PreviousPrice *int64
	Grade         *string
	Price         *int64
	TotalSeat     *int
}

// UpdateWithGrades persists mutated concert fields and the given tier
// mutations in one transaction.  Any failure, including a locator
// matching no row, rolls the whole update back: an error reply implies
// no state change.
func (s *ConcertStore) UpdateWithGrades(ctx context.Context, c *model.Concert, updates []GradeUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.Concerts.UpdateTx(ctx, tx, c); err != nil {
		return err
	}
	for _, u := range updates {
		var sg *model.SeatGrade
		switch {
		case u.SeatGradeID != nil:
			sg, err = s.Grades.GetByIDTx(ctx, tx, c.ID, *u.SeatGradeID)
		case u.PreviousGrade != nil && u.PreviousPrice != nil:
			sg, err = s.Grades.GetByGradeAndPriceTx(ctx, tx, c.ID, *u.PreviousGrade, *u.PreviousPrice)
		default:
			// Neither locator supplied; without a previous identity there
			// is no row to target.
			return ErrSeatGradeNotFound
		}
		if err != nil {
			return err
		}
		if u.Grade != nil {
			sg.Grade = *u.Grade
		}
		if u.Price != nil {
			sg.Price = *u.Price
		}
		if u.TotalSeat != nil {
			sg.TotalSeat = *u.TotalSeat
		}
		if err := s.Grades.UpdateTx(ctx, tx, sg); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// DeleteWithGrades removes a concert and all of its tiers in one
// transaction.  Returns ErrConcertNotFound when the concert is absent.
func (s *ConcertStore) DeleteWithGrades(ctx context.Context, id uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.Grades.DeleteAllByConcertTx(ctx, tx, id); err != nil {
		return err
	}
	if err := s.Concerts.DeleteTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
