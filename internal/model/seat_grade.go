package model

import "time"

// SeatGrade is a pricing tier of a concert (e.g. VIP, R, GENERAL).
// Grade labels are stored upper-cased.  Within one concert the
// (Grade, Price) pair is unique, so a tier can be located either by
// its stable ID or by the pair it carried before an update.
//
// Fields:
//  ID        – primary key identifier.
//  ConcertID – the concert this tier belongs to.
//  Grade     – upper-cased tier label.
//  Price     – price per seat for this tier.
//  TotalSeat – number of seats sold under this tier.
//  CreatedAt – timestamp when the record was created.
//  UpdatedAt – timestamp when the record was last updated.
type SeatGrade struct {
	ID        uint64    // seat_grades.id
	ConcertID uint64    // seat_grades.concert_id
	Grade     string    // seat_grades.grade
	Price     int64     // seat_grades.price
	TotalSeat int       // seat_grades.total_seat
	CreatedAt time.Time // seat_grades.created_at
	UpdatedAt time.Time // seat_grades.updated_at
}
