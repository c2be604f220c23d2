package model

import "time"

// Ticket is the authoritative record of one sold seat.  A ticket is
// never removed by the application: cancellation sets DeletedAt and
// every active-row query filters on deleted_at IS NULL.  The seat
// itself, the tuple (ConcertID, SeatGradeID, SeatNumber), is unique
// among active tickets; buyer identity is payload, not part of the
// key, so one physical seat can never be sold twice.
//
// Fields:
//  ID          – primary key identifier.
//  ConcertID   – the concert the seat belongs to.
//  SeatGradeID – the pricing tier the seat was bought under.
//  BuyerName   – display name of the buyer.
//  BuyerEmail  – email identifying the buyer.
//  SeatNumber  – seat number within the grade, 1-based.
//  CreatedAt   – purchase timestamp.
//  UpdatedAt   – last mutation timestamp.
//  DeletedAt   – cancellation timestamp; nil while the ticket is live.
type Ticket struct {
	ID          uint64     // tickets.id
	ConcertID   uint64     // tickets.concert_id
	SeatGradeID uint64     // tickets.seat_grade_id
	BuyerName   string     // tickets.buyer_name
	BuyerEmail  string     // tickets.buyer_email
	SeatNumber  int        // tickets.seat_number
	CreatedAt   time.Time  // tickets.created_at
	UpdatedAt   time.Time  // tickets.updated_at
	DeletedAt   *time.Time // tickets.deleted_at (nullable)
}

// TicketDetail is the flattened snapshot of a ticket joined with its
// concert and seat grade at write time.  It is what the cache mirror
// stores per seat and what ticket endpoints return, so a read served
// from Redis is indistinguishable from one served from MySQL.
type TicketDetail struct {
	TicketID   uint64     `json:"ticket_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	ConcertID  uint64     `json:"concert_id"`
	Concert    string     `json:"concert_name"`
	Performer  string     `json:"performer"`
	Grade      string     `json:"grade"`
	SeatNumber int        `json:"seat_number"`
	Price      int64      `json:"price"`
	ShowStart  time.Time  `json:"show_start"`
	ShowEnd    time.Time  `json:"show_end"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// NewTicketDetail flattens a ticket with the concert and grade rows it
// references.  Callers pass the rows they already resolved during the
// purchase so no additional queries are needed.
func NewTicketDetail(t *Ticket, c *Concert, sg *SeatGrade) TicketDetail {
	return TicketDetail{
		TicketID:   t.ID,
		Name:       t.BuyerName,
		Email:      t.BuyerEmail,
		ConcertID:  c.ID,
		Concert:    c.ConcertName,
		Performer:  c.Performer,
		Grade:      sg.Grade,
		SeatNumber: t.SeatNumber,
		Price:      sg.Price,
		ShowStart:  c.ShowStart,
		ShowEnd:    c.ShowEnd,
		CreatedAt:  t.CreatedAt,
		DeletedAt:  t.DeletedAt,
	}
}
