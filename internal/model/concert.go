package model

import "time"

// Concert describes a live event that tickets can be sold for.
// A concert owns a set of seat grades which define its pricing
// tiers.  The (ConcertName, Performer) pair is unique so the same
// artist cannot register the same show twice.
//
// Fields:
//  ID            – primary key identifier.
//  ConcertName   – title of the show.
//  Performer     – artist or group performing.
//  ShowStart     – when the show begins.
//  ShowEnd       – when the show ends.
//  TicketingTime – when ticket sales open.
//  CreatedAt     – timestamp when the record was created.
//  UpdatedAt     – timestamp when the record was last updated.
type Concert struct {
	ID            uint64    // concerts.id
	ConcertName   string    // concerts.concert_name
	Performer     string    // concerts.performer
	ShowStart     time.Time // concerts.show_start
	ShowEnd       time.Time // concerts.show_end
	TicketingTime time.Time // concerts.ticketing_time
	CreatedAt     time.Time // concerts.created_at
	UpdatedAt     time.Time // concerts.updated_at
}
