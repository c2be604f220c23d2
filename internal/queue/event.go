// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names for ticket lifecycle events.
const (
	PurchasedQueue = "ticket.purchased"
	CancelledQueue = "ticket.cancelled"
)

// TicketPurchasedEvent is published after a purchase is durable in the
// ticket store.  It carries enough information for downstream
// consumers to log, notify, or trigger analytics without querying the
// primary database.
type TicketPurchasedEvent struct {
	TicketID    uint64 `json:"ticket_id"`
	ConcertID   uint64 `json:"concert_id"`
	ConcertName string `json:"concert_name"`
	Performer   string `json:"performer"`
	Grade       string `json:"grade"`
	SeatNumber  int    `json:"seat_number"`
	Price       int64  `json:"price"`
	BuyerName   string `json:"buyer_name"`
	BuyerEmail  string `json:"buyer_email"`
	PurchasedAt string `json:"purchased_at"`
}

// TicketCancelledEvent is published after a ticket has been
// soft-deleted in the store and removed from the cache mirror.
type TicketCancelledEvent struct {
	ConcertID   uint64 `json:"concert_id"`
	Grade       string `json:"grade"`
	SeatNumber  int    `json:"seat_number"`
	BuyerEmail  string `json:"buyer_email"`
	CancelledAt string `json:"cancelled_at"`
}
