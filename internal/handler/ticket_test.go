package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trove/ticket-trove/internal/model"
	"github.com/trove/ticket-trove/internal/queue"
)

type ticketFixture struct {
	concerts *ConcertHandler
	tickets  *TicketHandler
	store    *fakeTicketStore
	mirror   *fakeMirror

	mu        sync.Mutex
	purchased []queue.TicketPurchasedEvent
	cancelled []queue.TicketCancelledEvent
}

func newTicketFixture(t *testing.T) *ticketFixture {
	ledger := newFakeLedger()
	directory := newFakeDirectory(ledger)
	mirror := newFakeMirror()
	store := newFakeTicketStore(directory, ledger)

	f := &ticketFixture{
		concerts: NewConcertHandler(directory, ledger, mirror),
		tickets:  NewTicketHandler(directory, ledger, store, mirror),
		store:    store,
		mirror:   mirror,
	}
	f.tickets.PublishPurchased = func(ctx context.Context, ev queue.TicketPurchasedEvent) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.purchased = append(f.purchased, ev)
		return nil
	}
	f.tickets.PublishCancelled = func(ctx context.Context, ev queue.TicketCancelledEvent) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled = append(f.cancelled, ev)
		return nil
	}

	rec := doJSON(f.concerts.CreateConcert, http.MethodPost, "/api/v1/concert", solsticeBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return f
}

func purchaseBody(seat int, name, email string) string {
	return fmt.Sprintf(`{"concert_id":1,"seat_grade":"VIP","price":50000,"seat_number":%d,"name":%q,"email":%q}`, seat, name, email)
}

func cancelBody(seat int, email string) string {
	return fmt.Sprintf(`{"concert_id":1,"seat_grade":"VIP","seat_number":%d,"email":%q}`, seat, email)
}

func TestPurchaseWritesStoreMirrorAndEvent(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(3, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var detail model.TicketDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "Solstice", detail.Concert)
	assert.Equal(t, "Aria", detail.Performer)
	assert.Equal(t, "VIP", detail.Grade)
	assert.Equal(t, int64(50000), detail.Price)
	assert.Equal(t, 3, detail.SeatNumber)
	assert.NotZero(t, detail.TicketID)

	mirrored, err := f.mirror.Get(context.Background(), 1, "alice@example.com", "VIP", 3)
	require.NoError(t, err)
	require.NotNil(t, mirrored, "the purchase must be mirrored write-through")
	assert.Equal(t, detail.TicketID, mirrored.TicketID)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.purchased, 1)
	assert.Equal(t, "alice@example.com", f.purchased[0].BuyerEmail)
}

func TestPurchaseReferenceErrors(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket",
		`{"concert_id":42,"seat_grade":"VIP","price":50000,"seat_number":1,"name":"a","email":"a@b.c"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown concert")

	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket",
		`{"concert_id":1,"seat_grade":"VIP","price":12345,"seat_number":1,"name":"a","email":"a@b.c"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "price does not identify a tier")

	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(21, "a", "a@b.c"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "VIP has 20 seats")

	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(0, "a", "a@b.c"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "seats are 1-based")
}

func TestPurchaseSameSeatConflictsForAnyBuyer(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(3, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Same buyer retrying and a different buyer racing for the seat are
	// the same case: the seat is the key, the buyer is payload.
	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(3, "alice", "alice@example.com"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(3, "bob", "bob@example.com"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A different seat in the same grade is still free.
	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(4, "bob", "bob@example.com"), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestConcurrentPurchasesSingleWinner(t *testing.T) {
	f := newTicketFixture(t)

	const buyers = 16
	codes := make([]int, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := purchaseBody(7, fmt.Sprintf("buyer%d", i), fmt.Sprintf("buyer%d@example.com", i))
			rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", body, nil)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	created, conflicted := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicted++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, created, "exactly one buyer wins the seat")
	assert.Equal(t, buyers-1, conflicted)
}

func TestCancelThenResellAndMirrorRemoval(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(5, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(f.tickets.Cancel, http.MethodDelete, "/api/v1/ticket", cancelBody(5, "alice@example.com"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	mirrored, err := f.mirror.Get(context.Background(), 1, "alice@example.com", "VIP", 5)
	require.NoError(t, err)
	assert.Nil(t, mirrored, "cancellation removes the mirror entry")

	// Cancelling again finds no active ticket.
	rec = doJSON(f.tickets.Cancel, http.MethodDelete, "/api/v1/ticket", cancelBody(5, "alice@example.com"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The freed seat is sellable again.
	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(5, "bob", "bob@example.com"), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.cancelled, 1)
	assert.Equal(t, "alice@example.com", f.cancelled[0].BuyerEmail)
}

func TestCancelWrongBuyerOrGrade(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(5, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(f.tickets.Cancel, http.MethodDelete, "/api/v1/ticket", cancelBody(5, "bob@example.com"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another buyer cannot cancel the ticket")

	rec = doJSON(f.tickets.Cancel, http.MethodDelete, "/api/v1/ticket",
		`{"concert_id":1,"seat_grade":"R","seat_number":5,"email":"alice@example.com"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "grade label must match")
}

func TestGetTicketServedFromMirror(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(2, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(f.tickets.GetTicket, http.MethodGet,
		"/api/v1/ticket?concert_id=1&seat_grade=VIP&seat_number=2&email=alice@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail model.TicketDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 2, detail.SeatNumber)
}

func TestGetTicketFallsThroughToStore(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(2, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Erase the mirror entry to force the store path.
	require.NoError(t, f.mirror.Delete(context.Background(), 1, "alice@example.com", "VIP", 2))

	rec = doJSON(f.tickets.GetTicket, http.MethodGet,
		"/api/v1/ticket?concert_id=1&seat_grade=VIP&seat_number=2&email=alice@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A miss answers from the store without repairing the mirror.
	mirrored, err := f.mirror.Get(context.Background(), 1, "alice@example.com", "VIP", 2)
	require.NoError(t, err)
	assert.Nil(t, mirrored)
}

func TestGetTicketNotFound(t *testing.T) {
	f := newTicketFixture(t)
	rec := doJSON(f.tickets.GetTicket, http.MethodGet,
		"/api/v1/ticket?concert_id=1&seat_grade=VIP&seat_number=9&email=ghost@example.com", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConcertTicketsPrefersMirror(t *testing.T) {
	f := newTicketFixture(t)

	for seat := 1; seat <= 3; seat++ {
		rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket",
			purchaseBody(seat, "alice", "alice@example.com"), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(f.tickets.ListConcertTickets, http.MethodGet, "/api/v1/ticket/concert/1", "",
		map[string]string{"concertId": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Source  string                        `json:"source"`
		Tickets map[string]model.TicketDetail `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cache", resp.Source)
	assert.Len(t, resp.Tickets, 3)
}

func TestListConcertTicketsStoreFallback(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(1, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, f.mirror.Drop(context.Background(), 1))

	rec = doJSON(f.tickets.ListConcertTickets, http.MethodGet, "/api/v1/ticket/concert/1", "",
		map[string]string{"concertId": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Source  string               `json:"source"`
		Tickets []model.TicketDetail `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "store", resp.Source)
	require.Len(t, resp.Tickets, 1)
}

func TestMirrorFailureDoesNotFailPurchase(t *testing.T) {
	f := newTicketFixture(t)
	f.mirror.failing = true

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(3, "alice", "alice@example.com"), nil)
	assert.Equal(t, http.StatusCreated, rec.Code, "the store write already succeeded")

	f.mirror.failing = false
	// The ticket is durable even though the mirror missed it.
	rec = doJSON(f.tickets.GetTicket, http.MethodGet,
		"/api/v1/ticket?concert_id=1&seat_grade=VIP&seat_number=3&email=alice@example.com", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetTicketMirrorErrorFallsThroughToStore(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(4, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// A broken mirror degrades reads to the store, it does not fail them.
	f.mirror.failing = true
	rec = doJSON(f.tickets.GetTicket, http.MethodGet,
		"/api/v1/ticket?concert_id=1&seat_grade=VIP&seat_number=4&email=alice@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail model.TicketDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 4, detail.SeatNumber)

	rec = doJSON(f.tickets.ListConcertTickets, http.MethodGet, "/api/v1/ticket/concert/1", "",
		map[string]string{"concertId": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "store", resp.Source)
}

func TestReconcileRebuildsDivergedMirror(t *testing.T) {
	f := newTicketFixture(t)

	rec := doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(1, "alice", "alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(f.tickets.Purchase, http.MethodPost, "/api/v1/ticket", purchaseBody(2, "bob", "bob@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Simulate a crash between store commit and mirror write: the mirror
	// has a stale extra entry and is missing a real one.
	require.NoError(t, f.mirror.Delete(context.Background(), 1, "bob@example.com", "VIP", 2))
	require.NoError(t, f.mirror.Save(context.Background(), model.TicketDetail{
		ConcertID: 1, Email: "ghost@example.com", Grade: "VIP", SeatNumber: 19,
	}))

	rec = doJSON(f.tickets.Reconcile, http.MethodPost, "/api/v1/ticket/concert/1/reconcile", "",
		map[string]string{"concertId": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rebuilt int `json:"rebuilt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Rebuilt)

	entries, err := f.mirror.Entries(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	ghost, err := f.mirror.Get(context.Background(), 1, "ghost@example.com", "VIP", 19)
	require.NoError(t, err)
	assert.Nil(t, ghost, "stale entries are gone after the rebuild")
	restored, err := f.mirror.Get(context.Background(), 1, "bob@example.com", "VIP", 2)
	require.NoError(t, err)
	assert.NotNil(t, restored, "missing entries are restored")
}

func TestReconcileWithoutMirror(t *testing.T) {
	ledger := newFakeLedger()
	directory := newFakeDirectory(ledger)
	store := newFakeTicketStore(directory, ledger)
	h := NewTicketHandler(directory, ledger, store, nil)

	rec := doJSON(h.Reconcile, http.MethodPost, "/api/v1/ticket/concert/1/reconcile", "",
		map[string]string{"concertId": "1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
