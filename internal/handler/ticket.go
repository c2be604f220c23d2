package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/trove/ticket-trove/internal/logger"
	"github.com/trove/ticket-trove/internal/model"
	"github.com/trove/ticket-trove/internal/queue"
	"github.com/trove/ticket-trove/internal/repository"
	queue_publisher "github.com/trove/ticket-trove/internal/service"
)

// TicketStore is the authoritative seat store surface the handler
// uses.  Implemented by repository.TicketRepo.  Insert must be atomic
// with respect to concurrent inserts of the same seat: at most one
// succeeds, the rest return ErrSeatTaken.
type TicketStore interface {
	Insert(ctx context.Context, t *model.Ticket) error
	SoftDelete(ctx context.Context, concertID uint64, grade string, seatNumber int, email string) error
	FindActive(ctx context.Context, concertID uint64, grade string, seatNumber int, email string) (*model.TicketDetail, error)
	ListActiveByConcert(ctx context.Context, concertID uint64) ([]model.TicketDetail, error)
}

// TicketMirror is the cache mirror surface the handler uses.
// Implemented by cache.TicketCache.  All calls are advisory: a mirror
// failure never fails the store operation that preceded it.
type TicketMirror interface {
	Save(ctx context.Context, d model.TicketDetail) error
	Get(ctx context.Context, concertID uint64, email, grade string, seatNumber int) (*model.TicketDetail, error)
	Entries(ctx context.Context, concertID uint64) (map[string]model.TicketDetail, error)
	Delete(ctx context.Context, concertID uint64, email, grade string, seatNumber int) error
	Rebuild(ctx context.Context, concertID uint64, details []model.TicketDetail) error
}

// TicketHandler implements purchase, cancellation and read endpoints
// for tickets.  The flow on every write: resolve references, hit the
// authoritative store (whose unique index serializes conflicting
// writes), then mirror the outcome into the cache and publish an
// event, both best effort.
type TicketHandler struct {
	Concerts ConcertDirectory
	Grades   GradeLedger
	Tickets  TicketStore
	Mirror   TicketMirror // nil when Redis is unavailable; reads fall through to the store

	// Publish hooks default to the RabbitMQ publisher; tests replace them.
	PublishPurchased func(ctx context.Context, ev queue.TicketPurchasedEvent) error
	PublishCancelled func(ctx context.Context, ev queue.TicketCancelledEvent) error
}

// NewTicketHandler constructs a TicketHandler with the provided
// dependencies.  Concerts, Grades and Tickets must be non-nil; Mirror
// may be nil to run without the cache.
func NewTicketHandler(concerts ConcertDirectory, grades GradeLedger, tickets TicketStore, mirror TicketMirror) *TicketHandler {
	if concerts == nil || grades == nil || tickets == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	return &TicketHandler{
		Concerts:         concerts,
		Grades:           grades,
		Tickets:          tickets,
		Mirror:           mirror,
		PublishPurchased: queue_publisher.PublishTicketPurchased,
		PublishCancelled: queue_publisher.PublishTicketCancelled,
	}
}

type ticketPurchaseRequest struct {
	ConcertID  uint64 `json:"concert_id"`
	SeatGrade  string `json:"seat_grade"`
	Price      int64  `json:"price"`
	SeatNumber int    `json:"seat_number"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

type ticketCancelRequest struct {
	ConcertID  uint64 `json:"concert_id"`
	SeatGrade  string `json:"seat_grade"`
	SeatNumber int    `json:"seat_number"`
	Email      string `json:"email"`
}

// Purchase handles POST /api/v1/ticket.  The grade is identified by
// its (label, price) pair within the concert.  The seat itself is the
// uniqueness key: a second purchase of the same (concert, grade, seat)
// is rejected with 409 no matter who the buyer is, because the insert
// runs into the store's unique index rather than a check-then-insert.
func (h *TicketHandler) Purchase(c echo.Context) error {
	var body ticketPurchaseRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ConcertID == 0 || body.SeatGrade == "" || body.Email == "" || body.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "concert_id, seat_grade, name and email are required"})
	}
	ctx := c.Request().Context()
	concert, err := h.Concerts.GetByID(ctx, body.ConcertID)
	if err != nil {
		if errors.Is(err, repository.ErrConcertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	grade, err := h.Grades.GetByGradeAndPrice(ctx, concert.ID, body.SeatGrade, body.Price)
	if err != nil {
		if errors.Is(err, repository.ErrSeatGradeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seat grade not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if body.SeatNumber < 1 || body.SeatNumber > grade.TotalSeat {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat number out of range for grade"})
	}
	ticket := model.Ticket{
		ConcertID:   concert.ID,
		SeatGradeID: grade.ID,
		BuyerName:   body.Name,
		BuyerEmail:  body.Email,
		SeatNumber:  body.SeatNumber,
	}
	if err := h.Tickets.Insert(ctx, &ticket); err != nil {
		if errors.Is(err, repository.ErrSeatTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat already taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	detail := model.NewTicketDetail(&ticket, concert, grade)
	if h.Mirror != nil {
		// The ticket is already durable; a mirror failure only costs read
		// latency until the next reconcile.
		if err := h.Mirror.Save(ctx, detail); err != nil {
			logger.Warn("ticket mirror write failed",
				zap.Uint64("concert_id", concert.ID), zap.Int("seat", ticket.SeatNumber), zap.Error(err))
		}
	}
	// Best effort: the publisher logs its own failures.
	_ = h.PublishPurchased(ctx, queue.TicketPurchasedEvent{
		TicketID:    ticket.ID,
		ConcertID:   concert.ID,
		ConcertName: concert.ConcertName,
		Performer:   concert.Performer,
		Grade:       grade.Grade,
		SeatNumber:  ticket.SeatNumber,
		Price:       grade.Price,
		BuyerName:   ticket.BuyerName,
		BuyerEmail:  ticket.BuyerEmail,
		PurchasedAt: ticket.CreatedAt.UTC().Format(time.RFC3339),
	})
	return c.JSON(http.StatusCreated, detail)
}

// Cancel handles DELETE /api/v1/ticket.  The ticket is located by
// (concert, grade label, seat, buyer email) and soft-deleted: the row
// stays for audit while every active-row read stops seeing it.
// Cancelling a ticket that is absent or already cancelled returns 404.
func (h *TicketHandler) Cancel(c echo.Context) error {
	var body ticketCancelRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ConcertID == 0 || body.SeatGrade == "" || body.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "concert_id, seat_grade and email are required"})
	}
	ctx := c.Request().Context()
	if err := h.Tickets.SoftDelete(ctx, body.ConcertID, body.SeatGrade, body.SeatNumber, body.Email); err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if h.Mirror != nil {
		if err := h.Mirror.Delete(ctx, body.ConcertID, body.Email, body.SeatGrade, body.SeatNumber); err != nil {
			logger.Warn("ticket mirror delete failed",
				zap.Uint64("concert_id", body.ConcertID), zap.Int("seat", body.SeatNumber), zap.Error(err))
		}
	}
	_ = h.PublishCancelled(ctx, queue.TicketCancelledEvent{
		ConcertID:   body.ConcertID,
		Grade:       body.SeatGrade,
		SeatNumber:  body.SeatNumber,
		BuyerEmail:  body.Email,
		CancelledAt: time.Now().UTC().Format(time.RFC3339),
	})
	return c.JSON(http.StatusOK, echo.Map{"status": "cancelled"})
}

// GetTicket handles GET /api/v1/ticket.  The lookup key arrives as
// query parameters.  The mirror answers first; a miss falls through to
// the store (a miss is a signal to consult the source of truth, never
// to backfill the cache here).
func (h *TicketHandler) GetTicket(c echo.Context) error {
	concertID, err := strconv.ParseUint(c.QueryParam("concert_id"), 10, 64)
	if err != nil || concertID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid concert_id"})
	}
	grade := c.QueryParam("seat_grade")
	email := c.QueryParam("email")
	seatNumber, err := strconv.Atoi(c.QueryParam("seat_number"))
	if grade == "" || email == "" || err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_grade, seat_number and email are required"})
	}
	ctx := c.Request().Context()
	if h.Mirror != nil {
		d, err := h.Mirror.Get(ctx, concertID, email, grade, seatNumber)
		if err != nil {
			logger.Warn("ticket mirror read failed",
				zap.Uint64("concert_id", concertID), zap.Int("seat", seatNumber), zap.Error(err))
		} else if d != nil {
			return c.JSON(http.StatusOK, d)
		}
	}
	d, err := h.Tickets.FindActive(ctx, concertID, grade, seatNumber, email)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, d)
}

// ListConcertTickets handles GET /api/v1/ticket/concert/:concertId.
// The whole seat map of a concert comes from one mirror hash when
// available, otherwise from the store.  The store path does not
// backfill the mirror; Reconcile exists for that.
func (h *TicketHandler) ListConcertTickets(c echo.Context) error {
	concertID, err := strconv.ParseUint(c.Param("concertId"), 10, 64)
	if err != nil || concertID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid concert id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Concerts.GetByID(ctx, concertID); err != nil {
		if errors.Is(err, repository.ErrConcertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if h.Mirror != nil {
		entries, err := h.Mirror.Entries(ctx, concertID)
		if err != nil {
			logger.Warn("ticket mirror read failed",
				zap.Uint64("concert_id", concertID), zap.Error(err))
		} else if len(entries) > 0 {
			return c.JSON(http.StatusOK, echo.Map{
				"concert_id": concertID,
				"source":     "cache",
				"tickets":    entries,
			})
		}
	}
	details, err := h.Tickets.ListActiveByConcert(ctx, concertID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"concert_id": concertID,
		"source":     "store",
		"tickets":    details,
	})
}

// Reconcile handles POST /api/v1/ticket/concert/:concertId/reconcile.
// It rebuilds the concert's mirror hash from the authoritative store,
// repairing any divergence left by a crash between a store commit and
// the matching mirror write.
func (h *TicketHandler) Reconcile(c echo.Context) error {
	concertID, err := strconv.ParseUint(c.Param("concertId"), 10, 64)
	if err != nil || concertID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid concert id"})
	}
	if h.Mirror == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "cache unavailable"})
	}
	ctx := c.Request().Context()
	if _, err := h.Concerts.GetByID(ctx, concertID); err != nil {
		if errors.Is(err, repository.ErrConcertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	details, err := h.Tickets.ListActiveByConcert(ctx, concertID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if err := h.Mirror.Rebuild(ctx, concertID, details); err != nil {
		logger.Error("ticket mirror rebuild failed", zap.Uint64("concert_id", concertID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cache rebuild failed"})
	}
	logger.Info("ticket mirror rebuilt", zap.Uint64("concert_id", concertID), zap.Int("tickets", len(details)))
	return c.JSON(http.StatusOK, echo.Map{
		"concert_id": concertID,
		"rebuilt":    len(details),
	})
}
