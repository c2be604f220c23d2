package handler

import (
	"context"       // handler methods pass request contexts to the stores
	"errors"        // for errors.Is comparisons against repository sentinels
	"net/http"      // HTTP status codes
	"strconv"       // parsing path and query parameters
	"time"          // show and ticketing timestamps

	"github.com/labstack/echo/v4"

	"github.com/trove/ticket-trove/internal/model"
	"github.com/trove/ticket-trove/internal/repository"
)

// ConcertDirectory is the slice of the concert store the handlers use:
// transactional create/delete of a concert with its tiers plus plain
// lookups.  Implemented by repository.ConcertStore.
type ConcertDirectory interface {
	CreateWithGrades(ctx context.Context, c *model.Concert, grades []model.SeatGrade) error
	GetByID(ctx context.Context, id uint64) (*model.Concert, error)
	ListOrderByShowStart(ctx context.Context, page, size int) ([]model.Concert, error)
	UpdateWithGrades(ctx context.Context, c *model.Concert, updates []repository.GradeUpdate) error
	DeleteWithGrades(ctx context.Context, id uint64) error
}

// GradeLedger is the seat grade repository surface the handlers use.
// Implemented by repository.SeatGradeRepo.
type GradeLedger interface {
	GetByGradeAndPrice(ctx context.Context, concertID uint64, grade string, price int64) (*model.SeatGrade, error)
	ListByConcert(ctx context.Context, concertID uint64) ([]model.SeatGrade, error)
}

// ConcertMirror is the slice of the ticket cache mirror the concert
// handler needs: dropping a whole concert hash when the concert goes
// away.  May be nil when Redis is unavailable.
type ConcertMirror interface {
	Drop(ctx context.Context, concertID uint64) error
}

// ConcertHandler implements the concert CRUD endpoints.  Concerts are
// created together with their seat grades, listed with pagination
// ordered by show start, patched partially (including grade updates by
// stable ID or by previous grade/price pair) and deleted together with
// their grades.
type ConcertHandler struct {
	Store  ConcertDirectory
	Grades GradeLedger
	Mirror ConcertMirror // optional; nil disables cache cleanup on delete
}

// NewConcertHandler constructs a ConcertHandler with the provided
// dependencies.  Store and Grades must be non-nil; Mirror may be nil.
func NewConcertHandler(store ConcertDirectory, grades GradeLedger, mirror ConcertMirror) *ConcertHandler {
	if store == nil || grades == nil {
		panic("nil dependency passed to NewConcertHandler")
	}
	return &ConcertHandler{Store: store, Grades: grades, Mirror: mirror}
}

type gradeCreateRequest struct {
	Grade     string `json:"grade"`
	Price     int64  `json:"price"`
	TotalSeat int    `json:"total_seat"`
}

type concertCreateRequest struct {
	ConcertName   string               `json:"concert_name"`
	Performer     string               `json:"performer"`
	ShowStart     time.Time            `json:"show_start"`
	ShowEnd       time.Time            `json:"show_end"`
	TicketingTime time.Time            `json:"ticketing_time"`
	GradeTypes    []gradeCreateRequest `json:"grade_types"`
}

type gradeUpdateRequest struct {
	SeatGradeID     *uint64 `json:"seat_grade_id"`
	PreviousGrade   *string `json:"previous_grade"`
	PreviousPrice   *int64  `json:"previous_price"`
	UpdateGrade     *string `json:"update_grade"`
	UpdatePrice     *int64  `json:"update_price"`
	UpdateTotalSeat *int    `json:"update_total_seat"`
}

type concertUpdateRequest struct {
	ConcertID     uint64               `json:"concert_id"`
	ConcertName   *string              `json:"concert_name"`
	Performer     *string              `json:"performer"`
	ShowStart     *time.Time           `json:"show_start"`
	ShowEnd       *time.Time           `json:"show_end"`
	TicketingTime *time.Time           `json:"ticketing_time"`
	GradeTypes    []gradeUpdateRequest `json:"grade_types"`
}

type gradeResponse struct {
	ID        uint64 `json:"seat_grade_id"`
	Grade     string `json:"grade"`
	Price     int64  `json:"price"`
	TotalSeat int    `json:"total_seat"`
}

type concertResponse struct {
	ID            uint64    `json:"concert_id"`
	ConcertName   string    `json:"concert_name"`
	Performer     string    `json:"performer"`
	ShowStart     time.Time `json:"show_start"`
	ShowEnd       time.Time `json:"show_end"`
	TicketingTime time.Time `json:"ticketing_time"`
}

type concertDetailResponse struct {
	concertResponse
	GradeTypes []gradeResponse `json:"grade_types"`
}

func toConcertResponse(c *model.Concert) concertResponse {
	return concertResponse{
		ID:            c.ID,
		ConcertName:   c.ConcertName,
		Performer:     c.Performer,
		ShowStart:     c.ShowStart,
		ShowEnd:       c.ShowEnd,
		TicketingTime: c.TicketingTime,
	}
}

func toGradeResponses(grades []model.SeatGrade) []gradeResponse {
	out := make([]gradeResponse, 0, len(grades))
	for _, sg := range grades {
		out = append(out, gradeResponse{ID: sg.ID, Grade: sg.Grade, Price: sg.Price, TotalSeat: sg.TotalSeat})
	}
	return out
}

// CreateConcert handles POST /api/v1/concert.  The request carries the
// concert fields plus its grade tiers, which are defined together in
// one transaction.  Duplicate (name, performer) pairs and duplicate
// (grade, price) tiers are rejected with 409.
func (h *ConcertHandler) CreateConcert(c echo.Context) error {
	var body concertCreateRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ConcertName == "" || body.Performer == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "concert_name and performer are required"})
	}
	if body.ShowStart.IsZero() || body.ShowEnd.IsZero() || body.TicketingTime.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show_start, show_end and ticketing_time are required"})
	}
	if len(body.GradeTypes) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "grade_types is required"})
	}
	grades := make([]model.SeatGrade, 0, len(body.GradeTypes))
	for _, g := range body.GradeTypes {
		if g.Grade == "" || g.Price < 0 || g.TotalSeat <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "each grade needs a label, a non-negative price and a positive total_seat"})
		}
		grades = append(grades, model.SeatGrade{Grade: g.Grade, Price: g.Price, TotalSeat: g.TotalSeat})
	}
	concert := model.Concert{
		ConcertName:   body.ConcertName,
		Performer:     body.Performer,
		ShowStart:     body.ShowStart,
		ShowEnd:       body.ShowEnd,
		TicketingTime: body.TicketingTime,
	}
	ctx := c.Request().Context()
	if err := h.Store.CreateWithGrades(ctx, &concert, grades); err != nil {
		switch {
		case errors.Is(err, repository.ErrConcertExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "concert already exists"})
		case errors.Is(err, repository.ErrSeatGradeExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate seat grade definition"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	stored, err := h.Grades.ListByConcert(ctx, concert.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, concertDetailResponse{
		concertResponse: toConcertResponse(&concert),
		GradeTypes:      toGradeResponses(stored),
	})
}

// ListConcerts handles GET /api/v1/concert.  Results are paginated via
// zero-based ?page and ?size query parameters (defaults 0 and 3, the
// sizes the mobile client asks for) and ordered by show start
// ascending.
func (h *ConcertHandler) ListConcerts(c echo.Context) error {
	page := queryInt(c, "page", 0)
	size := queryInt(c, "size", 3)
	if page < 0 {
		page = 0
	}
	if size < 1 || size > 100 {
		size = 3
	}
	concerts, err := h.Store.ListOrderByShowStart(c.Request().Context(), page, size)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]concertResponse, 0, len(concerts))
	for i := range concerts {
		out = append(out, toConcertResponse(&concerts[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// GetConcert handles GET /api/v1/concert/:concertId.  The response
// includes the concert's grade tiers ordered by price descending.
func (h *ConcertHandler) GetConcert(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("concertId"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid concert id"})
	}
	ctx := c.Request().Context()
	concert, err := h.Store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrConcertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	grades, err := h.Grades.ListByConcert(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, concertDetailResponse{
		concertResponse: toConcertResponse(concert),
		GradeTypes:      toGradeResponses(grades),
	})
}

// UpdateConcert handles PATCH /api/v1/concert.  Concert fields are
// applied partially; grade entries are located by their stable
// seat_grade_id when supplied, otherwise by the previous
// (grade, price) pair they carried before the update.  An entry with
// neither locator fails with 404, as does a previous pair that matches
// no row.  The whole update runs in one store transaction: an error
// reply means nothing was persisted, concert fields included.
func (h *ConcertHandler) UpdateConcert(c echo.Context) error {
	var body concertUpdateRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ConcertID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "concert_id is required"})
	}
	ctx := c.Request().Context()
	concert, err := h.Store.GetByID(ctx, body.ConcertID)
	if err != nil {
		if errors.Is(err, repository.ErrConcertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if body.ConcertName != nil {
		concert.ConcertName = *body.ConcertName
	}
	if body.Performer != nil {
		concert.Performer = *body.Performer
	}
	if body.ShowStart != nil {
		concert.ShowStart = *body.ShowStart
	}
	if body.ShowEnd != nil {
		concert.ShowEnd = *body.ShowEnd
	}
	if body.TicketingTime != nil {
		concert.TicketingTime = *body.TicketingTime
	}
	updates := make([]repository.GradeUpdate, 0, len(body.GradeTypes))
	for _, g := range body.GradeTypes {
		updates = append(updates, repository.GradeUpdate{
			SeatGradeID:   g.SeatGradeID,
			PreviousGrade: g.PreviousGrade,
			PreviousPrice: g.PreviousPrice,
			Grade:         g.UpdateGrade,
			Price:         g.UpdatePrice,
			TotalSeat:     g.UpdateTotalSeat,
		})
	}
	if err := h.Store.UpdateWithGrades(ctx, concert, updates); err != nil {
		switch {
		case errors.Is(err, repository.ErrConcertExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "concert already exists"})
		case errors.Is(err, repository.ErrSeatGradeNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seat grade not found"})
		case errors.Is(err, repository.ErrSeatGradeExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate seat grade definition"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	grades, err := h.Grades.ListByConcert(ctx, concert.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, concertDetailResponse{
		concertResponse: toConcertResponse(concert),
		GradeTypes:      toGradeResponses(grades),
	})
}

// DeleteConcert handles DELETE /api/v1/concert/:concertId.  The
// concert and its tiers are removed in one transaction; the concert's
// cache mirror hash is dropped afterwards, best effort.
func (h *ConcertHandler) DeleteConcert(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("concertId"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid concert id"})
	}
	ctx := c.Request().Context()
	if err := h.Store.DeleteWithGrades(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConcertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "concert not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if h.Mirror != nil {
		// Advisory cleanup; the store already forgot the concert.
		_ = h.Mirror.Drop(ctx, id)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "deleted"})
}

// queryInt parses an integer query parameter, falling back to def when
// absent or malformed.
func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
