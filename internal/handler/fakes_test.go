package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trove/ticket-trove/internal/model"
	"github.com/trove/ticket-trove/internal/repository"
)

// The fakes below implement the handler dependency interfaces with the
// same contracts as the real repositories: sentinel errors, upper-cased
// grade labels, uniqueness on the seat tuple made atomic under a mutex,
// and listGrades ordered price descending.

type fakeDirectory struct {
	mu       sync.Mutex
	nextID   uint64
	concerts map[uint64]*model.Concert
	grades   *fakeLedger
}

func newFakeDirectory(grades *fakeLedger) *fakeDirectory {
	return &fakeDirectory{nextID: 1, concerts: make(map[uint64]*model.Concert), grades: grades}
}

func (f *fakeDirectory) CreateWithGrades(ctx context.Context, c *model.Concert, grades []model.SeatGrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.concerts {
		if existing.ConcertName == c.ConcertName && existing.Performer == c.Performer {
			return repository.ErrConcertExists
		}
	}
	c.ID = f.nextID
	f.nextID++
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	f.concerts[c.ID] = &cp
	if err := f.grades.defineGrades(c.ID, grades); err != nil {
		// Mimic the store transaction: a tier conflict rolls the whole
		// creation back.
		delete(f.concerts, c.ID)
		f.grades.deleteByConcert(c.ID)
		return err
	}
	return nil
}

func (f *fakeDirectory) GetByID(ctx context.Context, id uint64) (*model.Concert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.concerts[id]
	if !ok {
		return nil, repository.ErrConcertNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeDirectory) ListOrderByShowStart(ctx context.Context, page, size int) ([]model.Concert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]model.Concert, 0, len(f.concerts))
	for _, c := range f.concerts {
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ShowStart.Equal(all[j].ShowStart) {
			return all[i].ShowStart.Before(all[j].ShowStart)
		}
		return all[i].ID < all[j].ID
	})
	start := page * size
	if start >= len(all) {
		return nil, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

// UpdateWithGrades is all-or-nothing like the store transaction: the
// grade mutations are staged first and the concert fields only land
// when every locator matched.
func (f *fakeDirectory) UpdateWithGrades(ctx context.Context, c *model.Concert, updates []repository.GradeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.concerts[c.ID]; !ok {
		return repository.ErrConcertNotFound
	}
	if err := f.grades.applyUpdates(c.ID, updates); err != nil {
		return err
	}
	cp := *c
	cp.UpdatedAt = time.Now().UTC()
	f.concerts[c.ID] = &cp
	return nil
}

func (f *fakeDirectory) DeleteWithGrades(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.concerts[id]; !ok {
		return repository.ErrConcertNotFound
	}
	delete(f.concerts, id)
	f.grades.deleteByConcert(id)
	return nil
}

type fakeLedger struct {
	mu     sync.Mutex
	nextID uint64
	grades []model.SeatGrade
}

func newFakeLedger() *fakeLedger { return &fakeLedger{nextID: 1} }

func (f *fakeLedger) defineGrades(concertID uint64, grades []model.SeatGrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range grades {
		g.ConcertID = concertID
		g.Grade = strings.ToUpper(g.Grade)
		for _, existing := range f.grades {
			if existing.ConcertID == concertID && existing.Grade == g.Grade && existing.Price == g.Price {
				return repository.ErrSeatGradeExists
			}
		}
		g.ID = f.nextID
		f.nextID++
		f.grades = append(f.grades, g)
	}
	return nil
}

func (f *fakeLedger) GetByID(ctx context.Context, concertID, id uint64) (*model.SeatGrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grades {
		if g.ID == id && g.ConcertID == concertID {
			cp := g
			return &cp, nil
		}
	}
	return nil, repository.ErrSeatGradeNotFound
}

func (f *fakeLedger) GetByGradeAndPrice(ctx context.Context, concertID uint64, grade string, price int64) (*model.SeatGrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grade = strings.ToUpper(grade)
	for _, g := range f.grades {
		if g.ConcertID == concertID && g.Grade == grade && g.Price == price {
			cp := g
			return &cp, nil
		}
	}
	return nil, repository.ErrSeatGradeNotFound
}

func (f *fakeLedger) ListByConcert(ctx context.Context, concertID uint64) ([]model.SeatGrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SeatGrade
	for _, g := range f.grades {
		if g.ConcertID == concertID {
			out = append(out, g)
		}
	}
	// Same ordering contract as the SQL repository: price descending,
	// insertion order on ties.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price > out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// applyUpdates stages every tier mutation on a copy of the ledger and
// swaps it in only when all locators matched, mirroring the rollback
// behavior of the store transaction.
func (f *fakeLedger) applyUpdates(concertID uint64, updates []repository.GradeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := make([]model.SeatGrade, len(f.grades))
	copy(next, f.grades)
	for _, u := range updates {
		idx := -1
		switch {
		case u.SeatGradeID != nil:
			for i, g := range next {
				if g.ConcertID == concertID && g.ID == *u.SeatGradeID {
					idx = i
					break
				}
			}
		case u.PreviousGrade != nil && u.PreviousPrice != nil:
			prev := strings.ToUpper(*u.PreviousGrade)
			for i, g := range next {
				if g.ConcertID == concertID && g.Grade == prev && g.Price == *u.PreviousPrice {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			return repository.ErrSeatGradeNotFound
		}
		if u.Grade != nil {
			next[idx].Grade = strings.ToUpper(*u.Grade)
		}
		if u.Price != nil {
			next[idx].Price = *u.Price
		}
		if u.TotalSeat != nil {
			next[idx].TotalSeat = *u.TotalSeat
		}
		for j, g := range next {
			if j != idx && g.ConcertID == concertID && g.Grade == next[idx].Grade && g.Price == next[idx].Price {
				return repository.ErrSeatGradeExists
			}
		}
	}
	f.grades = next
	return nil
}

func (f *fakeLedger) deleteByConcert(concertID uint64) {
	kept := f.grades[:0]
	for _, g := range f.grades {
		if g.ConcertID != concertID {
			kept = append(kept, g)
		}
	}
	f.grades = kept
}

type fakeTicketStore struct {
	mu        sync.Mutex
	nextID    uint64
	active    map[string]*model.Ticket // seat key -> live ticket
	cancelled []*model.Ticket
	directory *fakeDirectory
	ledger    *fakeLedger
}

func newFakeTicketStore(directory *fakeDirectory, ledger *fakeLedger) *fakeTicketStore {
	return &fakeTicketStore{
		nextID:    1,
		active:    make(map[string]*model.Ticket),
		directory: directory,
		ledger:    ledger,
	}
}

// seatKey is the uniqueness tuple: buyer identity is payload, not key.
func seatKey(concertID, gradeID uint64, seatNumber int) string {
	return fmt.Sprintf("%d|%d|%d", concertID, gradeID, seatNumber)
}

func (f *fakeTicketStore) Insert(ctx context.Context, t *model.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := seatKey(t.ConcertID, t.SeatGradeID, t.SeatNumber)
	if _, taken := f.active[key]; taken {
		return repository.ErrSeatTaken
	}
	t.ID = f.nextID
	f.nextID++
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	f.active[key] = &cp
	return nil
}

func (f *fakeTicketStore) SoftDelete(ctx context.Context, concertID uint64, grade string, seatNumber int, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	grade = strings.ToUpper(grade)
	for key, t := range f.active {
		if t.ConcertID != concertID || t.SeatNumber != seatNumber || t.BuyerEmail != email {
			continue
		}
		if g, err := f.ledger.GetByID(ctx, concertID, t.SeatGradeID); err != nil || g.Grade != grade {
			continue
		}
		now := time.Now().UTC()
		t.DeletedAt = &now
		t.UpdatedAt = now
		f.cancelled = append(f.cancelled, t)
		delete(f.active, key)
		return nil
	}
	return repository.ErrTicketNotFound
}

func (f *fakeTicketStore) FindActive(ctx context.Context, concertID uint64, grade string, seatNumber int, email string) (*model.TicketDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grade = strings.ToUpper(grade)
	for _, t := range f.active {
		if t.ConcertID != concertID || t.SeatNumber != seatNumber || t.BuyerEmail != email {
			continue
		}
		g, err := f.ledger.GetByID(ctx, concertID, t.SeatGradeID)
		if err != nil || g.Grade != grade {
			continue
		}
		return f.detail(ctx, t, g)
	}
	return nil, repository.ErrTicketNotFound
}

func (f *fakeTicketStore) ListActiveByConcert(ctx context.Context, concertID uint64) ([]model.TicketDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TicketDetail
	for _, t := range f.active {
		if t.ConcertID != concertID {
			continue
		}
		g, err := f.ledger.GetByID(ctx, concertID, t.SeatGradeID)
		if err != nil {
			return nil, err
		}
		d, err := f.detail(ctx, t, g)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out, nil
}

func (f *fakeTicketStore) detail(ctx context.Context, t *model.Ticket, g *model.SeatGrade) (*model.TicketDetail, error) {
	c, err := f.directory.GetByID(ctx, t.ConcertID)
	if err != nil {
		return nil, err
	}
	d := model.NewTicketDetail(t, c, g)
	return &d, nil
}

type fakeMirror struct {
	mu      sync.Mutex
	hashes  map[uint64]map[string]model.TicketDetail
	failing bool // when true every call errors, for non-fatality tests
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{hashes: make(map[uint64]map[string]model.TicketDetail)}
}

func mirrorSubKey(email, grade string, seatNumber int) string {
	return fmt.Sprintf("key:%s%s%d", email, strings.ToUpper(grade), seatNumber)
}

func (f *fakeMirror) Save(ctx context.Context, d model.TicketDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("mirror down")
	}
	h, ok := f.hashes[d.ConcertID]
	if !ok {
		h = make(map[string]model.TicketDetail)
		f.hashes[d.ConcertID] = h
	}
	h[mirrorSubKey(d.Email, d.Grade, d.SeatNumber)] = d
	return nil
}

func (f *fakeMirror) Get(ctx context.Context, concertID uint64, email, grade string, seatNumber int) (*model.TicketDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, fmt.Errorf("mirror down")
	}
	if d, ok := f.hashes[concertID][mirrorSubKey(email, grade, seatNumber)]; ok {
		return &d, nil
	}
	return nil, nil
}

func (f *fakeMirror) Entries(ctx context.Context, concertID uint64) (map[string]model.TicketDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, fmt.Errorf("mirror down")
	}
	out := make(map[string]model.TicketDetail, len(f.hashes[concertID]))
	for k, v := range f.hashes[concertID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeMirror) Delete(ctx context.Context, concertID uint64, email, grade string, seatNumber int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("mirror down")
	}
	delete(f.hashes[concertID], mirrorSubKey(email, grade, seatNumber))
	return nil
}

func (f *fakeMirror) Rebuild(ctx context.Context, concertID uint64, details []model.TicketDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("mirror down")
	}
	h := make(map[string]model.TicketDetail, len(details))
	for _, d := range details {
		h[mirrorSubKey(d.Email, d.Grade, d.SeatNumber)] = d
	}
	f.hashes[concertID] = h
	return nil
}

func (f *fakeMirror) Drop(ctx context.Context, concertID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hashes, concertID)
	return nil
}
