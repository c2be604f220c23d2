// Package cache implements the read-optimized mirror of sold seats.
// One Redis hash per concert holds a flattened snapshot per ticket, so
// "what is sold in this concert" is a single HGETALL instead of a
// three-way join.  The mirror is advisory: it is written through after
// a successful store insert, invalidated through after a successful
// cancellation, and can always be rebuilt from the ticket store when
// the two disagree.  The store wins every disagreement.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/trove/ticket-trove/internal/model"
)

// HashClient is the slice of redis commands the mirror issues.  It is
// satisfied by *redis.Client and by the in-memory fake the tests use.
type HashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TicketCache mirrors active tickets into Redis hashes.
type TicketCache struct {
	rdb HashClient
}

// NewTicketCache returns a mirror backed by the given Redis client.
func NewTicketCache(rdb HashClient) *TicketCache { return &TicketCache{rdb: rdb} }

// Key derives the hash key of a concert's mirror.
func Key(concertID uint64) string {
	return "Ticket:Concert:" + strconv.FormatUint(concertID, 10)
}

// SubKey derives the hash field of one seat snapshot from buyer email,
// grade label and seat number.  The grade is upper-cased so the field
// matches regardless of how the caller spelled the label.
func SubKey(email, grade string, seatNumber int) string {
	return "key:" + email + strings.ToUpper(grade) + strconv.Itoa(seatNumber)
}

// Save writes a snapshot into the concert's hash, overwriting any
// existing entry under the same field (last write wins).
func (c *TicketCache) Save(ctx context.Context, d model.TicketDetail) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, Key(d.ConcertID), SubKey(d.Email, d.Grade, d.SeatNumber), body).Err()
}

// Get returns the cached snapshot for one seat, or nil when the entry
// is not cached.  A miss is not an error: the caller falls back to the
// ticket store.
func (c *TicketCache) Get(ctx context.Context, concertID uint64, email, grade string, seatNumber int) (*model.TicketDetail, error) {
	body, err := c.rdb.HGet(ctx, Key(concertID), SubKey(email, grade, seatNumber)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d model.TicketDetail
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Entries returns every cached snapshot of a concert keyed by hash
// field.  An empty map means nothing is cached; callers decide whether
// to consult the store.
func (c *TicketCache) Entries(ctx context.Context, concertID uint64) (map[string]model.TicketDetail, error) {
	fields, err := c.rdb.HGetAll(ctx, Key(concertID)).Result()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]model.TicketDetail, len(fields))
	for field, body := range fields {
		var d model.TicketDetail
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, err
		}
		entries[field] = d
	}
	return entries, nil
}

// Delete removes one seat snapshot.  Deleting an absent field is not
// an error; a cancellation after a cache miss is tolerated since the
// mirror is advisory.
func (c *TicketCache) Delete(ctx context.Context, concertID uint64, email, grade string, seatNumber int) error {
	return c.rdb.HDel(ctx, Key(concertID), SubKey(email, grade, seatNumber)).Err()
}

// Drop removes a concert's entire mirror hash.  Used when the concert
// itself is deleted.
func (c *TicketCache) Drop(ctx context.Context, concertID uint64) error {
	return c.rdb.Del(ctx, Key(concertID)).Err()
}

// Rebuild replaces a concert's mirror with the given snapshots, which
// the caller reads from the ticket store.  The hash is dropped and
// re-populated with a single variadic HSET, so readers see either the
// old mirror, an empty one for a round trip, or the repaired one.
// This is the repair path after a crash between a store commit and
// the mirror write.
func (c *TicketCache) Rebuild(ctx context.Context, concertID uint64, details []model.TicketDetail) error {
	if err := c.rdb.Del(ctx, Key(concertID)).Err(); err != nil {
		return err
	}
	if len(details) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(details)*2)
	for _, d := range details {
		body, err := json.Marshal(d)
		if err != nil {
			return err
		}
		values = append(values, SubKey(d.Email, d.Grade, d.SeatNumber), body)
	}
	return c.rdb.HSet(ctx, Key(concertID), values...).Err()
}
