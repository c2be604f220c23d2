// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios and map
// each one to its own HTTP outcome, so a caller can tell "pick another
// seat" apart from "this concert does not exist". NotFound errors are
// never retried by the core; conflict errors surface the storage-level
// uniqueness constraint that serializes concurrent writes.
package repository

import "errors"

// ErrConcertNotFound is returned when a referenced concert does not
// exist. Handlers should translate this into an HTTP 404 response.
var ErrConcertNotFound = errors.New("concert not found")

// ErrSeatGradeNotFound is returned when a seat grade cannot be located,
// either by its ID or by the previous (grade, price) pair supplied with
// an update. Handlers should translate this into an HTTP 404 response.
var ErrSeatGradeNotFound = errors.New("seat grade not found")

// ErrTicketNotFound is returned when no active ticket matches a lookup
// or cancellation key. Cancelling an already-cancelled ticket fails
// with this error as well, since soft-deleted rows are invisible to
// every normal read.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrSeatTaken is returned when a purchase collides with an existing
// active ticket for the same (concert, grade, seat). It is raised by
// the database uniqueness constraint, not by a check-then-insert, so
// exactly one of any set of concurrent purchases can succeed. Handlers
// should translate this into an HTTP 409 response.
var ErrSeatTaken = errors.New("seat already taken")

// ErrConcertExists is returned when creating a concert whose
// (name, performer) pair is already registered.
var ErrConcertExists = errors.New("concert already exists")

// ErrSeatGradeExists is returned when a grade definition or update
// collides with an existing (concert, grade, price) row.
var ErrSeatGradeExists = errors.New("seat grade already exists")
