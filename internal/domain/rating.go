package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict reports a compare-and-set write that lost to a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")
)

// Rating bounds accepted by the ledger.
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// RatingAggregate is the running mean and count for one rated item. Version
// increases by one on every committed transition and guards concurrent writes.
type RatingAggregate struct {
	ItemID  string
	Average float64
	Count   int64
	Version int64
}

// RatingEvent is one immutable submitted rating. RaterID is empty for anonymous
// raters. Replaces holds the id of the event this one supersedes, if any.
type RatingEvent struct {
	ID        string
	ItemID    string
	RaterID   string
	Value     float64
	Replaces  string
	CreatedAt time.Time
}

// Anonymous reports whether the event was submitted without a rater identity.
func (e RatingEvent) Anonymous() bool {
	return e.RaterID == ""
}
