// Package ledger maintains per-item rating aggregates. Every submission appends
// one immutable event and moves the item's (average, count) pair in a single
// compare-and-set transition, so readers never observe a half-applied rating.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Clark-Hu/bookshelf/internal/apperr"
	"github.com/Clark-Hu/bookshelf/internal/domain"
)

// Policy decides what happens when a known rater rates the same item again.
type Policy string

const (
	// PolicyReject fails the second submission with ErrDuplicateRating.
	PolicyReject Policy = "reject"
	// PolicyReplace swaps the rater's previous value for the new one.
	PolicyReplace Policy = "replace"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyReject, PolicyReplace:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate rating policy %q", raw)
	}
}

// DefaultMaxAttempts bounds the compare-and-set retry loop.
const DefaultMaxAttempts = 3

// AggregateWrite is one atomic transition: the aggregate moves from
// ExpectedVersion to Next (whose Version is ExpectedVersion+1) and Event is
// appended, or nothing happens.
type AggregateWrite struct {
	ExpectedVersion int64
	Next            domain.RatingAggregate
	Event           domain.RatingEvent
}

// RecordStore is the persistence collaborator. WriteAggregate must return
// domain.ErrVersionConflict when the stored version differs from
// ExpectedVersion, and domain.ErrNotFound for unknown items.
type RecordStore interface {
	ReadAggregate(ctx context.Context, itemID string) (domain.RatingAggregate, error)
	FindRaterEvent(ctx context.Context, itemID, raterID string) (domain.RatingEvent, error)
	WriteAggregate(ctx context.Context, write AggregateWrite) error
	ListEvents(ctx context.Context, itemID string, limit int) ([]domain.RatingEvent, error)
}

// Submission is one rating request. RaterID may be empty for anonymous raters.
type Submission struct {
	ItemID  string
	Value   float64
	RaterID string
}

// Options configures a Ledger.
type Options struct {
	Policy      Policy
	MaxAttempts int
	// RetryInterval is the first backoff delay after a lost compare-and-set.
	RetryInterval time.Duration
	Clock         func() time.Time
	NewID         func() string
	Logger        *zap.Logger
}

// Ledger is safe for concurrent use.
type Ledger struct {
	store         RecordStore
	policy        Policy
	maxAttempts   int
	retryInterval time.Duration
	clock         func() time.Time
	newID         func() string
	logger        *zap.Logger
	locks         *itemLocks
}

// New constructs a Ledger over store.
func New(store RecordStore, opts Options) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger: record store is required")
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyReject
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	l := &Ledger{
		store:         store,
		policy:        policy,
		maxAttempts:   opts.MaxAttempts,
		retryInterval: opts.RetryInterval,
		clock:         opts.Clock,
		newID:         opts.NewID,
		logger:        opts.Logger,
		locks:         newItemLocks(),
	}
	if l.maxAttempts <= 0 {
		l.maxAttempts = DefaultMaxAttempts
	}
	if l.retryInterval <= 0 {
		l.retryInterval = 5 * time.Millisecond
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l, nil
}

// Policy returns the configured duplicate policy.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// ValidateValue reports ErrInvalidRating for values outside [1,5], NaN and Inf.
func ValidateValue(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < domain.MinRating || value > domain.MaxRating {
		return invalidRating(value)
	}
	return nil
}

// Append folds one new value into an aggregate.
func Append(current domain.RatingAggregate, value float64) (average float64, count int64) {
	count = current.Count + 1
	average = (current.Average*float64(current.Count) + value) / float64(count)
	return clampAverage(average), count
}

// Replace swaps oldValue for value without changing the count.
func Replace(current domain.RatingAggregate, oldValue, value float64) (average float64, count int64) {
	if current.Count <= 0 {
		return Append(current, value)
	}
	average = (current.Average*float64(current.Count) - oldValue + value) / float64(current.Count)
	return clampAverage(average), current.Count
}

func clampAverage(v float64) float64 {
	return math.Min(math.Max(v, domain.MinRating), domain.MaxRating)
}

// SubmitRating records one rating and returns the item's new aggregate.
func (l *Ledger) SubmitRating(ctx context.Context, sub Submission) (domain.RatingAggregate, error) {
	itemID := strings.TrimSpace(sub.ItemID)
	raterID := strings.TrimSpace(sub.RaterID)
	if err := ValidateValue(sub.Value); err != nil {
		return domain.RatingAggregate{}, err
	}
	if itemID == "" {
		return domain.RatingAggregate{}, itemNotFound(itemID, nil)
	}

	unlock := l.locks.Lock(itemID)
	defer unlock()

	attempts := 0
	operation := func() (domain.RatingAggregate, error) {
		attempts++
		agg, err := l.apply(ctx, itemID, sub.Value, raterID)
		if err == nil || errors.Is(err, domain.ErrVersionConflict) {
			return agg, err
		}
		return agg, backoff.Permanent(err)
	}

	agg, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(l.newBackOff()),
		backoff.WithMaxTries(uint(l.maxAttempts)),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return domain.RatingAggregate{}, l.finish(itemID, attempts, err)
	}

	l.logger.Debug("rating recorded",
		zap.String("item_id", itemID),
		zap.Bool("anonymous", raterID == ""),
		zap.Float64("value", sub.Value),
		zap.Float64("average", agg.Average),
		zap.Int64("count", agg.Count),
		zap.Int("attempts", attempts),
	)
	return agg, nil
}

func (l *Ledger) finish(itemID string, attempts int, err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		l.logger.Warn("rating contention exhausted retries",
			zap.String("item_id", itemID), zap.Int("attempts", attempts))
		return concurrencyConflict(itemID, attempts, err)
	}
	if _, ok := apperr.As(err); ok {
		if apperr.CodeOf(err) == apperr.CodePersistence {
			l.logger.Error("rating store failure", zap.String("item_id", itemID), zap.Error(err))
		}
		return err
	}
	// Context cancellation or deadline while waiting to retry.
	return apperr.Wrap(apperr.CodePersistence, "ledger: submit rating", err)
}

func (l *Ledger) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryInterval
	b.MaxInterval = 20 * l.retryInterval
	b.Reset()
	return b
}

// apply performs one read-compute-write cycle.
func (l *Ledger) apply(ctx context.Context, itemID string, value float64, raterID string) (domain.RatingAggregate, error) {
	current, err := l.store.ReadAggregate(ctx, itemID)
	if err != nil {
		return domain.RatingAggregate{}, storeError("read aggregate", itemID, err)
	}

	event := domain.RatingEvent{
		ID:        l.newID(),
		ItemID:    itemID,
		RaterID:   raterID,
		Value:     value,
		CreatedAt: l.clock().UTC(),
	}
	next := domain.RatingAggregate{ItemID: itemID, Version: current.Version + 1}
	next.Average, next.Count = Append(current, value)

	if !event.Anonymous() {
		prior, err := l.store.FindRaterEvent(ctx, itemID, raterID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return domain.RatingAggregate{}, storeError("find rater event", itemID, err)
		case l.policy == PolicyReject:
			return domain.RatingAggregate{}, duplicateRating(itemID, raterID)
		default:
			event.Replaces = prior.ID
			if prior.CreatedAt.After(event.CreatedAt) {
				event.CreatedAt = prior.CreatedAt
			}
			next.Average, next.Count = Replace(current, prior.Value, value)
		}
	}

	write := AggregateWrite{ExpectedVersion: current.Version, Next: next, Event: event}
	if err := l.store.WriteAggregate(ctx, write); err != nil {
		return domain.RatingAggregate{}, storeError("write aggregate", itemID, err)
	}
	return next, nil
}

// GetAggregate returns the last committed aggregate for itemID.
func (l *Ledger) GetAggregate(ctx context.Context, itemID string) (domain.RatingAggregate, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.RatingAggregate{}, itemNotFound(itemID, nil)
	}
	agg, err := l.store.ReadAggregate(ctx, itemID)
	if err != nil {
		return domain.RatingAggregate{}, storeError("read aggregate", itemID, err)
	}
	return agg, nil
}

// Events returns up to limit events for itemID, newest first.
func (l *Ledger) Events(ctx context.Context, itemID string, limit int) ([]domain.RatingEvent, error) {
	if _, err := l.GetAggregate(ctx, itemID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}
	events, err := l.store.ListEvents(ctx, strings.TrimSpace(itemID), limit)
	if err != nil {
		return nil, storeError("list events", itemID, err)
	}
	return events, nil
}
