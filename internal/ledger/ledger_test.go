package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/bookshelf/internal/apperr"
	"github.com/Clark-Hu/bookshelf/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore is an in-memory RecordStore with fault injection.
type fakeStore struct {
	mu        sync.Mutex
	items     map[string]domain.RatingAggregate
	events    map[string][]domain.RatingEvent
	conflicts int   // number of WriteAggregate calls to fail with a conflict
	writeErr  error // returned by every WriteAggregate when set
	writes    int
	onRead    func() // runs after ReadAggregate releases the lock
}

func newFakeStore(items ...domain.RatingAggregate) *fakeStore {
	s := &fakeStore{
		items:  make(map[string]domain.RatingAggregate),
		events: make(map[string][]domain.RatingEvent),
	}
	for _, item := range items {
		s.items[item.ItemID] = item
	}
	return s
}

func (s *fakeStore) ReadAggregate(_ context.Context, itemID string) (domain.RatingAggregate, error) {
	s.mu.Lock()
	agg, ok := s.items[itemID]
	hook := s.onRead
	s.mu.Unlock()
	if !ok {
		return domain.RatingAggregate{}, domain.ErrNotFound
	}
	if hook != nil {
		hook()
	}
	return agg, nil
}

func (s *fakeStore) FindRaterEvent(_ context.Context, itemID, raterID string) (domain.RatingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[itemID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].RaterID == raterID {
			return events[i], nil
		}
	}
	return domain.RatingEvent{}, domain.ErrNotFound
}

func (s *fakeStore) WriteAggregate(_ context.Context, w AggregateWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.conflicts > 0 {
		s.conflicts--
		return domain.ErrVersionConflict
	}
	current, ok := s.items[w.Next.ItemID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != w.ExpectedVersion {
		return domain.ErrVersionConflict
	}
	s.items[w.Next.ItemID] = w.Next
	s.events[w.Next.ItemID] = append(s.events[w.Next.ItemID], w.Event)
	return nil
}

func (s *fakeStore) ListEvents(_ context.Context, itemID string, limit int) ([]domain.RatingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append([]domain.RatingEvent(nil), s.events[itemID]...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *fakeStore) eventCount(itemID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[itemID])
}

func newTestLedger(t *testing.T, store RecordStore, policy Policy) *Ledger {
	t.Helper()
	l, err := New(store, Options{
		Policy:        policy,
		RetryInterval: time.Millisecond,
		Logger:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return l
}

func fresh(id string) domain.RatingAggregate {
	return domain.RatingAggregate{ItemID: id}
}

func TestSubmitRating_MeanAfterSequence(t *testing.T) {
	store := newFakeStore(fresh("book-1"))
	l := newTestLedger(t, store, PolicyReject)
	ctx := context.Background()

	values := []float64{5, 3, 4.5, 1, 2.25, 5, 3.75}
	var sum float64
	for i, v := range values {
		agg, err := l.SubmitRating(ctx, Submission{ItemID: "book-1", Value: v})
		require.NoError(t, err)
		sum += v
		require.EqualValues(t, i+1, agg.Count)
		require.InDelta(t, sum/float64(i+1), agg.Average, 1e-9)
	}

	got, err := l.GetAggregate(ctx, "book-1")
	require.NoError(t, err)
	require.EqualValues(t, len(values), got.Count)
	require.InDelta(t, sum/float64(len(values)), got.Average, 1e-9)
	require.Equal(t, len(values), store.eventCount("book-1"))
}

func TestSubmitRating_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		start     domain.RatingAggregate
		value     float64
		wantAvg   float64
		wantCount int64
	}{
		{"existing ratings", domain.RatingAggregate{ItemID: "b", Average: 4.5, Count: 124}, 5, 4.504, 125},
		{"first rating", domain.RatingAggregate{ItemID: "b"}, 3, 3.0, 1},
		{"lowest bound", domain.RatingAggregate{ItemID: "b", Average: 2, Count: 1}, 1, 1.5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t, newFakeStore(tt.start), PolicyReject)
			agg, err := l.SubmitRating(context.Background(), Submission{ItemID: "b", Value: tt.value})
			require.NoError(t, err)
			require.InDelta(t, tt.wantAvg, agg.Average, 1e-9)
			require.Equal(t, tt.wantCount, agg.Count)
			require.Equal(t, tt.start.Version+1, agg.Version)
		})
	}
}

func TestSubmitRating_InvalidValues(t *testing.T) {
	start := domain.RatingAggregate{ItemID: "b", Average: 4, Count: 2, Version: 7}
	for _, v := range []float64{0, 5.1, -1, 0.999, math.NaN(), math.Inf(1)} {
		t.Run(fmt.Sprint(v), func(t *testing.T) {
			store := newFakeStore(start)
			l := newTestLedger(t, store, PolicyReject)

			_, err := l.SubmitRating(context.Background(), Submission{ItemID: "b", Value: v, RaterID: "r1"})
			require.ErrorIs(t, err, ErrInvalidRating)
			require.Equal(t, apperr.ClassInvalidInput, apperr.CodeOf(err).Class())

			got, err := l.GetAggregate(context.Background(), "b")
			require.NoError(t, err)
			require.Equal(t, start, got)
			require.Zero(t, store.writes)
		})
	}
}

func TestSubmitRating_NotFound(t *testing.T) {
	store := newFakeStore(fresh("known"))
	l := newTestLedger(t, store, PolicyReject)

	for _, id := range []string{"missing", "", "   "} {
		_, err := l.SubmitRating(context.Background(), Submission{ItemID: id, Value: 4})
		require.ErrorIs(t, err, ErrNotFound)
	}
	require.Zero(t, store.writes)
	require.Zero(t, store.eventCount("missing"))

	_, err := l.GetAggregate(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitRating_ConcurrentSameItem(t *testing.T) {
	store := newFakeStore(fresh("book"))
	l := newTestLedger(t, store, PolicyReject)

	var g errgroup.Group
	for _, v := range []float64{2, 5} {
		g.Go(func() error {
			_, err := l.SubmitRating(context.Background(), Submission{ItemID: "book", Value: v})
			return err
		})
	}
	require.NoError(t, g.Wait())

	agg, err := l.GetAggregate(context.Background(), "book")
	require.NoError(t, err)
	require.EqualValues(t, 2, agg.Count)
	require.InDelta(t, 3.5, agg.Average, 1e-9)
	require.Zero(t, l.locks.len())
}

func TestSubmitRating_ManyConcurrentRaters(t *testing.T) {
	store := newFakeStore(fresh("a"), fresh("b"))
	l := newTestLedger(t, store, PolicyReject)

	const workers = 50
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		item := "a"
		if i%2 == 1 {
			item = "b"
		}
		rater := fmt.Sprintf("reader-%d", i)
		value := float64(i%5 + 1)
		g.Go(func() error {
			_, err := l.SubmitRating(context.Background(), Submission{ItemID: item, Value: value, RaterID: rater})
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, item := range []string{"a", "b"} {
		agg, err := l.GetAggregate(context.Background(), item)
		require.NoError(t, err)
		require.EqualValues(t, workers/2, agg.Count)
		require.Equal(t, workers/2, store.eventCount(item))
	}
}

func TestSubmitRating_DifferentItemsDoNotBlock(t *testing.T) {
	store := newFakeStore(fresh("slow"), fresh("fast"))
	l := newTestLedger(t, store, PolicyReject)

	entered := make(chan struct{})
	release := make(chan struct{})
	var fired atomic.Bool
	store.onRead = func() {
		if fired.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := l.SubmitRating(context.Background(), Submission{ItemID: "slow", Value: 4})
		done <- err
	}()
	<-entered

	_, err := l.SubmitRating(context.Background(), Submission{ItemID: "fast", Value: 2})
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
}

func TestSubmitRating_RejectDuplicateRater(t *testing.T) {
	store := newFakeStore(fresh("book"))
	l := newTestLedger(t, store, PolicyReject)
	ctx := context.Background()

	_, err := l.SubmitRating(ctx, Submission{ItemID: "book", Value: 4, RaterID: "reader-1"})
	require.NoError(t, err)

	_, err = l.SubmitRating(ctx, Submission{ItemID: "book", Value: 1, RaterID: "reader-1"})
	require.ErrorIs(t, err, ErrDuplicateRating)

	agg, err := l.GetAggregate(ctx, "book")
	require.NoError(t, err)
	require.EqualValues(t, 1, agg.Count)
	require.InDelta(t, 4.0, agg.Average, 1e-9)
	require.Equal(t, 1, store.eventCount("book"))

	// Anonymous raters are never deduplicated.
	for i := 0; i < 3; i++ {
		_, err = l.SubmitRating(ctx, Submission{ItemID: "book", Value: 2})
		require.NoError(t, err)
	}
	agg, err = l.GetAggregate(ctx, "book")
	require.NoError(t, err)
	require.EqualValues(t, 4, agg.Count)
}

func TestSubmitRating_ReplacePolicy(t *testing.T) {
	store := newFakeStore(fresh("book"))
	l := newTestLedger(t, store, PolicyReplace)
	ctx := context.Background()

	_, err := l.SubmitRating(ctx, Submission{ItemID: "book", Value: 2, RaterID: "a"})
	require.NoError(t, err)
	_, err = l.SubmitRating(ctx, Submission{ItemID: "book", Value: 4, RaterID: "b"})
	require.NoError(t, err)

	agg, err := l.SubmitRating(ctx, Submission{ItemID: "book", Value: 5, RaterID: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 2, agg.Count)
	require.InDelta(t, 4.5, agg.Average, 1e-9)

	events, err := l.Events(ctx, "book", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	latest, err := store.FindRaterEvent(ctx, "book", "a")
	require.NoError(t, err)
	require.Equal(t, 5.0, latest.Value)
	require.NotEmpty(t, latest.Replaces)
}

func TestSubmitRating_ReplaceKeepsRaterTimestampsMonotonic(t *testing.T) {
	store := newFakeStore(fresh("book"))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	l, err := New(store, Options{
		Policy: PolicyReplace,
		Clock:  func() time.Time { return clock },
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.SubmitRating(ctx, Submission{ItemID: "book", Value: 3, RaterID: "a"})
	require.NoError(t, err)

	clock = base.Add(-time.Hour) // wall clock stepped backwards
	_, err = l.SubmitRating(ctx, Submission{ItemID: "book", Value: 4, RaterID: "a"})
	require.NoError(t, err)

	latest, err := store.FindRaterEvent(ctx, "book", "a")
	require.NoError(t, err)
	require.False(t, latest.CreatedAt.Before(base))
}

func TestSubmitRating_RetriesConflicts(t *testing.T) {
	store := newFakeStore(fresh("book"))
	store.conflicts = 2
	l := newTestLedger(t, store, PolicyReject)

	agg, err := l.SubmitRating(context.Background(), Submission{ItemID: "book", Value: 4})
	require.NoError(t, err)
	require.EqualValues(t, 1, agg.Count)
	require.Equal(t, 3, store.writes)
}

func TestSubmitRating_ConflictSurfacesAfterBound(t *testing.T) {
	store := newFakeStore(fresh("book"))
	store.conflicts = 10
	l := newTestLedger(t, store, PolicyReject)

	_, err := l.SubmitRating(context.Background(), Submission{ItemID: "book", Value: 4})
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.True(t, e.Retryable())
	require.Equal(t, DefaultMaxAttempts, store.writes)

	agg, err := l.GetAggregate(context.Background(), "book")
	require.NoError(t, err)
	require.Equal(t, fresh("book"), agg)
}

func TestSubmitRating_PersistenceErrorNotRetried(t *testing.T) {
	store := newFakeStore(domain.RatingAggregate{ItemID: "book", Average: 3, Count: 1, Version: 1})
	store.writeErr = errors.New("disk full")
	l := newTestLedger(t, store, PolicyReject)

	_, err := l.SubmitRating(context.Background(), Submission{ItemID: "book", Value: 4})
	require.ErrorIs(t, err, ErrPersistence)
	require.Equal(t, apperr.ClassUnavailable, apperr.CodeOf(err).Class())
	require.Equal(t, 1, store.writes)

	store.writeErr = nil
	agg, err := l.GetAggregate(context.Background(), "book")
	require.NoError(t, err)
	require.EqualValues(t, 1, agg.Count)
	require.Zero(t, store.eventCount("book"))
}

func TestEvents_ClampsLimitAndChecksItem(t *testing.T) {
	store := newFakeStore(fresh("book"))
	l := newTestLedger(t, store, PolicyReject)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.SubmitRating(ctx, Submission{ItemID: "book", Value: 5})
		require.NoError(t, err)
	}
	events, err := l.Events(ctx, "book", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	_, err = l.Events(ctx, "nope", 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" Replace ")
	require.NoError(t, err)
	require.Equal(t, PolicyReplace, p)

	_, err = ParsePolicy("ignore")
	require.Error(t, err)

	_, err = New(newFakeStore(), Options{Policy: "bogus"})
	require.Error(t, err)
}

func TestReplaceMath(t *testing.T) {
	avg, count := Replace(domain.RatingAggregate{Average: 3, Count: 4}, 1, 5)
	require.EqualValues(t, 4, count)
	require.InDelta(t, 4.0, avg, 1e-9)

	avg, count = Replace(domain.RatingAggregate{}, 1, 5)
	require.EqualValues(t, 1, count)
	require.InDelta(t, 5.0, avg, 1e-9)
}
