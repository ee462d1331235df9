package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
)

type progressKey struct {
	bookID   string
	readerID string
}

// memoryStore holds every table behind one lock so multi-table writes stay
// atomic, mirroring a database transaction.
type memoryStore struct {
	mu       sync.RWMutex
	books    map[string]domain.Book
	events   map[string][]domain.RatingEvent
	replaced map[string]bool
	progress map[progressKey]domain.ReadingProgress
	now      func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		books:    make(map[string]domain.Book),
		events:   make(map[string][]domain.RatingEvent),
		replaced: make(map[string]bool),
		progress: make(map[progressKey]domain.ReadingProgress),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type memoryBooks struct{ m *memoryStore }

func (r *memoryBooks) Create(_ context.Context, f BookFields) (domain.Book, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	now := r.m.now()
	book := applyFields(domain.Book{ID: uuid.NewString(), CreatedAt: now}, f)
	book.UpdatedAt = now
	book.Rating = domain.RatingAggregate{ItemID: book.ID}
	r.m.books[book.ID] = book
	return book, nil
}

func (r *memoryBooks) GetByID(_ context.Context, id string) (domain.Book, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	book, ok := r.m.books[id]
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	return book, nil
}

func (r *memoryBooks) Update(_ context.Context, id string, f BookFields) (domain.Book, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	book, ok := r.m.books[id]
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	book = applyFields(book, f)
	book.UpdatedAt = r.m.now()
	r.m.books[id] = book
	return book, nil
}

func (r *memoryBooks) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.books[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.books, id)
	for _, e := range r.m.events[id] {
		delete(r.m.replaced, e.ID)
	}
	delete(r.m.events, id)
	for key := range r.m.progress {
		if key.bookID == id {
			delete(r.m.progress, key)
		}
	}
	return nil
}

func (r *memoryBooks) List(_ context.Context, filters BookListFilters) (BookListResult, error) {
	limit := normalizeLimit(filters.Limit)

	r.m.mu.RLock()
	items := make([]domain.Book, 0, len(r.m.books))
	for _, book := range r.m.books {
		if matchesFilters(book, filters) {
			items = append(items, book)
		}
	}
	r.m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return cursorBefore(items[j], items[i])
	})
	if len(items) > limit {
		items = items[:limit]
	}

	result := BookListResult{Items: items}
	if len(items) > 0 {
		last := items[len(items)-1]
		var err error
		result.NextCursor, err = nextCursor(len(items), limit, BookCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return BookListResult{}, err
		}
	}
	return result, nil
}

func (r *memoryBooks) Stats(_ context.Context) (domain.CatalogStats, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var (
		stats  domain.CatalogStats
		sum    float64
		scored int64
	)
	for _, book := range r.m.books {
		stats.TotalBooks++
		stats.TotalRatings += book.Rating.Count
		if book.Rating.Count > 0 {
			sum += book.Rating.Average
			scored++
		}
	}
	if scored > 0 {
		stats.AverageRating = sum / float64(scored)
	}
	return stats, nil
}

func applyFields(book domain.Book, f BookFields) domain.Book {
	book.Title = f.Title
	book.Author = f.Author
	book.Description = f.Description
	book.Content = f.Content
	book.CoverURL = f.CoverURL
	book.Category = f.Category
	book.Pages = f.Pages
	book.PriceCents = f.PriceCents
	book.IsFree = f.IsFree
	book.PublishedDate = f.PublishedDate
	return book
}

// cursorBefore reports whether a sorts after b in (created_at, id) order.
func cursorBefore(a, b domain.Book) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func matchesFilters(book domain.Book, f BookListFilters) bool {
	if f.Query != nil {
		if q := strings.ToLower(strings.TrimSpace(*f.Query)); q != "" &&
			!strings.Contains(strings.ToLower(book.Title), q) &&
			!strings.Contains(strings.ToLower(book.Author), q) {
			return false
		}
	}
	if f.Category != nil {
		if c := strings.TrimSpace(*f.Category); c != "" && !strings.EqualFold(book.Category, c) {
			return false
		}
	}
	if f.Free != nil && book.IsFree != *f.Free {
		return false
	}
	if f.Cursor != nil && !cursorBefore(book, domain.Book{CreatedAt: f.Cursor.CreatedAt, ID: f.Cursor.ID}) {
		return false
	}
	return true
}

type memoryRatings struct{ m *memoryStore }

func (r *memoryRatings) ReadAggregate(_ context.Context, itemID string) (domain.RatingAggregate, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	book, ok := r.m.books[itemID]
	if !ok {
		return domain.RatingAggregate{}, ErrNotFound
	}
	return book.Rating, nil
}

func (r *memoryRatings) FindRaterEvent(_ context.Context, itemID, raterID string) (domain.RatingEvent, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	events := r.m.events[itemID]
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.RaterID == raterID && !r.m.replaced[e.ID] {
			return e, nil
		}
	}
	return domain.RatingEvent{}, ErrNotFound
}

func (r *memoryRatings) WriteAggregate(_ context.Context, w ledger.AggregateWrite) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	book, ok := r.m.books[w.Event.ItemID]
	if !ok {
		return ErrNotFound
	}
	if book.Rating.Version != w.ExpectedVersion {
		return ErrConflict
	}
	book.Rating = domain.RatingAggregate{
		ItemID:  book.ID,
		Average: w.Next.Average,
		Count:   w.Next.Count,
		Version: w.ExpectedVersion + 1,
	}
	r.m.books[book.ID] = book
	r.m.events[book.ID] = append(r.m.events[book.ID], w.Event)
	if w.Event.Replaces != "" {
		r.m.replaced[w.Event.Replaces] = true
	}
	return nil
}

func (r *memoryRatings) ListEvents(_ context.Context, itemID string, limit int) ([]domain.RatingEvent, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	events := r.m.events[itemID]
	out := make([]domain.RatingEvent, 0, min(limit, len(events)))
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, events[i])
	}
	return out, nil
}

type memoryProgress struct{ m *memoryStore }

func (r *memoryProgress) Save(_ context.Context, p domain.ReadingProgress) (domain.ReadingProgress, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.books[p.BookID]; !ok {
		return domain.ReadingProgress{}, ErrNotFound
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = r.m.now()
	}
	r.m.progress[progressKey{p.BookID, p.ReaderID}] = p
	return p, nil
}

func (r *memoryProgress) Get(_ context.Context, bookID, readerID string) (domain.ReadingProgress, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	p, ok := r.m.progress[progressKey{bookID, readerID}]
	if !ok {
		return domain.ReadingProgress{}, ErrNotFound
	}
	return p, nil
}
