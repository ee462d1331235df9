// Package repository persists books, rating events and reading progress.
// Every backend (postgres, sqlite, memory) satisfies the same interfaces.
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
	"github.com/Clark-Hu/bookshelf/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = domain.ErrNotFound

// ErrConflict indicates a compare-and-set lost against a concurrent writer.
var ErrConflict = domain.ErrVersionConflict

// BookFields are the catalog-owned columns of a book. Rating columns are
// not part of it; only the ledger moves them.
type BookFields struct {
	Title         string
	Author        string
	Description   string
	Content       string
	CoverURL      *string
	Category      string
	Pages         *int
	PriceCents    int64
	IsFree        bool
	PublishedDate *time.Time
}

// BookListFilters encapsulates search and pagination options.
type BookListFilters struct {
	Query    *string
	Category *string
	Free     *bool
	Limit    int
	Cursor   *BookCursor
}

// BookListResult returns the paginated payload.
type BookListResult struct {
	Items      []domain.Book
	NextCursor *string
}

// BookStore is the catalog persistence contract.
type BookStore interface {
	Create(ctx context.Context, fields BookFields) (domain.Book, error)
	GetByID(ctx context.Context, id string) (domain.Book, error)
	Update(ctx context.Context, id string, fields BookFields) (domain.Book, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filters BookListFilters) (BookListResult, error)
	Stats(ctx context.Context) (domain.CatalogStats, error)
}

// ProgressStore records how far each reader got in a book.
type ProgressStore interface {
	Save(ctx context.Context, progress domain.ReadingProgress) (domain.ReadingProgress, error)
	Get(ctx context.Context, bookID, readerID string) (domain.ReadingProgress, error)
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Books    BookStore
	Ratings  ledger.RecordStore
	Progress ProgressStore
}

// New constructs a Repository backed by the provided postgres store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Books:    &pgBooks{pool: pool},
		Ratings:  &pgRatings{pool: pool},
		Progress: &pgProgress{pool: pool},
	}
}

// NewSQLite constructs a Repository backed by a sqlite file.
func NewSQLite(st *store.SQLite) *Repository {
	db := st.DB()
	return &Repository{
		Books:    &sqliteBooks{db: db},
		Ratings:  &sqliteRatings{db: db},
		Progress: &sqliteProgress{db: db},
	}
}

// NewMemory constructs a process-local Repository. Used by tests and demos.
func NewMemory() *Repository {
	m := newMemoryStore()
	return &Repository{
		Books:    &memoryBooks{m: m},
		Ratings:  &memoryRatings{m: m},
		Progress: &memoryProgress{m: m},
	}
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching q literally anywhere in the
// column. Callers pair it with ESCAPE '\'.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}
