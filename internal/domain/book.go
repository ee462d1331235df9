package domain

import "time"

// DefaultAuthor is used when a catalog entry is created without an author.
const DefaultAuthor = "كريم محمد سالم"

// Book is the catalog entry. Its Rating is owned by the ledger and is never
// written through catalog updates.
type Book struct {
	ID            string
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
	Rating        RatingAggregate
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CatalogStats summarizes the catalog for the admin dashboard.
type CatalogStats struct {
	TotalBooks    int64
	TotalRatings  int64
	AverageRating float64
}

// ReadingProgress is the last recorded position of a reader within a book.
type ReadingProgress struct {
	BookID    string
	ReaderID  string
	Percent   float64
	UpdatedAt time.Time
}
