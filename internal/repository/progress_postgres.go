package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/bookshelf/internal/domain"
)

type pgProgress struct {
	pool *pgxpool.Pool
}

// Save upserts the reader's position. Unknown books insert nothing and yield
// ErrNotFound.
func (r *pgProgress) Save(ctx context.Context, p domain.ReadingProgress) (domain.ReadingProgress, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO reading_progress (book_id, reader_id, percent, updated_at)
        SELECT id, $2::text, $3::float8, $4::timestamptz FROM books WHERE id = $1
        ON CONFLICT (book_id, reader_id)
        DO UPDATE SET percent = EXCLUDED.percent, updated_at = EXCLUDED.updated_at
        RETURNING book_id, reader_id, percent, updated_at
    `
	var out domain.ReadingProgress
	err := r.pool.QueryRow(ctx, query, p.BookID, p.ReaderID, p.Percent, p.UpdatedAt).
		Scan(&out.BookID, &out.ReaderID, &out.Percent, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReadingProgress{}, ErrNotFound
		}
		return domain.ReadingProgress{}, err
	}
	out.UpdatedAt = out.UpdatedAt.UTC()
	return out, nil
}

func (r *pgProgress) Get(ctx context.Context, bookID, readerID string) (domain.ReadingProgress, error) {
	const query = `
        SELECT book_id, reader_id, percent, updated_at
        FROM reading_progress
        WHERE book_id = $1 AND reader_id = $2
    `
	var out domain.ReadingProgress
	err := r.pool.QueryRow(ctx, query, bookID, readerID).Scan(&out.BookID, &out.ReaderID, &out.Percent, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReadingProgress{}, ErrNotFound
		}
		return domain.ReadingProgress{}, err
	}
	out.UpdatedAt = out.UpdatedAt.UTC()
	return out, nil
}
