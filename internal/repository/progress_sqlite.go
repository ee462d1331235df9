package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Clark-Hu/bookshelf/internal/domain"
)

type sqliteProgress struct {
	db *sql.DB
}

func (r *sqliteProgress) Save(ctx context.Context, p domain.ReadingProgress) (domain.ReadingProgress, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO reading_progress (book_id, reader_id, percent, updated_at)
        SELECT id, ?, ?, ? FROM books WHERE id = ?
        ON CONFLICT (book_id, reader_id)
        DO UPDATE SET percent = excluded.percent, updated_at = excluded.updated_at
        RETURNING book_id, reader_id, percent, updated_at
    `
	var (
		out       domain.ReadingProgress
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, p.ReaderID, p.Percent, p.UpdatedAt.UnixMilli(), p.BookID).
		Scan(&out.BookID, &out.ReaderID, &out.Percent, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReadingProgress{}, ErrNotFound
		}
		return domain.ReadingProgress{}, err
	}
	out.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return out, nil
}

func (r *sqliteProgress) Get(ctx context.Context, bookID, readerID string) (domain.ReadingProgress, error) {
	const query = `
        SELECT book_id, reader_id, percent, updated_at
        FROM reading_progress
        WHERE book_id = ? AND reader_id = ?
    `
	var (
		out       domain.ReadingProgress
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, bookID, readerID).Scan(&out.BookID, &out.ReaderID, &out.Percent, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReadingProgress{}, ErrNotFound
		}
		return domain.ReadingProgress{}, err
	}
	out.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return out, nil
}
