package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/bookshelf/internal/domain"
)

const dateLayout = "2006-01-02"

type sqliteBooks struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *sqliteBooks) Create(ctx context.Context, f BookFields) (domain.Book, error) {
	now := time.Now().UTC().UnixMilli()
	query := fmt.Sprintf(`
        INSERT INTO books (id, title, author, description, content, cover_url, category, pages, price_cents, is_free, published_date, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
        RETURNING %s
    `, bookColumns)

	row := r.db.QueryRowContext(ctx, query, uuid.NewString(), f.Title, f.Author, f.Description, f.Content,
		f.CoverURL, f.Category, f.Pages, f.PriceCents, f.IsFree, formatDate(f.PublishedDate), now, now)
	return scanSQLiteBook(row)
}

func (r *sqliteBooks) GetByID(ctx context.Context, id string) (domain.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = ?`, bookColumns)
	book, err := scanSQLiteBook(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, ErrNotFound
	}
	return book, err
}

func (r *sqliteBooks) Update(ctx context.Context, id string, f BookFields) (domain.Book, error) {
	query := fmt.Sprintf(`
        UPDATE books
        SET title = ?, author = ?, description = ?, content = ?, cover_url = ?, category = ?,
            pages = ?, price_cents = ?, is_free = ?, published_date = ?, updated_at = ?
        WHERE id = ?
        RETURNING %s
    `, bookColumns)

	row := r.db.QueryRowContext(ctx, query, f.Title, f.Author, f.Description, f.Content, f.CoverURL,
		f.Category, f.Pages, f.PriceCents, f.IsFree, formatDate(f.PublishedDate), time.Now().UTC().UnixMilli(), id)
	book, err := scanSQLiteBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, ErrNotFound
	}
	return book, err
}

func (r *sqliteBooks) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteBooks) List(ctx context.Context, filters BookListFilters) (BookListResult, error) {
	limit := normalizeLimit(filters.Limit)

	var (
		where []string
		args  []any
	)
	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := containsPattern(strings.TrimSpace(*filters.Query))
		where = append(where, `(title LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\')`)
		args = append(args, q, q)
	}
	if filters.Category != nil && strings.TrimSpace(*filters.Category) != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, strings.TrimSpace(*filters.Category))
	}
	if filters.Free != nil {
		where = append(where, "is_free = ?")
		args = append(args, *filters.Free)
	}
	if filters.Cursor != nil {
		where = append(where, "(created_at, id) < (?, ?)")
		args = append(args, filters.Cursor.CreatedAt.UnixMilli(), filters.Cursor.ID)
	}

	query := "SELECT " + bookColumns + " FROM books"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return BookListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanSQLiteBook(rows)
		if err != nil {
			return BookListResult{}, err
		}
		items = append(items, book)
	}
	if err := rows.Err(); err != nil {
		return BookListResult{}, err
	}

	result := BookListResult{Items: items}
	if len(items) > 0 {
		last := items[len(items)-1]
		result.NextCursor, err = nextCursor(len(items), limit, BookCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return BookListResult{}, err
		}
	}
	return result, nil
}

func (r *sqliteBooks) Stats(ctx context.Context) (domain.CatalogStats, error) {
	const query = `
        SELECT COUNT(*),
               COALESCE(SUM(rating_count), 0),
               COALESCE(AVG(CASE WHEN rating_count > 0 THEN average_rating END), 0.0)
        FROM books
    `
	var stats domain.CatalogStats
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalBooks, &stats.TotalRatings, &stats.AverageRating); err != nil {
		return domain.CatalogStats{}, fmt.Errorf("catalog stats: %w", err)
	}
	return stats, nil
}

func scanSQLiteBook(row rowScanner) (domain.Book, error) {
	var (
		book      domain.Book
		coverURL  sql.NullString
		pages     sql.NullInt64
		published sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Description,
		&book.Content,
		&coverURL,
		&book.Category,
		&pages,
		&book.PriceCents,
		&book.IsFree,
		&published,
		&book.Rating.Average,
		&book.Rating.Count,
		&book.Rating.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Book{}, err
	}
	if coverURL.Valid {
		book.CoverURL = &coverURL.String
	}
	if pages.Valid {
		p := int(pages.Int64)
		book.Pages = &p
	}
	if published.Valid && published.String != "" {
		d, err := time.Parse(dateLayout, published.String)
		if err != nil {
			return domain.Book{}, fmt.Errorf("parse published_date: %w", err)
		}
		book.PublishedDate = &d
	}
	book.CreatedAt = time.UnixMilli(createdAt).UTC()
	book.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	book.Rating.ItemID = book.ID
	return book, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(dateLayout)
	return &s
}
