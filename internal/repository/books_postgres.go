package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/bookshelf/internal/domain"
)

type pgBooks struct {
	pool *pgxpool.Pool
}

const bookColumns = `
    id,
    title,
    author,
    description,
    content,
    cover_url,
    category,
    pages,
    price_cents,
    is_free,
    published_date,
    average_rating,
    rating_count,
    rating_version,
    created_at,
    updated_at
`

func (r *pgBooks) Create(ctx context.Context, f BookFields) (domain.Book, error) {
	query := fmt.Sprintf(`
        INSERT INTO books (id, title, author, description, content, cover_url, category, pages, price_cents, is_free, published_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING %s
    `, bookColumns)

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), f.Title, f.Author, f.Description, f.Content,
		f.CoverURL, f.Category, f.Pages, f.PriceCents, f.IsFree, f.PublishedDate)
	return scanPgBook(row)
}

func (r *pgBooks) GetByID(ctx context.Context, id string) (domain.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1`, bookColumns)
	book, err := scanPgBook(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Book{}, ErrNotFound
	}
	return book, err
}

func (r *pgBooks) Update(ctx context.Context, id string, f BookFields) (domain.Book, error) {
	query := fmt.Sprintf(`
        UPDATE books
        SET title = $2,
            author = $3,
            description = $4,
            content = $5,
            cover_url = $6,
            category = $7,
            pages = $8,
            price_cents = $9,
            is_free = $10,
            published_date = $11,
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, bookColumns)

	row := r.pool.QueryRow(ctx, query, id, f.Title, f.Author, f.Description, f.Content,
		f.CoverURL, f.Category, f.Pages, f.PriceCents, f.IsFree, f.PublishedDate)
	book, err := scanPgBook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Book{}, ErrNotFound
	}
	return book, err
}

func (r *pgBooks) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgBooks) List(ctx context.Context, filters BookListFilters) (BookListResult, error) {
	limit := normalizeLimit(filters.Limit)

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := containsPattern(strings.TrimSpace(*filters.Query))
		p1 := arg(q)
		p2 := arg(q)
		where = append(where, fmt.Sprintf(`(title ILIKE %s ESCAPE '\' OR author ILIKE %s ESCAPE '\')`, p1, p2))
	}
	if filters.Category != nil && strings.TrimSpace(*filters.Category) != "" {
		where = append(where, fmt.Sprintf("lower(category) = lower(%s)", arg(strings.TrimSpace(*filters.Category))))
	}
	if filters.Free != nil {
		where = append(where, fmt.Sprintf("is_free = %s", arg(*filters.Free)))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(bookColumns)
	queryBuilder.WriteString(" FROM books")
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return BookListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanPgBook(rows)
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

func (r *pgBooks) Stats(ctx context.Context) (domain.CatalogStats, error) {
	const query = `
        SELECT COUNT(*)::int8,
               COALESCE(SUM(rating_count), 0)::int8,
               COALESCE(AVG(CASE WHEN rating_count > 0 THEN average_rating END), 0)::float8
        FROM books
    `
	var stats domain.CatalogStats
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.TotalBooks, &stats.TotalRatings, &stats.AverageRating); err != nil {
		return domain.CatalogStats{}, fmt.Errorf("catalog stats: %w", err)
	}
	return stats, nil
}

func scanPgBook(row pgx.Row) (domain.Book, error) {
	var (
		book      domain.Book
		pages     *int32
		published *time.Time
	)
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Description,
		&book.Content,
		&book.CoverURL,
		&book.Category,
		&pages,
		&book.PriceCents,
		&book.IsFree,
		&published,
		&book.Rating.Average,
		&book.Rating.Count,
		&book.Rating.Version,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return domain.Book{}, err
	}
	if pages != nil {
		p := int(*pages)
		book.Pages = &p
	}
	if published != nil {
		d := published.UTC()
		book.PublishedDate = &d
	}
	book.Rating.ItemID = book.ID
	return book, nil
}
