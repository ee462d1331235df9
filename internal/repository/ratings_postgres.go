package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
)

type pgRatings struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, book_id, rater_id, value, replaces_event_id, created_at`

func (r *pgRatings) ReadAggregate(ctx context.Context, itemID string) (domain.RatingAggregate, error) {
	const query = `SELECT average_rating, rating_count, rating_version FROM books WHERE id = $1`
	agg := domain.RatingAggregate{ItemID: itemID}
	err := r.pool.QueryRow(ctx, query, itemID).Scan(&agg.Average, &agg.Count, &agg.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingAggregate{}, ErrNotFound
		}
		return domain.RatingAggregate{}, fmt.Errorf("read aggregate: %w", err)
	}
	return agg, nil
}

// FindRaterEvent returns the rater's event that no later event replaces.
func (r *pgRatings) FindRaterEvent(ctx context.Context, itemID, raterID string) (domain.RatingEvent, error) {
	query := `
        SELECT ` + eventColumns + `
        FROM rating_events e
        WHERE e.book_id = $1 AND e.rater_id = $2
          AND NOT EXISTS (SELECT 1 FROM rating_events n WHERE n.replaces_event_id = e.id)
        ORDER BY e.created_at DESC, e.id DESC
        LIMIT 1
    `
	event, err := scanPgEvent(r.pool.QueryRow(ctx, query, itemID, raterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RatingEvent{}, ErrNotFound
	}
	return event, err
}

// WriteAggregate moves the aggregate and appends the event in one transaction.
func (r *pgRatings) WriteAggregate(ctx context.Context, w ledger.AggregateWrite) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE books
            SET average_rating = $2, rating_count = $3, rating_version = $4
            WHERE id = $1 AND rating_version = $5
        `, w.Event.ItemID, w.Next.Average, w.Next.Count, w.ExpectedVersion+1, w.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("update aggregate: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, w.Event.ItemID).Scan(&exists); err != nil {
				return fmt.Errorf("check item: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO rating_events (id, book_id, rater_id, value, replaces_event_id, created_at)
            VALUES ($1,$2,$3,$4,$5,$6)
        `, w.Event.ID, w.Event.ItemID, nullString(w.Event.RaterID), w.Event.Value, nullString(w.Event.Replaces), w.Event.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

func (r *pgRatings) ListEvents(ctx context.Context, itemID string, limit int) ([]domain.RatingEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM rating_events WHERE book_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.RatingEvent, 0)
	for rows.Next() {
		event, err := scanPgEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanPgEvent(row pgx.Row) (domain.RatingEvent, error) {
	var (
		event    domain.RatingEvent
		raterID  *string
		replaces *string
	)
	if err := row.Scan(&event.ID, &event.ItemID, &raterID, &event.Value, &replaces, &event.CreatedAt); err != nil {
		return domain.RatingEvent{}, err
	}
	event.RaterID = derefString(raterID)
	event.Replaces = derefString(replaces)
	event.CreatedAt = event.CreatedAt.UTC()
	return event, nil
}
