package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
)

type sqliteRatings struct {
	db *sql.DB
}

func (r *sqliteRatings) ReadAggregate(ctx context.Context, itemID string) (domain.RatingAggregate, error) {
	const query = `SELECT average_rating, rating_count, rating_version FROM books WHERE id = ?`
	agg := domain.RatingAggregate{ItemID: itemID}
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(&agg.Average, &agg.Count, &agg.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RatingAggregate{}, ErrNotFound
		}
		return domain.RatingAggregate{}, fmt.Errorf("read aggregate: %w", err)
	}
	return agg, nil
}

func (r *sqliteRatings) FindRaterEvent(ctx context.Context, itemID, raterID string) (domain.RatingEvent, error) {
	query := `
        SELECT ` + eventColumns + `
        FROM rating_events e
        WHERE e.book_id = ? AND e.rater_id = ?
          AND NOT EXISTS (SELECT 1 FROM rating_events n WHERE n.replaces_event_id = e.id)
        ORDER BY e.created_at DESC, e.id DESC
        LIMIT 1
    `
	event, err := scanSQLiteEvent(r.db.QueryRowContext(ctx, query, itemID, raterID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RatingEvent{}, ErrNotFound
	}
	return event, err
}

func (r *sqliteRatings) WriteAggregate(ctx context.Context, w ledger.AggregateWrite) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
        UPDATE books
        SET average_rating = ?, rating_count = ?, rating_version = ?
        WHERE id = ? AND rating_version = ?
    `, w.Next.Average, w.Next.Count, w.ExpectedVersion+1, w.Event.ItemID, w.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update aggregate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update aggregate: %w", err)
	}
	if n == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id = ?`, w.Event.ItemID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check item: %w", err)
		}
		err = ErrConflict
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO rating_events (id, book_id, rater_id, value, replaces_event_id, created_at)
        VALUES (?,?,?,?,?,?)
    `, w.Event.ID, w.Event.ItemID, nullString(w.Event.RaterID), w.Event.Value, nullString(w.Event.Replaces), w.Event.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *sqliteRatings) ListEvents(ctx context.Context, itemID string, limit int) ([]domain.RatingEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM rating_events WHERE book_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.RatingEvent, 0)
	for rows.Next() {
		event, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanSQLiteEvent(row rowScanner) (domain.RatingEvent, error) {
	var (
		event     domain.RatingEvent
		raterID   sql.NullString
		replaces  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&event.ID, &event.ItemID, &raterID, &event.Value, &replaces, &createdAt); err != nil {
		return domain.RatingEvent{}, err
	}
	event.RaterID = raterID.String
	event.Replaces = replaces.String
	event.CreatedAt = time.UnixMilli(createdAt).UTC()
	return event, nil
}
