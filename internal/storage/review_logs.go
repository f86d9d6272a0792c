package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

func addReviewLog(ctx context.Context, q querier, l domain.ReviewLog) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO review_logs (id, card_id, review_time, rating, state_before, state_after,
			stability_before, stability_after, difficulty_before, difficulty_after,
			interval_days, last_interval_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID,
		l.CardID,
		toMillis(l.ReviewTime),
		l.Rating,
		l.StateBefore,
		l.StateAfter,
		l.StabilityBefore,
		l.StabilityAfter,
		l.DifficultyBefore,
		l.DifficultyAfter,
		l.Interval,
		l.LastInterval,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %d: %w", l.CardID, err)
	}
	return nil
}

// AddReviewLog appends a review log outside of a review transaction.
func (db *DB) AddReviewLog(ctx context.Context, l domain.ReviewLog) error {
	return addReviewLog(ctx, db.conn, l)
}

// ReviewLogsForCard returns the card's logs in review order.
func (db *DB) ReviewLogsForCard(ctx context.Context, cardID int64) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, card_id, review_time, rating, state_before, state_after,
			stability_before, stability_after, difficulty_before, difficulty_after,
			interval_days, last_interval_days
		FROM review_logs WHERE card_id = ?
		ORDER BY review_time ASC, rowid ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l          domain.ReviewLog
			reviewTime int64
		)
		if err := rows.Scan(
			&l.ID,
			&l.CardID,
			&reviewTime,
			&l.Rating,
			&l.StateBefore,
			&l.StateAfter,
			&l.StabilityBefore,
			&l.StabilityAfter,
			&l.DifficultyBefore,
			&l.DifficultyAfter,
			&l.Interval,
			&l.LastInterval,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review log row for card %d: %w", cardID, err)
		}
		l.ReviewTime = fromMillis(reviewTime)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review logs for card %d: %w", cardID, err)
	}
	return logs, nil
}

// CountReviewsBetween counts logs with start <= review_time < end, split by
// whether the card was New before the rating.
func (db *DB) CountReviewsBetween(ctx context.Context, start, end time.Time) (domain.ReviewCounts, error) {
	var counts domain.ReviewCounts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN state_before = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state_before <> ? THEN 1 ELSE 0 END), 0)
		FROM review_logs
		WHERE review_time >= ? AND review_time < ?
	`, domain.New, domain.New, toMillis(start), toMillis(end)).Scan(&counts.NewCards, &counts.ReviewCards)
	if err != nil {
		return domain.ReviewCounts{}, fmt.Errorf("failed to count reviews: %w", err)
	}
	return counts, nil
}
