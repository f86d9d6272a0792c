package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

const cardColumns = `id, note_id, deck_id, card_type, state, due, stability, difficulty,
	elapsed_days, scheduled_days, reps, lapses, learning_step, last_review`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		c          domain.Card
		due        int64
		lastReview sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&c.NoteID,
		&c.DeckID,
		&c.CardType,
		&c.State,
		&due,
		&c.Stability,
		&c.Difficulty,
		&c.ElapsedDays,
		&c.ScheduledDays,
		&c.Reps,
		&c.Lapses,
		&c.LearningStep,
		&lastReview,
	)
	if err != nil {
		return domain.Card{}, err
	}
	c.Due = fromMillis(due)
	c.LastReview = timePtr(lastReview)
	return c, nil
}

func insertCard(ctx context.Context, q querier, c *domain.Card) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO cards (note_id, deck_id, card_type, state, due, stability, difficulty,
			elapsed_days, scheduled_days, reps, lapses, learning_step, last_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.NoteID,
		c.DeckID,
		c.CardType,
		c.State,
		toMillis(c.Due),
		c.Stability,
		c.Difficulty,
		c.ElapsedDays,
		c.ScheduledDays,
		c.Reps,
		c.Lapses,
		c.LearningStep,
		nullMillis(c.LastReview),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card for note %d: %w", c.NoteID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for card of note %d: %w", c.NoteID, err)
	}
	c.ID = id
	return nil
}

func getCardByID(ctx context.Context, q querier, id int64) (*domain.Card, error) {
	row := q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return &c, nil
}

// GetCardByID returns the card with the given id, or nil if it does not exist.
func (db *DB) GetCardByID(ctx context.Context, id int64) (*domain.Card, error) {
	return getCardByID(ctx, db.conn, id)
}

func updateCard(ctx context.Context, q querier, c domain.Card) error {
	res, err := q.ExecContext(ctx, `
		UPDATE cards
		SET state = ?, due = ?, stability = ?, difficulty = ?, elapsed_days = ?,
			scheduled_days = ?, reps = ?, lapses = ?, learning_step = ?, last_review = ?
		WHERE id = ?
	`,
		c.State,
		toMillis(c.Due),
		c.Stability,
		c.Difficulty,
		c.ElapsedDays,
		c.ScheduledDays,
		c.Reps,
		c.Lapses,
		c.LearningStep,
		nullMillis(c.LastReview),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update card %d: %w", c.ID, domain.ErrCardNotFound)
	}
	return nil
}

// UpdateCard writes the scheduling fields of c. It fails with
// domain.ErrCardNotFound if the card does not exist.
func (db *DB) UpdateCard(ctx context.Context, c domain.Card) error {
	return updateCard(ctx, db.conn, c)
}

// ApplyReview reads the card, lets apply compute its next state, and writes the
// card together with the review log in one transaction. Either both writes are
// visible or neither is.
func (db *DB) ApplyReview(ctx context.Context, cardID int64, apply func(domain.Card) (domain.Card, domain.ReviewLog, error)) (domain.Card, error) {
	var updated domain.Card
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		card, err := getCardByID(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if card == nil {
			return fmt.Errorf("card %d: %w", cardID, domain.ErrCardNotFound)
		}

		next, log, err := apply(*card)
		if err != nil {
			return err
		}
		if err := updateCard(ctx, tx, next); err != nil {
			return err
		}
		if err := addReviewLog(ctx, tx, log); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	return updated, nil
}

// GetDueCards returns cards with due <= now, earliest first with ties broken by id.
// A nil deckID selects every deck; a non-positive limit means no limit.
func (db *DB) GetDueCards(ctx context.Context, deckID *int64, now time.Time, limit int) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE due <= ?`
	args := []any{toMillis(now)}
	if deckID != nil {
		query += ` AND deck_id = ?`
		args = append(args, *deckID)
	}
	query += ` ORDER BY due ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.queryCards(ctx, query, args...)
}

// GetCardsByDeck returns every card in the deck ordered by id.
func (db *DB) GetCardsByDeck(ctx context.Context, deckID int64) ([]domain.Card, error) {
	return db.queryCards(ctx, `SELECT `+cardColumns+` FROM cards WHERE deck_id = ? ORDER BY id`, deckID)
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card rows: %w", err)
	}
	return cards, nil
}

// ResetCardsInDeck returns every card in scope to the New state, due at now, and
// deletes its review logs. A nil deckID resets all cards. The whole reset runs
// in one transaction and returns the number of cards reset.
func (db *DB) ResetCardsInDeck(ctx context.Context, deckID *int64, now time.Time) (int, error) {
	scope, args := "", []any{}
	if deckID != nil {
		scope, args = ` WHERE deck_id = ?`, []any{*deckID}
	}

	var count int
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM review_logs WHERE card_id IN (SELECT id FROM cards`+scope+`)`, args...); err != nil {
			return fmt.Errorf("failed to delete review logs: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE cards
			SET state = ?, due = ?, stability = 0, difficulty = 0, elapsed_days = 0,
				scheduled_days = 0, reps = 0, lapses = 0, learning_step = 0, last_review = NULL
		`+scope, append([]any{domain.New, toMillis(now)}, args...)...)
		if err != nil {
			return fmt.Errorf("failed to reset cards: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count reset cards: %w", err)
		}
		count = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
