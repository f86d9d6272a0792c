package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

// CreateNote inserts a note and its basic card, due at now, in one transaction.
func (db *DB) CreateNote(ctx context.Context, note *domain.Note, now time.Time) (domain.Card, error) {
	var card domain.Card
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO notes (deck_id, source_id, hash, question, answer, context)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			note.DeckID,
			sql.NullInt64{Int64: note.SourceID, Valid: note.SourceID != 0},
			note.Hash,
			note.Question,
			note.Answer,
			note.Context,
		)
		if err != nil {
			return fmt.Errorf("failed to insert note %s: %w", note.Hash, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID for note %s: %w", note.Hash, err)
		}
		note.ID = id

		card = domain.NewCard(note.ID, note.DeckID, domain.CardTypeBasic, now)
		return insertCard(ctx, tx, &card)
	})
	if err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// FindNoteByHash retrieves a note by its content hash, or nil if absent.
func (db *DB) FindNoteByHash(ctx context.Context, hash string) (*domain.Note, error) {
	var (
		n        domain.Note
		sourceID sql.NullInt64
	)
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, deck_id, source_id, hash, question, answer, context
		FROM notes WHERE hash = ?
	`, hash)
	err := row.Scan(&n.ID, &n.DeckID, &sourceID, &n.Hash, &n.Question, &n.Answer, &n.Context)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Note not found
		}
		return nil, fmt.Errorf("failed to find note by hash %s: %w", hash, err)
	}
	n.SourceID = sourceID.Int64
	return &n, nil
}

// GetNotesBySourceID retrieves all notes imported from a source.
func (db *DB) GetNotesBySourceID(ctx context.Context, sourceID int64) ([]domain.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, deck_id, hash, question, answer, context
		FROM notes WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notes for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		n := domain.Note{SourceID: sourceID}
		if err := rows.Scan(&n.ID, &n.DeckID, &n.Hash, &n.Question, &n.Answer, &n.Context); err != nil {
			return nil, fmt.Errorf("failed to scan note row for source ID %d: %w", sourceID, err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes for source ID %d: %w", sourceID, err)
	}
	return notes, nil
}

// DeleteNoteByHash removes a note; its cards and their review logs cascade.
func (db *DB) DeleteNoteByHash(ctx context.Context, hash string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete note with hash %s: %w", hash, err)
	}
	return nil
}
