package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

// ErrSourceNotFound is returned by DeleteSource for an unknown id.
var ErrSourceNotFound = errors.New("source not found")

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a note source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	DeckID      int64
	LastScanned *time.Time
}

// InsertSource registers a source together with the deck its notes go into.
// The deck is named after the path.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	var id int64
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		deckID, err := ensureDeck(ctx, tx, path)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sources (path, type, deck_id)
			VALUES (?, ?, ?)
		`, path, sourceType, deckID)
		if err != nil {
			return fmt.Errorf("failed to insert source %s: %w", path, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
		}
		return nil
	})
	return id, err
}

func scanSource(row rowScanner) (Source, error) {
	var (
		s           Source
		lastScanned sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Path, &s.Type, &s.DeckID, &lastScanned); err != nil {
		return Source{}, err
	}
	s.LastScanned = timePtr(lastScanned)
	return s, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, deck_id, last_scanned
		FROM sources WHERE path = ?
	`, path)
	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, deck_id, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source rows: %w", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, toMillis(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source and the notes imported from it.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for source %d: %w", sourceID, err)
	}
	if n == 0 {
		return fmt.Errorf("source %d: %w", sourceID, ErrSourceNotFound)
	}
	return nil
}

func ensureDeck(ctx context.Context, q querier, name string) (int64, error) {
	if _, err := q.ExecContext(ctx, `INSERT INTO decks (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("failed to insert deck %s: %w", name, err)
	}
	var id int64
	if err := q.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to find deck %s: %w", name, err)
	}
	return id, nil
}

// EnsureDeck returns the id of the named deck, creating it when missing.
func (db *DB) EnsureDeck(ctx context.Context, name string) (int64, error) {
	return ensureDeck(ctx, db.conn, name)
}

// GetDecks lists every deck ordered by id.
func (db *DB) GetDecks(ctx context.Context) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM decks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deck rows: %w", err)
	}
	return decks, nil
}
