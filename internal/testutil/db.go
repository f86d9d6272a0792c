package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

// OpenDB opens a migrated in-memory database that is closed when the test ends.
func OpenDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return db
}

// Deck returns the id of the named deck, creating it when needed.
func Deck(t *testing.T, db *storage.DB, name string) int64 {
	t.Helper()
	id, err := db.EnsureDeck(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to create deck %s: %v", name, err)
	}
	return id
}

var noteSeq int

// SeedCard creates a note in deckID and overwrites its card's scheduling fields
// with those of c. The stored card is returned.
func SeedCard(t *testing.T, db *storage.DB, deckID int64, c domain.Card) domain.Card {
	t.Helper()
	ctx := context.Background()
	noteSeq++
	note := domain.Note{
		DeckID:   deckID,
		Question: fmt.Sprintf("Question %d", noteSeq),
		Hash:     fmt.Sprintf("hash-%s-%d", t.Name(), noteSeq),
	}
	created, err := db.CreateNote(ctx, &note, c.Due)
	if err != nil {
		t.Fatalf("failed to create note: %v", err)
	}

	c.ID = created.ID
	c.NoteID = created.NoteID
	c.DeckID = created.DeckID
	c.CardType = created.CardType
	if err := db.UpdateCard(ctx, c); err != nil {
		t.Fatalf("failed to seed card %d: %v", c.ID, err)
	}
	stored, err := db.GetCardByID(ctx, c.ID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload card %d: %v", c.ID, err)
	}
	return *stored
}

// Time returns a whole-second UTC timestamp; stored times keep millisecond precision.
func Time(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}
