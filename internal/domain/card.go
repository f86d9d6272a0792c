package domain

import (
	"fmt"
	"time"
)

// State is the scheduling phase of a card.
// Values match the memory model's encoding: New=0, Learning=1, Review=2, Relearning=3.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

var stateNames = [...]string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}

// IsValid reports whether s is one of the four known states.
func (s State) IsValid() bool {
	return s >= New && s <= Relearning
}

func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid state: %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("invalid state: %q", text)
}

// CardTypeBasic is the front-to-back card generated for every imported note.
const CardTypeBasic = "basic"

// Card is one reviewable unit with its own scheduling state.
// LearningStep is only meaningful while State is New, Learning or Relearning.
type Card struct {
	ID            int64      `json:"id"`
	NoteID        int64      `json:"note_id"`
	DeckID        int64      `json:"deck_id"`
	CardType      string     `json:"card_type"`
	State         State      `json:"state"`
	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   int        `json:"elapsed_days"`
	ScheduledDays int        `json:"scheduled_days"`
	Reps          int        `json:"reps"`
	Lapses        int        `json:"lapses"`
	LearningStep  int        `json:"learning_step"`
	LastReview    *time.Time `json:"last_review,omitempty"` // nil before the first rating.
}

// NewCard returns a card for a freshly created note, due immediately.
func NewCard(noteID, deckID int64, cardType string, now time.Time) Card {
	return Card{
		NoteID:   noteID,
		DeckID:   deckID,
		CardType: cardType,
		State:    New,
		Due:      now,
	}
}

// Note is a single question-answer-context entry parsed from a source file.
type Note struct {
	ID       int64
	DeckID   int64
	SourceID int64
	Question string
	Answer   string
	Context  string
	Hash     string
}

// Deck groups cards; every source owns exactly one deck.
type Deck struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
