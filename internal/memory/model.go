// Package memory defines the boundary to the memory-decay model that turns a
// card's memory state and a review time into per-rating outcomes.
package memory

import (
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

// State is the memory-model view of a card. It is both the input to Schedule
// and the shape of every per-rating outcome.
type State struct {
	Due           time.Time
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	CardState     domain.State
	LastReview    *time.Time
}

// Outcomes holds the candidate result for each rating.
type Outcomes struct {
	Again State
	Hard  State
	Good  State
	Easy  State
}

// For returns the outcome matching r. Invalid ratings yield the zero State.
func (o Outcomes) For(r domain.Rating) State {
	switch r {
	case domain.Again:
		return o.Again
	case domain.Hard:
		return o.Hard
	case domain.Good:
		return o.Good
	case domain.Easy:
		return o.Easy
	}
	return State{}
}

// Model schedules a memory state at now. Implementations must be pure and
// deterministic for a given (state, now).
type Model interface {
	Schedule(s State, now time.Time) Outcomes
}

// FromCard copies the full memory state of c.
func FromCard(c domain.Card) State {
	return State{
		Due:           c.Due,
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   c.ElapsedDays,
		ScheduledDays: c.ScheduledDays,
		Reps:          c.Reps,
		Lapses:        c.Lapses,
		CardState:     c.State,
		LastReview:    c.LastReview,
	}
}

// ZeroHistory returns the transient state used to graduate a card: no stability,
// no difficulty, no reps, only the lapse count is carried over.
func ZeroHistory(lapses int, now time.Time) State {
	return State{
		Due:       now,
		Lapses:    lapses,
		CardState: domain.New,
	}
}

// ApplyTo writes the outcome's fields onto c and returns the result.
func (s State) ApplyTo(c domain.Card) domain.Card {
	c.Due = s.Due
	c.Stability = s.Stability
	c.Difficulty = s.Difficulty
	c.ElapsedDays = s.ElapsedDays
	c.ScheduledDays = s.ScheduledDays
	c.Reps = s.Reps
	c.Lapses = s.Lapses
	c.State = s.CardState
	c.LastReview = s.LastReview
	return c
}
