package review

import (
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/memory"
)

// Mode applies one rating to one card at now and returns the next card state.
// TaskDriven and Stepped are the only implementations; the active one is picked
// once per review from the current settings.
type Mode interface {
	Apply(card domain.Card, rating domain.Rating, now time.Time) domain.Card
}

var (
	_ Mode = TaskDriven{}
	_ Mode = Stepped{}
)

// ModeFor selects the learning mode described by s.
func ModeFor(s domain.UserSettings, model memory.Model) Mode {
	if s.EnableTraditionalLearningSteps {
		return Stepped{
			Model:           model,
			LearningSteps:   s.LearningSteps,
			RelearningSteps: s.RelearningSteps,
		}
	}
	return TaskDriven{Model: model}
}

// TaskDriven graduates New and Relearning cards as soon as the learning task is
// passed (Good or Easy) and otherwise keeps them due immediately.
type TaskDriven struct {
	Model memory.Model
}

// Apply implements Mode.
func (m TaskDriven) Apply(card domain.Card, rating domain.Rating, now time.Time) domain.Card {
	switch card.State {
	case domain.New, domain.Relearning:
		if rating == domain.Good || rating == domain.Easy {
			return graduate(m.Model, card, rating, now)
		}
		card.Due = now
		return card
	case domain.Review:
		if rating == domain.Again {
			return lapse(card, now, now)
		}
		return applyModel(m.Model, card, rating, now)
	default:
		// Learning cards are not produced in this mode; schedule them as Review.
		c := applyModel(m.Model, card, rating, now)
		c.State = domain.Review
		return c
	}
}

// Stepped walks New/Learning cards through LearningSteps and Relearning cards
// through RelearningSteps before graduating them.
type Stepped struct {
	Model           memory.Model
	LearningSteps   []time.Duration
	RelearningSteps []time.Duration
}

// Apply implements Mode.
func (m Stepped) Apply(card domain.Card, rating domain.Rating, now time.Time) domain.Card {
	switch card.State {
	case domain.New, domain.Learning:
		return m.step(card, rating, now, m.LearningSteps, domain.Learning)
	case domain.Relearning:
		return m.step(card, rating, now, m.RelearningSteps, domain.Relearning)
	default:
		if rating == domain.Again {
			return lapse(card, now, dueAfterStep(now, m.RelearningSteps, 0))
		}
		return applyModel(m.Model, card, rating, now)
	}
}

func (m Stepped) step(card domain.Card, rating domain.Rating, now time.Time, steps []time.Duration, inProgress domain.State) domain.Card {
	switch rating {
	case domain.Again:
		card.LearningStep = 0
		card.Due = dueAfterStep(now, steps, 0)
		card.LastReview = &now
		return card
	case domain.Easy:
		return graduate(m.Model, card, rating, now)
	default:
		next := card.LearningStep + 1
		if next >= len(steps) {
			return graduate(m.Model, card, rating, now)
		}
		card.State = inProgress
		card.LearningStep = next
		card.Due = dueAfterStep(now, steps, next)
		card.LastReview = &now
		return card
	}
}

// dueAfterStep returns now plus steps[i], or now when i is out of range.
func dueAfterStep(now time.Time, steps []time.Duration, i int) time.Time {
	if i < 0 || i >= len(steps) {
		return now
	}
	return now.Add(steps[i])
}

// lapse moves a Review card to Relearning at the first step.
func lapse(card domain.Card, now, due time.Time) domain.Card {
	card.State = domain.Relearning
	card.LearningStep = 0
	card.Due = due
	card.Lapses++
	card.LastReview = &now
	return card
}

// graduate schedules card from a zero-history memory state and moves it to Review.
// LearningStep 1 marks the learning task or step sequence as satisfied.
func graduate(model memory.Model, card domain.Card, rating domain.Rating, now time.Time) domain.Card {
	out := model.Schedule(memory.ZeroHistory(card.Lapses, now), now).For(rating)
	c := out.ApplyTo(card)
	c.State = domain.Review
	c.LearningStep = 1
	c.Reps = card.Reps + 1
	c.Lapses = max(c.Lapses, card.Lapses)
	return c
}

// applyModel schedules card from its full current memory state. Cards that never
// reached the model (stepped Learning cards have zero stability) graduate instead.
func applyModel(model memory.Model, card domain.Card, rating domain.Rating, now time.Time) domain.Card {
	if card.Stability <= 0 {
		return graduate(model, card, rating, now)
	}
	out := model.Schedule(memory.FromCard(card), now).For(rating)
	c := out.ApplyTo(card)
	c.Reps = card.Reps + 1
	c.Lapses = max(c.Lapses, card.Lapses)
	return c
}
