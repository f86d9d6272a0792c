package review

import (
	"math"
	"testing"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/memory"
)

var now = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

// recordingModel returns fixed outcomes and remembers the last input state.
type recordingModel struct {
	calls int
	last  memory.State
}

func (m *recordingModel) Schedule(s memory.State, at time.Time) memory.Outcomes {
	m.calls++
	m.last = s
	outcome := func(days int) memory.State {
		last := at
		return memory.State{
			Due:           at.AddDate(0, 0, days),
			Stability:     float64(days),
			Difficulty:    5,
			ScheduledDays: days,
			Reps:          s.Reps + 1,
			Lapses:        s.Lapses,
			CardState:     domain.Review,
			LastReview:    &last,
		}
	}
	return memory.Outcomes{Again: outcome(1), Hard: outcome(2), Good: outcome(3), Easy: outcome(5)}
}

func mustFSRS(t *testing.T) memory.Model {
	t.Helper()
	m, err := memory.NewFSRS(memory.DefaultConfig())
	if err != nil {
		t.Fatalf("NewFSRS: %v", err)
	}
	return m
}

func reviewCard() domain.Card {
	last := now.AddDate(0, 0, -10)
	return domain.Card{
		ID:            7,
		State:         domain.Review,
		Due:           now,
		Stability:     10,
		Difficulty:    5,
		ScheduledDays: 10,
		Reps:          4,
		LearningStep:  1,
		LastReview:    &last,
	}
}

func TestModeFor(t *testing.T) {
	s := domain.DefaultUserSettings()
	if _, ok := ModeFor(s, nil).(TaskDriven); !ok {
		t.Errorf("Expected TaskDriven by default")
	}

	s.EnableTraditionalLearningSteps = true
	m, ok := ModeFor(s, nil).(Stepped)
	if !ok {
		t.Fatalf("Expected Stepped when traditional steps are enabled")
	}
	if len(m.LearningSteps) != 2 || m.LearningSteps[1] != 10*time.Minute {
		t.Errorf("Expected learning steps [1m 10m], got %v", m.LearningSteps)
	}
}

func TestTaskDrivenGraduation(t *testing.T) {
	mode := TaskDriven{Model: mustFSRS(t)}

	for _, state := range []domain.State{domain.New, domain.Relearning} {
		for _, rating := range []domain.Rating{domain.Good, domain.Easy} {
			t.Run(state.String()+"/"+rating.String(), func(t *testing.T) {
				card := domain.NewCard(1, 1, domain.CardTypeBasic, now)
				card.State = state
				card.Reps = 2
				card.Lapses = 1

				got := mode.Apply(card, rating, now)
				if got.State != domain.Review {
					t.Errorf("Expected Review, got %v", got.State)
				}
				if got.ScheduledDays <= 0 {
					t.Errorf("Expected ScheduledDays > 0, got %d", got.ScheduledDays)
				}
				if got.Reps != 3 {
					t.Errorf("Expected reps 3, got %d", got.Reps)
				}
				if got.Lapses != 1 {
					t.Errorf("Expected lapses to stay 1, got %d", got.Lapses)
				}
				if got.LearningStep != 1 {
					t.Errorf("Expected learning step 1, got %d", got.LearningStep)
				}
				if !got.Due.After(now) {
					t.Errorf("Expected due after now, got %v", got.Due)
				}
			})
		}
	}
}

func TestTaskDrivenGraduationUsesZeroHistory(t *testing.T) {
	model := &recordingModel{}
	card := reviewCard()
	card.State = domain.Relearning
	card.Lapses = 3

	TaskDriven{Model: model}.Apply(card, domain.Good, now)

	want := memory.ZeroHistory(3, now)
	if model.last.Stability != 0 || model.last.Reps != 0 || model.last.CardState != domain.New || model.last.LastReview != nil {
		t.Errorf("Expected zero-history input %+v, got %+v", want, model.last)
	}
	if model.last.Lapses != 3 {
		t.Errorf("Expected lapses 3 to be carried into the model, got %d", model.last.Lapses)
	}
}

func TestTaskDrivenFailedTask(t *testing.T) {
	model := &recordingModel{}
	mode := TaskDriven{Model: model}
	earlier := now.Add(-time.Hour)

	for _, state := range []domain.State{domain.New, domain.Relearning} {
		for _, rating := range []domain.Rating{domain.Again, domain.Hard} {
			t.Run(state.String()+"/"+rating.String(), func(t *testing.T) {
				card := reviewCard()
				card.State = state
				card.Due = earlier

				got := mode.Apply(card, rating, now)
				if got.State != state {
					t.Errorf("Expected state %v to be unchanged, got %v", state, got.State)
				}
				if !got.Due.Equal(now) {
					t.Errorf("Expected due %v, got %v", now, got.Due)
				}
				if got.Stability != card.Stability || got.Difficulty != card.Difficulty || got.Reps != card.Reps {
					t.Errorf("Expected memory fields untouched, got %+v", got)
				}
			})
		}
	}
	if model.calls != 0 {
		t.Errorf("Expected no model calls, got %d", model.calls)
	}
}

func TestReviewLapse(t *testing.T) {
	steps := []time.Duration{10 * time.Minute}
	testCases := []struct {
		name    string
		mode    Mode
		wantDue time.Time
	}{
		{name: "TaskDriven", mode: TaskDriven{Model: &recordingModel{}}, wantDue: now},
		{name: "Stepped", mode: Stepped{Model: &recordingModel{}, RelearningSteps: steps}, wantDue: now.Add(10 * time.Minute)},
		{name: "Stepped without steps", mode: Stepped{Model: &recordingModel{}}, wantDue: now},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			card := reviewCard()
			got := tc.mode.Apply(card, domain.Again, now)

			if got.State != domain.Relearning {
				t.Errorf("Expected Relearning, got %v", got.State)
			}
			if got.LearningStep != 0 {
				t.Errorf("Expected learning step 0, got %d", got.LearningStep)
			}
			if got.Lapses != card.Lapses+1 {
				t.Errorf("Expected lapses %d, got %d", card.Lapses+1, got.Lapses)
			}
			if !got.Due.Equal(tc.wantDue) {
				t.Errorf("Expected due %v, got %v", tc.wantDue, got.Due)
			}
			if got.Stability != card.Stability || got.Difficulty != card.Difficulty {
				t.Errorf("Expected memory state to be kept on a lapse, got stability %v difficulty %v", got.Stability, got.Difficulty)
			}
		})
	}
}

func TestReviewAppliesModelDirectly(t *testing.T) {
	model := &recordingModel{}
	card := reviewCard()

	got := TaskDriven{Model: model}.Apply(card, domain.Good, now)

	if model.last.Stability != card.Stability || model.last.CardState != domain.Review || model.last.Reps != card.Reps {
		t.Errorf("Expected the full card state as model input, got %+v", model.last)
	}
	if got.ScheduledDays != 3 || got.Reps != card.Reps+1 || got.State != domain.Review {
		t.Errorf("Expected the Good branch with reps %d, got %+v", card.Reps+1, got)
	}
}

func TestTaskDrivenLearningFallback(t *testing.T) {
	card := reviewCard()
	card.State = domain.Learning

	got := TaskDriven{Model: &recordingModel{}}.Apply(card, domain.Again, now)
	if got.State != domain.Review {
		t.Errorf("Expected stray Learning card to be scheduled as Review, got %v", got.State)
	}
}

func TestTaskDrivenSteppedLearningCard(t *testing.T) {
	model := mustFSRS(t)
	stepped := Stepped{Model: model, LearningSteps: domain.ParseSteps("1 10")}
	learning := stepped.Apply(domain.NewCard(1, 1, domain.CardTypeBasic, now), domain.Good, now)
	if learning.State != domain.Learning || learning.Stability != 0 {
		t.Fatalf("Expected a Learning card without memory state, got %+v", learning)
	}

	later := now.Add(10 * time.Minute)
	for _, rating := range []domain.Rating{domain.Again, domain.Hard, domain.Good, domain.Easy} {
		t.Run(rating.String(), func(t *testing.T) {
			got := TaskDriven{Model: model}.Apply(learning, rating, later)
			if math.IsNaN(got.Stability) || got.Stability <= 0 || math.IsNaN(got.Difficulty) {
				t.Errorf("Expected finite positive memory state, got stability %v difficulty %v", got.Stability, got.Difficulty)
			}
			if got.State != domain.Review || got.Reps != learning.Reps+1 || !got.Due.After(later) {
				t.Errorf("Expected graduation to Review after %v, got %+v", later, got)
			}
		})
	}
}

func TestSteppedLearning(t *testing.T) {
	mode := Stepped{
		Model:           mustFSRS(t),
		LearningSteps:   domain.ParseSteps("1 10"),
		RelearningSteps: domain.ParseSteps("10"),
	}
	card := domain.NewCard(1, 1, domain.CardTypeBasic, now)

	first := mode.Apply(card, domain.Good, now)
	if first.State != domain.Learning || first.LearningStep != 1 {
		t.Fatalf("Expected Learning at step 1, got %v at step %d", first.State, first.LearningStep)
	}
	if want := now.Add(10 * time.Minute); !first.Due.Equal(want) {
		t.Errorf("Expected due %v, got %v", want, first.Due)
	}
	if first.Reps != 0 {
		t.Errorf("Expected reps 0 before graduation, got %d", first.Reps)
	}

	later := first.Due
	second := mode.Apply(first, domain.Good, later)
	if second.State != domain.Review || second.LearningStep != 1 || second.Reps != 1 {
		t.Errorf("Expected graduation to Review with step 1 and reps 1, got %+v", second)
	}
	if second.ScheduledDays <= 0 {
		t.Errorf("Expected ScheduledDays > 0, got %d", second.ScheduledDays)
	}
}

func TestSteppedAgainAndEasy(t *testing.T) {
	mode := Stepped{
		Model:           mustFSRS(t),
		LearningSteps:   domain.ParseSteps("1 10"),
		RelearningSteps: domain.ParseSteps("10"),
	}

	t.Run("Again restarts the steps", func(t *testing.T) {
		card := domain.NewCard(1, 1, domain.CardTypeBasic, now)
		card.State = domain.Learning
		card.LearningStep = 1

		got := mode.Apply(card, domain.Again, now)
		if got.LearningStep != 0 || got.State != domain.Learning {
			t.Errorf("Expected Learning at step 0, got %v at step %d", got.State, got.LearningStep)
		}
		if want := now.Add(time.Minute); !got.Due.Equal(want) {
			t.Errorf("Expected due %v, got %v", want, got.Due)
		}
	})

	t.Run("Easy graduates immediately", func(t *testing.T) {
		card := domain.NewCard(1, 1, domain.CardTypeBasic, now)
		got := mode.Apply(card, domain.Easy, now)
		if got.State != domain.Review || got.Reps != 1 {
			t.Errorf("Expected Review with reps 1, got %+v", got)
		}
	})

	t.Run("Relearning keeps its state between steps", func(t *testing.T) {
		two := Stepped{Model: mode.Model, RelearningSteps: domain.ParseSteps("5 30")}
		card := reviewCard()
		card.State = domain.Relearning
		card.LearningStep = 0

		got := two.Apply(card, domain.Hard, now)
		if got.State != domain.Relearning || got.LearningStep != 1 {
			t.Errorf("Expected Relearning at step 1, got %v at step %d", got.State, got.LearningStep)
		}
		if want := now.Add(30 * time.Minute); !got.Due.Equal(want) {
			t.Errorf("Expected due %v, got %v", want, got.Due)
		}
	})

	t.Run("Relearning graduates when steps run out", func(t *testing.T) {
		card := reviewCard()
		card.State = domain.Relearning
		card.Lapses = 2

		got := mode.Apply(card, domain.Good, now)
		if got.State != domain.Review || got.Lapses != 2 {
			t.Errorf("Expected Review keeping lapses 2, got %+v", got)
		}
	})

	t.Run("Empty steps fall back to now", func(t *testing.T) {
		empty := Stepped{Model: mode.Model}
		card := domain.NewCard(1, 1, domain.CardTypeBasic, now.Add(-time.Hour))
		got := empty.Apply(card, domain.Again, now)
		if !got.Due.Equal(now) {
			t.Errorf("Expected due %v, got %v", now, got.Due)
		}
	})
}
