package memory

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	fsrs "github.com/open-spaced-repetition/go-fsrs/v3"

	"github.com/conorfennell/knolsched/internal/domain"
)

// ErrInvalidParameters is returned by NewFSRS for out-of-range configuration.
var ErrInvalidParameters = errors.New("memory: parameters out of bounds")

// Config parameterizes the FSRS model.
type Config struct {
	DesiredRetention float64 `koanf:"desired_retention" validate:"gt=0,lte=1"`
	MaximumInterval  int     `koanf:"maximum_interval" validate:"gt=0"`
	EnableFuzz       bool    `koanf:"enable_fuzz"`
}

// DefaultConfig targets 90% retention with a hundred-year interval ceiling.
func DefaultConfig() Config {
	return Config{
		DesiredRetention: 0.9,
		MaximumInterval:  36500,
	}
}

// FSRS implements Model with the open-spaced-repetition FSRS scheduler.
type FSRS struct {
	f *fsrs.FSRS
}

var _ Model = (*FSRS)(nil)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewFSRS validates cfg and builds the scheduler. Values are never clamped.
func NewFSRS(cfg Config) (*FSRS, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	params := fsrs.DefaultParam()
	params.RequestRetention = cfg.DesiredRetention
	params.MaximumInterval = float64(cfg.MaximumInterval)
	params.EnableFuzz = cfg.EnableFuzz
	// Short-term steps are owned by the review modes; the model only produces
	// day-granular intervals.
	params.EnableShortTerm = false
	return &FSRS{f: fsrs.NewFSRS(params)}, nil
}

// Schedule computes all four rating branches for s at now.
func (m *FSRS) Schedule(s State, now time.Time) Outcomes {
	records := m.f.Repeat(toFSRS(s), now)
	return Outcomes{
		Again: fromFSRS(records[fsrs.Again].Card),
		Hard:  fromFSRS(records[fsrs.Hard].Card),
		Good:  fromFSRS(records[fsrs.Good].Card),
		Easy:  fromFSRS(records[fsrs.Easy].Card),
	}
}

func toFSRS(s State) fsrs.Card {
	c := fsrs.Card{
		Due:           s.Due,
		Stability:     s.Stability,
		Difficulty:    s.Difficulty,
		ElapsedDays:   uint64(max(s.ElapsedDays, 0)),
		ScheduledDays: uint64(max(s.ScheduledDays, 0)),
		Reps:          uint64(max(s.Reps, 0)),
		Lapses:        uint64(max(s.Lapses, 0)),
		State:         fsrsState(s.CardState),
	}
	if s.LastReview != nil {
		c.LastReview = *s.LastReview
	}
	return c
}

func fromFSRS(c fsrs.Card) State {
	s := State{
		Due:           c.Due,
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   int(c.ElapsedDays),
		ScheduledDays: int(c.ScheduledDays),
		Reps:          int(c.Reps),
		Lapses:        int(c.Lapses),
		CardState:     domainState(c.State),
	}
	if !c.LastReview.IsZero() {
		lr := c.LastReview
		s.LastReview = &lr
	}
	return s
}

func fsrsState(s domain.State) fsrs.State {
	switch s {
	case domain.Learning:
		return fsrs.Learning
	case domain.Review:
		return fsrs.Review
	case domain.Relearning:
		return fsrs.Relearning
	default:
		return fsrs.New
	}
}

func domainState(s fsrs.State) domain.State {
	switch s {
	case fsrs.Learning:
		return domain.Learning
	case fsrs.Review:
		return domain.Review
	case fsrs.Relearning:
		return domain.Relearning
	default:
		return domain.New
	}
}
