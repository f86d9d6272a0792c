// Package review applies graded recall attempts to cards and resets decks.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/memory"
)

// Store is the part of the card store the processor needs.
// ApplyReview must run read, apply, card write and log append as one unit.
type Store interface {
	GetCardByID(ctx context.Context, id int64) (*domain.Card, error)
	ApplyReview(ctx context.Context, cardID int64, apply func(domain.Card) (domain.Card, domain.ReviewLog, error)) (domain.Card, error)
	ResetCardsInDeck(ctx context.Context, deckID *int64, now time.Time) (int, error)
}

// SettingsProvider supplies user settings and pushes later snapshots.
type SettingsProvider interface {
	GetSettings(ctx context.Context) (domain.UserSettings, error)
	Subscribe() (<-chan domain.UserSettings, func())
}

// Result is the outcome of ReviewCard. Business failures are reported through
// Success and Error, never as a Go error. NotFound marks a missing card.
type Result struct {
	Success    bool         `json:"success"`
	NextReview *time.Time   `json:"next_review,omitempty"`
	Interval   *int         `json:"interval,omitempty"`
	Card       *domain.Card `json:"card,omitempty"`
	Error      string       `json:"error,omitempty"`
	NotFound   bool         `json:"-"`
}

// Processor applies ratings to cards under the active learning mode.
type Processor struct {
	store Store
	model memory.Model
	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	settings domain.UserSettings
	updates  <-chan domain.UserSettings
	cancel   func()
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithIDGenerator replaces the review log id generator.
func WithIDGenerator(newID func() string) Option {
	return func(p *Processor) { p.newID = newID }
}

// NewProcessor loads the initial settings snapshot from provider and subscribes
// to later ones. A nil provider leaves the default settings in place.
func NewProcessor(ctx context.Context, store Store, model memory.Model, provider SettingsProvider, opts ...Option) (*Processor, error) {
	p := &Processor{
		store:    store,
		model:    model,
		now:      time.Now,
		newID:    uuid.NewString,
		settings: domain.DefaultUserSettings(),
		cancel:   func() {},
	}
	for _, opt := range opts {
		opt(p)
	}

	if provider != nil {
		s, err := provider.GetSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		p.settings = s
		p.updates, p.cancel = provider.Subscribe()
	}
	return p, nil
}

// Close stops receiving settings updates.
func (p *Processor) Close() {
	p.cancel()
}

// Settings returns the newest settings snapshot without waiting for one.
func (p *Processor) Settings() domain.UserSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case s, ok := <-p.updates:
			if !ok {
				p.updates = nil
				return p.settings
			}
			p.settings = s
		default:
			return p.settings
		}
	}
}

// Mode returns the learning mode selected by the current settings.
func (p *Processor) Mode() Mode {
	return ModeFor(p.Settings(), p.model)
}

// ReviewCard applies rating to the card and appends one review log.
func (p *Processor) ReviewCard(ctx context.Context, cardID int64, rating domain.Rating) Result {
	if !rating.IsValid() {
		return Result{Error: fmt.Sprintf("%v: %d", domain.ErrInvalidRating, int(rating))}
	}

	now := p.now()
	mode := p.Mode()
	updated, err := p.store.ApplyReview(ctx, cardID, func(card domain.Card) (domain.Card, domain.ReviewLog, error) {
		next := mode.Apply(card, rating, now)
		return next, domain.NewReviewLog(p.newID(), card, next, rating, now), nil
	})
	if errors.Is(err, domain.ErrCardNotFound) {
		return Result{Error: fmt.Sprintf("Card with id %d not found", cardID), NotFound: true}
	}
	if err != nil {
		slog.Warn("Review failed", "card_id", cardID, "rating", rating, "error", err)
		return Result{Error: err.Error()}
	}

	slog.Debug("Card reviewed",
		"card_id", cardID,
		"rating", rating,
		"state", updated.State,
		"due", updated.Due,
		"interval", updated.ScheduledDays,
	)
	next, interval := updated.Due, updated.ScheduledDays
	return Result{
		Success:    true,
		NextReview: &next,
		Interval:   &interval,
		Card:       &updated,
	}
}

// Preview returns the card state each rating would produce now, without writing.
func (p *Processor) Preview(ctx context.Context, cardID int64) (map[domain.Rating]domain.Card, error) {
	card, err := p.store.GetCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("card %d: %w", cardID, domain.ErrCardNotFound)
	}

	now := p.now()
	mode := p.Mode()
	out := make(map[domain.Rating]domain.Card, len(domain.Ratings))
	for _, r := range domain.Ratings {
		out[r] = mode.Apply(*card, r, now)
	}
	return out, nil
}

// ResetCardsInDeck returns every card of the deck (all decks when deckID is nil)
// to New and deletes its review logs.
func (p *Processor) ResetCardsInDeck(ctx context.Context, deckID *int64) (int, error) {
	n, err := p.store.ResetCardsInDeck(ctx, deckID, p.now())
	if err != nil {
		return 0, fmt.Errorf("failed to reset cards: %w", err)
	}
	slog.Info("Cards reset", "deck_id", deckID, "count", n)
	return n, nil
}
