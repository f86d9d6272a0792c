// Package queue assembles the ordered list of cards due for study, optionally
// bounded by the daily new-card and review caps.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

// DefaultMaxScan bounds how many due cards are loaded for one queue.
const DefaultMaxScan = 5000

// Store is the part of the card store the builder reads.
type Store interface {
	GetDueCards(ctx context.Context, deckID *int64, now time.Time, limit int) ([]domain.Card, error)
	CountReviewsBetween(ctx context.Context, start, end time.Time) (domain.ReviewCounts, error)
}

// DueOptions narrows GetDueCards. Limit applies only when no daily cap is set;
// a nil cap is not enforced.
type DueOptions struct {
	Limit              int
	DailyNewCardsLimit *int
	DailyReviewLimit   *int
}

func (o DueOptions) capped() bool {
	return o.DailyNewCardsLimit != nil || o.DailyReviewLimit != nil
}

// Builder builds study queues.
type Builder struct {
	store   Store
	now     func() time.Time
	loc     *time.Location
	maxScan int
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithLocation sets the time zone that defines "today" for the daily caps.
func WithLocation(loc *time.Location) Option {
	return func(b *Builder) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithMaxScan bounds the candidate working set. Non-positive values keep the default.
func WithMaxScan(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxScan = n
		}
	}
}

// NewBuilder returns a Builder reading from store.
func NewBuilder(store Store, opts ...Option) *Builder {
	b := &Builder{
		store:   store,
		now:     time.Now,
		loc:     time.Local,
		maxScan: DefaultMaxScan,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildQueue returns at most limit due cards, earliest due first, without caps.
func (b *Builder) BuildQueue(ctx context.Context, deckID *int64, limit int) ([]domain.Card, error) {
	return b.GetDueCards(ctx, deckID, DueOptions{Limit: limit})
}

// GetDueCards returns cards with due <= now in due order. When a daily cap is
// set, cards are admitted in place until today's count for their category
// reaches the cap; Limit is then ignored.
func (b *Builder) GetDueCards(ctx context.Context, deckID *int64, opts DueOptions) ([]domain.Card, error) {
	now := b.now()

	fetch := b.maxScan
	if !opts.capped() && opts.Limit > 0 && opts.Limit < fetch {
		fetch = opts.Limit
	}
	cards, err := b.store.GetDueCards(ctx, deckID, now, fetch)
	if err != nil {
		return nil, fmt.Errorf("failed to build review queue: %w", err)
	}
	if len(cards) == b.maxScan {
		slog.Debug("Due card scan hit its bound", "max_scan", b.maxScan, "deck_id", deckID)
	}
	if !opts.capped() {
		return cards, nil
	}

	today, err := b.countsAt(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build review queue: %w", err)
	}
	return applyCaps(cards, today, opts), nil
}

// TodayCounts returns how many new and review ratings were logged today.
func (b *Builder) TodayCounts(ctx context.Context) (domain.ReviewCounts, error) {
	return b.countsAt(ctx, b.now())
}

func (b *Builder) countsAt(ctx context.Context, now time.Time) (domain.ReviewCounts, error) {
	start, end := dayBounds(now, b.loc)
	return b.store.CountReviewsBetween(ctx, start, end)
}

// dayBounds returns [midnight, next midnight) of the local day containing t.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// applyCaps filters cards in order. New cards count against the new-card cap;
// Learning, Relearning and Review cards count against the review cap.
func applyCaps(cards []domain.Card, today domain.ReviewCounts, opts DueOptions) []domain.Card {
	out := make([]domain.Card, 0, len(cards))
	newAdded, reviewAdded := 0, 0
	for _, c := range cards {
		if c.State == domain.New {
			if opts.DailyNewCardsLimit != nil && today.NewCards+newAdded >= *opts.DailyNewCardsLimit {
				continue
			}
			newAdded++
		} else {
			if opts.DailyReviewLimit != nil && today.ReviewCards+reviewAdded >= *opts.DailyReviewLimit {
				continue
			}
			reviewAdded++
		}
		out = append(out, c)
	}
	return out
}
