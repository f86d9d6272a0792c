package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/testutil"
)

var now = testutil.Time(2025, time.June, 15, 10, 0)

func ptr(n int) *int { return &n }

func newBuilder(db *storage.DB, opts ...Option) *Builder {
	opts = append([]Option{WithClock(func() time.Time { return now }), WithLocation(time.UTC)}, opts...)
	return NewBuilder(db, opts...)
}

func seed(t *testing.T, db *storage.DB, deck int64, state domain.State, due time.Time) domain.Card {
	t.Helper()
	c := domain.NewCard(0, 0, domain.CardTypeBasic, due)
	c.State = state
	return testutil.SeedCard(t, db, deck, c)
}

var logSeq int

func logReview(t *testing.T, db *storage.DB, card domain.Card, before domain.State, at time.Time) {
	t.Helper()
	logSeq++
	b := card
	b.State = before
	l := domain.NewReviewLog(fmt.Sprintf("log-%d", logSeq), b, card, domain.Good, at)
	if err := db.AddReviewLog(context.Background(), l); err != nil {
		t.Fatalf("AddReviewLog: %v", err)
	}
}

func TestBuildQueue(t *testing.T) {
	db := testutil.OpenDB(t)
	deck := testutil.Deck(t, db, "Go")
	other := testutil.Deck(t, db, "Rust")
	ctx := context.Background()

	late := seed(t, db, deck, domain.Review, now.Add(-time.Hour))
	early := seed(t, db, deck, domain.New, now.Add(-3*time.Hour))
	seed(t, db, deck, domain.Review, now.Add(time.Minute))
	seed(t, db, other, domain.Review, now.Add(-2*time.Hour))

	b := newBuilder(db)

	t.Run("Deck scope in due order", func(t *testing.T) {
		cards, err := b.BuildQueue(ctx, &deck, 10)
		if err != nil {
			t.Fatalf("BuildQueue: %v", err)
		}
		if len(cards) != 2 || cards[0].ID != early.ID || cards[1].ID != late.ID {
			t.Errorf("Expected [%d %d], got %v", early.ID, late.ID, ids(cards))
		}
	})

	t.Run("All decks limited", func(t *testing.T) {
		cards, err := b.BuildQueue(ctx, nil, 2)
		if err != nil {
			t.Fatalf("BuildQueue: %v", err)
		}
		if len(cards) != 2 {
			t.Fatalf("Expected 2 cards, got %d", len(cards))
		}
		for i, c := range cards {
			if c.Due.After(now) {
				t.Errorf("Card %d is not due: %v", c.ID, c.Due)
			}
			if i > 0 && c.Due.Before(cards[i-1].Due) {
				t.Errorf("Expected non-decreasing due, got %v", ids(cards))
			}
		}
	})

	t.Run("Zero limit returns all due", func(t *testing.T) {
		cards, err := b.BuildQueue(ctx, nil, 0)
		if err != nil {
			t.Fatalf("BuildQueue: %v", err)
		}
		if len(cards) != 3 {
			t.Errorf("Expected 3 due cards, got %d", len(cards))
		}
	})

	t.Run("Scan bound", func(t *testing.T) {
		cards, err := newBuilder(db, WithMaxScan(1)).BuildQueue(ctx, nil, 10)
		if err != nil {
			t.Fatalf("BuildQueue: %v", err)
		}
		if len(cards) != 1 {
			t.Errorf("Expected the scan bound to cap the queue at 1, got %d", len(cards))
		}
	})
}

func TestGetDueCardsNewCap(t *testing.T) {
	db := testutil.OpenDB(t)
	deck := testutil.Deck(t, db, "Go")
	for i := range 25 {
		seed(t, db, deck, domain.New, now.Add(-time.Duration(i+1)*time.Minute))
	}
	for i := range 3 {
		seed(t, db, deck, domain.Review, now.Add(-time.Duration(i+1)*time.Second))
	}

	cards, err := newBuilder(db).GetDueCards(context.Background(), &deck, DueOptions{
		Limit:              5,
		DailyNewCardsLimit: ptr(20),
	})
	if err != nil {
		t.Fatalf("GetDueCards: %v", err)
	}

	var newCount, reviewCount int
	for _, c := range cards {
		if c.State == domain.New {
			newCount++
		} else {
			reviewCount++
		}
	}
	if newCount != 20 {
		t.Errorf("Expected exactly 20 new cards, got %d", newCount)
	}
	if reviewCount != 3 {
		t.Errorf("Expected the 3 uncapped review cards, got %d", reviewCount)
	}
}

func TestGetDueCardsCountsToday(t *testing.T) {
	db := testutil.OpenDB(t)
	deck := testutil.Deck(t, db, "Go")
	ctx := context.Background()

	n1 := seed(t, db, deck, domain.New, now.Add(-3*time.Hour))
	n2 := seed(t, db, deck, domain.New, now.Add(-2*time.Hour))
	r1 := seed(t, db, deck, domain.Review, now.Add(-90*time.Minute))
	l1 := seed(t, db, deck, domain.Learning, now.Add(-time.Hour))
	seed(t, db, deck, domain.Relearning, now.Add(-30*time.Minute))

	// Two new and one review rating today, one of each yesterday.
	logReview(t, db, n1, domain.New, now.Add(-2*time.Hour))
	logReview(t, db, n1, domain.New, now.Add(-time.Hour))
	logReview(t, db, r1, domain.Review, now.Add(-time.Hour))
	logReview(t, db, n2, domain.New, now.AddDate(0, 0, -1))
	logReview(t, db, r1, domain.Review, now.AddDate(0, 0, -1))

	b := newBuilder(db)
	counts, err := b.TodayCounts(ctx)
	if err != nil {
		t.Fatalf("TodayCounts: %v", err)
	}
	if counts.NewCards != 2 || counts.ReviewCards != 1 {
		t.Errorf("Expected {2 1}, got %+v", counts)
	}

	cards, err := b.GetDueCards(ctx, &deck, DueOptions{
		DailyNewCardsLimit: ptr(3),
		DailyReviewLimit:   ptr(3),
	})
	if err != nil {
		t.Fatalf("GetDueCards: %v", err)
	}
	want := []int64{n1.ID, r1.ID, l1.ID}
	if got := ids(cards); !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestApplyCaps(t *testing.T) {
	cards := []domain.Card{
		{ID: 1, State: domain.Review},
		{ID: 2, State: domain.New},
		{ID: 3, State: domain.Learning},
		{ID: 4, State: domain.New},
		{ID: 5, State: domain.Relearning},
	}

	testCases := []struct {
		name  string
		today domain.ReviewCounts
		opts  DueOptions
		want  []int64
	}{
		{name: "Only new cap", opts: DueOptions{DailyNewCardsLimit: ptr(1)}, want: []int64{1, 2, 3, 5}},
		{name: "Only review cap", opts: DueOptions{DailyReviewLimit: ptr(2)}, want: []int64{1, 2, 3, 4}},
		{name: "Zero caps", opts: DueOptions{DailyNewCardsLimit: ptr(0), DailyReviewLimit: ptr(0)}, want: []int64{}},
		{name: "Already over", today: domain.ReviewCounts{NewCards: 5, ReviewCards: 1}, opts: DueOptions{DailyNewCardsLimit: ptr(2), DailyReviewLimit: ptr(3)}, want: []int64{1, 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(applyCaps(cards, tc.today, tc.opts))
			if !slices.Equal(got, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	start, end := dayBounds(testutil.Time(2025, time.June, 15, 20, 0), loc)

	wantStart := time.Date(2025, time.June, 16, 0, 0, 0, 0, loc)
	if !start.Equal(wantStart) || !end.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Errorf("Expected [%v, %v), got [%v, %v)", wantStart, wantStart.AddDate(0, 0, 1), start, end)
	}
}

type failingStore struct{}

func (failingStore) GetDueCards(context.Context, *int64, time.Time, int) ([]domain.Card, error) {
	return nil, errors.New("database is locked")
}

func (failingStore) CountReviewsBetween(context.Context, time.Time, time.Time) (domain.ReviewCounts, error) {
	return domain.ReviewCounts{}, errors.New("database is locked")
}

func TestBuildQueueStorageError(t *testing.T) {
	_, err := NewBuilder(failingStore{}).BuildQueue(context.Background(), nil, 10)
	if err == nil || !strings.HasPrefix(err.Error(), "failed to build review queue") {
		t.Errorf("Expected wrapped queue error, got %v", err)
	}
}

func ids(cards []domain.Card) []int64 {
	out := make([]int64, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}
