package domain

import "time"

// ReviewLog is the immutable audit record appended for every rating.
// Interval is the card's new ScheduledDays, LastInterval the value before the review.
type ReviewLog struct {
	ID               string    `json:"id"`
	CardID           int64     `json:"card_id"`
	ReviewTime       time.Time `json:"review_time"`
	Rating           Rating    `json:"rating"`
	StateBefore      State     `json:"state_before"`
	StateAfter       State     `json:"state_after"`
	StabilityBefore  float64   `json:"stability_before"`
	StabilityAfter   float64   `json:"stability_after"`
	DifficultyBefore float64   `json:"difficulty_before"`
	DifficultyAfter  float64   `json:"difficulty_after"`
	Interval         int       `json:"interval"`
	LastInterval     int       `json:"last_interval"`
}

// NewReviewLog captures the before/after values of a single rating.
func NewReviewLog(id string, before, after Card, rating Rating, now time.Time) ReviewLog {
	return ReviewLog{
		ID:               id,
		CardID:           before.ID,
		ReviewTime:       now,
		Rating:           rating,
		StateBefore:      before.State,
		StateAfter:       after.State,
		StabilityBefore:  before.Stability,
		StabilityAfter:   after.Stability,
		DifficultyBefore: before.Difficulty,
		DifficultyAfter:  after.Difficulty,
		Interval:         after.ScheduledDays,
		LastInterval:     before.ScheduledDays,
	}
}

// ReviewCounts splits a day's ratings by the card's state before the rating.
type ReviewCounts struct {
	NewCards    int `json:"new_cards"`
	ReviewCards int `json:"review_cards"`
}
