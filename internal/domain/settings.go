package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default step sequences, in minutes.
const (
	DefaultLearningSteps      = "1 10"
	DefaultRelearningSteps    = "10"
	DefaultDailyNewCardsLimit = 20
	DefaultDailyReviewLimit   = 200
)

// UserSettings is the scheduling configuration read by the core.
// A nil daily limit means the cap is not applied.
type UserSettings struct {
	LearningSteps                  []time.Duration `json:"learning_steps"`
	RelearningSteps                []time.Duration `json:"relearning_steps"`
	DailyNewCardsLimit             *int            `json:"daily_new_cards_limit,omitempty"`
	DailyReviewLimit               *int            `json:"daily_review_limit,omitempty"`
	EnableTraditionalLearningSteps bool            `json:"enable_traditional_learning_steps"`
}

// DefaultUserSettings returns the settings used before any file is loaded.
func DefaultUserSettings() UserSettings {
	newLimit, reviewLimit := DefaultDailyNewCardsLimit, DefaultDailyReviewLimit
	return UserSettings{
		LearningSteps:      ParseSteps(DefaultLearningSteps),
		RelearningSteps:    ParseSteps(DefaultRelearningSteps),
		DailyNewCardsLimit: &newLimit,
		DailyReviewLimit:   &reviewLimit,
	}
}

// Validate rejects negative daily limits.
func (s UserSettings) Validate() error {
	if s.DailyNewCardsLimit != nil && *s.DailyNewCardsLimit < 0 {
		return fmt.Errorf("%w: daily new cards limit %d is negative", ErrInvalidSettings, *s.DailyNewCardsLimit)
	}
	if s.DailyReviewLimit != nil && *s.DailyReviewLimit < 0 {
		return fmt.Errorf("%w: daily review limit %d is negative", ErrInvalidSettings, *s.DailyReviewLimit)
	}
	return nil
}

// ParseSteps parses a space-separated list of minute offsets such as "1 10".
// Non-numeric and non-positive tokens are dropped.
func ParseSteps(s string) []time.Duration {
	steps := []time.Duration{}
	for _, field := range strings.Fields(s) {
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 {
			continue
		}
		steps = append(steps, time.Duration(n)*time.Minute)
	}
	return steps
}

// FormatSteps is the inverse of ParseSteps.
func FormatSteps(steps []time.Duration) string {
	parts := make([]string, len(steps))
	for i, d := range steps {
		parts[i] = strconv.Itoa(int(d / time.Minute))
	}
	return strings.Join(parts, " ")
}
