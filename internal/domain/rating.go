package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Rating is the user's assessment of recall quality.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

// Ratings lists every valid rating in ascending order.
var Ratings = [...]Rating{Again, Hard, Good, Easy}

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether r is Again, Hard, Good or Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts either the rating name ("Good") or its number ("3").
func ParseRating(s string) (Rating, error) {
	for i, name := range ratingNames {
		if i > 0 && name == s {
			return Rating(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Rating(n).IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	return Rating(n), nil
}

// MarshalJSON encodes the rating as its name.
func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return json.Marshal(ratingNames[r])
}

// UnmarshalJSON accepts a JSON string name or a JSON number.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidRating, data)
		}
		s = strconv.Itoa(n)
	}
	v, err := ParseRating(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}
