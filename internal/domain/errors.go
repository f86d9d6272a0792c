package domain

import "errors"

// Sentinel errors shared by the store and the scheduling core.
// Check with errors.Is.
var (
	ErrCardNotFound    = errors.New("card not found")
	ErrInvalidRating   = errors.New("invalid rating")
	ErrInvalidSettings = errors.New("invalid settings")
)
