// Package knol identifies notes by the hash of their normalized content, so an
// edited note is a new note and an unchanged one keeps its scheduling history.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizePart(part string) string {
	return strings.TrimSpace(lineEndings.Replace(strings.ToLower(part)))
}

// Normalize lowercases and trims each field and joins them with newlines so
// adjacent fields cannot run together.
func Normalize(n domain.Note) string {
	return strings.Join([]string{
		normalizePart(n.Question),
		normalizePart(n.Answer),
		normalizePart(n.Context),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized note.
func Hash(n domain.Note) string {
	sum := sha256.Sum256([]byte(Normalize(n)))
	return hex.EncodeToString(sum[:])
}

// Stamp sets the hash of every note in place and returns the notes.
func Stamp(notes []domain.Note) []domain.Note {
	for i := range notes {
		notes[i].Hash = Hash(notes[i])
	}
	return notes
}
