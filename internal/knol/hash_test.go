package knol

import (
	"testing"

	"github.com/conorfennell/knolsched/internal/domain"
)

func TestNormalize(t *testing.T) {
	note := domain.Note{
		Question: "  What is a lapse? \r\n",
		Answer:   "A Review card rated Again.",
		Context:  "Scheduling\r",
	}
	expected := "what is a lapse?\na review card rated again.\nscheduling"

	if got := Normalize(note); got != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, got)
	}
}

func TestHash(t *testing.T) {
	t.Run("Known digest", func(t *testing.T) {
		note := domain.Note{Question: "Q", Answer: "A", Context: "C"}
		// sha256("q\na\nc")
		expected := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		if got := Hash(note); got != expected {
			t.Errorf("Expected hash '%s', but got '%s'", expected, got)
		}
	})

	t.Run("Case and whitespace do not matter", func(t *testing.T) {
		a := domain.Note{Question: "  what is go? ", Answer: "A programming language."}
		b := domain.Note{Question: "What Is Go?", Answer: "A programming language."}
		if Hash(a) != Hash(b) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("Fields do not bleed into each other", func(t *testing.T) {
		a := domain.Note{Question: "ab", Answer: "c"}
		b := domain.Note{Question: "a", Answer: "bc"}
		if Hash(a) == Hash(b) {
			t.Error("Expected field boundaries to change the hash")
		}
	})

	t.Run("Ids and deck do not matter", func(t *testing.T) {
		a := domain.Note{ID: 1, DeckID: 1, Question: "Same"}
		b := domain.Note{ID: 2, DeckID: 9, Question: "Same"}
		if Hash(a) != Hash(b) {
			t.Error("Expected only content to be hashed")
		}
	})
}

func TestStamp(t *testing.T) {
	notes := Stamp([]domain.Note{{Question: "one"}, {Question: "two"}})
	for _, n := range notes {
		if n.Hash != Hash(domain.Note{Question: n.Question}) {
			t.Errorf("Expected note %q to be stamped with its hash, got %q", n.Question, n.Hash)
		}
	}
}
