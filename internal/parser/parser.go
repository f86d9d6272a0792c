// Package parser extracts notes from markdown files written as Q:/A:/C: blocks
// separated by "---" lines.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

const separator = "---"

// field identifies which part of a note a line belongs to.
type field int

const (
	fieldNone field = iota
	fieldQuestion
	fieldAnswer
	fieldContext
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", fieldQuestion},
	{"A:", fieldAnswer},
	{"C:", fieldContext},
}

// ParseFile reads the file at path and extracts its notes.
func ParseFile(path string) ([]domain.Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// builder accumulates the lines of the note being read.
type builder struct {
	notes   []domain.Note
	current domain.Note
	active  field
	lines   []string
}

// flushField stores the buffered lines in the active field.
func (b *builder) flushField() {
	if len(b.lines) == 0 {
		return
	}
	content := strings.Join(b.lines, "\n")
	switch b.active {
	case fieldQuestion:
		b.current.Question = content
	case fieldAnswer:
		b.current.Answer = content
	case fieldContext:
		b.current.Context = content
	}
	b.lines = nil
}

// finishNote emits the current note if it has a question and starts a new one.
func (b *builder) finishNote() {
	b.flushField()
	if b.current.Question != "" {
		b.notes = append(b.notes, b.current)
	}
	b.current = domain.Note{}
	b.active = fieldNone
}

func (b *builder) start(f field, rest string) {
	b.flushField()
	if f == fieldQuestion && b.active != fieldNone {
		// A new question always starts a new note.
		b.finishNote()
	}
	b.active = f
	b.lines = append(b.lines, strings.TrimPrefix(rest, " "))
}

// Parse extracts notes from r. Text before the first prefix of a block is ignored.
func Parse(r io.Reader) ([]domain.Note, error) {
	scanner := bufio.NewScanner(r)
	b := &builder{}

	for scanner.Scan() {
		line := scanner.Text()
		if line == separator {
			b.finishNote()
			continue
		}

		if f, rest, ok := matchPrefix(line); ok {
			b.start(f, rest)
		} else if b.active != fieldNone {
			b.lines = append(b.lines, line)
		}
	}
	b.finishNote()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.notes, nil
}

func matchPrefix(line string) (field, string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.field, rest, true
		}
	}
	return fieldNone, "", false
}
