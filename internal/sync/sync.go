// Package sync imports notes from local directories and git repositories and
// keeps the card store in step with them.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/gitsource"
	"github.com/conorfennell/knolsched/internal/knol"
	"github.com/conorfennell/knolsched/internal/parser"
	"github.com/conorfennell/knolsched/internal/storage"
)

// ErrSourceExists is returned by AddSource for an already registered source.
var ErrSourceExists = errors.New("source already exists")

// Store is the part of the card store the importer uses.
type Store interface {
	InsertSource(ctx context.Context, path, sourceType string) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*storage.Source, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
	FindNoteByHash(ctx context.Context, hash string) (*domain.Note, error)
	CreateNote(ctx context.Context, note *domain.Note, now time.Time) (domain.Card, error)
	GetNotesBySourceID(ctx context.Context, sourceID int64) ([]domain.Note, error)
	DeleteNoteByHash(ctx context.Context, hash string) error
}

// Report summarizes one source reconciliation.
type Report struct {
	SourceID int64
	Path     string
	Parsed   int
	Created  int
	Deleted  int
	Errors   []error
}

// Syncer reconciles note sources with the store.
type Syncer struct {
	store    Store
	reposDir string
	now      func() time.Time
	progress io.Writer
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithClock replaces time.Now for new card due times.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithProgress sends git clone and pull progress to w.
func WithProgress(w io.Writer) Option {
	return func(s *Syncer) { s.progress = w }
}

// New returns a Syncer that mirrors git sources under reposDir.
func New(store Store, reposDir string, opts ...Option) *Syncer {
	s := &Syncer{store: store, reposDir: reposDir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSource registers a local directory or git URL. Local paths are stored
// absolute and must exist.
func (s *Syncer) AddSource(ctx context.Context, source string) (int64, error) {
	sourceType := storage.SourceGit
	if !gitsource.IsRemote(source) {
		sourceType = storage.SourceLocal
		abs, err := filepath.Abs(source)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve %s: %w", source, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return 0, fmt.Errorf("failed to open source %s: %w", abs, err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("source %s is not a directory", abs)
		}
		source = abs
	}

	existing, err := s.store.FindSourceByPath(ctx, source)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, fmt.Errorf("%w: %s", ErrSourceExists, source)
	}

	id, err := s.store.InsertSource(ctx, source, sourceType)
	if err != nil {
		return 0, err
	}
	slog.Info("Source added", "id", id, "type", sourceType, "path", source)
	return id, nil
}

// Run reconciles every registered source. A source that cannot be fetched is
// reported and skipped.
func (s *Syncer) Run(ctx context.Context) ([]Report, error) {
	sources, err := s.store.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return nil, nil
	}

	reports := make([]Report, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			dir, err = s.fetch(ctx, source.Path)
			if err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				reports = append(reports, Report{SourceID: source.ID, Path: source.Path, Errors: []error{err}})
				continue
			}
		}
		reports = append(reports, s.reconcile(ctx, source, dir))
	}
	slog.Info("Sync complete", "sources", len(sources))
	return reports, nil
}

func (s *Syncer) fetch(ctx context.Context, repoURL string) (string, error) {
	dir, err := gitsource.LocalPath(s.reposDir, repoURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	if err := gitsource.Sync(ctx, repoURL, dir, s.progress); err != nil {
		return "", err
	}
	return dir, nil
}

// reconcile imports new notes found under dir into the source's deck, each with
// a fresh card, and deletes notes of this source that are no longer present.
func (s *Syncer) reconcile(ctx context.Context, source storage.Source, dir string) Report {
	report := Report{SourceID: source.ID, Path: source.Path}
	found := make(map[string]bool)
	now := s.now()

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		notes, err := parser.ParseFile(path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}
		for _, note := range knol.Stamp(notes) {
			report.Parsed++
			found[note.Hash] = true

			existing, err := s.store.FindNoteByHash(ctx, note.Hash)
			if err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			if existing != nil {
				continue
			}
			note.DeckID = source.DeckID
			note.SourceID = source.ID
			if _, err := s.store.CreateNote(ctx, &note, now); err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			slog.Debug("Note imported", "hash", note.Hash, "file", path)
			report.Created++
		}
		return nil
	})
	if walkErr != nil {
		slog.Error("Error walking directory", "path", dir, "error", walkErr)
		report.Errors = append(report.Errors, walkErr)
		return report
	}

	stored, err := s.store.GetNotesBySourceID(ctx, source.ID)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return report
	}
	for _, note := range stored {
		if found[note.Hash] {
			continue
		}
		if err := s.store.DeleteNoteByHash(ctx, note.Hash); err != nil {
			slog.Warn("Failed to delete orphaned note", "hash", note.Hash, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Deleted++
	}

	if err := s.store.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("Reconciliation complete",
		"path", source.Path,
		"parsed_notes", report.Parsed,
		"created", report.Created,
		"orphaned_deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report
}
