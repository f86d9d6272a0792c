// Package settings provides the user scheduling settings and pushes every new
// snapshot to subscribers.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/conorfennell/knolsched/internal/domain"
)

// ErrUnsupportedFormat is returned for settings files that are not JSON, YAML or TOML.
var ErrUnsupportedFormat = errors.New("settings: unsupported file format")

// fileSettings is the persisted shape. Step sequences are minute strings like "1 10".
type fileSettings struct {
	LearningSteps                  string `koanf:"learningSteps"`
	RelearningSteps                string `koanf:"relearningSteps"`
	DailyNewCardsLimit             *int   `koanf:"dailyNewCardsLimit" validate:"omitnil,gte=0"`
	DailyReviewLimit               *int   `koanf:"dailyReviewLimit" validate:"omitnil,gte=0"`
	EnableTraditionalLearningSteps bool   `koanf:"enableTraditionalLearningSteps"`
}

func defaultFileSettings() fileSettings {
	newLimit, reviewLimit := domain.DefaultDailyNewCardsLimit, domain.DefaultDailyReviewLimit
	return fileSettings{
		LearningSteps:      domain.DefaultLearningSteps,
		RelearningSteps:    domain.DefaultRelearningSteps,
		DailyNewCardsLimit: &newLimit,
		DailyReviewLimit:   &reviewLimit,
	}
}

func (f fileSettings) toDomain() domain.UserSettings {
	return domain.UserSettings{
		LearningSteps:                  domain.ParseSteps(f.LearningSteps),
		RelearningSteps:                domain.ParseSteps(f.RelearningSteps),
		DailyNewCardsLimit:             f.DailyNewCardsLimit,
		DailyReviewLimit:               f.DailyReviewLimit,
		EnableTraditionalLearningSteps: f.EnableTraditionalLearningSteps,
	}
}

func toMap(s domain.UserSettings) map[string]any {
	m := map[string]any{
		"learningSteps":                  domain.FormatSteps(s.LearningSteps),
		"relearningSteps":                domain.FormatSteps(s.RelearningSteps),
		"enableTraditionalLearningSteps": s.EnableTraditionalLearningSteps,
	}
	if s.DailyNewCardsLimit != nil {
		m["dailyNewCardsLimit"] = *s.DailyNewCardsLimit
	}
	if s.DailyReviewLimit != nil {
		m["dailyReviewLimit"] = *s.DailyReviewLimit
	}
	return m
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// broadcaster fans snapshots out to subscribers. Each subscriber channel holds
// only the newest snapshot; a stale unread value is replaced.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.UserSettings
}

func (b *broadcaster) subscribe() (<-chan domain.UserSettings, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan domain.UserSettings)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan domain.UserSettings, 1)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *broadcaster) publish(s domain.UserSettings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// FileProvider reads settings from a JSON, YAML or TOML file and republishes
// them whenever the file changes or Update is called.
type FileProvider struct {
	path   string
	parser koanf.Parser

	mu      sync.RWMutex
	current domain.UserSettings
	bc      broadcaster
}

// NewFileProvider loads path. A missing file yields the default settings.
func NewFileProvider(path string) (*FileProvider, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	p := &FileProvider{
		path:    filepath.Clean(path),
		parser:  parser,
		current: domain.DefaultUserSettings(),
	}

	if _, err := os.Stat(p.path); errors.Is(err, os.ErrNotExist) {
		slog.Info("Settings file not found, using defaults", "path", p.path)
		return p, nil
	}
	s, err := p.load()
	if err != nil {
		return nil, err
	}
	p.current = s
	return p, nil
}

func (p *FileProvider) load() (domain.UserSettings, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(p.path), p.parser); err != nil {
		return domain.UserSettings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	raw := defaultFileSettings()
	if err := k.Unmarshal("", &raw); err != nil {
		return domain.UserSettings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := validate.Struct(raw); err != nil {
		return domain.UserSettings{}, fmt.Errorf("%w: %v", domain.ErrInvalidSettings, err)
	}
	return raw.toDomain(), nil
}

// GetSettings returns the current snapshot.
func (p *FileProvider) GetSettings(context.Context) (domain.UserSettings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, nil
}

// Subscribe returns a channel that receives every later snapshot and a cancel
// function that closes it.
func (p *FileProvider) Subscribe() (<-chan domain.UserSettings, func()) {
	return p.bc.subscribe()
}

// Reload re-reads the file. Invalid contents leave the current snapshot in place.
func (p *FileProvider) Reload() error {
	s, err := p.load()
	if err != nil {
		return err
	}
	p.set(s)
	return nil
}

// Update validates s, writes it to the file and publishes it.
func (p *FileProvider) Update(_ context.Context, s domain.UserSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := p.parser.Marshal(toMap(s))
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	p.set(s)
	return nil
}

func (p *FileProvider) set(s domain.UserSettings) {
	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	p.bc.publish(s)
	slog.Info("Settings updated",
		"learning_steps", domain.FormatSteps(s.LearningSteps),
		"relearning_steps", domain.FormatSteps(s.RelearningSteps),
		"traditional_steps", s.EnableTraditionalLearningSteps,
	)
}

// Watch reloads the file on every write until ctx is done. The parent directory
// is watched so editors that replace the file are picked up.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != p.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := p.Reload(); err != nil {
				slog.Warn("Ignoring settings change", "path", p.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Settings watcher error", "error", err)
		}
	}
}

// Static is a provider whose settings never change.
type Static domain.UserSettings

// GetSettings returns the fixed settings.
func (s Static) GetSettings(context.Context) (domain.UserSettings, error) {
	return domain.UserSettings(s), nil
}

// Subscribe returns a channel that never delivers.
func (s Static) Subscribe() (<-chan domain.UserSettings, func()) {
	return nil, func() {}
}
