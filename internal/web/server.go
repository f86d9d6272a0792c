// Package web exposes the review processor, queue builder and note import over
// a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/queue"
	"github.com/conorfennell/knolsched/internal/review"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/sync"
)

// Reviewer applies ratings and resets decks.
type Reviewer interface {
	ReviewCard(ctx context.Context, cardID int64, rating domain.Rating) review.Result
	Preview(ctx context.Context, cardID int64) (map[domain.Rating]domain.Card, error)
	ResetCardsInDeck(ctx context.Context, deckID *int64) (int, error)
	Settings() domain.UserSettings
}

// Queue builds study queues.
type Queue interface {
	BuildQueue(ctx context.Context, deckID *int64, limit int) ([]domain.Card, error)
	GetDueCards(ctx context.Context, deckID *int64, opts queue.DueOptions) ([]domain.Card, error)
	TodayCounts(ctx context.Context) (domain.ReviewCounts, error)
}

// SettingsStore persists user settings.
type SettingsStore interface {
	GetSettings(ctx context.Context) (domain.UserSettings, error)
	Update(ctx context.Context, s domain.UserSettings) error
}

// Catalog lists decks, cards, review history and note sources.
type Catalog interface {
	GetDecks(ctx context.Context) ([]domain.Deck, error)
	GetCardsByDeck(ctx context.Context, deckID int64) ([]domain.Card, error)
	ReviewLogsForCard(ctx context.Context, cardID int64) ([]domain.ReviewLog, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error
}

// Importer registers and syncs note sources.
type Importer interface {
	AddSource(ctx context.Context, source string) (int64, error)
	Run(ctx context.Context) ([]sync.Report, error)
}

// Deps are the collaborators behind the API. Limiter throttles POST, PUT and
// DELETE routes; nil disables throttling.
type Deps struct {
	Reviewer Reviewer
	Queue    Queue
	Settings SettingsStore
	Catalog  Catalog
	Importer Importer
	Limiter  *rate.Limiter
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	Deps
	router *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	s := &Server{Deps: deps, router: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /api/queue", s.handleGetQueue())
	s.router.HandleFunc("GET /api/due", s.handleGetDue())
	s.router.HandleFunc("GET /api/stats/today", s.handleGetToday())
	s.router.HandleFunc("GET /api/cards/{id}/preview", s.handleGetPreview())
	s.router.HandleFunc("GET /api/cards/{id}/logs", s.handleGetCardLogs())
	s.router.HandleFunc("POST /api/cards/{id}/review", s.limited(s.handlePostReview()))
	s.router.HandleFunc("POST /api/reset", s.limited(s.handlePostReset(false)))
	s.router.HandleFunc("POST /api/decks/{id}/reset", s.limited(s.handlePostReset(true)))
	s.router.HandleFunc("GET /api/decks", s.handleGetDecks())
	s.router.HandleFunc("GET /api/decks/{id}/cards", s.handleGetDeckCards())
	s.router.HandleFunc("GET /api/settings", s.handleGetSettings())
	s.router.HandleFunc("PUT /api/settings", s.limited(s.handlePutSettings()))
	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.limited(s.handlePostSource()))
	s.router.HandleFunc("DELETE /api/sources/{id}", s.limited(s.handleDeleteSource()))
	s.router.HandleFunc("POST /api/sync", s.limited(s.handlePostSync()))
}

// limited rejects requests with 429 once the write budget is spent.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter != nil && !s.Limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleGetQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deckID, limit, ok := scope(w, r)
		if !ok {
			return
		}
		cards, err := s.Queue.BuildQueue(r.Context(), deckID, limit)
		if err != nil {
			serverError(w, "Error building queue", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(cards))
	}
}

// handleGetDue serves GetDueCards. With capped=1 the daily limits of the
// current settings apply.
func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deckID, limit, ok := scope(w, r)
		if !ok {
			return
		}
		opts := queue.DueOptions{Limit: limit}
		if capped, _ := strconv.ParseBool(r.URL.Query().Get("capped")); capped {
			settings := s.Reviewer.Settings()
			opts.DailyNewCardsLimit = settings.DailyNewCardsLimit
			opts.DailyReviewLimit = settings.DailyReviewLimit
		}
		cards, err := s.Queue.GetDueCards(r.Context(), deckID, opts)
		if err != nil {
			serverError(w, "Error getting due cards", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(cards))
	}
}

func (s *Server) handleGetToday() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.Queue.TodayCounts(r.Context())
		if err != nil {
			serverError(w, "Error counting today's reviews", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"new_cards":    counts.NewCards,
			"review_cards": counts.ReviewCards,
		})
	}
}

func (s *Server) handleGetPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		previews, err := s.Reviewer.Preview(r.Context(), id)
		if errors.Is(err, domain.ErrCardNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			serverError(w, "Error previewing card", err)
			return
		}
		out := make(map[string]domain.Card, len(previews))
		for rating, card := range previews {
			out[rating.String()] = card
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetCardLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		logs, err := s.Catalog.ReviewLogsForCard(r.Context(), id)
		if err != nil {
			serverError(w, "Error getting review logs", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(logs))
	}
}

type reviewRequest struct {
	Rating domain.Rating `json:"rating"`
}

func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !req.Rating.IsValid() {
			writeError(w, http.StatusBadRequest, domain.ErrInvalidRating.Error())
			return
		}

		res := s.Reviewer.ReviewCard(r.Context(), id, req.Rating)
		switch {
		case res.Success:
			writeJSON(w, http.StatusOK, res)
		case res.NotFound:
			writeJSON(w, http.StatusNotFound, res)
		default:
			slog.Error("Review failed", "card_id", id, "error", res.Error)
			writeJSON(w, http.StatusInternalServerError, res)
		}
	}
}

func (s *Server) handlePostReset(byDeck bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var deckID *int64
		if byDeck {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			deckID = &id
		}
		n, err := s.Reviewer.ResetCardsInDeck(r.Context(), deckID)
		if err != nil {
			serverError(w, "Error resetting cards", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"reset": n})
	}
}

func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.Catalog.GetDecks(r.Context())
		if err != nil {
			serverError(w, "Error getting decks", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(decks))
	}
}

func (s *Server) handleGetDeckCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		cards, err := s.Catalog.GetCardsByDeck(r.Context(), id)
		if err != nil {
			serverError(w, "Error getting deck cards", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(cards))
	}
}

// settingsBody is the wire shape of user settings; steps are minute strings.
type settingsBody struct {
	LearningSteps                  *string `json:"learningSteps"`
	RelearningSteps                *string `json:"relearningSteps"`
	DailyNewCardsLimit             *int    `json:"dailyNewCardsLimit"`
	DailyReviewLimit               *int    `json:"dailyReviewLimit"`
	EnableTraditionalLearningSteps *bool   `json:"enableTraditionalLearningSteps"`
}

func toBody(s domain.UserSettings) settingsBody {
	learning, relearning := domain.FormatSteps(s.LearningSteps), domain.FormatSteps(s.RelearningSteps)
	return settingsBody{
		LearningSteps:                  &learning,
		RelearningSteps:                &relearning,
		DailyNewCardsLimit:             s.DailyNewCardsLimit,
		DailyReviewLimit:               s.DailyReviewLimit,
		EnableTraditionalLearningSteps: &s.EnableTraditionalLearningSteps,
	}
}

// merge overlays the fields present in b onto s.
func (b settingsBody) merge(s domain.UserSettings) domain.UserSettings {
	if b.LearningSteps != nil {
		s.LearningSteps = domain.ParseSteps(*b.LearningSteps)
	}
	if b.RelearningSteps != nil {
		s.RelearningSteps = domain.ParseSteps(*b.RelearningSteps)
	}
	if b.DailyNewCardsLimit != nil {
		s.DailyNewCardsLimit = b.DailyNewCardsLimit
	}
	if b.DailyReviewLimit != nil {
		s.DailyReviewLimit = b.DailyReviewLimit
	}
	if b.EnableTraditionalLearningSteps != nil {
		s.EnableTraditionalLearningSteps = *b.EnableTraditionalLearningSteps
	}
	return s
}

func (s *Server) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, err := s.Settings.GetSettings(r.Context())
		if err != nil {
			serverError(w, "Error reading settings", err)
			return
		}
		writeJSON(w, http.StatusOK, toBody(current))
	}
}

func (s *Server) handlePutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body settingsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		current, err := s.Settings.GetSettings(r.Context())
		if err != nil {
			serverError(w, "Error reading settings", err)
			return
		}
		next := body.merge(current)
		if err := s.Settings.Update(r.Context(), next); err != nil {
			if errors.Is(err, domain.ErrInvalidSettings) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			serverError(w, "Error saving settings", err)
			return
		}
		writeJSON(w, http.StatusOK, toBody(next))
	}
}

type sourceResponse struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	DeckID      int64  `json:"deck_id"`
	LastScanned *int64 `json:"last_scanned,omitempty"`
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeSources(w, r)
	}
}

func (s *Server) writeSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.Catalog.GetAllSources(r.Context())
	if err != nil {
		serverError(w, "Error getting sources", err)
		return
	}
	out := make([]sourceResponse, len(sources))
	for i, src := range sources {
		out[i] = sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type, DeckID: src.DeckID}
		if src.LastScanned != nil {
			ms := src.LastScanned.UnixMilli()
			out[i].LastScanned = &ms
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteSource deletes a source with its notes and returns the remaining sources.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		err := s.Catalog.DeleteSource(r.Context(), id)
		if errors.Is(err, storage.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			serverError(w, "Error deleting source", err)
			return
		}
		slog.Info("Source deleted", "source_id", id)
		s.writeSources(w, r)
	}
}

func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Path) == "" {
			writeError(w, http.StatusBadRequest, "path is required")
			return
		}
		id, err := s.Importer.AddSource(r.Context(), strings.TrimSpace(req.Path))
		if errors.Is(err, sync.ErrSourceExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

type reportResponse struct {
	SourceID int64    `json:"source_id"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Created  int      `json:"created"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

// handlePostSync runs a sync in the foreground, so the caller waits for it.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.Importer.Run(r.Context())
		if err != nil {
			serverError(w, "Error syncing sources", err)
			return
		}
		out := make([]reportResponse, len(reports))
		for i, rep := range reports {
			out[i] = reportResponse{
				SourceID: rep.SourceID,
				Path:     rep.Path,
				Parsed:   rep.Parsed,
				Created:  rep.Created,
				Deleted:  rep.Deleted,
			}
			for _, e := range rep.Errors {
				out[i].Errors = append(out[i].Errors, e.Error())
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// scope reads the optional deck and limit query parameters.
func scope(w http.ResponseWriter, r *http.Request) (*int64, int, bool) {
	q := r.URL.Query()
	var deckID *int64
	if v := q.Get("deck"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deck id")
			return nil, 0, false
		}
		deckID = &id
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return nil, 0, false
		}
		limit = n
	}
	return deckID, limit, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
