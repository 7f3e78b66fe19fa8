// Package api serves the scored corpus read-only over HTTP. Consumers see
// each review's final score and its provenance tag, never the per-model
// judgments behind it.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/report"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

const maxLimit = 500

// PublicReview is the consumer view of one review.
type PublicReview struct {
	OutletID    string            `json:"outlet_id"`
	Outlet      string            `json:"outlet,omitempty"`
	CriticID    string            `json:"critic_id"`
	Critic      string            `json:"critic,omitempty"`
	URL         string            `json:"url,omitempty"`
	Score       int               `json:"score"`
	Bucket      model.Bucket      `json:"bucket"`
	Source      model.ScoreSource `json:"source"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
}

// ShowReviews is the response of the show reviews endpoint.
type ShowReviews struct {
	ShowID  string         `json:"show_id"`
	Count   int            `json:"count"`
	Average *float64       `json:"average,omitempty"`
	Reviews []PublicReview `json:"reviews"`
}

// Server holds the API dependencies.
type Server struct {
	store store.Store
	cfg   config.ServerConfig
}

// NewServer creates a Server.
func NewServer(st store.Store, cfg config.ServerConfig) *Server {
	return &Server{store: st, cfg: cfg}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/shows/{showID}/reviews", s.showReviews)
	r.Get("/queue", s.queue)
	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// showReviews lists the scored reviews of one show. Reviews without a final
// score are left out.
func (s *Server) showReviews(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showID")
	reviews, err := s.store.ListReviews(r.Context(), store.ReviewFilter{ShowID: showID})
	if err != nil {
		zap.L().Error("api: list reviews", zap.String("show", showID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load reviews")
		return
	}

	resp := ShowReviews{ShowID: showID, Reviews: make([]PublicReview, 0, len(reviews))}
	sum := 0
	for i := range reviews {
		rv := &reviews[i]
		if rv.Score == nil {
			continue
		}
		resp.Reviews = append(resp.Reviews, PublicReview{
			OutletID:    rv.OutletID,
			Outlet:      rv.OutletName,
			CriticID:    rv.CriticID,
			Critic:      rv.CriticName,
			URL:         rv.URL,
			Score:       *rv.Score,
			Bucket:      model.BucketFor(*rv.Score),
			Source:      rv.ScoreSource,
			PublishedAt: rv.PublishedAt,
		})
		sum += *rv.Score
	}
	resp.Count = len(resp.Reviews)
	if resp.Count > 0 {
		avg := float64(sum) / float64(resp.Count)
		resp.Average = &avg
	}
	if len(reviews) == 0 {
		writeError(w, http.StatusNotFound, "show not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// queue returns the flagged reviews, most severe first.
func (s *Server) queue(w http.ResponseWriter, r *http.Request) {
	limit := maxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	reviews, err := s.store.ListReviews(r.Context(), store.ReviewFilter{
		ShowID:      r.URL.Query().Get("show"),
		NeedsReview: true,
	})
	if err != nil {
		zap.L().Error("api: list queue", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load queue")
		return
	}

	items := report.Queue(reviews)
	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []report.QueueItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
