// Package api is the admin HTTP surface of the throttler.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/you/throttler/internal/admission"
	"github.com/you/throttler/internal/domain"
	"github.com/you/throttler/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Registry interface {
	Worker(ctx context.Context, name string) (domain.Worker, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)
	UpsertWorker(ctx context.Context, p storage.UpsertWorkerParams) error
}

type Tracker interface {
	ThrottledWorkers(ctx context.Context) ([]string, error)
	CurrentlyThrottled(ctx context.Context, worker string) (bool, error)
}

type UsageTracker interface {
	Track(ctx context.Context, worker string, dbSeconds float64) error
}

type Gate interface {
	Evaluate(ctx context.Context, worker domain.Worker) (admission.Outcome, error)
}

type Config struct {
	Registry Registry
	Tracker  Tracker
	Usage    UsageTracker
	Gate     Gate
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type server struct {
	cfg Config
	log *zap.Logger
}

func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &server{cfg: cfg, log: cfg.Logger.Named("api")}

	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID, middleware.Recoverer)

	rtr.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	rtr.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	rtr.Route("/v1", func(rtr chi.Router) {
		rtr.Get("/throttled", s.listThrottled)
		rtr.Get("/workers", s.listWorkers)
		rtr.Get("/workers/{worker}", s.getWorker)
		rtr.Put("/workers/{worker}", s.putWorker)
		rtr.Post("/workers/{worker}/usage", s.trackUsage)
		rtr.Post("/workers/{worker}/admit", s.admit)
	})
	return rtr
}

type workerResponse struct {
	Name                string    `json:"name"`
	FeatureCategory     string    `json:"feature_category"`
	MaxConcurrencyLimit int       `json:"max_concurrency_limit"`
	CurrentLimit        int       `json:"current_limit"`
	Throttled           bool      `json:"throttled"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toResponse(w domain.Worker, throttled bool) workerResponse {
	return workerResponse{
		Name:                w.Name,
		FeatureCategory:     w.FeatureCategory,
		MaxConcurrencyLimit: w.MaxConcurrencyLimit,
		CurrentLimit:        w.CurrentLimit,
		Throttled:           throttled,
		UpdatedAt:           w.UpdatedAt,
	}
}

func (s *server) listThrottled(w http.ResponseWriter, r *http.Request) {
	workers, err := s.cfg.Tracker.ThrottledWorkers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if workers == nil {
		workers = []string{}
	}
	sort.Strings(workers)
	s.write(w, http.StatusOK, map[string][]string{"workers": workers})
}

func (s *server) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.cfg.Registry.ListWorkers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]workerResponse, 0, len(workers))
	for _, wk := range workers {
		throttled, err := s.cfg.Tracker.CurrentlyThrottled(r.Context(), wk.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, toResponse(wk, throttled))
	}
	s.write(w, http.StatusOK, out)
}

func (s *server) getWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := s.cfg.Registry.Worker(r.Context(), chi.URLParam(r, "worker"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	throttled, err := s.cfg.Tracker.CurrentlyThrottled(r.Context(), wk.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusOK, toResponse(wk, throttled))
}

type putWorkerRequest struct {
	FeatureCategory     string `json:"feature_category"`
	MaxConcurrencyLimit int    `json:"max_concurrency_limit"`
}

func (s *server) putWorker(w http.ResponseWriter, r *http.Request) {
	var req putWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.write(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	if req.MaxConcurrencyLimit < 0 {
		s.write(w, http.StatusBadRequest, errorResponse{Error: "max_concurrency_limit must not be negative"})
		return
	}
	name := chi.URLParam(r, "worker")
	err := s.cfg.Registry.UpsertWorker(r.Context(), storage.UpsertWorkerParams{
		Name:                name,
		FeatureCategory:     req.FeatureCategory,
		MaxConcurrencyLimit: req.MaxConcurrencyLimit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.getWorker(w, r)
}

type usageRequest struct {
	DBDurationSeconds float64 `json:"db_duration_seconds"`
}

func (s *server) trackUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DBDurationSeconds < 0 {
		s.write(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	if err := s.cfg.Usage.Track(r.Context(), chi.URLParam(r, "worker"), req.DBDurationSeconds); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// admit runs a throttling pass for job runners living outside this process.
func (s *server) admit(w http.ResponseWriter, r *http.Request) {
	wk, err := s.cfg.Registry.Worker(r.Context(), chi.URLParam(r, "worker"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.cfg.Gate.Evaluate(r.Context(), wk)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrWorkerNotFound) {
		s.write(w, http.StatusNotFound, errorResponse{Error: "worker not found"})
		return
	}
	s.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	s.write(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *server) write(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}
