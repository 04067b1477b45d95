package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/scraper"
	"github.com/carmarket/crawler/internal/store"
)

type crawlRequest struct {
	StartURL     *string `json:"start_url"`
	MaxPages     *int    `json:"max_pages"`
	DelaySeconds *int    `json:"delay_seconds"`
	Deep         *bool   `json:"deep"`
}

func (s *Server) crawlRequestFrom(body crawlRequest) scraper.Request {
	req := s.opts.Defaults
	if body.StartURL != nil {
		req.StartURL = *body.StartURL
	}
	if body.MaxPages != nil {
		req.MaxPages = *body.MaxPages
	}
	if body.DelaySeconds != nil {
		req.Delay = time.Duration(*body.DelaySeconds) * time.Second
	}
	if body.Deep != nil {
		req.Deep = *body.Deep
	}
	return req
}

// startCrawl admits a detached run and returns immediately. Duplicate
// requests while a run is active are rejected with 409.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var body crawlRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	// The run must outlive this request.
	run, err := s.engine.Stream(context.Background(), s.crawlRequestFrom(body))
	if err != nil {
		if errors.Is(err, scraper.ErrAlreadyRunning) {
			s.writeError(w, http.StatusConflict, "crawl already running")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Listings are persisted inside the run; the detached stream only
	// needs draining.
	go func() {
		for evt := range run.Events {
			if evt.Type == scraper.EventError {
				s.logger.Warn("detached crawl run failed",
					zap.String("run_id", run.ID.String()),
					zap.String("error", evt.Error))
			}
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID.String(),
		"status": "started",
	})
}

// streamCrawl admits a run and relays its progress as server-sent events.
// The stream carries zero or more progress frames and exactly one terminal
// frame (complete or error).
func (s *Server) streamCrawl(w http.ResponseWriter, r *http.Request) {
	req := s.opts.Defaults
	q := r.URL.Query()
	if v := q.Get("start_url"); v != "" {
		req.StartURL = v
	}
	if v := q.Get("max_pages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid max_pages")
			return
		}
		req.MaxPages = n
	}
	if v := q.Get("delay_seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid delay_seconds")
			return
		}
		req.Delay = time.Duration(n) * time.Second
	}
	if v := q.Get("deep"); v != "" {
		deep, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid deep")
			return
		}
		req.Deep = deep
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	run, err := s.engine.Stream(r.Context(), req)
	if err != nil {
		if errors.Is(err, scraper.ErrAlreadyRunning) {
			s.writeError(w, http.StatusConflict, "crawl already running")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Run-ID", run.ID.String())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for evt := range run.Events {
		payload, err := json.Marshal(evt)
		if err != nil {
			s.logger.Error("marshal progress event failed", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client went away; the engine stops via r.Context().
			return
		}
		flusher.Flush()
	}
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	total, err := s.cars.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "count cars")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"scraper_running": s.engine.Running(),
		"total_cars":      total,
	})
}

func (s *Server) listCars(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, 50, 500)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cars, err := s.cars.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list cars")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cars":   emptyIfNil(cars),
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getCar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "car_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid car id")
		return
	}
	car, err := s.cars.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "car not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "get car")
		return
	}
	s.writeJSON(w, http.StatusOK, car)
}

func (s *Server) searchCars(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit, _, err := parseLimitOffset(r, 50, 500)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cars, err := s.cars.Search(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "search cars")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cars":  emptyIfNil(cars),
		"query": query,
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cars.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "car stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, 20, 200)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.RunStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := store.RunStatus(v)
		switch st {
		case store.RunRunning, store.RunCompleted, store.RunFailed:
			status = &st
		default:
			s.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}
	runs, err := s.runs.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":   emptyRunsIfNil(runs),
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "get run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func parseLimitOffset(r *http.Request, defLimit, maxLimit int) (int, int, error) {
	limit := defLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = n
	}
	return limit, offset, nil
}

func emptyIfNil(cars []store.CarSummary) []store.CarSummary {
	if cars == nil {
		return []store.CarSummary{}
	}
	return cars
}

func emptyRunsIfNil(runs []store.CrawlRun) []store.CrawlRun {
	if runs == nil {
		return []store.CrawlRun{}
	}
	return runs
}
