// Package server exposes the planner over HTTP: synchronous planning,
// queued jobs, origin management and live job events over SSE and
// websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"aerialplan/internal/observability"
	"aerialplan/internal/pipeline"
	"aerialplan/internal/planner"
	"aerialplan/internal/storage"
	"aerialplan/internal/web"
)

// Server wraps the HTTP API around the planning service and job pipeline.
type Server struct {
	addr     string
	store    *storage.Store
	pipeline *pipeline.Pipeline
	planner  *planner.Service
	metrics  *observability.Metrics
	hub      *web.Hub
	log      *slog.Logger
	server   *http.Server
}

// NewServer creates a server. store and metrics may be nil.
func NewServer(
	addr string,
	store *storage.Store,
	pipe *pipeline.Pipeline,
	svc *planner.Service,
	metrics *observability.Metrics,
	log *slog.Logger,
) (*Server, error) {
	if pipe == nil || svc == nil {
		return nil, errors.New("server needs a pipeline and a planning service")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:     addr,
		store:    store,
		pipeline: pipe,
		planner:  svc,
		metrics:  metrics,
		hub:      web.NewHub(log),
		log:      log,
	}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metrics.Middleware)
	s.setupRoutes(r)
	s.setupMissionRoutes(r)
	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.forwardResults(ctx)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("http api stopping")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("http api listening", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// setupRoutes configures planning and job routes.
func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/plan", s.handlePlan).Methods("POST")
	r.HandleFunc("/jobs", s.handleSubmit).Methods("POST")
	r.HandleFunc("/jobs", s.handleJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", s.handleJob).Methods("GET")
	r.HandleFunc("/stream", s.handleJobStream).Methods("GET")
	r.HandleFunc("/ws", s.hub.ServeWS).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

// jobEvent is what SSE and websocket clients receive per finished job.
type jobEvent struct {
	ID         string            `json:"id"`
	MissionID  string            `json:"missionId"`
	Name       string            `json:"name,omitempty"`
	Pattern    string            `json:"pattern"`
	Source     string            `json:"source"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	DurationMS int64             `json:"durationMs"`
	Generation uint64            `json:"generation,omitempty"`
	Waypoints  int               `json:"waypoints"`
	Stats      any               `json:"stats,omitempty"`
	Warnings   []planner.Warning `json:"warnings,omitempty"`
}

func newJobEvent(res pipeline.Result) jobEvent {
	ev := jobEvent{
		ID:         res.Job.ID,
		MissionID:  res.Job.MissionID,
		Name:       res.Job.Request.Name,
		Pattern:    res.Job.Pattern(),
		Source:     res.Job.Source,
		Status:     "completed",
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Error != nil {
		ev.Status = "failed"
		ev.Error = res.Error.Error()
		return ev
	}
	ev.Generation = res.Plan.Generation
	ev.Waypoints = len(res.Plan.Waypoints)
	ev.Stats = res.Plan.Stats
	ev.Warnings = res.Plan.Warnings
	return ev
}

func (s *Server) forwardResults(ctx context.Context) {
	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, err := json.Marshal(newJobEvent(res))
			if err != nil {
				s.log.Warn("failed to encode job event", "id", res.Job.ID, "error", err)
				continue
			}
			s.hub.Broadcast(payload)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planner.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.planner.Plan(r.Context(), req)
	if err != nil {
		s.log.Debug("plan rejected", "name", req.Name, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type submitResponse struct {
	ID        string `json:"id"`
	MissionID string `json:"missionId"`
	Status    string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req planner.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.pipeline.Submit(pipeline.Job{Source: "api", Request: req})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{ID: job.ID, MissionID: job.MissionID, Status: "queued"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := s.store.RecentJobs(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, _ := json.Marshal(newJobEvent(res))
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// statusFor maps planning errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case planner.IsInvalidInput(err):
		return http.StatusBadRequest
	case planner.IsOriginError(err):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
