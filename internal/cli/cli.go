package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"aerialplan/internal/config"
	"aerialplan/internal/geo"
	"aerialplan/internal/guard"
	"aerialplan/internal/pattern"
	"aerialplan/internal/pipeline"
	"aerialplan/internal/planner"
	"aerialplan/internal/server"
	"aerialplan/internal/storage"
	"aerialplan/internal/watch"
)

type pipelineClient interface {
	Submit(job pipeline.Job) (pipeline.Job, error)
	Subscribe() (<-chan pipeline.Result, func())
	Origin() (geo.Reference, error)
	SetOrigin(o geo.Origin) (geo.Reference, error)
	Reorigin(o geo.Origin) (geo.Reference, error)
}

type serverFunc func(ctx context.Context, addr, watchDir string) error

type watchFunc func(ctx context.Context, dir string) error

// Root wires CLI commands to the pipeline.
type Root struct {
	pipeline pipelineClient
	planner  *planner.Service
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	serveFn  serverFunc
	watchFn  watchFunc
}

// NewRoot constructs the CLI dependencies shared by every command.
func NewRoot(pl *pipeline.Pipeline, svc *planner.Service, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	r := &Root{
		pipeline: pl,
		planner:  svc,
		cfg:      cfg,
		log:      logger,
		store:    store,
	}
	r.serveFn = r.defaultServe
	r.watchFn = r.defaultWatch
	return r
}

// Settings maps configuration onto planner settings.
func Settings(cfg *config.Config) planner.Settings {
	return planner.Settings{
		Limits: guard.Limits{
			MinAltitude: cfg.Safety.MinAltitude,
			MaxAltitude: cfg.Safety.MaxAltitude,
			MinGSD:      cfg.Safety.MinGSD,
			MaxGSD:      cfg.Safety.MaxGSD,
		},
		DefaultSpeed:    cfg.Flight.DefaultSpeed,
		HoverPerCapture: cfg.Flight.HoverPerCaptureSeconds,
		Wind: pattern.WindRule{
			ThresholdMS: cfg.Survey.WindThresholdMS,
			OffsetDeg:   cfg.Survey.WindOffsetDeg,
		},
		DefaultPreset: cfg.Camera.DefaultPreset,
	}
}

func (r *Root) settings() planner.Settings {
	if r.planner != nil {
		return r.planner.Settings()
	}
	return Settings(r.cfg)
}

// defaultServe runs the HTTP API and, when watchDir is set, the request
// watcher until ctx is done or either fails.
func (r *Root) defaultServe(ctx context.Context, addr, watchDir string) error {
	real, ok := r.pipeline.(*pipeline.Pipeline)
	if !ok || r.planner == nil {
		return fmt.Errorf("pipeline does not support server operation")
	}
	srv, err := server.NewServer(addr, r.store, real, r.planner, r.planner.Metrics(), r.log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	if watchDir != "" {
		g.Go(func() error { return r.watchFn(ctx, watchDir) })
	}
	return g.Wait()
}

func (r *Root) defaultWatch(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	w, err := watch.New(dir, r.pipeline, r.log)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// enqueueAndWait submits job and blocks until its result arrives.
func (r *Root) enqueueAndWait(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()
	job, err := r.enqueue(ctx, job)
	if err != nil {
		return pipeline.Result{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return pipeline.Result{}, fmt.Errorf("pipeline stopped before completion")
			}
			if res.Job.ID == job.ID {
				return res, res.Error
			}
		}
	}
}

func (r *Root) enqueue(ctx context.Context, job pipeline.Job) (pipeline.Job, error) {
	select {
	case <-ctx.Done():
		return job, ctx.Err()
	default:
	}

	if job.ID == "" {
		job.ID = pipeline.NewJobID()
	}
	job, err := r.pipeline.Submit(job)
	if err != nil {
		return job, err
	}

	r.log.Info("job queued", "pattern", job.Pattern(), "id", job.ID, "source", job.Source)
	return job, nil
}

// readRequest loads a request from path, or from stdin when path is "-".
func readRequest(path string, stdin io.Reader) (planner.Request, error) {
	if path != "-" {
		return watch.ReadRequest(path)
	}
	var req planner.Request
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		return planner.Request{}, fmt.Errorf("decode request from stdin: %w", err)
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ExitCode classifies errors for the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case planner.IsInvalidInput(err):
		return 2
	case planner.IsOriginError(err):
		return 3
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
