package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"aerialplan/internal/geo"
	"aerialplan/internal/logging"
	"aerialplan/internal/observability"
	"aerialplan/internal/planner"
	"aerialplan/internal/storage"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("job queue is full")

// Job represents a single planning request.
type Job struct {
	ID        string
	MissionID string
	Source    string // api, cli, watch
	Request   planner.Request
}

// Pattern names the job's pattern kind, or "" when the request has none.
func (j Job) Pattern() string {
	if j.Request.Pattern.Params == nil {
		return ""
	}
	return string(j.Request.Pattern.Params.Kind())
}

// Result is a finished plan job: the plan itself or the error that stopped it.
type Result struct {
	Job      Job
	Plan     planner.Result
	Error    error
	Duration time.Duration
}

// Processor turns one queued plan job into a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Planner is the planning service jobs run against.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (planner.Result, error)
	Reference() (geo.Reference, error)
	SetOrigin(o geo.Origin) (geo.Reference, error)
	Reorigin(o geo.Origin) (geo.Reference, error)
}

// Options sizes the worker pool.
type Options struct {
	Concurrency int
	QueueSize   int
	MissionID   string
}

// Pipeline runs plan jobs on a fixed pool of workers and fans results out
// to subscribers.
type Pipeline struct {
	processor Processor
	planner   Planner
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	metrics   *observability.Metrics
	missionID string
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New creates a Pipeline whose workers plan jobs through svc.
func New(ctx context.Context, opts Options, logger *slog.Logger, store *storage.Store, svc Planner, metrics *observability.Metrics) *Pipeline {
	return newPipeline(ctx, opts, logger, store, svc, newRouter(logger, svc), metrics)
}

func newPipeline(ctx context.Context, opts Options, logger *slog.Logger, store *storage.Store, svc Planner, proc Processor, metrics *observability.Metrics) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = opts.Concurrency * 2
	}
	if opts.MissionID == "" {
		opts.MissionID = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		processor: proc,
		planner:   svc,
		log:       logger,
		jobs:      make(chan Job, opts.QueueSize),
		cancel:    cancel,
		store:     store,
		metrics:   metrics,
		missionID: opts.MissionID,
		subs:      make(map[int]chan Result),
	}

	p.startOnce.Do(func() {
		for i := 0; i < opts.Concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	return p
}

// NewJobID returns a fresh job identifier.
func NewJobID() string { return uuid.NewString() }

// Submit adds a job to the processing queue. Empty IDs and mission IDs
// are filled in; the job as queued is returned.
func (p *Pipeline) Submit(job Job) (Job, error) {
	if job.ID == "" {
		job.ID = NewJobID()
	}
	if job.MissionID == "" {
		job.MissionID = p.missionID
	}

	if p.store != nil {
		reqJSON, _ := json.Marshal(job.Request)
		if err := p.store.RecordJobQueued(storage.JobRecord{
			ID:          job.ID,
			MissionID:   job.MissionID,
			Name:        job.Request.Name,
			Pattern:     job.Pattern(),
			Source:      job.Source,
			Status:      "queued",
			RequestJSON: string(reqJSON),
		}); err != nil {
			p.log.Warn("failed to record queued job", "id", job.ID, "error", err)
		}
	}

	select {
	case p.jobs <- job:
	default:
		if err := p.store.RecordJobFailed(job.ID, ErrQueueFull.Error()); err != nil {
			p.log.Warn("failed to record rejected job", "id", job.ID, "error", err)
		}
		return job, ErrQueueFull
	}
	p.metrics.SetQueueDepth(len(p.jobs))
	return job, nil
}

// Stop closes the queue and waits for in-flight plans to finish.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.metrics.SetQueueDepth(len(p.jobs))
			start := time.Now()

			logging.LogJobStart(p.log, job.ID, job.Pattern(), job.Source)
			if err := p.store.RecordJobStart(job.ID); err != nil {
				p.log.Warn("failed to record job start", "id", job.ID, "worker", id, "error", err)
			}

			res := p.processor.Process(ctx, job)
			res.Duration = time.Since(start)

			if res.Error != nil {
				logging.LogJobError(p.log, job.ID, job.Pattern(), res.Duration, res.Error, map[string]any{
					"name":   job.Request.Name,
					"source": job.Source,
				})
				if err := p.store.RecordJobFailed(job.ID, res.Error.Error()); err != nil {
					p.log.Warn("failed to record job failure", "id", job.ID, "error", err)
				}
			} else {
				logging.LogJobComplete(p.log, job.ID, job.Pattern(), res.Duration, resultMeta(res.Plan))
				if err := p.persist(job, res.Plan); err != nil {
					p.log.Warn("failed to record job result", "id", job.ID, "error", err)
				}
			}

			p.broadcast(res)
		}
	}
}

func (p *Pipeline) persist(job Job, plan planner.Result) error {
	if p.store == nil {
		return nil
	}
	statsJSON, err := json.Marshal(plan.Stats)
	if err != nil {
		return err
	}
	warningsJSON, err := json.Marshal(plan.Warnings)
	if err != nil {
		return err
	}
	opticsJSON, err := json.Marshal(plan.Optics)
	if err != nil {
		return err
	}
	return p.store.RecordJobResult(job.ID, plan.Generation, storage.ResultRecord{
		Waypoints: plan.Waypoints,
		Stats:     statsJSON,
		Warnings:  warningsJSON,
		Optics:    opticsJSON,
	})
}

func resultMeta(plan planner.Result) map[string]any {
	return map[string]any{
		"waypoints":  len(plan.Waypoints),
		"captures":   plan.Stats.CaptureCount,
		"distance_m": plan.Stats.TotalDistance,
		"time_s":     plan.Stats.EstimatedTime,
		"generation": plan.Generation,
		"warnings":   len(plan.Warnings),
	}
}

// Subscribe delivers every finished job until the returned func is called.
// Slow subscribers miss results rather than stall the workers.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}

// Origin returns the current mission origin.
func (p *Pipeline) Origin() (geo.Reference, error) { return p.planner.Reference() }

// SetOrigin fixes the mission origin and persists it.
func (p *Pipeline) SetOrigin(o geo.Origin) (geo.Reference, error) {
	ref, err := p.planner.SetOrigin(o)
	if err != nil {
		return ref, err
	}
	return ref, p.saveOrigin(ref)
}

// Reorigin moves the mission origin. Stored plans made under earlier
// generations are marked stale.
func (p *Pipeline) Reorigin(o geo.Origin) (geo.Reference, error) {
	ref, err := p.planner.Reorigin(o)
	if err != nil {
		return ref, err
	}
	return ref, p.saveOrigin(ref)
}

func (p *Pipeline) saveOrigin(ref geo.Reference) error {
	if err := p.store.SaveOrigin(p.missionID, ref); err != nil {
		return fmt.Errorf("persist origin: %w", err)
	}
	return nil
}
