package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// router implements Processor by handing each job's request to the
// planning service.
type router struct {
	log     *slog.Logger
	planner Planner
}

func newRouter(logger *slog.Logger, svc Planner) Processor {
	return &router{log: logger, planner: svc}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	if job.Request.Pattern.Params == nil {
		return Result{Job: job, Error: fmt.Errorf("job %s: request has no pattern", job.ID)}
	}
	if r.planner == nil {
		return Result{Job: job, Error: fmt.Errorf("job %s: no planner configured", job.ID)}
	}
	plan, err := r.planner.Plan(ctx, job.Request)
	if err != nil {
		return Result{Job: job, Error: fmt.Errorf("plan %s %s: %w", job.Pattern(), job.ID, err)}
	}
	r.log.Debug("job planned", "id", job.ID, "waypoints", len(plan.Waypoints), "generation", plan.Generation)
	return Result{Job: job, Plan: plan}
}
