package planner

import (
	"context"
	"log/slog"
	"time"

	"aerialplan/internal/geo"
	"aerialplan/internal/logging"
	"aerialplan/internal/observability"
)

// Service binds Plan to the mission frame and adds caching, metrics and
// logging. It is safe for concurrent use.
type Service struct {
	frame    *geo.Frame
	settings Settings
	cache    *Cache
	metrics  *observability.Metrics
	log      *slog.Logger
}

// NewService returns a Service. cache and metrics may be nil.
func NewService(frame *geo.Frame, settings Settings, cache *Cache, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if frame == nil {
		frame = geo.NewFrame()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{frame: frame, settings: settings, cache: cache, metrics: metrics, log: logger}
}

func (s *Service) Frame() *geo.Frame { return s.frame }

func (s *Service) Settings() Settings { return s.settings }

func (s *Service) Metrics() *observability.Metrics { return s.metrics }

// Plan computes req against the current origin.
func (s *Service) Plan(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	kind := ""
	if req.Pattern.Params != nil {
		kind = string(req.Pattern.Params.Kind())
	}
	start := time.Now()

	ref, err := s.frame.Reference()
	if err != nil {
		s.metrics.ObservePlan(kind, time.Since(start), 0, err)
		return Result{}, err
	}

	key, cacheable := CacheKey(req, s.settings, ref.Generation)
	if cacheable && s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			s.metrics.CacheLookup(true)
			s.log.Debug("plan served from cache", "pattern", kind, "generation", ref.Generation)
			return res, nil
		}
		s.metrics.CacheLookup(false)
	}

	res, err := Plan(req, s.settings, ref)
	s.metrics.ObservePlan(kind, time.Since(start), len(res.Waypoints), err)
	if err != nil {
		return Result{}, err
	}
	logging.LogPlanWarnings(s.log, req.Name, kind, warningMessages(res.Warnings))
	if cacheable {
		s.cache.Add(key, res)
	}
	return res, nil
}

// IsCurrent reports whether res was planned against the current origin.
func (s *Service) IsCurrent(res Result) bool { return s.frame.IsCurrent(res.Generation) }

// SetOrigin fixes the mission origin. It fails with geo.ErrOriginAlreadySet
// once an origin exists; use Reorigin to move it.
func (s *Service) SetOrigin(o geo.Origin) (geo.Reference, error) {
	ref, err := s.frame.SetOrigin(o)
	if err != nil {
		return geo.Reference{}, err
	}
	s.metrics.OriginChanged()
	s.log.Info("mission origin set", "lat", o.Latitude, "lon", o.Longitude, "alt", o.AltitudeMSL)
	return ref, nil
}

// Reorigin moves the origin, invalidating every plan made before.
func (s *Service) Reorigin(o geo.Origin) (geo.Reference, error) {
	ref, err := s.frame.Reorigin(o)
	if err != nil {
		return geo.Reference{}, err
	}
	s.cache.Purge()
	s.metrics.OriginChanged()
	s.log.Warn("mission origin moved, earlier plans are stale",
		"lat", o.Latitude, "lon", o.Longitude, "alt", o.AltitudeMSL, "generation", ref.Generation)
	return ref, nil
}

func warningMessages(ws []Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code + ": " + w.Message
	}
	return out
}

// Reference returns the current origin snapshot.
func (s *Service) Reference() (geo.Reference, error) { return s.frame.Reference() }
