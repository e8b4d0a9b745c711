// Package observability holds the Prometheus metrics exported by the
// planning service.
package observability

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the planner's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	PlansTotal    *prometheus.CounterVec
	PlanDuration  *prometheus.HistogramVec
	Waypoints     *prometheus.HistogramVec
	QueueDepth    prometheus.Gauge
	CacheLookups  *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	OriginChanges prometheus.Counter
}

// New registers the planner metrics against reg, defaulting to the
// global registry when nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	plans, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aerialplan_plans_total",
		Help: "Planning requests handled, labeled by pattern and outcome.",
	}, []string{"pattern", "status"}), "aerialplan_plans_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aerialplan_plan_duration_seconds",
		Help:    "Time spent computing a plan.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"pattern"}), "aerialplan_plan_duration_seconds")
	if err != nil {
		return nil, err
	}
	waypoints, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aerialplan_plan_waypoints",
		Help:    "Number of waypoints in successful plans.",
		Buckets: prometheus.ExponentialBuckets(4, 2, 10),
	}, []string{"pattern"}), "aerialplan_plan_waypoints")
	if err != nil {
		return nil, err
	}
	queue, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aerialplan_queue_depth",
		Help: "Plan jobs waiting for a worker.",
	}), "aerialplan_queue_depth")
	if err != nil {
		return nil, err
	}
	cache, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aerialplan_cache_lookups_total",
		Help: "Plan cache lookups, labeled hit or miss.",
	}, []string{"result"}), "aerialplan_cache_lookups_total")
	if err != nil {
		return nil, err
	}
	httpReqs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aerialplan_http_requests_total",
		Help: "HTTP requests, labeled by route template, method and status code.",
	}, []string{"route", "method", "code"}), "aerialplan_http_requests_total")
	if err != nil {
		return nil, err
	}
	origins, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aerialplan_origin_changes_total",
		Help: "Times the mission origin was set or moved.",
	}), "aerialplan_origin_changes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:      gatherer,
		PlansTotal:    plans,
		PlanDuration:  duration,
		Waypoints:     waypoints,
		QueueDepth:    queue,
		CacheLookups:  cache,
		HTTPRequests:  httpReqs,
		OriginChanges: origins,
	}, nil
}

// ObservePlan records one planning attempt.
func (m *Metrics) ObservePlan(pattern string, d time.Duration, waypoints int, err error) {
	if m == nil {
		return
	}
	if pattern == "" {
		pattern = "unknown"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PlansTotal.WithLabelValues(pattern, status).Inc()
	m.PlanDuration.WithLabelValues(pattern).Observe(d.Seconds())
	if err == nil {
		m.Waypoints.WithLabelValues(pattern).Observe(float64(waypoints))
	}
}

// SetQueueDepth reports the number of queued jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// OriginChanged counts an origin set or re-origin.
func (m *Metrics) OriginChanged() {
	if m == nil {
		return
	}
	m.OriginChanges.Inc()
}

// Handler exposes the registered metrics for scraping.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware counts requests per mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed by the websocket upgrade.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}
