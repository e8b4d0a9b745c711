package planner

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerialplan/internal/geo"
	"aerialplan/internal/guard"
	"aerialplan/internal/observability"
	"aerialplan/internal/optics"
	"aerialplan/internal/pattern"
)

var ref = geo.Reference{Origin: geo.Origin{Latitude: 46.5, Longitude: 7.5, AltitudeMSL: 600}, Generation: 1}

func orbitRequest(alt float64) Request {
	return Request{
		Preset:  "phantom4pro",
		Pattern: pattern.Envelope{Params: pattern.OrbitParams{Radius: 30, Altitude: alt, Segments: 16, OrbitCount: 1}},
	}
}

func hasWarning(res Result, code string) bool {
	for _, w := range res.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestPlanOrbit(t *testing.T) {
	res, err := Plan(orbitRequest(60), DefaultSettings, ref)
	require.NoError(t, err)

	assert.Equal(t, pattern.KindOrbit, res.Pattern)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, guard.Ok, res.Clamp)
	require.Len(t, res.Waypoints, 17)
	assert.Equal(t, res.Waypoints[0].Position, res.Waypoints[16].Position)
	assert.Equal(t, 16, res.Stats.CaptureCount)
	assert.Equal(t, 16, res.Stats.ImagesRequired)
	assert.InDelta(t, 5.0, res.Waypoints[3].Speed, 1e-12, "default speed applied")
	assert.Greater(t, res.Stats.EstimatedTime, res.Stats.TotalDistance/5)
	assert.Empty(t, res.Warnings)
}

func TestPlanClampsLowAltitude(t *testing.T) {
	res, err := Plan(orbitRequest(3), DefaultSettings, ref)
	require.NoError(t, err)

	assert.Equal(t, guard.TooLow, res.Clamp)
	assert.Equal(t, 5.0, res.Altitude)
	assert.True(t, hasWarning(res, WarnAltitudeClamped))
	for _, wp := range res.Waypoints {
		assert.InDelta(t, 5, wp.Position.Up, 1e-12)
	}
}

func TestPlanNeedsOrigin(t *testing.T) {
	_, err := Plan(orbitRequest(60), DefaultSettings, geo.Reference{})
	require.ErrorIs(t, err, geo.ErrOriginNotSet)
	assert.True(t, IsOriginError(err))
	assert.False(t, IsInvalidInput(err))
}

func TestPlanTargetGSD(t *testing.T) {
	cam, err := optics.Preset("phantom4pro")
	require.NoError(t, err)
	want, err := optics.AltitudeForTargetGSD(2, cam)
	require.NoError(t, err)

	req := orbitRequest(60)
	req.TargetGSD = 2
	res, err := Plan(req, DefaultSettings, ref)
	require.NoError(t, err)
	assert.InDelta(t, want, res.Altitude, 1e-9)
	assert.InDelta(t, 2, res.Optics.GSD, 1e-9)

	req.TargetGSD = -1
	_, err = Plan(req, DefaultSettings, ref)
	assert.True(t, IsInvalidInput(err))
}

func TestPlanSurveyStats(t *testing.T) {
	req := Request{
		Preset: "phantom4pro",
		Pattern: pattern.Envelope{Params: pattern.SurveyParams{
			Polygon:          []geo.ENUPoint{{}, {East: 300}, {East: 300, North: 300}, {North: 300}},
			Altitude:         100,
			FrontOverlapPct:  50,
			SideOverlapPct:   50,
			WindSpeed:        6,
			WindDirectionDeg: 180,
		}},
	}
	res, err := Plan(req, DefaultSettings, ref)
	require.NoError(t, err)

	// Footprint 150 x 100 m gives 75 m track and 50 m image spacing.
	assert.InDelta(t, 150, res.Optics.Footprint.Width, 1e-9)
	assert.InDelta(t, 90000, res.Stats.CoverageArea, 1e-6)
	assert.Equal(t, 24, res.Stats.ImagesRequired)
	assert.True(t, hasWarning(res, WarnWindOverride))
	for _, wp := range res.Waypoints {
		assert.InDelta(t, 90, math.Mod(*wp.Heading, 180), 1e-9, "crosswind lines run east-west")
	}
}

func TestPlanSpiralFacetedWarning(t *testing.T) {
	req := Request{
		Preset: "mavic3e",
		Pattern: pattern.Envelope{Params: pattern.SpiralParams{
			StartRadius: 20, EndRadius: 40, StartAltitude: 30, EndAltitude: 60, Revolutions: 2, Segments: 10,
		}},
	}
	res, err := Plan(req, DefaultSettings, ref)
	require.NoError(t, err)
	assert.True(t, hasWarning(res, WarnSpiralFaceted))
	assert.Len(t, res.Waypoints, 11)
}

func TestPlanSpiralClampsEachEnd(t *testing.T) {
	tests := []struct {
		start, end          float64
		wantFirst, wantLast float64
	}{
		{10, 1100, 10, 500},
		{100, 1000, 100, 500},
		{1000, 2, 500, 5},
	}
	for _, tt := range tests {
		req := Request{
			Preset: "mavic3e",
			Pattern: pattern.Envelope{Params: pattern.SpiralParams{
				StartRadius: 20, EndRadius: 40, StartAltitude: tt.start, EndAltitude: tt.end, Revolutions: 2, Segments: 32,
			}},
		}
		res, err := Plan(req, DefaultSettings, ref)
		require.NoError(t, err, "%g->%g", tt.start, tt.end)

		assert.Equal(t, guard.TooHigh, res.Clamp)
		assert.True(t, hasWarning(res, WarnAltitudeClamped))
		first, last := res.Waypoints[0].Position.Up, res.Waypoints[len(res.Waypoints)-1].Position.Up
		assert.InDelta(t, tt.wantFirst, first, 1e-9)
		assert.InDelta(t, tt.wantLast, last, 1e-9)
		for i, wp := range res.Waypoints {
			assert.GreaterOrEqual(t, wp.Position.Up, DefaultSettings.Limits.MinAltitude, "waypoint %d", i)
			assert.LessOrEqual(t, wp.Position.Up, DefaultSettings.Limits.MaxAltitude, "waypoint %d", i)
		}
		assert.False(t, hasWarning(res, WarnWaypointAltitude))
	}
}

func TestPlanFacadeIgnoresAltitudeBounds(t *testing.T) {
	req := Request{
		Preset: "mini3",
		Pattern: pattern.Envelope{Params: pattern.FacadeParams{
			Corners:          [4]geo.ENUPoint{{}, {East: 20}, {East: 20, North: 10}, {North: 10}},
			Height:           12,
			StandoffDistance: 3,
			VerticalSpacing:  4,
			SelectedFaces:    []int{0},
		}},
	}
	res, err := Plan(req, DefaultSettings, ref)
	require.NoError(t, err)
	assert.Equal(t, guard.Ok, res.Clamp)
	assert.Equal(t, 3.0, res.Altitude)
	assert.Len(t, res.Waypoints, 6)
	assert.True(t, hasWarning(res, WarnWaypointAltitude), "first pass at 4 m is below 5 m")
}

func TestPlanInvalidInputs(t *testing.T) {
	bad := orbitRequest(60)
	bad.Camera = &optics.CameraSpec{SensorWidth: 0, FocalLength: optics.Prime(8), ImageWidth: 4000, ImageHeight: 3000, Aperture: 2.8}
	_, err := Plan(bad, DefaultSettings, ref)
	assert.True(t, IsInvalidInput(err), "camera: %v", err)

	seg := Request{Preset: "mini3", Pattern: pattern.Envelope{Params: pattern.OrbitParams{Radius: 30, Altitude: 60, Segments: 2}}}
	_, err = Plan(seg, DefaultSettings, ref)
	assert.ErrorIs(t, err, pattern.ErrInvalidPattern)

	_, err = Plan(Request{Preset: "mini3"}, DefaultSettings, ref)
	assert.ErrorIs(t, err, pattern.ErrInvalidPattern)

	unknown := orbitRequest(60)
	unknown.Preset = "no-such-camera"
	_, err = Plan(unknown, DefaultSettings, ref)
	assert.Error(t, err)
}

func TestRequestJSON(t *testing.T) {
	body := `{
		"name": "tower",
		"preset": "mavic3e",
		"pattern": {"type": "orbit", "params": {"radius": 25, "altitude": 40, "segments": 12, "cameraMode": "forward"}},
		"hoverPerCapture": 0.5
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	res, err := Plan(req, DefaultSettings, ref)
	require.NoError(t, err)
	assert.Equal(t, "tower", res.Name)
	assert.Len(t, res.Waypoints, 13)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"altitudeClamp":"ok"`)
	assert.Contains(t, string(out), `"farInfinite"`)
}

func TestServiceCachesAndInvalidates(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.New(reg)
	require.NoError(t, err)

	svc := NewService(geo.NewFrame(), DefaultSettings, NewCache(8, time.Minute), metrics, nil)
	ctx := context.Background()

	_, err = svc.Plan(ctx, orbitRequest(60))
	require.ErrorIs(t, err, geo.ErrOriginNotSet)

	_, err = svc.SetOrigin(ref.Origin)
	require.NoError(t, err)
	_, err = svc.SetOrigin(ref.Origin)
	require.ErrorIs(t, err, geo.ErrOriginAlreadySet)

	first, err := svc.Plan(ctx, orbitRequest(60))
	require.NoError(t, err)
	first.Waypoints[0].Position.East = 1e6

	second, err := svc.Plan(ctx, orbitRequest(60))
	require.NoError(t, err)
	assert.NotEqual(t, 1e6, second.Waypoints[0].Position.East, "cached result must not alias caller copies")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")))
	assert.True(t, svc.IsCurrent(second))

	moved := ref.Origin
	moved.Latitude += 0.01
	_, err = svc.Reorigin(moved)
	require.NoError(t, err)
	assert.False(t, svc.IsCurrent(second))
	assert.Zero(t, svc.cache.Len())

	third, err := svc.Plan(ctx, orbitRequest(60))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), third.Generation)
}

func TestServiceHonoursCancelledContext(t *testing.T) {
	svc := NewService(nil, DefaultSettings, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Plan(ctx, orbitRequest(60))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheKey(t *testing.T) {
	a, ok := CacheKey(orbitRequest(60), DefaultSettings, 1)
	require.True(t, ok)
	b, _ := CacheKey(orbitRequest(60), DefaultSettings, 2)
	c, _ := CacheKey(orbitRequest(61), DefaultSettings, 1)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)

	withTerrain := Request{Pattern: pattern.Envelope{Params: pattern.SurveyParams{Terrain: pattern.FlatTerrain(3)}}}
	_, ok = CacheKey(withTerrain, DefaultSettings, 1)
	assert.False(t, ok)
}

func TestComputeOptics(t *testing.T) {
	res, err := ComputeOptics(OpticsRequest{Preset: "phantom4pro", Altitude: 100}, DefaultSettings)
	require.NoError(t, err)
	assert.InDelta(t, 100*13.2/(8.8*5472)*100, res.GSD, 1e-9)
	assert.Equal(t, 100.0, res.FocusDistance)
	assert.Equal(t, 5472, res.Camera.ImageWidth)

	byGSD, err := ComputeOptics(OpticsRequest{Preset: "phantom4pro", TargetGSD: res.GSD}, DefaultSettings)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, byGSD.Altitude, 1e-6)

	_, err = ComputeOptics(OpticsRequest{Preset: "phantom4pro"}, DefaultSettings)
	assert.True(t, IsInvalidInput(err))
	_, err = ComputeOptics(OpticsRequest{Preset: "nope", Altitude: 10}, DefaultSettings)
	assert.True(t, IsInvalidInput(err))
}
