package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerialplan/internal/geo"
	"aerialplan/internal/pattern"
)

func line(points ...geo.ENUPoint) []pattern.Waypoint {
	wps := make([]pattern.Waypoint, len(points))
	for i, p := range points {
		wps[i] = pattern.Waypoint{Position: p, Type: pattern.WaypointCapture, Speed: 5}
	}
	return wps
}

func TestTotalDistance(t *testing.T) {
	wps := line(
		geo.ENUPoint{},
		geo.ENUPoint{East: 3, North: 4},
		geo.ENUPoint{East: 3, North: 4, Up: 12},
	)
	assert.InDelta(t, 17, TotalDistance(wps), 1e-12)
	assert.Zero(t, TotalDistance(nil))
	assert.Zero(t, TotalDistance(wps[:1]))
}

func TestEstimatedFlightTime(t *testing.T) {
	wps := line(geo.ENUPoint{}, geo.ENUPoint{East: 100})
	wps[0].Type = pattern.WaypointPosition

	got, err := EstimatedFlightTime(wps, 10, 0)
	require.NoError(t, err)
	assert.InDelta(t, 10, got, 1e-12)

	got, err = EstimatedFlightTime(wps, 10, 2)
	require.NoError(t, err)
	assert.InDelta(t, 12, got, 1e-12, "hover only at the capture waypoint")

	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = EstimatedFlightTime(wps, speed, 0)
		assert.ErrorIs(t, err, ErrInvalidSpeed)
	}
	_, err = EstimatedFlightTime(wps, 5, -1)
	assert.Error(t, err)
}

func TestLegFlightTime(t *testing.T) {
	wps := line(geo.ENUPoint{}, geo.ENUPoint{East: 100}, geo.ENUPoint{East: 200})
	wps[1].Speed = 10
	wps[2].Speed = 0

	got, err := LegFlightTime(wps, 20, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.0/10+100.0/20+3, got, 1e-12)

	_, err = LegFlightTime(wps, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidSpeed)
}

func TestImagesRequired(t *testing.T) {
	n, err := ImagesRequired(10000, 15, 20)
	require.NoError(t, err)
	assert.Equal(t, 34, n)

	n, err = ImagesRequired(300, 15, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ImagesRequired(0, 15, 20)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ImagesRequired(100, 0, 20)
	assert.Error(t, err)
}

func TestCoverageArea(t *testing.T) {
	sq := geo.Polygon{{X: 0, Y: 0}, {X: 0, Y: 50}, {X: 80, Y: 50}, {X: 80, Y: 0}}
	assert.InDelta(t, 4000, CoverageArea(sq), 1e-9)
	assert.Zero(t, CoverageArea(sq[:2]))
}

func TestSummarize(t *testing.T) {
	wps := line(geo.ENUPoint{}, geo.ENUPoint{East: 50}, geo.ENUPoint{East: 100})
	s, err := Summarize(wps, Options{Speed: 5, HoverPerCapture: 1})
	require.NoError(t, err)
	assert.Equal(t, MissionStats{TotalDistance: 100, EstimatedTime: 23, CaptureCount: 3, ImagesRequired: 3}, s)

	s, err = Summarize(wps, Options{Speed: 5, Area: 10000, ImageSpacing: 15, TrackSpacing: 20})
	require.NoError(t, err)
	assert.Equal(t, 34, s.ImagesRequired)
	assert.Equal(t, 10000.0, s.CoverageArea)

	_, err = Summarize(wps, Options{})
	assert.ErrorIs(t, err, ErrInvalidSpeed)
}

func TestPatternArea(t *testing.T) {
	ref := geo.Reference{Origin: geo.Origin{Latitude: 10, Longitude: 10}, Generation: 1}

	a, err := PatternArea(pattern.OrbitParams{Radius: 10, Segments: 360}, ref)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi*100, a, 0.1)

	corners := [4]geo.ENUPoint{{}, {East: 20}, {East: 20, North: 10}, {North: 10}}
	a, err = PatternArea(pattern.FacadeParams{Corners: corners, Height: 15, SelectedFaces: []int{0, 1}}, ref)
	require.NoError(t, err)
	assert.InDelta(t, (20+10)*15, a, 1e-9)

	survey := pattern.SurveyParams{Polygon: []geo.ENUPoint{{}, {East: 40}, {East: 40, North: 25}, {North: 25}}}
	a, err = PatternArea(survey, ref)
	require.NoError(t, err)
	assert.InDelta(t, 1000, a, 1e-9)

	survey.Polygon = survey.Polygon[:2]
	_, err = PatternArea(survey, ref)
	assert.ErrorIs(t, err, pattern.ErrInvalidPattern)
}
