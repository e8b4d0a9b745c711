package pattern

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
)

var testRef = geo.Reference{
	Origin:     geo.Origin{Latitude: 47.3769, Longitude: 8.5417, AltitudeMSL: 408},
	Generation: 1,
}

func nadirOptics(width, height float64) optics.Result {
	return optics.Result{Altitude: 100, Footprint: optics.Footprint{Width: width, Height: height}}
}

func TestOrbitSixteenSegments(t *testing.T) {
	p := OrbitParams{Radius: 30, Altitude: 60, Segments: 16, OrbitCount: 1, Speed: 5}
	wps, err := Generate(optics.Result{}, p, testRef)
	require.NoError(t, err)
	require.Len(t, wps, 17)

	assert.Equal(t, wps[0].Position, wps[16].Position)
	assert.Equal(t, WaypointPosition, wps[16].Type)
	assert.False(t, wps[16].IsCapture())
	assert.Equal(t, wps[0].Heading, wps[16].Heading)
	assert.Equal(t, wps[0].GimbalPitch, wps[16].GimbalPitch)
	for i, wp := range wps {
		assert.InDelta(t, 60, wp.Position.Up, 1e-12, "waypoint %d", i)
		assert.InDelta(t, 30, wp.Position.HorizontalDistance(p.Center), 1e-6, "waypoint %d", i)
	}
	for _, wp := range wps[:16] {
		assert.Equal(t, WaypointCapture, wp.Type)
	}
}

func TestOrbitRings(t *testing.T) {
	p := OrbitParams{
		Center:                geo.ENUPoint{East: 100, North: -50},
		Radius:                20,
		Altitude:              40,
		Segments:              8,
		OrbitCount:            3,
		VerticalShiftPerOrbit: 10,
		Speed:                 4,
	}
	wps, err := Orbit(optics.Result{}, p, testRef)
	require.NoError(t, err)
	require.Len(t, wps, 27)
	for ring := 0; ring < 3; ring++ {
		first, last := wps[ring*9], wps[ring*9+8]
		assert.Equal(t, first.Position, last.Position, "ring %d is closed", ring)
		assert.InDelta(t, 40+10*float64(ring), first.Position.Up, 1e-12)
	}
}

func TestOrbitCameraModes(t *testing.T) {
	base := OrbitParams{Radius: 60, Altitude: 60, Segments: 4, Speed: 5}

	wps, err := Orbit(optics.Result{}, base, testRef)
	require.NoError(t, err)
	// The first point is due east of the centre.
	assert.InDelta(t, 270, *wps[0].Heading, 1e-9)
	assert.InDelta(t, -45, *wps[0].GimbalPitch, 1e-9)

	fwd := base
	fwd.CameraMode = CameraForward
	wps, err = Orbit(optics.Result{}, fwd, testRef)
	require.NoError(t, err)
	assert.InDelta(t, 0, *wps[0].Heading, 1e-9)
	assert.InDelta(t, 270, *wps[1].Heading, 1e-9)
	assert.Nil(t, wps[0].GimbalPitch)

	custom := base
	custom.CameraMode = CameraCustom
	custom.CameraAngle = -45
	custom.GimbalPitch = ptr(-20)
	wps, err = Orbit(optics.Result{}, custom, testRef)
	require.NoError(t, err)
	for _, wp := range wps {
		assert.InDelta(t, 315, *wp.Heading, 1e-9)
		assert.InDelta(t, -20, *wp.GimbalPitch, 1e-9)
	}
}

func TestOrbitRejectsBadParams(t *testing.T) {
	cases := map[string]OrbitParams{
		"two segments":  {Radius: 30, Altitude: 60, Segments: 2, Speed: 5},
		"zero radius":   {Altitude: 60, Segments: 8, Speed: 5},
		"no altitude":   {Radius: 30, Segments: 8, Speed: 5},
		"bad mode":      {Radius: 30, Altitude: 60, Segments: 8, Speed: 5, CameraMode: "sideways"},
		"sinking rings": {Radius: 30, Altitude: 20, Segments: 8, Speed: 5, OrbitCount: 3, VerticalShiftPerOrbit: -15},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Orbit(optics.Result{}, p, testRef)
			require.ErrorIs(t, err, ErrInvalidPattern)
			var pe *PatternError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, KindOrbit, pe.Kind)
		})
	}
}

func TestGenerateNeedsOrigin(t *testing.T) {
	p := OrbitParams{Radius: 30, Altitude: 60, Segments: 16, Speed: 5}
	_, err := Generate(optics.Result{}, p, geo.Reference{})
	assert.ErrorIs(t, err, geo.ErrOriginNotSet)

	_, err = Generate(optics.Result{}, nil, testRef)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestSpiralIsMonotonic(t *testing.T) {
	p := SpiralParams{
		StartRadius: 10, EndRadius: 50,
		StartAltitude: 20, EndAltitude: 80,
		Revolutions: 3, Segments: 48, Speed: 3,
	}
	wps, err := Spiral(optics.Result{}, p, testRef)
	require.NoError(t, err)
	require.Len(t, wps, 49)

	assert.InDelta(t, 10, wps[0].Position.HorizontalDistance(p.Center), 1e-9)
	assert.InDelta(t, 50, wps[48].Position.HorizontalDistance(p.Center), 1e-9)
	assert.InDelta(t, 20, wps[0].Position.Up, 1e-9)
	assert.InDelta(t, 80, wps[48].Position.Up, 1e-9)

	// No step is longer than the outermost chord plus the radial and
	// vertical increments.
	maxStep := 2*50*math.Sin(math.Pi*3/48) + 40.0/48 + 60.0/48 + 1e-9
	for i := 1; i < len(wps); i++ {
		prev, cur := wps[i-1], wps[i]
		assert.Greater(t, cur.Position.HorizontalDistance(p.Center), prev.Position.HorizontalDistance(p.Center))
		assert.Greater(t, cur.Position.Up, prev.Position.Up)
		assert.LessOrEqual(t, cur.Position.Distance(prev.Position), maxStep)
	}
	assert.False(t, SpiralFaceted(p))
	assert.True(t, SpiralFaceted(SpiralParams{Revolutions: 2, Segments: 10}))
}

func TestSpiralRejectsBadParams(t *testing.T) {
	_, err := Spiral(optics.Result{}, SpiralParams{StartRadius: 10, EndRadius: 20, StartAltitude: 10, EndAltitude: 10, Segments: 8, Speed: 1}, testRef)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func square(size float64) [4]geo.ENUPoint {
	return [4]geo.ENUPoint{
		{East: 0, North: 0},
		{East: size, North: 0},
		{East: size, North: size},
		{East: 0, North: size},
	}
}

func TestFacadeZigZag(t *testing.T) {
	p := FacadeParams{
		Corners:          square(20),
		Height:           20,
		StandoffDistance: 5,
		VerticalSpacing:  5,
		SelectedFaces:    []int{0},
		Speed:            2,
	}
	wps, err := Facade(optics.Result{}, p, testRef)
	require.NoError(t, err)
	require.Len(t, wps, 8)

	for pass := 0; pass < 4; pass++ {
		a, b := wps[2*pass], wps[2*pass+1]
		assert.InDelta(t, float64(pass+1)*5, a.Position.Up, 1e-9)
		assert.InDelta(t, a.Position.Up, b.Position.Up, 1e-12)
		assert.InDelta(t, -5, a.Position.North, 1e-9, "offset away from the building")
		assert.InDelta(t, 0, *a.Heading, 1e-9, "camera faces the wall")
		assert.InDelta(t, 0, *a.GimbalPitch, 1e-12)
		if pass > 0 {
			prevEnd := wps[2*pass-1].Position.Planar()
			assert.InDelta(t, 0, prevEnd.Sub(a.Position.Planar()).Norm(), 1e-9, "pass %d starts where the last ended", pass)
		}
	}
}

func TestFacadeWindingIndependent(t *testing.T) {
	ccw := FacadeParams{Corners: square(20), Height: 10, StandoffDistance: 8, VerticalSpacing: 4, SelectedFaces: []int{0}, Speed: 2}
	sq := square(20)
	cw := ccw
	cw.Corners = [4]geo.ENUPoint{sq[0], sq[3], sq[2], sq[1]}
	cw.SelectedFaces = []int{3}

	a := FacadeFaces(ccw)[0]
	b := FacadeFaces(cw)[0]
	assert.InDelta(t, a.Normal.X, b.Normal.X, 1e-12)
	assert.InDelta(t, a.Normal.Y, b.Normal.Y, 1e-12)
	assert.InDelta(t, -8, b.Start.Y, 1e-9)

	wps, err := Facade(optics.Result{}, cw, testRef)
	require.NoError(t, err)
	assert.Len(t, wps, 2*FacadePasses(10, 4))
}

func TestFacadeSpacingFromOverlap(t *testing.T) {
	p := FacadeParams{Corners: square(30), Height: 20, StandoffDistance: 10, OverlapPct: 50, SelectedFaces: []int{1, 2}, Speed: 2}
	opt := optics.Result{Altitude: 20, Footprint: optics.Footprint{Width: 24, Height: 16}}

	spacing, err := FacadeSpacing(opt, p)
	require.NoError(t, err)
	assert.InDelta(t, 4, spacing, 1e-9)

	wps, err := Facade(opt, p, testRef)
	require.NoError(t, err)
	assert.Len(t, wps, 2*2*5)

	_, err = Facade(optics.Result{}, p, testRef)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestFacadeRejectsBadFaces(t *testing.T) {
	p := FacadeParams{Corners: square(20), Height: 10, StandoffDistance: 5, VerticalSpacing: 2, SelectedFaces: []int{4}, Speed: 2}
	_, err := Facade(optics.Result{}, p, testRef)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	p.SelectedFaces = []int{1, 1}
	_, err = Facade(optics.Result{}, p, testRef)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func rect(w, h float64) []geo.ENUPoint {
	return []geo.ENUPoint{{East: 0, North: 0}, {East: w, North: 0}, {East: w, North: h}, {East: 0, North: h}}
}

func baseSurvey() SurveyParams {
	return SurveyParams{
		Polygon:         rect(100, 100),
		Altitude:        100,
		FrontOverlapPct: 50,
		SideOverlapPct:  50,
		Speed:           8,
	}
}

func TestSurveyGrid(t *testing.T) {
	wps, err := Survey(nadirOptics(40, 30), baseSurvey(), testRef)
	require.NoError(t, err)
	// Five lines at x = 10, 30, ..., 90, each with ceil(100/15)+1 captures.
	require.Len(t, wps, 5*8)

	assert.InDelta(t, 10, wps[0].Position.East, 1e-9)
	assert.InDelta(t, 0, wps[0].Position.North, 1e-9)
	assert.InDelta(t, 0, *wps[0].Heading, 1e-9)
	assert.InDelta(t, 30, wps[8].Position.East, 1e-9)
	assert.InDelta(t, 100, wps[8].Position.North, 1e-9)
	assert.InDelta(t, 180, *wps[8].Heading, 1e-9)
	for _, wp := range wps {
		assert.Equal(t, WaypointCapture, wp.Type)
		assert.InDelta(t, -90, *wp.GimbalPitch, 1e-12)
		assert.InDelta(t, 100, wp.Position.Up, 1e-12)
	}
}

func TestSurveyWindRule(t *testing.T) {
	p := baseSurvey()
	p.FlightDirectionDeg = 30
	p.WindDirectionDeg = 0

	p.WindSpeed = 2
	deg, override := SurveyDirection(p)
	assert.False(t, override)
	assert.InDelta(t, 30, deg, 1e-12)

	p.WindSpeed = 5
	deg, override = SurveyDirection(p)
	assert.True(t, override)
	assert.InDelta(t, 90, deg, 1e-12)

	p.Wind = WindRule{ThresholdMS: 10, OffsetDeg: 90}
	_, override = SurveyDirection(p)
	assert.False(t, override)

	p.Wind = WindRule{}
	layout, err := PlanSurvey(nadirOptics(40, 30), p, testRef)
	require.NoError(t, err)
	assert.True(t, layout.WindOverride)
	for _, seg := range layout.Segments {
		assert.InDelta(t, seg.Start.Y, seg.End.Y, 1e-9, "lines run east-west")
	}
}

func TestSurveyNarrowPolygonSingleLine(t *testing.T) {
	p := baseSurvey()
	p.Polygon = rect(5, 100)
	layout, err := PlanSurvey(nadirOptics(40, 30), p, testRef)
	require.NoError(t, err)
	require.Len(t, layout.Segments, 1)
	assert.InDelta(t, 2.5, layout.Segments[0].Start.X, 1e-9)
}

func TestSurveyConcaveClipping(t *testing.T) {
	p := baseSurvey()
	// U shape open to the north; the line through the gap is split.
	p.Polygon = []geo.ENUPoint{
		{East: 0, North: 0}, {East: 100, North: 0}, {East: 100, North: 100},
		{East: 60, North: 100}, {East: 60, North: 40}, {East: 40, North: 40},
		{East: 40, North: 100}, {East: 0, North: 100},
	}
	p.FlightDirectionDeg = 90
	layout, err := PlanSurvey(nadirOptics(40, 30), p, testRef)
	require.NoError(t, err)
	poly := geo.PolygonFromENU(p.Polygon)
	for _, seg := range layout.Segments {
		mid := seg.Start.Add(seg.End).Mul(0.5)
		assert.True(t, poly.Contains(mid), "segment midpoint %v lies inside", mid)
	}
	assert.Greater(t, len(layout.Segments), 5)
}

func TestSurveyWindingIndependent(t *testing.T) {
	ccw := baseSurvey()
	cw := baseSurvey()
	cw.Polygon = []geo.ENUPoint{ccw.Polygon[0], ccw.Polygon[3], ccw.Polygon[2], ccw.Polygon[1]}

	a, err := Survey(nadirOptics(40, 30), ccw, testRef)
	require.NoError(t, err)
	b, err := Survey(nadirOptics(40, 30), cw, testRef)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("winding changed the survey (-ccw +cw):\n%s", diff)
	}
}

func TestSurveyRejectsMalformedPolygons(t *testing.T) {
	cases := map[string][]geo.ENUPoint{
		"two vertices": {{East: 0}, {East: 10}},
		"bow tie":      {{East: 0, North: 0}, {East: 10, North: 10}, {East: 10, North: 0}, {East: 0, North: 10}},
		"collinear":    {{East: 0}, {East: 10}, {East: 20}},
		"repeated":     {{East: 0}, {East: 10}, {East: 10}, {East: 0, North: 10}},
	}
	for name, poly := range cases {
		t.Run(name, func(t *testing.T) {
			p := baseSurvey()
			p.Polygon = poly
			_, err := Survey(nadirOptics(40, 30), p, testRef)
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}

func TestSurveyTerrainFollowing(t *testing.T) {
	p := baseSurvey()
	p.TerrainFollowing = true
	p.SafetyHeight = 30

	_, err := Survey(nadirOptics(40, 30), p, testRef)
	assert.ErrorIs(t, err, ErrInvalidPattern, "terrain model is required")

	p.Terrain = FlatTerrain(12)
	wps, err := Survey(nadirOptics(40, 30), p, testRef)
	require.NoError(t, err)
	for _, wp := range wps {
		assert.InDelta(t, 42, wp.Position.Up, 1e-12)
	}

	p.Terrain = nil
	p.TerrainGrid = &GridTerrain{CellSize: 100, Cols: 2, Rows: 2, Heights: []float64{0, 10, 0, 10}}
	wps, err = Survey(nadirOptics(40, 30), p, testRef)
	require.NoError(t, err)
	for _, wp := range wps {
		assert.InDelta(t, 30+wp.Position.East/10, wp.Position.Up, 1e-9)
	}
}

func TestGridTerrainBilinear(t *testing.T) {
	g := &GridTerrain{CellSize: 100, Cols: 2, Rows: 2, Heights: []float64{0, 10, 20, 30}}
	h, err := g.HeightAt(50, 50)
	require.NoError(t, err)
	assert.InDelta(t, 15, h, 1e-12)

	h, _ = g.HeightAt(-10, -10)
	assert.InDelta(t, 0, h, 1e-12)
	h, _ = g.HeightAt(500, 500)
	assert.InDelta(t, 30, h, 1e-12)

	_, err = (&GridTerrain{CellSize: 1, Cols: 2, Rows: 2, Heights: []float64{1}}).HeightAt(0, 0)
	assert.Error(t, err)
}

func TestSurveyGeodeticPolygon(t *testing.T) {
	p := baseSurvey()
	want, err := Survey(nadirOptics(40, 30), p, testRef)
	require.NoError(t, err)

	for _, pt := range p.Polygon {
		g, err := testRef.ToGeodetic(pt)
		require.NoError(t, err)
		p.PolygonGeodetic = append(p.PolygonGeodetic, g)
	}
	p.Polygon = nil
	got, err := Survey(nadirOptics(40, 30), p, testRef)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range got {
		assert.InDelta(t, 0, got[i].Position.HorizontalDistance(want[i].Position), 1e-3)
	}
}

func TestEnvelopeJSON(t *testing.T) {
	in := []byte(`{"type":"orbit","params":{"center":{"east":1,"north":2,"up":0},"radius":30,"altitude":60,"segments":16,"speed":5}}`)
	var env Envelope
	require.NoError(t, json.Unmarshal(in, &env))
	orbit, ok := env.Params.(OrbitParams)
	require.True(t, ok)
	assert.Equal(t, 16, orbit.Segments)
	assert.Equal(t, geo.ENUPoint{East: 1, North: 2}, orbit.Center)

	out, err := json.Marshal(env)
	require.NoError(t, err)
	var back Envelope
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, env, back)

	err = json.Unmarshal([]byte(`{"type":"lawnmower","params":{}}`), &env)
	assert.Error(t, err)
}

func TestWaypointTypeText(t *testing.T) {
	b, err := json.Marshal(Waypoint{Type: WaypointReturn})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"return"`)

	var wp Waypoint
	require.NoError(t, json.Unmarshal([]byte(`{"type":"capture"}`), &wp))
	assert.True(t, wp.IsCapture())
	assert.Error(t, json.Unmarshal([]byte(`{"type":"hover"}`), &wp))
}

func TestWithAltitude(t *testing.T) {
	s := WithAltitude(SpiralParams{StartAltitude: 20, EndAltitude: 40}, 50).(SpiralParams)
	assert.InDelta(t, 40, s.StartAltitude, 1e-12)
	assert.InDelta(t, 60, s.EndAltitude, 1e-12)

	f := FacadeParams{StandoffDistance: 7}
	assert.Equal(t, 7.0, Altitude(f))
	assert.Equal(t, 7.0, Altitude(WithAltitude(f, 100)))

	sv := WithDefaults(SurveyParams{}, 6, WindRule{ThresholdMS: 4, OffsetDeg: 90}).(SurveyParams)
	assert.Equal(t, 6.0, sv.Speed)
	assert.Equal(t, 4.0, sv.Wind.ThresholdMS)
}
