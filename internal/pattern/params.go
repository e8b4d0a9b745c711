package pattern

import (
	"encoding/json"
	"fmt"
	"math"

	"aerialplan/internal/geo"
)

// Kind names a pattern family.
type Kind string

const (
	KindOrbit  Kind = "orbit"
	KindSpiral Kind = "spiral"
	KindFacade Kind = "facade"
	KindSurvey Kind = "survey"
)

// ParseKind validates a pattern name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOrbit, KindSpiral, KindFacade, KindSurvey:
		return k, nil
	}
	return "", fmt.Errorf("unknown pattern type %q", s)
}

// Params is the tagged union of pattern parameters. Implementations are
// OrbitParams, SpiralParams, FacadeParams and SurveyParams.
type Params interface {
	Kind() Kind
	Validate() error
}

// CameraMode selects how orbit waypoints are oriented.
type CameraMode string

const (
	// CameraCenter yaws towards the orbit centre.
	CameraCenter CameraMode = "center"
	// CameraForward yaws along the direction of travel.
	CameraForward CameraMode = "forward"
	// CameraCustom holds a fixed heading.
	CameraCustom CameraMode = "custom"
)

// OrbitParams describes one or more horizontal circles around Center.
// Center.Up is the height the camera looks at, not the flight altitude.
type OrbitParams struct {
	Center                geo.ENUPoint `json:"center"`
	Radius                float64      `json:"radius"`
	Altitude              float64      `json:"altitude"`
	Segments              int          `json:"segments"`
	OrbitCount            int          `json:"orbitCount,omitempty"`
	VerticalShiftPerOrbit float64      `json:"verticalShiftPerOrbit,omitempty"`
	CameraMode            CameraMode   `json:"cameraMode,omitempty"`
	CameraAngle           float64      `json:"cameraAngle,omitempty"`
	GimbalPitch           *float64     `json:"gimbalPitch,omitempty"`
	Speed                 float64      `json:"speed"`
}

func (OrbitParams) Kind() Kind { return KindOrbit }

func (p OrbitParams) Validate() error {
	switch {
	case !positive(p.Radius):
		return invalid(KindOrbit, "radius must be positive, got %g", p.Radius)
	case !positive(p.Altitude):
		return invalid(KindOrbit, "altitude must be positive, got %g", p.Altitude)
	case p.Segments < 3:
		return invalid(KindOrbit, "segments must be at least 3, got %d", p.Segments)
	case p.OrbitCount < 0:
		return invalid(KindOrbit, "orbitCount must not be negative, got %d", p.OrbitCount)
	case !finite(p.VerticalShiftPerOrbit):
		return invalid(KindOrbit, "verticalShiftPerOrbit must be finite")
	case !positive(p.Speed):
		return invalid(KindOrbit, "speed must be positive, got %g", p.Speed)
	case !p.Center.IsFinite():
		return invalid(KindOrbit, "center must be finite")
	}
	switch p.CameraMode {
	case "", CameraCenter, CameraForward, CameraCustom:
	default:
		return invalid(KindOrbit, "unknown camera mode %q", p.CameraMode)
	}
	if top := p.Altitude + float64(p.orbits()-1)*p.VerticalShiftPerOrbit; top <= 0 {
		return invalid(KindOrbit, "last orbit altitude %g is not above the origin", top)
	}
	return nil
}

func (p OrbitParams) orbits() int {
	if p.OrbitCount == 0 {
		return 1
	}
	return p.OrbitCount
}

// SpiralParams describes a helix whose radius and altitude change
// linearly from start to end.
type SpiralParams struct {
	Center        geo.ENUPoint `json:"center"`
	StartRadius   float64      `json:"startRadius"`
	EndRadius     float64      `json:"endRadius"`
	StartAltitude float64      `json:"startAltitude"`
	EndAltitude   float64      `json:"endAltitude"`
	Revolutions   float64      `json:"revolutions"`
	Segments      int          `json:"segments"`
	GimbalPitch   *float64     `json:"gimbalPitch,omitempty"`
	Speed         float64      `json:"speed"`
}

func (SpiralParams) Kind() Kind { return KindSpiral }

func (p SpiralParams) Validate() error {
	switch {
	case !positive(p.StartRadius) || !positive(p.EndRadius):
		return invalid(KindSpiral, "radii must be positive, got %g and %g", p.StartRadius, p.EndRadius)
	case !positive(p.StartAltitude) || !positive(p.EndAltitude):
		return invalid(KindSpiral, "altitudes must be positive, got %g and %g", p.StartAltitude, p.EndAltitude)
	case !positive(p.Revolutions):
		return invalid(KindSpiral, "revolutions must be positive, got %g", p.Revolutions)
	case p.Segments < 1:
		return invalid(KindSpiral, "segments must be at least 1, got %d", p.Segments)
	case !positive(p.Speed):
		return invalid(KindSpiral, "speed must be positive, got %g", p.Speed)
	case !p.Center.IsFinite():
		return invalid(KindSpiral, "center must be finite")
	}
	return nil
}

// FacadeParams describes a building footprint and which of its four
// faces to scan. Face i runs from Corners[i] to Corners[(i+1)%4].
type FacadeParams struct {
	Corners          [4]geo.ENUPoint `json:"corners"`
	Height           float64         `json:"height"`
	StandoffDistance float64         `json:"standoffDistance"`
	// VerticalSpacing may be left zero when OverlapPct is given; it is then
	// derived from the image footprint at the stand-off distance.
	VerticalSpacing float64 `json:"verticalSpacing,omitempty"`
	OverlapPct      float64 `json:"overlapPct,omitempty"`
	SelectedFaces   []int   `json:"selectedFaces"`
	Speed           float64 `json:"speed"`
}

func (FacadeParams) Kind() Kind { return KindFacade }

func (p FacadeParams) Validate() error {
	switch {
	case !positive(p.Height):
		return invalid(KindFacade, "height must be positive, got %g", p.Height)
	case !positive(p.StandoffDistance):
		return invalid(KindFacade, "standoffDistance must be positive, got %g", p.StandoffDistance)
	case p.VerticalSpacing < 0 || !finite(p.VerticalSpacing):
		return invalid(KindFacade, "verticalSpacing must be positive, got %g", p.VerticalSpacing)
	case p.VerticalSpacing == 0 && p.OverlapPct <= 0:
		return invalid(KindFacade, "verticalSpacing or overlapPct is required")
	case p.OverlapPct < 0 || p.OverlapPct >= 100:
		return invalid(KindFacade, "overlapPct must be in [0, 100), got %g", p.OverlapPct)
	case len(p.SelectedFaces) == 0:
		return invalid(KindFacade, "no faces selected")
	case !positive(p.Speed):
		return invalid(KindFacade, "speed must be positive, got %g", p.Speed)
	}
	seen := make(map[int]bool, len(p.SelectedFaces))
	for _, f := range p.SelectedFaces {
		if f < 0 || f > 3 {
			return invalid(KindFacade, "face %d out of range [0, 3]", f)
		}
		if seen[f] {
			return invalid(KindFacade, "face %d selected twice", f)
		}
		seen[f] = true
	}
	for i, c := range p.Corners {
		if !c.IsFinite() {
			return invalid(KindFacade, "corner %d must be finite", i)
		}
	}
	for _, f := range p.SelectedFaces {
		a, b := p.Corners[f], p.Corners[(f+1)%4]
		if a.HorizontalDistance(b) < 1e-6 {
			return invalid(KindFacade, "face %d has zero length", f)
		}
	}
	return nil
}

// WindRule is the survey crosswind rule: above ThresholdMS the flight
// lines run at the wind direction plus OffsetDeg. The zero value means
// DefaultWindRule.
type WindRule struct {
	ThresholdMS float64 `json:"thresholdMs"`
	OffsetDeg   float64 `json:"offsetDeg"`
}

// DefaultWindRule flies perpendicular to wind stronger than 3 m/s.
var DefaultWindRule = WindRule{ThresholdMS: 3, OffsetDeg: 90}

// SurveyParams describes a top-down grid survey over a polygon. The
// polygon may be given in ENU or, when Polygon is empty, in geodetic
// coordinates that are projected through the mission origin.
type SurveyParams struct {
	Polygon            []geo.ENUPoint `json:"polygon,omitempty"`
	PolygonGeodetic    []geo.Geodetic `json:"polygonGeodetic,omitempty"`
	Altitude           float64        `json:"altitude"`
	FrontOverlapPct    float64        `json:"frontOverlapPct"`
	SideOverlapPct     float64        `json:"sideOverlapPct"`
	FlightDirectionDeg float64        `json:"flightDirectionDeg"`
	WindDirectionDeg   float64        `json:"windDirectionDeg,omitempty"`
	WindSpeed          float64        `json:"windSpeed,omitempty"`
	Wind               WindRule       `json:"windRule,omitempty"`
	TerrainFollowing   bool           `json:"terrainFollowing,omitempty"`
	SafetyHeight       float64        `json:"safetyHeight,omitempty"`
	TerrainGrid        *GridTerrain   `json:"terrainGrid,omitempty"`
	// Terrain overrides TerrainGrid; it supplies ground heights when
	// TerrainFollowing is set.
	Terrain TerrainModel `json:"-"`
	Speed   float64      `json:"speed"`
}

func (SurveyParams) Kind() Kind { return KindSurvey }

func (p SurveyParams) Validate() error {
	switch {
	case len(p.Polygon) < 3 && len(p.PolygonGeodetic) < 3:
		return invalid(KindSurvey, "polygon needs at least 3 vertices")
	case !positive(p.Altitude):
		return invalid(KindSurvey, "altitude must be positive, got %g", p.Altitude)
	case p.FrontOverlapPct < 0 || p.FrontOverlapPct >= 100:
		return invalid(KindSurvey, "frontOverlapPct must be in [0, 100), got %g", p.FrontOverlapPct)
	case p.SideOverlapPct < 0 || p.SideOverlapPct >= 100:
		return invalid(KindSurvey, "sideOverlapPct must be in [0, 100), got %g", p.SideOverlapPct)
	case !finite(p.FlightDirectionDeg) || !finite(p.WindDirectionDeg):
		return invalid(KindSurvey, "directions must be finite")
	case p.WindSpeed < 0 || !finite(p.WindSpeed):
		return invalid(KindSurvey, "windSpeed must not be negative, got %g", p.WindSpeed)
	case !positive(p.Speed):
		return invalid(KindSurvey, "speed must be positive, got %g", p.Speed)
	}
	if p.TerrainFollowing {
		if !positive(p.SafetyHeight) {
			return invalid(KindSurvey, "terrain following needs a positive safetyHeight, got %g", p.SafetyHeight)
		}
		if p.terrain() == nil {
			return invalid(KindSurvey, "terrain following needs a terrain model")
		}
	}
	if p.TerrainGrid != nil {
		if err := p.TerrainGrid.Validate(); err != nil {
			return invalid(KindSurvey, "terrain grid: %v", err)
		}
	}
	return nil
}

func (p SurveyParams) windRule() WindRule {
	if p.Wind == (WindRule{}) {
		return DefaultWindRule
	}
	return p.Wind
}

func (p SurveyParams) terrain() TerrainModel {
	if p.Terrain != nil {
		return p.Terrain
	}
	if p.TerrainGrid != nil {
		return p.TerrainGrid
	}
	return nil
}

// Envelope carries Params through JSON as {"type": ..., "params": {...}}.
type Envelope struct {
	Params Params
}

type envelopeJSON struct {
	Type   Kind            `json:"type"`
	Params json.RawMessage `json:"params"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Params == nil {
		return nil, fmt.Errorf("pattern envelope has no params")
	}
	raw, err := json.Marshal(e.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeJSON{Type: e.Params.Kind(), Params: raw})
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var in envelopeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p, err := DecodeParams(in.Type, in.Params)
	if err != nil {
		return err
	}
	e.Params = p
	return nil
}

// DecodeParams decodes raw JSON into the parameter type for kind.
func DecodeParams(kind Kind, raw []byte) (Params, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, invalid(kind, "missing params")
	}
	var (
		p   Params
		err error
	)
	switch kind {
	case KindOrbit:
		var v OrbitParams
		err = json.Unmarshal(raw, &v)
		p = v
	case KindSpiral:
		var v SpiralParams
		err = json.Unmarshal(raw, &v)
		p = v
	case KindFacade:
		var v FacadeParams
		err = json.Unmarshal(raw, &v)
		p = v
	case KindSurvey:
		var v SurveyParams
		err = json.Unmarshal(raw, &v)
		p = v
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", kind, err)
	}
	return p, nil
}

func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
