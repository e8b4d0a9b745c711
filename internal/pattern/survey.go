package pattern

import (
	"math"

	"github.com/golang/geo/r2"

	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
)

// SurveySegment is one clipped piece of a flight line, already oriented
// in the direction it is flown.
type SurveySegment struct {
	Start r2.Point
	End   r2.Point
}

func (s SurveySegment) Length() float64 { return s.End.Sub(s.Start).Norm() }

// SurveyLayout is the flight-line geometry of a survey before waypoints
// are placed.
type SurveyLayout struct {
	Polygon      geo.Polygon
	DirectionDeg float64
	// WindOverride is set when the crosswind rule replaced the requested
	// flight direction.
	WindOverride bool
	TrackSpacing float64
	ImageSpacing float64
	Segments     []SurveySegment
}

// SurveyDirection applies the crosswind rule: above the threshold the
// lines run at the wind direction plus the offset, otherwise at the
// requested flight direction.
func SurveyDirection(p SurveyParams) (deg float64, windOverride bool) {
	rule := p.windRule()
	if p.WindSpeed > rule.ThresholdMS {
		return geo.NormalizeHeading(p.WindDirectionDeg + rule.OffsetDeg), true
	}
	return geo.NormalizeHeading(p.FlightDirectionDeg), false
}

// SurveyPolygon resolves the survey area to a counter-clockwise ENU
// polygon. Polygons that cross themselves, repeat a vertex or enclose no
// area are rejected.
func SurveyPolygon(p SurveyParams, ref geo.Reference) (geo.Polygon, error) {
	var poly geo.Polygon
	switch {
	case len(p.Polygon) > 0:
		poly = geo.PolygonFromENU(p.Polygon)
	case len(p.PolygonGeodetic) > 0:
		pts := make([]geo.ENUPoint, 0, len(p.PolygonGeodetic))
		for _, g := range p.PolygonGeodetic {
			pt, err := ref.ToENU(g.Latitude, g.Longitude, g.Altitude)
			if err != nil {
				return nil, err
			}
			pts = append(pts, pt)
		}
		poly = geo.PolygonFromENU(pts)
	}
	if len(poly) < 3 {
		return nil, invalid(KindSurvey, "polygon needs at least 3 vertices, got %d", len(poly))
	}
	for _, v := range poly {
		if !finite(v.X) || !finite(v.Y) {
			return nil, invalid(KindSurvey, "polygon vertices must be finite")
		}
	}
	if poly.HasDegenerateEdge() {
		return nil, invalid(KindSurvey, "polygon has a zero-length edge")
	}
	if poly.SelfIntersects() {
		return nil, invalid(KindSurvey, "polygon is self-intersecting")
	}
	if math.Abs(poly.SignedArea()) < 1e-6 {
		return nil, invalid(KindSurvey, "polygon encloses no area")
	}
	return poly.CCW(), nil
}

// PlanSurvey lays out parallel flight lines over the polygon. Lines are
// trackSpacing apart, centred on the polygon's extent across the flight
// direction, clipped to the polygon and flown in alternating directions.
func PlanSurvey(opt optics.Result, p SurveyParams, ref geo.Reference) (SurveyLayout, error) {
	if err := p.Validate(); err != nil {
		return SurveyLayout{}, err
	}
	poly, err := SurveyPolygon(p, ref)
	if err != nil {
		return SurveyLayout{}, err
	}
	track, err := optics.TrackSpacing(opt.Footprint.Width, p.SideOverlapPct)
	if err != nil {
		return SurveyLayout{}, err
	}
	image, err := optics.ImageSpacing(opt.Footprint.Height, p.FrontOverlapPct)
	if err != nil {
		return SurveyLayout{}, err
	}

	deg, override := SurveyDirection(p)
	dir := geo.HeadingVector(deg)
	// Right-hand perpendicular of the flight direction.
	across := r2.Point{X: dir.Y, Y: -dir.X}
	lo, hi := poly.Extent(across)
	width := hi - lo
	lines := max(1, int(math.Ceil(width/track-1e-9)))
	first := lo + (width-float64(lines-1)*track)/2

	layout := SurveyLayout{
		Polygon:      poly,
		DirectionDeg: deg,
		WindOverride: override,
		TrackSpacing: track,
		ImageSpacing: image,
	}
	forward := true
	for i := 0; i < lines; i++ {
		origin := across.Mul(first + float64(i)*track)
		ivs := poly.ClipLine(origin, dir)
		if len(ivs) == 0 {
			continue
		}
		segs := make([]SurveySegment, len(ivs))
		for j, iv := range ivs {
			segs[j] = SurveySegment{Start: origin.Add(dir.Mul(iv.T0)), End: origin.Add(dir.Mul(iv.T1))}
		}
		if !forward {
			for l, r := 0, len(segs)-1; l < r; l, r = l+1, r-1 {
				segs[l], segs[r] = segs[r], segs[l]
			}
			for j := range segs {
				segs[j].Start, segs[j].End = segs[j].End, segs[j].Start
			}
		}
		layout.Segments = append(layout.Segments, segs...)
		forward = !forward
	}
	if len(layout.Segments) == 0 {
		return SurveyLayout{}, invalid(KindSurvey, "no flight line intersects the polygon")
	}
	return layout, nil
}

// Survey generates nadir capture waypoints along the survey layout,
// spaced at most imageSpacing apart with both ends of every segment
// captured. With terrain following, each altitude is the local ground
// height plus SafetyHeight.
func Survey(opt optics.Result, p SurveyParams, ref geo.Reference) ([]Waypoint, error) {
	layout, err := PlanSurvey(opt, p, ref)
	if err != nil {
		return nil, err
	}
	terrain := p.terrain()

	var out []Waypoint
	for _, seg := range layout.Segments {
		heading := geo.Heading(seg.End.Sub(seg.Start))
		n := max(1, int(math.Ceil(seg.Length()/layout.ImageSpacing-1e-9)))
		for k := 0; k <= n; k++ {
			pt := seg.Start.Add(seg.End.Sub(seg.Start).Mul(float64(k) / float64(n)))
			alt := p.Altitude
			if p.TerrainFollowing {
				ground, err := terrain.HeightAt(pt.X, pt.Y)
				if err != nil {
					return nil, invalid(KindSurvey, "terrain lookup at (%.1f, %.1f): %v", pt.X, pt.Y, err)
				}
				alt = ground + p.SafetyHeight
			}
			out = append(out, Waypoint{
				Position:    geo.FromPlanar(pt, alt),
				Type:        WaypointCapture,
				Heading:     ptr(heading),
				GimbalPitch: ptr(-90),
				Speed:       p.Speed,
			})
		}
	}
	return out, nil
}
