package pattern

import (
	"math"

	"github.com/golang/geo/r2"

	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
)

// FacadeFace is the flight geometry for one building face: the stand-off
// line parallel to the wall and the outward normal.
type FacadeFace struct {
	Index  int
	Start  r2.Point
	End    r2.Point
	Normal r2.Point
}

// FacadeFaces returns the stand-off geometry for each selected face. The
// offset direction is the face vector rotated 90° counter-clockwise,
// reversed when that would point into the footprint so corners may be
// listed in either winding.
func FacadeFaces(p FacadeParams) []FacadeFace {
	var centroid r2.Point
	for _, c := range p.Corners {
		centroid = centroid.Add(c.Planar())
	}
	centroid = centroid.Mul(0.25)

	out := make([]FacadeFace, 0, len(p.SelectedFaces))
	for _, f := range p.SelectedFaces {
		a, b := p.Corners[f].Planar(), p.Corners[(f+1)%4].Planar()
		normal := b.Sub(a).Ortho().Normalize()
		mid := a.Add(b).Mul(0.5)
		if normal.Dot(centroid.Sub(mid)) > 0 {
			normal = normal.Mul(-1)
		}
		off := normal.Mul(p.StandoffDistance)
		out = append(out, FacadeFace{Index: f, Start: a.Add(off), End: b.Add(off), Normal: normal})
	}
	return out
}

// FacadeSpacing is the vertical distance between passes, either as given
// or derived from the image height at the stand-off distance and the
// requested overlap.
func FacadeSpacing(opt optics.Result, p FacadeParams) (float64, error) {
	if p.VerticalSpacing > 0 {
		return p.VerticalSpacing, nil
	}
	if opt.Altitude <= 0 || opt.Footprint.Height <= 0 {
		return 0, invalid(KindFacade, "optics result needed to derive vertical spacing")
	}
	along := opt.Footprint.Height * p.StandoffDistance / opt.Altitude
	return optics.TrackSpacing(along, p.OverlapPct)
}

// FacadePasses is the number of horizontal passes per face.
func FacadePasses(height, spacing float64) int {
	return int(math.Ceil(height/spacing - 1e-9))
}

// Facade generates 2·passes capture waypoints per selected face. Passes
// climb from the lowest corner and alternate direction so each pass
// starts where the previous one ended. The camera looks level at the
// wall.
func Facade(opt optics.Result, p FacadeParams, _ geo.Reference) ([]Waypoint, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	spacing, err := FacadeSpacing(opt, p)
	if err != nil {
		return nil, err
	}
	passes := FacadePasses(p.Height, spacing)
	base := math.Inf(1)
	for _, c := range p.Corners {
		base = math.Min(base, c.Up)
	}

	faces := FacadeFaces(p)
	out := make([]Waypoint, 0, len(faces)*2*passes)
	for _, face := range faces {
		heading := geo.Heading(face.Normal.Mul(-1))
		for k := 0; k < passes; k++ {
			alt := base + math.Min(float64(k+1)*spacing, p.Height)
			from, to := face.Start, face.End
			if k%2 == 1 {
				from, to = to, from
			}
			for _, pt := range [2]r2.Point{from, to} {
				out = append(out, Waypoint{
					Position:    geo.FromPlanar(pt, alt),
					Type:        WaypointCapture,
					Heading:     ptr(heading),
					GimbalPitch: ptr(0),
					Speed:       p.Speed,
				})
			}
		}
	}
	return out, nil
}
