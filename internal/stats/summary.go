package stats

import (
	"math"

	"github.com/golang/geo/r2"

	"aerialplan/internal/geo"
	"aerialplan/internal/pattern"
)

// Options carry what Summarize needs beyond the waypoints. Area and the
// two spacings are only set for area surveys; without them the image
// count is the number of capture waypoints.
type Options struct {
	Speed           float64
	HoverPerCapture float64
	// PerWaypointSpeed uses each waypoint's own speed when estimating time.
	PerWaypointSpeed bool
	Area             float64
	ImageSpacing     float64
	TrackSpacing     float64
}

// Summarize computes MissionStats for wps.
func Summarize(wps []pattern.Waypoint, opt Options) (MissionStats, error) {
	var (
		t   float64
		err error
	)
	if opt.PerWaypointSpeed {
		t, err = LegFlightTime(wps, opt.Speed, opt.HoverPerCapture)
	} else {
		t, err = EstimatedFlightTime(wps, opt.Speed, opt.HoverPerCapture)
	}
	if err != nil {
		return MissionStats{}, err
	}
	s := MissionStats{
		TotalDistance: TotalDistance(wps),
		EstimatedTime: t,
		CoverageArea:  opt.Area,
		CaptureCount:  CaptureCount(wps),
	}
	if opt.Area > 0 && opt.ImageSpacing > 0 && opt.TrackSpacing > 0 {
		s.ImagesRequired, err = ImagesRequired(opt.Area, opt.ImageSpacing, opt.TrackSpacing)
		if err != nil {
			return MissionStats{}, err
		}
	} else {
		s.ImagesRequired = s.CaptureCount
	}
	return s, nil
}

// PatternArea is the ground or wall area a pattern images: the enclosed
// area of an orbit ring or the outer spiral turn, the wall area of the
// selected facade faces, or the survey polygon.
func PatternArea(p pattern.Params, ref geo.Reference) (float64, error) {
	switch v := p.(type) {
	case pattern.OrbitParams:
		return regularPolygonArea(v.Radius, v.Segments), nil
	case pattern.SpiralParams:
		n := max(3, int(math.Ceil(float64(v.Segments)/v.Revolutions)))
		return regularPolygonArea(math.Max(v.StartRadius, v.EndRadius), n), nil
	case pattern.FacadeParams:
		var a float64
		for _, f := range v.SelectedFaces {
			a += v.Corners[f].HorizontalDistance(v.Corners[(f+1)%4]) * v.Height
		}
		return a, nil
	case pattern.SurveyParams:
		poly, err := pattern.SurveyPolygon(v, ref)
		if err != nil {
			return 0, err
		}
		return CoverageArea(poly), nil
	}
	return 0, nil
}

func regularPolygonArea(radius float64, n int) float64 {
	if n < 3 {
		return 0
	}
	poly := make(geo.Polygon, n)
	for i := range poly {
		theta := 2 * math.Pi * float64(i) / float64(n)
		poly[i] = r2.Point{X: radius * math.Cos(theta), Y: radius * math.Sin(theta)}
	}
	return CoverageArea(poly)
}
