package pattern

import (
	"math"

	"github.com/golang/geo/r2"

	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
)

// Spiral generates Segments+1 capture waypoints along a helix whose
// radius and altitude move linearly from their start to end values over
// Revolutions turns. Every waypoint faces the centre.
func Spiral(_ optics.Result, p SpiralParams, _ geo.Reference) ([]Waypoint, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	centre := p.Center.Planar()
	out := make([]Waypoint, 0, p.Segments+1)
	for i := 0; i <= p.Segments; i++ {
		t := float64(i) / float64(p.Segments)
		theta := 2 * math.Pi * p.Revolutions * t
		radius := lerp(p.StartRadius, p.EndRadius, t)
		alt := lerp(p.StartAltitude, p.EndAltitude, t)
		radial := r2.Point{X: math.Cos(theta), Y: math.Sin(theta)}

		pitch := copyPtr(p.GimbalPitch)
		if pitch == nil {
			pitch = ptr(lookDown(alt-p.Center.Up, radius))
		}
		out = append(out, Waypoint{
			Position:    geo.FromPlanar(centre.Add(radial.Mul(radius)), alt),
			Type:        WaypointCapture,
			Heading:     ptr(geo.Heading(radial.Mul(-1))),
			GimbalPitch: pitch,
			Speed:       p.Speed,
		})
	}
	return out, nil
}

// SpiralFaceted reports whether a spiral has so few segments per
// revolution that the flown path is a visibly coarse polygon.
func SpiralFaceted(p SpiralParams) bool {
	if p.Revolutions <= 0 {
		return false
	}
	return float64(p.Segments)/p.Revolutions < minSegmentsPerRevolution
}

const minSegmentsPerRevolution = 8
