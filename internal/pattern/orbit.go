package pattern

import (
	"math"

	"github.com/golang/geo/r2"

	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
)

// Orbit generates OrbitCount rings of Segments evenly spaced capture
// waypoints, travelling counter-clockwise seen from above. Every ring is
// closed by a position waypoint that repeats its first point, and ring k
// flies VerticalShiftPerOrbit·k above Altitude.
func Orbit(_ optics.Result, p OrbitParams, _ geo.Reference) ([]Waypoint, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	mode := p.CameraMode
	if mode == "" {
		mode = CameraCenter
	}
	centre := p.Center.Planar()
	n := p.Segments
	out := make([]Waypoint, 0, p.orbits()*(n+1))
	for k := 0; k < p.orbits(); k++ {
		alt := p.Altitude + float64(k)*p.VerticalShiftPerOrbit
		pitch := p.GimbalPitch
		if pitch == nil && mode == CameraCenter {
			pitch = ptr(lookDown(alt-p.Center.Up, p.Radius))
		}
		var first Waypoint
		for i := 0; i < n; i++ {
			theta := 2 * math.Pi * float64(i) / float64(n)
			radial := r2.Point{X: math.Cos(theta), Y: math.Sin(theta)}
			pos := centre.Add(radial.Mul(p.Radius))

			var heading float64
			switch mode {
			case CameraCenter:
				heading = geo.Heading(radial.Mul(-1))
			case CameraForward:
				heading = geo.Heading(radial.Ortho())
			case CameraCustom:
				heading = geo.NormalizeHeading(p.CameraAngle)
			}
			wp := Waypoint{
				Position:    geo.FromPlanar(pos, alt),
				Type:        WaypointCapture,
				Heading:     ptr(heading),
				GimbalPitch: copyPtr(pitch),
				Speed:       p.Speed,
			}
			if i == 0 {
				first = wp
			}
			out = append(out, wp)
		}
		closing := first
		closing.Type = WaypointPosition
		closing.Heading = copyPtr(first.Heading)
		closing.GimbalPitch = copyPtr(first.GimbalPitch)
		out = append(out, closing)
	}
	return out, nil
}

// lookDown is the gimbal pitch in degrees that aims at a point dz below
// and dh away horizontally.
func lookDown(dz, dh float64) float64 {
	return -degrees(math.Atan2(dz, dh))
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return ptr(*v)
}
