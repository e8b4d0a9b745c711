package geo

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// ENUPoint is a position in metres east, north and up of the mission
// origin.
type ENUPoint struct {
	East  float64 `json:"east" msgpack:"e"`
	North float64 `json:"north" msgpack:"n"`
	Up    float64 `json:"up" msgpack:"u"`
}

// FromVector converts an (east, north, up) vector.
func FromVector(v r3.Vector) ENUPoint { return ENUPoint{East: v.X, North: v.Y, Up: v.Z} }

// FromPlanar lifts a horizontal point to the given height.
func FromPlanar(p r2.Point, up float64) ENUPoint { return ENUPoint{East: p.X, North: p.Y, Up: up} }

func (p ENUPoint) Vector() r3.Vector { return r3.Vector{X: p.East, Y: p.North, Z: p.Up} }

// Planar drops the vertical component.
func (p ENUPoint) Planar() r2.Point { return r2.Point{X: p.East, Y: p.North} }

func (p ENUPoint) Add(q ENUPoint) ENUPoint { return FromVector(p.Vector().Add(q.Vector())) }

func (p ENUPoint) Sub(q ENUPoint) ENUPoint { return FromVector(p.Vector().Sub(q.Vector())) }

// Distance is the straight-line distance in metres.
func (p ENUPoint) Distance(q ENUPoint) float64 { return p.Vector().Sub(q.Vector()).Norm() }

// HorizontalDistance ignores altitude.
func (p ENUPoint) HorizontalDistance(q ENUPoint) float64 {
	return p.Planar().Sub(q.Planar()).Norm()
}

// Scene returns the point in the Y-up renderer convention:
// x = East, y = Up, z = North.
func (p ENUPoint) Scene() [3]float64 { return [3]float64{p.East, p.Up, p.North} }

// FromScene is the inverse of Scene.
func FromScene(xyz [3]float64) ENUPoint {
	return ENUPoint{East: xyz[0], Up: xyz[1], North: xyz[2]}
}

// IsFinite reports whether every component is a real number.
func (p ENUPoint) IsFinite() bool {
	for _, v := range [3]float64{p.East, p.North, p.Up} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Heading returns the compass bearing in degrees (0 = north, 90 = east)
// of the horizontal vector v.
func Heading(v r2.Point) float64 {
	if math.Abs(v.X) < 1e-12 && math.Abs(v.Y) < 1e-12 {
		return 0
	}
	return NormalizeHeading(math.Atan2(v.X, v.Y) * 180 / math.Pi)
}

// HeadingVector is the unit horizontal vector for a compass bearing.
func HeadingVector(deg float64) r2.Point {
	rad := deg * math.Pi / 180
	return r2.Point{X: math.Sin(rad), Y: math.Cos(rad)}
}

// NormalizeHeading maps h into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
