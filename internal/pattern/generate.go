// Package pattern turns pattern parameters into ordered waypoint
// sequences. Generators are pure: they read their inputs and return a new
// slice, so concurrent calls never interfere.
package pattern

import (
	"fmt"

	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
)

// Generate dispatches to the generator for p's kind. Every pattern is
// expressed relative to the mission origin, so ref must be set.
func Generate(opt optics.Result, p Params, ref geo.Reference) ([]Waypoint, error) {
	if !ref.IsSet() {
		return nil, geo.ErrOriginNotSet
	}
	switch v := p.(type) {
	case OrbitParams:
		return Orbit(opt, v, ref)
	case SpiralParams:
		return Spiral(opt, v, ref)
	case FacadeParams:
		return Facade(opt, v, ref)
	case SurveyParams:
		return Survey(opt, v, ref)
	case nil:
		return nil, fmt.Errorf("%w: no pattern parameters", ErrInvalidPattern)
	default:
		return nil, fmt.Errorf("%w: unsupported parameters %T", ErrInvalidPattern, p)
	}
}

// Altitude is the distance the camera works at for p: the flight
// altitude for orbits and surveys, the mean altitude for spirals and the
// stand-off distance for facades.
func Altitude(p Params) float64 {
	switch v := p.(type) {
	case OrbitParams:
		return v.Altitude
	case SpiralParams:
		return (v.StartAltitude + v.EndAltitude) / 2
	case FacadeParams:
		return v.StandoffDistance
	case SurveyParams:
		if v.TerrainFollowing {
			return v.SafetyHeight
		}
		return v.Altitude
	}
	return 0
}

// WithAltitude returns a copy of p flying at alt. Spirals keep their
// climb and are shifted so their mean altitude is alt; facades are left
// unchanged because their working distance is horizontal.
func WithAltitude(p Params, alt float64) Params {
	switch v := p.(type) {
	case OrbitParams:
		v.Altitude = alt
		return v
	case SpiralParams:
		shift := alt - (v.StartAltitude+v.EndAltitude)/2
		v.StartAltitude += shift
		v.EndAltitude += shift
		return v
	case SurveyParams:
		if v.TerrainFollowing {
			v.SafetyHeight = alt
		} else {
			v.Altitude = alt
		}
		return v
	}
	return p
}

// WithDefaults fills a zero speed with speed and a zero wind rule with
// rule.
func WithDefaults(p Params, speed float64, rule WindRule) Params {
	switch v := p.(type) {
	case OrbitParams:
		if v.Speed == 0 {
			v.Speed = speed
		}
		return v
	case SpiralParams:
		if v.Speed == 0 {
			v.Speed = speed
		}
		return v
	case FacadeParams:
		if v.Speed == 0 {
			v.Speed = speed
		}
		return v
	case SurveyParams:
		if v.Speed == 0 {
			v.Speed = speed
		}
		if v.Wind == (WindRule{}) {
			v.Wind = rule
		}
		return v
	}
	return p
}
