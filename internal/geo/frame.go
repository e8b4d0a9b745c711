// Package geo anchors a local East-North-Up frame at the takeoff point and
// converts between it and WGS-84 geodetic coordinates.
//
// The conversion is a flat-earth tangent-plane approximation using the
// WGS-84 radii of curvature at the origin. It is accurate to centimetres
// over the few hundred metres of a typical mission and degrades beyond a
// few kilometres; it must not be used for long-range navigation.
package geo

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	// ErrOriginNotSet is returned by conversions attempted before a takeoff
	// origin exists.
	ErrOriginNotSet = errors.New("takeoff origin not set")
	// ErrOriginAlreadySet signals that the caller must re-origin
	// explicitly, invalidating previously generated waypoints.
	ErrOriginAlreadySet = errors.New("takeoff origin already set: re-origin required")
	// ErrInvalidOrigin marks coordinates outside the geodetic domain.
	ErrInvalidOrigin = errors.New("invalid origin")
)

const (
	wgs84A  = 6378137.0
	wgs84E2 = 6.69437999014e-3
)

// Origin is the mission's takeoff point.
type Origin struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	AltitudeMSL float64 `json:"alt"`
}

// Validate rejects coordinates outside the geodetic domain.
func (o Origin) Validate() error {
	switch {
	case math.IsNaN(o.Latitude) || o.Latitude < -90 || o.Latitude > 90:
		return fmt.Errorf("%w: latitude %g out of range", ErrInvalidOrigin, o.Latitude)
	case math.IsNaN(o.Longitude) || o.Longitude < -180 || o.Longitude > 180:
		return fmt.Errorf("%w: longitude %g out of range", ErrInvalidOrigin, o.Longitude)
	case math.IsNaN(o.AltitudeMSL) || math.IsInf(o.AltitudeMSL, 0):
		return fmt.Errorf("%w: altitude %g is not finite", ErrInvalidOrigin, o.AltitudeMSL)
	}
	return nil
}

// Geodetic is a WGS-84 position; Altitude is metres above mean sea level.
type Geodetic struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// Reference is an immutable snapshot of the frame: its origin and the
// generation that origin belongs to. Generation starts at 1 and grows on
// every re-origin.
type Reference struct {
	Origin     Origin `json:"origin"`
	Generation uint64 `json:"generation"`
}

// IsSet reports whether the reference came from a frame with an origin.
func (r Reference) IsSet() bool { return r.Generation > 0 }

func (r Reference) radii() (north, east float64) {
	lat := r.Origin.Latitude * math.Pi / 180
	s := math.Sin(lat)
	w := 1 - wgs84E2*s*s
	m := wgs84A * (1 - wgs84E2) / (w * math.Sqrt(w))
	n := wgs84A / math.Sqrt(w)
	h := r.Origin.AltitudeMSL
	return m + h, (n + h) * math.Cos(lat)
}

// ToENU converts a geodetic position to the local frame.
func (r Reference) ToENU(lat, lon, alt float64) (ENUPoint, error) {
	if !r.IsSet() {
		return ENUPoint{}, ErrOriginNotSet
	}
	rn, re := r.radii()
	dLon := math.Mod(lon-r.Origin.Longitude+540, 360) - 180
	return ENUPoint{
		East:  dLon * math.Pi / 180 * re,
		North: (lat - r.Origin.Latitude) * math.Pi / 180 * rn,
		Up:    alt - r.Origin.AltitudeMSL,
	}, nil
}

// ToGeodetic converts a local point back to WGS-84.
func (r Reference) ToGeodetic(p ENUPoint) (Geodetic, error) {
	if !r.IsSet() {
		return Geodetic{}, ErrOriginNotSet
	}
	rn, re := r.radii()
	lon := r.Origin.Longitude
	if re > 0 {
		lon += p.East / re * 180 / math.Pi
	}
	lon = math.Mod(lon+540, 360) - 180
	return Geodetic{
		Latitude:  r.Origin.Latitude + p.North/rn*180/math.Pi,
		Longitude: lon,
		Altitude:  r.Origin.AltitudeMSL + p.Up,
	}, nil
}

// Frame owns the mission origin. The origin is set exactly once; changing
// it requires Reorigin, which bumps the generation so callers can tell
// that earlier waypoints are stale.
type Frame struct {
	mu  sync.RWMutex
	ref Reference
}

// NewFrame returns a frame with no origin.
func NewFrame() *Frame { return &Frame{} }

// SetOrigin establishes the takeoff origin. It fails with
// ErrOriginAlreadySet if one exists.
func (f *Frame) SetOrigin(o Origin) (Reference, error) {
	if err := o.Validate(); err != nil {
		return Reference{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ref.IsSet() {
		return f.ref, ErrOriginAlreadySet
	}
	f.ref = Reference{Origin: o, Generation: 1}
	return f.ref, nil
}

// Reorigin replaces the origin and invalidates every reference handed out
// before.
func (f *Frame) Reorigin(o Origin) (Reference, error) {
	if err := o.Validate(); err != nil {
		return Reference{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ref = Reference{Origin: o, Generation: f.ref.Generation + 1}
	return f.ref, nil
}

// Restore loads a previously persisted reference as-is.
func (f *Frame) Restore(ref Reference) error {
	if !ref.IsSet() {
		return ErrOriginNotSet
	}
	if err := ref.Origin.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	f.ref = ref
	f.mu.Unlock()
	return nil
}

// Reference returns the current snapshot.
func (f *Frame) Reference() (Reference, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.ref.IsSet() {
		return Reference{}, ErrOriginNotSet
	}
	return f.ref, nil
}

// IsCurrent reports whether results produced under generation gen are
// still valid.
func (f *Frame) IsCurrent(gen uint64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ref.IsSet() && f.ref.Generation == gen
}

func (f *Frame) ToENU(lat, lon, alt float64) (ENUPoint, error) {
	ref, err := f.Reference()
	if err != nil {
		return ENUPoint{}, err
	}
	return ref.ToENU(lat, lon, alt)
}

func (f *Frame) ToGeodetic(p ENUPoint) (Geodetic, error) {
	ref, err := f.Reference()
	if err != nil {
		return Geodetic{}, err
	}
	return ref.ToGeodetic(p)
}
