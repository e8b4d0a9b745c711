// Package guard checks planned values against safety limits before they
// are handed to a flight controller.
package guard

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Warning classifies the outcome of a bounds check.
type Warning int

const (
	Ok Warning = iota
	TooLow
	TooHigh
)

var warningNames = [...]string{"ok", "too_low", "too_high"}

func (w Warning) String() string {
	if int(w) >= 0 && int(w) < len(warningNames) {
		return warningNames[w]
	}
	return fmt.Sprintf("Warning(%d)", int(w))
}

func (w Warning) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Warning) UnmarshalText(b []byte) error {
	for i, name := range warningNames {
		if string(b) == name {
			*w = Warning(i)
			return nil
		}
	}
	return fmt.Errorf("unknown warning %q", string(b))
}

// Clamp limits v to [lo, hi] and reports which side, if any, was hit.
func Clamp[T constraints.Ordered](v, lo, hi T) (T, Warning) {
	switch {
	case v < lo:
		return lo, TooLow
	case v > hi:
		return hi, TooHigh
	}
	return v, Ok
}

// Limits are the configured safety bounds. A zero GSD bound disables
// that side of the GSD check.
type Limits struct {
	MinAltitude float64 `json:"min_altitude"`
	MaxAltitude float64 `json:"max_altitude"`
	MinGSD      float64 `json:"min_gsd"`
	MaxGSD      float64 `json:"max_gsd"`
}

// DefaultLimits keep flights between 5 m and 500 m above the origin.
var DefaultLimits = Limits{MinAltitude: 5, MaxAltitude: 500}

func (l Limits) Validate() error {
	switch {
	case l.MinAltitude <= 0:
		return errors.New("min_altitude must be positive")
	case l.MaxAltitude <= l.MinAltitude:
		return errors.New("max_altitude must exceed min_altitude")
	case l.MinGSD < 0 || l.MaxGSD < 0:
		return errors.New("gsd bounds must not be negative")
	case l.MaxGSD > 0 && l.MinGSD > l.MaxGSD:
		return errors.New("min_gsd must not exceed max_gsd")
	}
	return nil
}

// ClampAltitude brings alt into the safe range. The returned warning is
// Ok only when alt was already inside it.
func (l Limits) ClampAltitude(alt float64) (float64, Warning) {
	return Clamp(alt, l.MinAltitude, l.MaxAltitude)
}

// ClampAltitudeRange clamps both ends of a climbing or descending path
// independently. When both ends move, the warning is that of the end
// that moved further.
func (l Limits) ClampAltitudeRange(start, end float64) (float64, float64, Warning) {
	cs, ws := l.ClampAltitude(start)
	ce, we := l.ClampAltitude(end)
	if ws == Ok || math.Abs(ce-end) > math.Abs(cs-start) {
		return cs, ce, we
	}
	return cs, ce, ws
}

// CheckGSD reports whether gsd (cm/px) is outside the configured range.
// TooLow means finer than required, TooHigh means coarser than allowed.
func (l Limits) CheckGSD(gsd float64) Warning {
	switch {
	case l.MinGSD > 0 && gsd < l.MinGSD:
		return TooLow
	case l.MaxGSD > 0 && gsd > l.MaxGSD:
		return TooHigh
	}
	return Ok
}
