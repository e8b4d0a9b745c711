package guard

import (
	"errors"
	"fmt"
	"math"

	"aerialplan/internal/pattern"
)

var (
	// ErrInsufficientWaypoints is returned for sequences shorter than two.
	ErrInsufficientWaypoints = errors.New("insufficient waypoints")
	// ErrMalformedWaypoint is returned when a waypoint cannot be flown.
	ErrMalformedWaypoint = errors.New("malformed waypoint")
)

// WaypointError locates a malformed waypoint.
type WaypointError struct {
	Index  int
	Reason string
}

func (e *WaypointError) Error() string {
	return fmt.Sprintf("waypoint %d: %s", e.Index, e.Reason)
}

func (e *WaypointError) Unwrap() error { return ErrMalformedWaypoint }

// ValidateWaypoints checks that a sequence has at least two waypoints and
// that each has a finite position, a usable speed and, when present,
// finite orientation angles.
func ValidateWaypoints(wps []pattern.Waypoint) error {
	if len(wps) < 2 {
		return fmt.Errorf("%w: got %d, need at least 2", ErrInsufficientWaypoints, len(wps))
	}
	for i, wp := range wps {
		if !wp.Position.IsFinite() {
			return &WaypointError{Index: i, Reason: "position is not finite"}
		}
		if wp.Speed < 0 || math.IsNaN(wp.Speed) || math.IsInf(wp.Speed, 0) {
			return &WaypointError{Index: i, Reason: fmt.Sprintf("invalid speed %g", wp.Speed)}
		}
		if wp.Heading != nil && (math.IsNaN(*wp.Heading) || math.IsInf(*wp.Heading, 0)) {
			return &WaypointError{Index: i, Reason: "heading is not finite"}
		}
		if wp.GimbalPitch != nil {
			p := *wp.GimbalPitch
			if math.IsNaN(p) || p < -90 || p > 90 {
				return &WaypointError{Index: i, Reason: fmt.Sprintf("gimbal pitch %g outside [-90, 90]", p)}
			}
		}
		if wp.Type < pattern.WaypointPosition || wp.Type > pattern.WaypointReturn {
			return &WaypointError{Index: i, Reason: fmt.Sprintf("unknown type %d", int(wp.Type))}
		}
	}
	return nil
}

// CheckAltitudes returns the indices of waypoints that fly outside the
// altitude range. Waypoints are never moved; callers decide what to do.
func (l Limits) CheckAltitudes(wps []pattern.Waypoint) []int {
	var out []int
	for i, wp := range wps {
		if _, w := l.ClampAltitude(wp.Position.Up); w != Ok {
			out = append(out, i)
		}
	}
	return out
}
