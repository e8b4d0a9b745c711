package pattern

import (
	"fmt"

	"aerialplan/internal/geo"
)

// WaypointType says what the aircraft does at a waypoint.
type WaypointType int

const (
	// WaypointPosition is a pass-through point with no exposure.
	WaypointPosition WaypointType = iota
	// WaypointCapture triggers an exposure.
	WaypointCapture
	// WaypointReturn heads back to the origin.
	WaypointReturn
)

var waypointTypeNames = [...]string{"position", "capture", "return"}

func (t WaypointType) String() string {
	if int(t) >= 0 && int(t) < len(waypointTypeNames) {
		return waypointTypeNames[t]
	}
	return fmt.Sprintf("WaypointType(%d)", int(t))
}

func (t WaypointType) MarshalText() ([]byte, error) {
	if int(t) < 0 || int(t) >= len(waypointTypeNames) {
		return nil, fmt.Errorf("unknown waypoint type %d", int(t))
	}
	return []byte(waypointTypeNames[t]), nil
}

func (t *WaypointType) UnmarshalText(b []byte) error {
	for i, name := range waypointTypeNames {
		if string(b) == name {
			*t = WaypointType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown waypoint type %q", string(b))
}

// Waypoint is one step of a flight path. Heading is a compass bearing in
// degrees; GimbalPitch is degrees below (negative) or above the horizon.
// Both are optional. Closing points of an orbit ring repeat the first
// point's pose but have type WaypointPosition, so they take no image.
type Waypoint struct {
	Position    geo.ENUPoint `json:"position" msgpack:"p"`
	Type        WaypointType `json:"type" msgpack:"t"`
	Heading     *float64     `json:"heading,omitempty" msgpack:"h,omitempty"`
	GimbalPitch *float64     `json:"gimbalPitch,omitempty" msgpack:"g,omitempty"`
	Speed       float64      `json:"speed" msgpack:"s"`
}

// IsCapture reports whether the waypoint takes an image.
func (w Waypoint) IsCapture() bool { return w.Type == WaypointCapture }

func ptr(v float64) *float64 { return &v }
