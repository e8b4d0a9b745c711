// Package stats derives mission statistics from a waypoint sequence.
package stats

import (
	"errors"
	"fmt"
	"math"

	"aerialplan/internal/geo"
	"aerialplan/internal/pattern"
)

// ErrInvalidSpeed is returned when a flight-time estimate has no usable
// speed.
var ErrInvalidSpeed = errors.New("speed must be positive")

// MissionStats summarises a planned mission. Distances are metres, time
// is seconds and area is square metres.
type MissionStats struct {
	TotalDistance  float64 `json:"totalDistance"`
	EstimatedTime  float64 `json:"estimatedTime"`
	CoverageArea   float64 `json:"coverageArea"`
	ImagesRequired int     `json:"imagesRequired"`
	CaptureCount   int     `json:"captureCount"`
}

// TotalDistance is the sum of straight-line distances between consecutive
// waypoints.
func TotalDistance(wps []pattern.Waypoint) float64 {
	var d float64
	for i := 1; i < len(wps); i++ {
		d += wps[i].Position.Distance(wps[i-1].Position)
	}
	return d
}

// CaptureCount counts capture waypoints.
func CaptureCount(wps []pattern.Waypoint) int {
	n := 0
	for _, wp := range wps {
		if wp.IsCapture() {
			n++
		}
	}
	return n
}

// EstimatedFlightTime is the total distance flown at a uniform speed plus
// hoverPerCapture seconds at each capture waypoint.
func EstimatedFlightTime(wps []pattern.Waypoint, speed, hoverPerCapture float64) (float64, error) {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidSpeed, speed)
	}
	if hoverPerCapture < 0 {
		return 0, fmt.Errorf("hover per capture must not be negative, got %g", hoverPerCapture)
	}
	return TotalDistance(wps)/speed + float64(CaptureCount(wps))*hoverPerCapture, nil
}

// LegFlightTime estimates flight time using each waypoint's own speed for
// the leg that arrives at it, falling back to defaultSpeed when a
// waypoint carries none.
func LegFlightTime(wps []pattern.Waypoint, defaultSpeed, hoverPerCapture float64) (float64, error) {
	if hoverPerCapture < 0 {
		return 0, fmt.Errorf("hover per capture must not be negative, got %g", hoverPerCapture)
	}
	var total float64
	for i, wp := range wps {
		if wp.IsCapture() {
			total += hoverPerCapture
		}
		if i == 0 {
			continue
		}
		speed := wp.Speed
		if speed <= 0 {
			speed = defaultSpeed
		}
		if !(speed > 0) || math.IsInf(speed, 0) {
			return 0, fmt.Errorf("%w: leg %d has no speed", ErrInvalidSpeed, i)
		}
		total += wp.Position.Distance(wps[i-1].Position) / speed
	}
	return total, nil
}

// CoverageArea is the area of the region imaged, in square metres.
func CoverageArea(poly geo.Polygon) float64 {
	if len(poly) < 3 {
		return 0
	}
	return poly.Area()
}

// ImagesRequired is the number of images needed to cover area when each
// image contributes imageSpacing × trackSpacing of new ground.
func ImagesRequired(area, imageSpacing, trackSpacing float64) (int, error) {
	if !(imageSpacing > 0) || !(trackSpacing > 0) {
		return 0, fmt.Errorf("effective footprint must be positive, got %g x %g", imageSpacing, trackSpacing)
	}
	if area <= 0 {
		return 0, nil
	}
	return int(math.Ceil(area/(imageSpacing*trackSpacing) - 1e-9)), nil
}
