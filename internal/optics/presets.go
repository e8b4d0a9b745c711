package optics

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultCircleOfConfusion maps a sensor width in mm to the conventional
// acceptable blur circle for that sensor class.
func DefaultCircleOfConfusion(sensorWidth float64) float64 {
	switch {
	case sensorWidth >= 30:
		return 0.030 // full frame
	case sensorWidth >= 20:
		return 0.020 // APS-C
	case sensorWidth >= 15:
		return 0.015 // Micro Four Thirds
	case sensorWidth >= 11:
		return 0.011 // 1-inch
	default:
		return 0.006
	}
}

var presets = map[string]CameraSpec{
	"phantom4pro": {
		Name: "DJI Phantom 4 Pro", SensorWidth: 13.2, SensorHeight: 8.8,
		FocalLength: Prime(8.8), ImageWidth: 5472, ImageHeight: 3648, Aperture: 2.8,
	},
	"mavic3e": {
		Name: "DJI Mavic 3 Enterprise", SensorWidth: 17.3, SensorHeight: 13.0,
		FocalLength: Prime(12.29), ImageWidth: 5280, ImageHeight: 3956, Aperture: 2.8,
	},
	"mini3": {
		Name: "DJI Mini 3", SensorWidth: 9.6, SensorHeight: 7.2,
		FocalLength: Prime(6.72), ImageWidth: 4032, ImageHeight: 3024, Aperture: 1.7,
	},
	"p1-35": {
		Name: "DJI Zenmuse P1 35mm", SensorWidth: 35.9, SensorHeight: 24.0,
		FocalLength: Prime(35), ImageWidth: 8192, ImageHeight: 5460, Aperture: 2.8,
	},
	"generic-1in-24": {
		Name: "1-inch 24mm", SensorWidth: 13.2, SensorHeight: 8.8,
		FocalLength: Prime(24), ImageWidth: 5472, ImageHeight: 3648, Aperture: 4,
	},
	"h20-zoom": {
		Name: "DJI Zenmuse H20 zoom", SensorWidth: 7.6, SensorHeight: 5.7,
		FocalLength: Zoom(6.83, 119.94), ImageWidth: 5184, ImageHeight: 3888, Aperture: 2.8,
	},
}

// Preset returns a named camera.
func Preset(name string) (CameraSpec, error) {
	c, ok := presets[strings.ToLower(name)]
	if !ok {
		return CameraSpec{}, fmt.Errorf("%w: unknown camera preset %q", ErrInvalidParameter, name)
	}
	return c, nil
}

// PresetNames lists the known presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
