package optics

import (
	"encoding/json"
	"fmt"
)

// FocalLength is a prime focal length or a zoom range, in millimetres.
// A zero Max denotes a prime lens.
type FocalLength struct {
	Min float64
	Max float64
}

// Prime returns a fixed focal length.
func Prime(mm float64) FocalLength { return FocalLength{Min: mm} }

// Zoom returns a zoom range; the effective focal length is its midpoint.
func Zoom(minMM, maxMM float64) FocalLength { return FocalLength{Min: minMM, Max: maxMM} }

// IsZoom reports whether the lens was specified as a range.
func (f FocalLength) IsZoom() bool { return f.Max != 0 }

// Effective returns the focal length used by all formulas.
func (f FocalLength) Effective() float64 {
	if !f.IsZoom() {
		return f.Min
	}
	return (f.Min + f.Max) / 2
}

// MarshalJSON encodes a prime lens as a number and a zoom as [min,max].
func (f FocalLength) MarshalJSON() ([]byte, error) {
	if f.IsZoom() {
		return json.Marshal([2]float64{f.Min, f.Max})
	}
	return json.Marshal(f.Min)
}

// UnmarshalJSON accepts either a number or a two-element array.
func (f *FocalLength) UnmarshalJSON(b []byte) error {
	var mm float64
	if err := json.Unmarshal(b, &mm); err == nil {
		*f = Prime(mm)
		return nil
	}
	var rng []float64
	if err := json.Unmarshal(b, &rng); err != nil {
		return fmt.Errorf("focal length must be a number or [min,max]: %w", err)
	}
	if len(rng) != 2 {
		return fmt.Errorf("focal length range needs 2 values, got %d", len(rng))
	}
	if rng[0] > rng[1] {
		rng[0], rng[1] = rng[1], rng[0]
	}
	*f = Zoom(rng[0], rng[1])
	return nil
}

// CameraSpec describes a sensor/lens pair. It is treated as immutable by
// every calculation.
type CameraSpec struct {
	Name              string      `json:"name,omitempty"`
	SensorWidth       float64     `json:"sensorWidth"`            // mm
	SensorHeight      float64     `json:"sensorHeight,omitempty"` // mm
	AspectRatio       float64     `json:"aspectRatio,omitempty"`  // width/height, used when SensorHeight is unset
	FocalLength       FocalLength `json:"focalLength"`
	ImageWidth        int         `json:"imageWidth"`  // px
	ImageHeight       int         `json:"imageHeight"` // px
	Aperture          float64     `json:"aperture"`    // f-number
	CircleOfConfusion float64     `json:"circleOfConfusion,omitempty"`
}

// Validate checks the fields every formula depends on.
func (c CameraSpec) Validate() error {
	if err := requirePositive("sensorWidth", c.SensorWidth); err != nil {
		return err
	}
	if err := requirePositive("focalLength", c.FocalLength.Effective()); err != nil {
		return err
	}
	if c.FocalLength.IsZoom() {
		if err := requirePositive("focalLength.min", c.FocalLength.Min); err != nil {
			return err
		}
	}
	if err := requirePositive("imageWidth", float64(c.ImageWidth)); err != nil {
		return err
	}
	if err := requirePositive("sensorHeight", c.SensorHeightMM()); err != nil {
		return err
	}
	if c.Aperture != 0 {
		if err := requirePositive("aperture", c.Aperture); err != nil {
			return err
		}
	}
	if c.CircleOfConfusion != 0 {
		if err := requirePositive("circleOfConfusion", c.CircleOfConfusion); err != nil {
			return err
		}
	}
	return nil
}

// SensorHeightMM returns the sensor height, deriving it from the aspect
// ratio or the pixel dimensions when it was not given.
func (c CameraSpec) SensorHeightMM() float64 {
	switch {
	case c.SensorHeight > 0:
		return c.SensorHeight
	case c.AspectRatio > 0:
		return c.SensorWidth / c.AspectRatio
	case c.ImageWidth > 0 && c.ImageHeight > 0:
		return c.SensorWidth * float64(c.ImageHeight) / float64(c.ImageWidth)
	}
	return 0
}

// CoC returns the circle of confusion in mm, falling back to the sensor
// class default.
func (c CameraSpec) CoC() float64 {
	if c.CircleOfConfusion > 0 {
		return c.CircleOfConfusion
	}
	return DefaultCircleOfConfusion(c.SensorWidth)
}
