// Package optics computes ground sampling distance, footprint, field of
// view and depth of field for a camera at a given distance from its
// subject. All functions are pure.
package optics

import (
	"encoding/json"
	"math"
)

// GSD returns the ground sampling distance in cm/px.
//
//	GSD = sensorWidth · altitude · 100 / (focalLength · imageWidth)
func GSD(sensorWidth, altitude, focalLength, imageWidth float64) (float64, error) {
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"sensorWidth", sensorWidth},
		{"altitude", altitude},
		{"focalLength", focalLength},
		{"imageWidth", imageWidth},
	} {
		if err := requirePositive(p.name, p.v); err != nil {
			return 0, err
		}
	}
	return sensorWidth * altitude * 100 / (focalLength * imageWidth), nil
}

// AltitudeForTargetGSD inverts GSD. The result is not clamped to any
// safety range.
func AltitudeForTargetGSD(targetGSD float64, camera CameraSpec) (float64, error) {
	if err := requirePositive("targetGsd", targetGSD); err != nil {
		return 0, err
	}
	if err := camera.Validate(); err != nil {
		return 0, err
	}
	return targetGSD * camera.FocalLength.Effective() * float64(camera.ImageWidth) / (camera.SensorWidth * 100), nil
}

// Footprint is the ground area covered by one image, in metres. Width
// runs along the sensor's long edge.
type Footprint struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width·Height in m².
func (f Footprint) Area() float64 { return f.Width * f.Height }

// ComputeFootprint returns the ground footprint at altitude.
func ComputeFootprint(camera CameraSpec, altitude float64) (Footprint, error) {
	if err := camera.Validate(); err != nil {
		return Footprint{}, err
	}
	if err := requirePositive("altitude", altitude); err != nil {
		return Footprint{}, err
	}
	f := camera.FocalLength.Effective()
	return Footprint{
		Width:  camera.SensorWidth * altitude / f,
		Height: camera.SensorHeightMM() * altitude / f,
	}, nil
}

// FOV returns the angular field of view in degrees along one sensor axis.
func FOV(sensorDim, focalLength float64) (float64, error) {
	if err := requirePositive("sensorDim", sensorDim); err != nil {
		return 0, err
	}
	if err := requirePositive("focalLength", focalLength); err != nil {
		return 0, err
	}
	return 2 * math.Atan(sensorDim/(2*focalLength)) * 180 / math.Pi, nil
}

// DepthOfField holds the sharp range around the focus distance, in metres.
// Far is +Inf when the focus distance is at or beyond the hyperfocal
// distance.
type DepthOfField struct {
	Near       float64
	Far        float64
	Hyperfocal float64
}

// FarIsInfinite reports whether everything to infinity is acceptably sharp.
func (d DepthOfField) FarIsInfinite() bool { return math.IsInf(d.Far, 1) }

type dofJSON struct {
	Near        float64  `json:"nearLimit"`
	Far         *float64 `json:"farLimit"`
	FarInfinite bool     `json:"farInfinite"`
	Hyperfocal  float64  `json:"hyperfocalDistance"`
}

// MarshalJSON encodes an infinite far limit as null with farInfinite set,
// since JSON has no representation for +Inf.
func (d DepthOfField) MarshalJSON() ([]byte, error) {
	out := dofJSON{Near: d.Near, Hyperfocal: d.Hyperfocal, FarInfinite: d.FarIsInfinite()}
	if !out.FarInfinite {
		far := d.Far
		out.Far = &far
	}
	return json.Marshal(out)
}

func (d *DepthOfField) UnmarshalJSON(b []byte) error {
	var in dofJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	d.Near, d.Hyperfocal = in.Near, in.Hyperfocal
	if in.FarInfinite || in.Far == nil {
		d.Far = math.Inf(1)
	} else {
		d.Far = *in.Far
	}
	return nil
}

// DOF computes depth of field. focalLength and circleOfConfusion are in
// mm, focusDistance is in metres.
func DOF(focalLength, aperture, focusDistance, circleOfConfusion float64) (DepthOfField, error) {
	if err := requirePositive("focalLength", focalLength); err != nil {
		return DepthOfField{}, err
	}
	if err := requirePositive("aperture", aperture); err != nil {
		return DepthOfField{}, err
	}
	if err := requirePositive("focusDistance", focusDistance); err != nil {
		return DepthOfField{}, err
	}
	if err := requirePositive("circleOfConfusion", circleOfConfusion); err != nil {
		return DepthOfField{}, err
	}

	f := focalLength
	s := focusDistance * 1000
	h := f*f/(aperture*circleOfConfusion) + f

	dof := DepthOfField{
		Near:       s * (h - f) / (h + s - 2*f) / 1000,
		Hyperfocal: h / 1000,
	}
	if s >= h {
		dof.Far = math.Inf(1)
	} else {
		dof.Far = s * (h - f) / (h - s) / 1000
	}
	return dof, nil
}

// Result bundles every optics value for one camera/distance pair.
type Result struct {
	Altitude      float64      `json:"altitude"`
	FocusDistance float64      `json:"focusDistance"`
	GSD           float64      `json:"gsd"`
	Footprint     Footprint    `json:"footprint"`
	HorizontalFOV float64      `json:"horizontalFov"`
	VerticalFOV   float64      `json:"verticalFov"`
	DOF           DepthOfField `json:"dof"`
}

// Compute derives a full Result. altitude is the camera-to-subject
// distance used for GSD and footprint; focusDistance drives DOF.
func Compute(camera CameraSpec, altitude, focusDistance float64) (Result, error) {
	if err := camera.Validate(); err != nil {
		return Result{}, err
	}
	if err := requirePositive("aperture", camera.Aperture); err != nil {
		return Result{}, err
	}
	focal := camera.FocalLength.Effective()

	gsd, err := GSD(camera.SensorWidth, altitude, focal, float64(camera.ImageWidth))
	if err != nil {
		return Result{}, err
	}
	fp, err := ComputeFootprint(camera, altitude)
	if err != nil {
		return Result{}, err
	}
	hfov, err := FOV(camera.SensorWidth, focal)
	if err != nil {
		return Result{}, err
	}
	vfov, err := FOV(camera.SensorHeightMM(), focal)
	if err != nil {
		return Result{}, err
	}
	dof, err := DOF(focal, camera.Aperture, focusDistance, camera.CoC())
	if err != nil {
		return Result{}, err
	}

	return Result{
		Altitude:      altitude,
		FocusDistance: focusDistance,
		GSD:           gsd,
		Footprint:     fp,
		HorizontalFOV: hfov,
		VerticalFOV:   vfov,
		DOF:           dof,
	}, nil
}
