package planner

import (
	"fmt"

	"aerialplan/internal/optics"
)

// OpticsRequest asks for the optics of one camera at one distance.
// Altitude may be replaced by TargetGSD.
type OpticsRequest struct {
	Camera        *optics.CameraSpec `json:"camera,omitempty"`
	Preset        string             `json:"preset,omitempty"`
	Altitude      float64            `json:"altitude,omitempty"`
	TargetGSD     float64            `json:"targetGsd,omitempty"`
	FocusDistance float64            `json:"focusDistance,omitempty"`
}

// OpticsResult pairs the resolved camera with its optics.
type OpticsResult struct {
	Camera optics.CameraSpec `json:"camera"`
	optics.Result
}

// ComputeOptics resolves the camera and evaluates it without any pattern
// or altitude bounds.
func ComputeOptics(req OpticsRequest, s Settings) (OpticsResult, error) {
	cam, err := ResolveCamera(Request{Camera: req.Camera, Preset: req.Preset}, s)
	if err != nil {
		return OpticsResult{}, err
	}
	alt := req.Altitude
	if req.TargetGSD > 0 {
		if alt, err = optics.AltitudeForTargetGSD(req.TargetGSD, cam); err != nil {
			return OpticsResult{}, err
		}
	}
	if alt <= 0 {
		return OpticsResult{}, fmt.Errorf("%w: altitude or targetGsd required", optics.ErrInvalidParameter)
	}
	focus := req.FocusDistance
	if focus <= 0 {
		focus = alt
	}
	res, err := optics.Compute(cam, alt, focus)
	if err != nil {
		return OpticsResult{}, err
	}
	return OpticsResult{Camera: cam, Result: res}, nil
}
