// Package planner runs one planning request end to end: camera optics,
// altitude safety, pattern generation, mission statistics and waypoint
// validation.
package planner

import (
	"errors"
	"fmt"

	"aerialplan/internal/geo"
	"aerialplan/internal/guard"
	"aerialplan/internal/optics"
	"aerialplan/internal/pattern"
	"aerialplan/internal/stats"
)

// Request is a planning request as submitted over the API, the CLI or a
// watched file.
type Request struct {
	Name    string             `json:"name,omitempty"`
	Camera  *optics.CameraSpec `json:"camera,omitempty"`
	Preset  string             `json:"preset,omitempty"`
	Pattern pattern.Envelope   `json:"pattern"`
	// TargetGSD, in cm/px, replaces the pattern's working distance when
	// set.
	TargetGSD float64 `json:"targetGsd,omitempty"`
	// FocusDistance defaults to the working distance.
	FocusDistance    float64  `json:"focusDistance,omitempty"`
	Speed            float64  `json:"speed,omitempty"`
	HoverPerCapture  *float64 `json:"hoverPerCapture,omitempty"`
	PerWaypointSpeed bool     `json:"perWaypointSpeed,omitempty"`
}

// Settings are the configured defaults and limits a plan runs under.
type Settings struct {
	Limits          guard.Limits
	DefaultSpeed    float64
	HoverPerCapture float64
	Wind            pattern.WindRule
	DefaultPreset   string
}

// DefaultSettings mirror the configuration defaults.
var DefaultSettings = Settings{
	Limits:        guard.DefaultLimits,
	DefaultSpeed:  5,
	Wind:          pattern.DefaultWindRule,
	DefaultPreset: "phantom4pro",
}

// Warning is a non-fatal finding attached to a plan.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnAltitudeClamped  = "altitude_clamped"
	WarnGSDOutOfRange    = "gsd_out_of_range"
	WarnSpiralFaceted    = "spiral_faceted"
	WarnWaypointAltitude = "waypoint_altitude"
	WarnWindOverride     = "wind_override"
	WarnFocusBeyondDOF   = "focus_outside_dof"
)

// Result is a computed mission. Generation is the origin generation the
// waypoints were expressed in.
type Result struct {
	Name       string             `json:"name,omitempty"`
	Pattern    pattern.Kind       `json:"pattern"`
	Generation uint64             `json:"generation"`
	Camera     optics.CameraSpec  `json:"camera"`
	Altitude   float64            `json:"altitude"`
	Clamp      guard.Warning      `json:"altitudeClamp"`
	Optics     optics.Result      `json:"optics"`
	Waypoints  []pattern.Waypoint `json:"waypoints"`
	Stats      stats.MissionStats `json:"stats"`
	Warnings   []Warning          `json:"warnings,omitempty"`
}

// ResolveCamera picks the request's camera: an explicit camera spec wins, then
// the named preset, then the configured default preset.
func ResolveCamera(req Request, s Settings) (optics.CameraSpec, error) {
	if req.Camera != nil {
		cam := *req.Camera
		if err := cam.Validate(); err != nil {
			return optics.CameraSpec{}, err
		}
		return cam, nil
	}
	name := req.Preset
	if name == "" {
		name = s.DefaultPreset
	}
	if name == "" {
		return optics.CameraSpec{}, fmt.Errorf("%w: no camera or preset given", optics.ErrInvalidParameter)
	}
	return optics.Preset(name)
}

// Plan computes a mission for req in the frame described by ref. It does
// not touch shared state.
func Plan(req Request, s Settings, ref geo.Reference) (Result, error) {
	if !ref.IsSet() {
		return Result{}, geo.ErrOriginNotSet
	}
	params := req.Pattern.Params
	if params == nil {
		return Result{}, fmt.Errorf("%w: request has no pattern", pattern.ErrInvalidPattern)
	}
	cam, err := ResolveCamera(req, s)
	if err != nil {
		return Result{}, fmt.Errorf("camera: %w", err)
	}

	speed := s.DefaultSpeed
	if req.Speed > 0 {
		speed = req.Speed
	}
	params = pattern.WithDefaults(params, speed, s.Wind)
	if err := params.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{Name: req.Name, Pattern: params.Kind(), Generation: ref.Generation, Camera: cam}
	warn := func(code, format string, args ...any) {
		res.Warnings = append(res.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if req.TargetGSD > 0 {
		alt, err := optics.AltitudeForTargetGSD(req.TargetGSD, cam)
		if err != nil {
			return Result{}, fmt.Errorf("target gsd: %w", err)
		}
		params = withWorkingDistance(params, alt)
	} else if req.TargetGSD < 0 {
		return Result{}, &optics.ParameterError{Name: "targetGsd", Value: req.TargetGSD, Reason: "must be positive"}
	}

	// Facades work at a horizontal stand-off, so the altitude bounds do
	// not apply to their working distance.
	dist := pattern.Altitude(params)
	res.Clamp = guard.Ok
	if sp, ok := params.(pattern.SpiralParams); ok {
		start, end, w := s.Limits.ClampAltitudeRange(sp.StartAltitude, sp.EndAltitude)
		if w != guard.Ok {
			warn(WarnAltitudeClamped, "spiral altitudes %.1f-%.1f m are %s, clamped to %.1f-%.1f m",
				sp.StartAltitude, sp.EndAltitude, w, start, end)
			sp.StartAltitude, sp.EndAltitude = start, end
			params = sp
			dist = (start + end) / 2
		}
		res.Clamp = w
	} else if params.Kind() != pattern.KindFacade {
		clamped, w := s.Limits.ClampAltitude(dist)
		if w != guard.Ok {
			warn(WarnAltitudeClamped, "altitude %.1f m is %s, clamped to %.1f m", dist, w, clamped)
			params = pattern.WithAltitude(params, clamped)
			dist = clamped
		}
		res.Clamp = w
	}
	res.Altitude = dist

	focus := req.FocusDistance
	if focus == 0 {
		focus = dist
	}
	opt, err := optics.Compute(cam, dist, focus)
	if err != nil {
		return Result{}, fmt.Errorf("optics: %w", err)
	}
	res.Optics = opt
	if w := s.Limits.CheckGSD(opt.GSD); w != guard.Ok {
		warn(WarnGSDOutOfRange, "gsd %.2f cm/px is %s", opt.GSD, w)
	}
	if dist < opt.DOF.Near || (!opt.DOF.FarIsInfinite() && dist > opt.DOF.Far) {
		warn(WarnFocusBeyondDOF, "subject at %.1f m is outside the depth of field", dist)
	}

	wps, err := pattern.Generate(opt, params, ref)
	if err != nil {
		return Result{}, err
	}
	if err := guard.ValidateWaypoints(wps); err != nil {
		return Result{}, err
	}
	res.Waypoints = wps

	opts := stats.Options{
		Speed:            speed,
		HoverPerCapture:  s.HoverPerCapture,
		PerWaypointSpeed: req.PerWaypointSpeed,
	}
	if req.HoverPerCapture != nil {
		opts.HoverPerCapture = *req.HoverPerCapture
	}
	area, err := stats.PatternArea(params, ref)
	if err != nil {
		return Result{}, err
	}
	opts.Area = area
	switch v := params.(type) {
	case pattern.SurveyParams:
		opts.ImageSpacing, _ = optics.ImageSpacing(opt.Footprint.Height, v.FrontOverlapPct)
		opts.TrackSpacing, _ = optics.TrackSpacing(opt.Footprint.Width, v.SideOverlapPct)
		if dir, override := pattern.SurveyDirection(v); override {
			warn(WarnWindOverride, "wind %.1f m/s forces flight lines to %.0f°", v.WindSpeed, dir)
		}
	case pattern.SpiralParams:
		if pattern.SpiralFaceted(v) {
			warn(WarnSpiralFaceted, "%d segments over %.1f revolutions will look faceted", v.Segments, v.Revolutions)
		}
	}
	res.Stats, err = stats.Summarize(wps, opts)
	if err != nil {
		return Result{}, err
	}

	if bad := s.Limits.CheckAltitudes(wps); len(bad) > 0 {
		warn(WarnWaypointAltitude, "%d waypoints outside %.0f-%.0f m, first at index %d",
			len(bad), s.Limits.MinAltitude, s.Limits.MaxAltitude, bad[0])
	}
	return res, nil
}

func withWorkingDistance(p pattern.Params, d float64) pattern.Params {
	if f, ok := p.(pattern.FacadeParams); ok {
		f.StandoffDistance = d
		return f
	}
	return pattern.WithAltitude(p, d)
}

// IsInvalidInput reports whether err was caused by the request itself
// rather than by the service.
func IsInvalidInput(err error) bool {
	return errors.Is(err, optics.ErrInvalidParameter) ||
		errors.Is(err, pattern.ErrInvalidPattern) ||
		errors.Is(err, guard.ErrInsufficientWaypoints) ||
		errors.Is(err, guard.ErrMalformedWaypoint) ||
		errors.Is(err, stats.ErrInvalidSpeed) ||
		errors.Is(err, geo.ErrInvalidOrigin)
}

// IsOriginError reports whether err needs the mission origin to be set or
// moved before retrying.
func IsOriginError(err error) bool {
	return errors.Is(err, geo.ErrOriginNotSet) || errors.Is(err, geo.ErrOriginAlreadySet)
}
