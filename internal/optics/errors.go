package optics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter is returned when an optics formula receives a
// non-positive or otherwise out-of-domain input.
var ErrInvalidParameter = errors.New("invalid optics parameter")

// ParameterError names the offending input.
type ParameterError struct {
	Name   string
	Value  float64
	Reason string
}

func (e *ParameterError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "must be positive and finite"
	}
	return fmt.Sprintf("invalid optics parameter %s=%g: %s", e.Name, e.Value, reason)
}

func (e *ParameterError) Unwrap() error { return ErrInvalidParameter }

func requirePositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &ParameterError{Name: name, Value: v}
	}
	return nil
}

func requirePercent(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v >= 100 {
		return &ParameterError{Name: name, Value: v, Reason: "must be in [0, 100)"}
	}
	return nil
}
