package pattern

import (
	"errors"
	"fmt"
)

// ErrInvalidPattern marks a structural violation in pattern parameters.
var ErrInvalidPattern = errors.New("invalid pattern")

// PatternError says which pattern was rejected and why.
type PatternError struct {
	Kind   Kind
	Reason string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid %s pattern: %s", e.Kind, e.Reason)
}

func (e *PatternError) Unwrap() error { return ErrInvalidPattern }

func invalid(kind Kind, format string, args ...any) error {
	return &PatternError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
