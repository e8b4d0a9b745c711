package pattern

import "golang.org/x/exp/constraints"

func lerp[T constraints.Float](a, b, t T) T { return a + (b-a)*t }

func clampf[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func degrees[T constraints.Float](rad T) T { return rad * 180 / 3.141592653589793 }
