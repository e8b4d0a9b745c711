package pattern

import (
	"errors"
	"fmt"
	"math"
)

// TerrainModel supplies ground height above the origin plane, in metres,
// at an ENU position.
type TerrainModel interface {
	HeightAt(east, north float64) (float64, error)
}

// FlatTerrain is ground at a constant height.
type FlatTerrain float64

func (f FlatTerrain) HeightAt(_, _ float64) (float64, error) { return float64(f), nil }

// GridTerrain is a regular height grid sampled bilinearly. Heights is
// row-major with Rows rows running north from OriginNorth and Cols
// columns running east from OriginEast. Lookups outside the grid clamp to
// the nearest edge.
type GridTerrain struct {
	OriginEast  float64   `json:"originEast"`
	OriginNorth float64   `json:"originNorth"`
	CellSize    float64   `json:"cellSize"`
	Cols        int       `json:"cols"`
	Rows        int       `json:"rows"`
	Heights     []float64 `json:"heights"`
}

func (g *GridTerrain) Validate() error {
	switch {
	case g.CellSize <= 0:
		return fmt.Errorf("cell size must be positive, got %g", g.CellSize)
	case g.Cols < 2 || g.Rows < 2:
		return fmt.Errorf("grid must be at least 2x2, got %dx%d", g.Cols, g.Rows)
	case len(g.Heights) != g.Cols*g.Rows:
		return fmt.Errorf("expected %d heights, got %d", g.Cols*g.Rows, len(g.Heights))
	}
	for _, h := range g.Heights {
		if !finite(h) {
			return errors.New("heights must be finite")
		}
	}
	return nil
}

func (g *GridTerrain) HeightAt(east, north float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	x := clampf((east-g.OriginEast)/g.CellSize, 0, float64(g.Cols-1))
	y := clampf((north-g.OriginNorth)/g.CellSize, 0, float64(g.Rows-1))
	c0 := min(int(math.Floor(x)), g.Cols-2)
	r0 := min(int(math.Floor(y)), g.Rows-2)
	fx, fy := x-float64(c0), y-float64(r0)

	at := func(r, c int) float64 { return g.Heights[r*g.Cols+c] }
	lower := lerp(at(r0, c0), at(r0, c0+1), fx)
	upper := lerp(at(r0+1, c0), at(r0+1, c0+1), fx)
	return lerp(lower, upper, fy), nil
}
