package geo

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/mmp/earcut-go"
)

// Polygon is a simple planar polygon in east/north metres. The last vertex
// does not repeat the first.
type Polygon []r2.Point

// PolygonFromENU projects points onto the horizontal plane.
func PolygonFromENU(pts []ENUPoint) Polygon {
	poly := make(Polygon, len(pts))
	for i, p := range pts {
		poly[i] = p.Planar()
	}
	return poly
}

// SignedArea is the shoelace area; positive for counter-clockwise winding.
func (p Polygon) SignedArea() float64 {
	var a float64
	for i := range p {
		j := (i + 1) % len(p)
		a += p[i].Cross(p[j])
	}
	return a / 2
}

// IsCCW reports counter-clockwise winding.
func (p Polygon) IsCCW() bool { return p.SignedArea() > 0 }

// CCW returns a copy wound counter-clockwise.
func (p Polygon) CCW() Polygon {
	out := make(Polygon, len(p))
	copy(out, p)
	if !out.IsCCW() {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Area triangulates the polygon and sums the triangle areas, in m².
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	verts := make([]earcut.Vertex, len(p))
	for i, v := range p {
		verts[i].P = [2]float64{v.X, v.Y}
	}
	var area float64
	for _, tri := range earcut.Triangulate(earcut.Polygon{Rings: [][]earcut.Vertex{verts}}) {
		a := r2.Point{X: tri.Vertices[0].P[0], Y: tri.Vertices[0].P[1]}
		b := r2.Point{X: tri.Vertices[1].P[0], Y: tri.Vertices[1].P[1]}
		c := r2.Point{X: tri.Vertices[2].P[0], Y: tri.Vertices[2].P[1]}
		area += math.Abs(b.Sub(a).Cross(c.Sub(a))) / 2
	}
	return area
}

// Centroid is the area-weighted centre; it falls back to the vertex mean
// for degenerate polygons.
func (p Polygon) Centroid() r2.Point {
	a := p.SignedArea()
	if math.Abs(a) < 1e-12 {
		var c r2.Point
		for _, v := range p {
			c = c.Add(v)
		}
		if len(p) > 0 {
			c = c.Mul(1 / float64(len(p)))
		}
		return c
	}
	var cx, cy float64
	for i := range p {
		j := (i + 1) % len(p)
		k := p[i].Cross(p[j])
		cx += (p[i].X + p[j].X) * k
		cy += (p[i].Y + p[j].Y) * k
	}
	return r2.Point{X: cx / (6 * a), Y: cy / (6 * a)}
}

// Contains is an even-odd point-in-polygon test.
func (p Polygon) Contains(pt r2.Point) bool {
	inside := false
	for i := range p {
		p0, p1 := p[i], p[(i+1)%len(p)]
		if (p0.Y <= pt.Y && pt.Y < p1.Y) || (p1.Y <= pt.Y && pt.Y < p0.Y) {
			x := p0.X + (pt.Y-p0.Y)*(p1.X-p0.X)/(p1.Y-p0.Y)
			if x > pt.X {
				inside = !inside
			}
		}
	}
	return inside
}

// HasDegenerateEdge reports consecutive duplicate vertices.
func (p Polygon) HasDegenerateEdge() bool {
	for i := range p {
		if p[i].Sub(p[(i+1)%len(p)]).Norm() < 1e-9 {
			return true
		}
	}
	return false
}

// SelfIntersects reports whether any two non-adjacent edges touch or
// cross.
func (p Polygon) SelfIntersects() bool {
	n := len(p)
	for i := 0; i < n; i++ {
		a0, a1 := p[i], p[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(a0, a1, p[j], p[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

func orient(a, b, c r2.Point) float64 { return b.Sub(a).Cross(c.Sub(a)) }

func onSegment(a, b, c r2.Point) bool {
	return math.Min(a.X, b.X)-1e-12 <= c.X && c.X <= math.Max(a.X, b.X)+1e-12 &&
		math.Min(a.Y, b.Y)-1e-12 <= c.Y && c.Y <= math.Max(a.Y, b.Y)+1e-12
}

func segmentsIntersect(p1, p2, p3, p4 r2.Point) bool {
	const eps = 1e-12
	d1 := orient(p3, p4, p1)
	d2 := orient(p3, p4, p2)
	d3 := orient(p1, p2, p3)
	d4 := orient(p1, p2, p4)
	if ((d1 > eps && d2 < -eps) || (d1 < -eps && d2 > eps)) &&
		((d3 > eps && d4 < -eps) || (d3 < -eps && d4 > eps)) {
		return true
	}
	switch {
	case math.Abs(d1) <= eps && onSegment(p3, p4, p1):
		return true
	case math.Abs(d2) <= eps && onSegment(p3, p4, p2):
		return true
	case math.Abs(d3) <= eps && onSegment(p1, p2, p3):
		return true
	case math.Abs(d4) <= eps && onSegment(p1, p2, p4):
		return true
	}
	return false
}

// Extent returns the range of the vertices projected onto axis, which
// should be a unit vector.
func (p Polygon) Extent(axis r2.Point) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range p {
		d := v.Dot(axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

// Interval is a [T0, T1] parameter range along a line.
type Interval struct {
	T0, T1 float64
}

// ClipLine intersects the infinite line origin + t·dir (dir a unit
// vector) with the polygon and returns the inside intervals in increasing
// t.
func (p Polygon) ClipLine(origin, dir r2.Point) []Interval {
	var ts []float64
	n := len(p)
	for i := 0; i < n; i++ {
		a, b := p[i], p[(i+1)%n]
		sa := dir.Cross(a.Sub(origin))
		sb := dir.Cross(b.Sub(origin))
		// Half-open test so a vertex lying on the line is counted once.
		if (sa > 0) == (sb > 0) {
			continue
		}
		u := sa / (sa - sb)
		hit := a.Add(b.Sub(a).Mul(u))
		ts = append(ts, hit.Sub(origin).Dot(dir))
	}
	sort.Float64s(ts)

	var out []Interval
	for i := 0; i+1 < len(ts); i += 2 {
		if ts[i+1]-ts[i] > 1e-9 {
			out = append(out, Interval{T0: ts[i], T1: ts[i+1]})
		}
	}
	return out
}
