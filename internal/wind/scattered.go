package wind

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Scattered-data interpolants evaluated at the origin of the centered
// offsets. Each returns one weight per point such that the interpolated
// value is the weighted sum of the point values. ok is false when the
// origin lies outside the convex hull of the points.

type point struct{ x, y float64 }

const geomEps = 1e-9

func offsets(cells []GridCell) []point {
	pts := make([]point, len(cells))
	for i, c := range cells {
		pts[i] = point{c.XCentered, c.YCentered}
	}
	return pts
}

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// extent returns the largest distance of any point from the origin, used to
// scale tolerances.
func extent(pts []point) float64 {
	var m float64
	for _, p := range pts {
		m = math.Max(m, math.Hypot(p.x, p.y))
	}
	return m
}

// checkGeometry requires at least three points not all on one line.
func checkGeometry(pts []point) error {
	if len(pts) < 3 {
		return degenerateErrorf("need at least 3 cells, have %d", len(pts))
	}
	scale := extent(pts)
	tol := geomEps * scale * scale
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				if math.Abs(cross(pts[i], pts[j], pts[k])) > tol {
					return nil
				}
			}
		}
	}
	return degenerateErrorf("all %d cells are collinear", len(pts))
}

// inCircumcircle reports whether d lies strictly inside the circumcircle of
// the counter-clockwise triangle a, b, c.
func inCircumcircle(a, b, c, d point, tol float64) bool {
	ax, ay := a.x-d.x, a.y-d.y
	bx, by := b.x-d.x, b.y-d.y
	cx, cy := c.x-d.x, c.y-d.y
	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)
	return det > tol
}

// barycentric returns the coordinates of the origin in triangle a, b, c.
func barycentric(a, b, c point) (float64, float64, float64) {
	den := (b.y-c.y)*(a.x-c.x) + (c.x-b.x)*(a.y-c.y)
	l1 := ((b.y-c.y)*(-c.x) + (c.x-b.x)*(-c.y)) / den
	l2 := ((c.y-a.y)*(-c.x) + (a.x-c.x)*(-c.y)) / den
	return l1, l2, 1 - l1 - l2
}

// linearWeights finds a Delaunay triangle containing the origin and returns
// its barycentric weights. Neighbor sets are at most a few dozen points, so
// triangles are enumerated directly. Triangles are visited in index order,
// which keeps the choice deterministic when points are cocircular.
func linearWeights(pts []point) ([]float64, bool, error) {
	if err := checkGeometry(pts); err != nil {
		return nil, false, err
	}
	scale := extent(pts)
	areaTol := geomEps * scale * scale
	circTol := geomEps * scale * scale * scale * scale

	n := len(pts)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				a, b, c := pts[i], pts[j], pts[k]
				ia, ib, ic := i, j, k
				area := cross(a, b, c)
				if math.Abs(area) <= areaTol {
					continue
				}
				if area < 0 {
					b, c = c, b
					ib, ic = ic, ib
				}
				l1, l2, l3 := barycentric(a, b, c)
				if l1 < -geomEps || l2 < -geomEps || l3 < -geomEps {
					continue
				}
				empty := true
				for m := 0; m < n && empty; m++ {
					if m == i || m == j || m == k {
						continue
					}
					if inCircumcircle(a, b, c, pts[m], circTol) {
						empty = false
					}
				}
				if !empty {
					continue
				}
				w := make([]float64, n)
				w[ia], w[ib], w[ic] = l1, l2, l3
				return w, true, nil
			}
		}
	}
	return nil, false, nil
}

// insideHull reports whether the origin lies in the convex hull of pts.
func insideHull(pts []point) bool {
	n := len(pts)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				a, b, c := pts[i], pts[j], pts[k]
				if cross(a, b, c) < 0 {
					b, c = c, b
				}
				if cross(a, b, c) == 0 {
					continue
				}
				l1, l2, l3 := barycentric(a, b, c)
				if l1 >= -geomEps && l2 >= -geomEps && l3 >= -geomEps {
					return true
				}
			}
		}
	}
	return false
}

// cubicWeights returns the cardinal weights of the polyharmonic cubic
// interpolant phi(r) = r^3 with a linear polynomial tail, evaluated at the
// origin. Coordinates are scaled to unit extent before solving.
func cubicWeights(pts []point) ([]float64, bool, error) {
	if err := checkGeometry(pts); err != nil {
		return nil, false, err
	}
	if !insideHull(pts) {
		return nil, false, nil
	}

	scale := extent(pts)
	if scale == 0 {
		return nil, false, degenerateErrorf("all cells coincide")
	}
	sp := make([]point, len(pts))
	for i, p := range pts {
		sp[i] = point{p.x / scale, p.y / scale}
	}

	n := len(sp)
	size := n + 3
	a := mat.NewDense(size, size, nil)
	b := mat.NewVecDense(size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r := math.Hypot(sp[i].x-sp[j].x, sp[i].y-sp[j].y)
			a.Set(i, j, r*r*r)
		}
		a.Set(i, n, 1)
		a.Set(i, n+1, sp[i].x)
		a.Set(i, n+2, sp[i].y)
		a.Set(n, i, 1)
		a.Set(n+1, i, sp[i].x)
		a.Set(n+2, i, sp[i].y)

		r := math.Hypot(sp[i].x, sp[i].y)
		b.SetVec(i, r*r*r)
	}
	// Polynomial part evaluated at the origin: [1, 0, 0].
	b.SetVec(n, 1)

	// The system matrix is symmetric, so solving A s = b yields the
	// cardinal weights directly.
	var s mat.VecDense
	if err := s.SolveVec(a, b); err != nil {
		return nil, false, degenerateErrorf("cubic system is singular: %v", err)
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = s.AtVec(i)
	}
	return w, true, nil
}
