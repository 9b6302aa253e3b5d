package imaging

import (
	"math"
	"sort"
)

type point struct{ x, y float64 }

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull returns the hull in counter-clockwise order (monotone chain).
// Collinear input yields the two extreme points.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRectAngle returns the edge direction (degrees, atan2 convention in
// image coordinates) of the minimum-area rectangle enclosing the hull.
// The rectangle always has one side collinear with a hull edge.
func minAreaRectAngle(hull []point) float64 {
	if len(hull) < 2 {
		return 0
	}
	bestArea := math.Inf(1)
	bestAngle := 0.0
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		dx, dy := b.x-a.x, b.y-a.y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*ux + p.y*uy
			v := -p.x*uy + p.y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < bestArea-1e-9 {
			bestArea = area
			bestAngle = math.Atan2(uy, ux) * 180 / math.Pi
		}
	}
	return bestAngle
}

// correctionAngle converts a rectangle edge direction into the rotation that
// axis-aligns it. The direction is first expressed in the [-90, 0) rectangle
// convention and then folded into (-45, 45].
func correctionAngle(edgeDeg float64) float64 {
	a := math.Mod(edgeDeg, 90)
	if a < 0 {
		a += 90
	}
	rect := a - 90
	if rect < -45 {
		return -(90 + rect)
	}
	return -rect
}
