package mec

import "math"

// maxSupport is the most points that can pin a circle in the plane.
const maxSupport = 3

// epsilon is the float64 machine epsilon.
const epsilon = 2.220446049250313e-16

// supportBasis is the stack of points currently forced onto the boundary.
// Frame i keeps the circle computed when its point was pushed, so a pop is
// just a size decrement. The projector holds unit vectors spanning the
// pushed points relative to the first one; it lets a push update the center
// along a single residual direction instead of solving a linear system.
//
// The working circle (center, sqRadius) survives a pop: after a
// sub-problem returns, its circle is the one the caller continues with.
type supportBasis struct {
	size int
	q0   Point

	centers   [maxSupport]Point
	sqRadii   [maxSupport]float64
	projector [maxSupport - 1]Point

	center   Point
	sqRadius float64
}

func newSupportBasis() *supportBasis {
	return &supportBasis{sqRadius: -1}
}

// circle returns the working circle.
func (b *supportBasis) circle() Circle {
	return Circle{Center: b.center, SqRadius: b.sqRadius}
}

// excess of p against the working circle. Before the first push the working
// circle has negative squared radius, so every point is outside.
func (b *supportBasis) excess(p Point) float64 {
	return p.SqDist(b.center) - b.sqRadius
}

// push forces p onto the boundary. It returns false, leaving the basis
// unchanged, when p is numerically dependent on the points already pushed
// (coincident with them, or collinear with two of them).
func (b *supportBasis) push(p Point) bool {
	if b.size == maxSupport {
		return false
	}

	if b.size == 0 {
		b.q0 = p
		b.centers[0] = p
		b.sqRadii[0] = 0
	} else {
		residual := p.Sub(b.q0)
		for i := 0; i < b.size-1; i++ {
			u := b.projector[i]
			residual = residual.Sub(u.Scale(u.Dot(residual)))
		}

		// Differences from q0 are formed exactly for nearby points, so the
		// residual of a dependent point is noise relative to the radius.
		z := 2 * residual.SqNorm()
		if !(z > epsilon*b.sqRadius) {
			return false
		}

		prev := b.size - 1
		e := p.SqDist(b.centers[prev]) - b.sqRadii[prev]
		f := e / z

		b.centers[b.size] = b.centers[prev].Add(residual.Scale(f))
		b.sqRadii[b.size] = b.sqRadii[prev] + e*f/2
		b.projector[prev] = residual.Scale(1 / math.Sqrt(residual.SqNorm()))
	}

	b.center = b.centers[b.size]
	b.sqRadius = b.sqRadii[b.size]
	b.size++
	return true
}

func (b *supportBasis) pop() {
	if b.size > 0 {
		b.size--
	}
}
