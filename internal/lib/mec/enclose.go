// Package mec computes the minimum enclosing circle of a planar point set.
//
// The solver is the deterministic pivoting variant of Welzl's move-to-front
// construction described by Gärtner ("Fast and robust smallest enclosing
// balls", ESA 1999): instead of inserting points in random order, each outer
// step pivots on the point with the largest excess over the current circle
// and re-solves the small sub-problem formed by the current support.
package mec

import "math"

const (
	// DefaultMaxIterations bounds the outer pivot loop when no cap is given.
	DefaultMaxIterations = 2000

	// Ulps of slack granted to the excess of a boundary point
	toleranceFactor = 32
)

// Tolerance returns the excess below which a point counts as inside a circle
// of the given squared radius. magnitude is the largest absolute coordinate
// of the center. Forming p-c on absolute coordinates rounds at the scale of
// epsilon·magnitude, so the slack grows with r·magnitude as well as r².
// A circle of zero radius has no slack: only exact copies of its center are
// inside.
func Tolerance(sqRadius, magnitude float64) float64 {
	if !(sqRadius > 0) {
		return 0
	}
	r := math.Sqrt(sqRadius)
	return toleranceFactor * epsilon * r * (math.Abs(magnitude) + r)
}

// IterationBudget returns an outer iteration cap proportional to the input
// size, never less than one.
func IterationBudget(n, factor int) int {
	if n < 1 || factor < 1 {
		return 1
	}
	return n * factor
}

// Enclose returns the smallest circle containing every point. points is not
// modified; the solver reorders a private copy. A non-positive maxIterations
// selects DefaultMaxIterations. Exhausting the cap is reported through
// Result.Approximate rather than an error.
func Enclose(points []Point, maxIterations int) Result {
	if len(points) == 0 {
		return Result{Circle: Circle{Center: Point{math.NaN(), math.NaN()}}}
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	s := &solver{
		pts:   append([]Point(nil), points...),
		basis: newSupportBasis(),
	}
	return s.run(maxIterations)
}

type solver struct {
	pts   []Point
	basis *supportBasis

	// pts[:supportEnd] are the points on the boundary of the working circle
	supportEnd int
}

// frame is one level of the move-to-front descent: the prefix pts[:end] is
// scanned with next as the cursor.
type frame struct {
	end  int
	next int
}

func (s *solver) tolerance() float64 {
	return s.basis.circle().Tolerance()
}

func (s *solver) run(maxIterations int) Result {
	s.solvePrefix(1)
	t := 1

	iterations := 0
	converged := false
	for iterations < maxIterations {
		pivot, maxExcess := s.maxExcess(t)
		if maxExcess <= s.tolerance() {
			converged = true
			break
		}
		iterations++

		end := s.supportEnd
		before := s.basis.sqRadius

		s.basis.push(s.pts[pivot])
		s.solvePrefix(end)
		s.basis.pop()
		s.moveToFront(pivot)

		// The old support plus the pivot now sit at the front and are inside.
		t = end + 1

		// No growth means rounding has stalled the pivoting.
		if s.basis.sqRadius <= before {
			break
		}
	}

	if !converged {
		_, maxExcess := s.maxExcess(0)
		converged = maxExcess <= s.tolerance()
	}

	support := s.supportEnd
	if support > maxSupport {
		support = maxSupport
	}

	return Result{
		Circle:      s.basis.circle(),
		Support:     append([]Point(nil), s.pts[:support]...),
		Iterations:  iterations,
		Approximate: !converged,
	}
}

// solvePrefix computes the smallest circle containing pts[:end] with the
// current basis on its boundary. It is the move-to-front recursion unrolled
// onto a fixed stack: a frame is opened for every successful push and closed
// once its prefix is exhausted, at which point the pushed point is popped
// and moved to the front.
func (s *solver) solvePrefix(end int) {
	s.supportEnd = 0
	if s.basis.size == maxSupport {
		return
	}

	var frames [maxSupport]frame
	frames[0] = frame{end: end}
	depth := 1

	for depth > 0 {
		f := &frames[depth-1]

		if f.next >= f.end {
			depth--
			if depth > 0 {
				parent := &frames[depth-1]
				s.basis.pop()
				s.moveToFront(parent.next)
				parent.next++
			}
			continue
		}

		j := f.next
		if s.basis.excess(s.pts[j]) > s.tolerance() && s.basis.push(s.pts[j]) {
			s.supportEnd = 0
			if s.basis.size == maxSupport {
				// A full basis fixes the circle; nothing left to descend into.
				s.basis.pop()
				s.moveToFront(j)
				f.next++
				continue
			}
			frames[depth] = frame{end: j}
			depth++
			continue
		}

		// Inside, or numerically indistinguishable from the boundary.
		f.next++
	}
}

// maxExcess scans pts[from:] for the point furthest outside the working
// circle. The first maximum wins.
func (s *solver) maxExcess(from int) (int, float64) {
	best, bestExcess := -1, math.Inf(-1)
	for i := from; i < len(s.pts); i++ {
		if e := s.basis.excess(s.pts[i]); e > bestExcess {
			best, bestExcess = i, e
		}
	}
	return best, bestExcess
}

// moveToFront rotates pts[j] to index 0, extending the support prefix when
// j lies at or beyond its end.
func (s *solver) moveToFront(j int) {
	if s.supportEnd <= j {
		s.supportEnd++
	}
	p := s.pts[j]
	copy(s.pts[1:j+1], s.pts[:j])
	s.pts[0] = p
}
