// Package humanize generates pointer paths and timings that resemble manual input.
package humanize

import (
	"math"
	"math/rand"
)

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X, Y float64
}

// Box is an element's bounding box in viewport coordinates.
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the middle of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Curve holds the control points of a cubic Bezier pointer path.
type Curve struct {
	Start, C1, C2, End Point
}

// NewCurve builds the control points for a move from start to end. Both control
// points sit half the straight-line distance from start, each rotated off the
// bearing by an independent angle drawn from [-wobble, wobble].
func NewCurve(start, end Point, wobble float64, rng *rand.Rand) Curve {
	dx, dy := end.X-start.X, end.Y-start.Y
	dist := math.Hypot(dx, dy) + 1
	bearing := math.Atan2(dy, dx)
	r := dist / 2

	w1 := uniform(rng, -wobble, wobble)
	w2 := uniform(rng, -wobble, wobble)

	return Curve{
		Start: start,
		C1:    Point{start.X + r*math.Cos(bearing+w1), start.Y + r*math.Sin(bearing+w1)},
		C2:    Point{start.X + r*math.Cos(bearing+w2), start.Y + r*math.Sin(bearing+w2)},
		End:   end,
	}
}

// At evaluates the curve at t in [0, 1].
func (c Curve) At(t float64) Point {
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	d := 3 * u * t * t
	e := t * t * t
	return Point{
		X: a*c.Start.X + b*c.C1.X + d*c.C2.X + e*c.End.X,
		Y: a*c.Start.Y + b*c.C1.Y + d*c.C2.Y + e*c.End.Y,
	}
}

// Sample returns the curve at t = i/steps for i = 1..steps. The last point is End.
func (c Curve) Sample(steps int) []Point {
	if steps < 1 {
		steps = 1
	}
	pts := make([]Point, 0, steps)
	for i := 1; i <= steps; i++ {
		if i == steps {
			pts = append(pts, c.End)
			break
		}
		pts = append(pts, c.At(float64(i)/float64(steps)))
	}
	return pts
}

// Path is the full sequence of pointer positions for one move.
type Path struct {
	Curve  Curve
	Points []Point
	Jitter []Point
}

// PathParams bounds the random choices made by NewPath.
type PathParams struct {
	MinSteps, MaxSteps int
	Wobble             float64
	JitterRadius       float64
	MaxJitter          int
}

// DefaultPathParams are the ranges the catalog flows were tuned with.
var DefaultPathParams = PathParams{
	MinSteps:     18,
	MaxSteps:     42,
	Wobble:       0.35,
	JitterRadius: 1.5,
	MaxJitter:    2,
}

// NewPath plans a curved move from start to end followed by 0..MaxJitter
// small corrections within JitterRadius of end on each axis.
func NewPath(start, end Point, p PathParams, rng *rand.Rand) Path {
	curve := NewCurve(start, end, p.Wobble, rng)
	steps := intBetween(rng, p.MinSteps, p.MaxSteps)

	path := Path{
		Curve:  curve,
		Points: curve.Sample(steps),
	}

	n := intBetween(rng, 0, p.MaxJitter)
	for i := 0; i < n; i++ {
		path.Jitter = append(path.Jitter, Point{
			X: end.X + uniform(rng, -p.JitterRadius, p.JitterRadius),
			Y: end.Y + uniform(rng, -p.JitterRadius, p.JitterRadius),
		})
	}
	return path
}

// All returns the curve samples followed by the jitter moves.
func (p Path) All() []Point {
	out := make([]Point, 0, len(p.Points)+len(p.Jitter))
	out = append(out, p.Points...)
	return append(out, p.Jitter...)
}

// PointIn picks a target inside the central 20-80% of box on each axis.
func PointIn(box Box, rng *rand.Rand) Point {
	return Point{
		X: box.X + uniform(rng, box.Width*0.2, box.Width*0.8),
		Y: box.Y + uniform(rng, box.Height*0.2, box.Height*0.8),
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

// intBetween returns a uniform integer in [lo, hi].
func intBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}
