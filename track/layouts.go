package track

import (
	"math"
	"math/rand"
	"sort"
)

// RandomParams controls the procedural layout.
type RandomParams struct {
	Anchors     int     `yaml:"anchors"`
	CenterX     float64 `yaml:"center_x"`
	CenterY     float64 `yaml:"center_y"`
	RadiusX     float64 `yaml:"radius_x"`
	RadiusY     float64 `yaml:"radius_y"`
	AngleJitter float64 `yaml:"angle_jitter"` // radians, uniform +/-
	MinScale    float64 `yaml:"min_scale"`    // radial scale lower bound
	MaxScale    float64 `yaml:"max_scale"`    // radial scale upper bound
	Smoothing   int     `yaml:"smoothing"`    // Chaikin iterations
}

// DefaultRandomParams returns the standard procedural settings.
func DefaultRandomParams() RandomParams {
	return RandomParams{
		Anchors:     24,
		CenterX:     50,
		CenterY:     35,
		RadiusX:     45,
		RadiusY:     28,
		AngleJitter: 0.15,
		MinScale:    0.4,
		MaxScale:    1.1,
		Smoothing:   3,
	}
}

// generateOval builds two 50 m straights joined by radius-10 semicircles,
// driven counter-clockwise from the origin.
func generateOval() []Point {
	pts := make([]Point, 0, 160)

	// Bottom straight, y=0, x 0 -> 50.
	for _, x := range linspace(0, 50, 50) {
		pts = append(pts, Point{x, 0})
	}
	// Right turn around (50, 10). The first sample duplicates the straight's end.
	for _, th := range linspace(-math.Pi/2, math.Pi/2, 30)[1:] {
		pts = append(pts, Point{50 + 10*math.Cos(th), 10 + 10*math.Sin(th)})
	}
	// Top straight, y=20, x 50 -> 0.
	for _, x := range linspace(50, 0, 50)[1:] {
		pts = append(pts, Point{x, 20})
	}
	// Left turn around (0, 10), ending back at the origin.
	for _, th := range linspace(math.Pi/2, 3*math.Pi/2, 30)[1:] {
		pts = append(pts, Point{10 * math.Cos(th), 10 + 10*math.Sin(th)})
	}
	return pts
}

// generateFigure8 samples a lemniscate of scale 40 shifted into the positive quadrant.
func generateFigure8() []Point {
	const (
		scale     = 40.0
		numPoints = 200
	)
	pts := make([]Point, 0, numPoints)
	for _, t := range linspace(0, 2*math.Pi, numPoints) {
		s := math.Sin(t)
		c := math.Cos(t)
		denom := 1 + s*s
		pts = append(pts, Point{
			X: scale*c/denom + 50,
			Y: scale*s*c/denom + 30,
		})
	}
	return pts
}

// generateRandom jitters anchors around an ellipse, sorts them by angle so the
// loop cannot self-intersect at the anchor level, then Chaikin-smooths them.
func generateRandom(p RandomParams, rng *rand.Rand) []Point {
	n := p.Anchors
	if n < 3 {
		n = 3
	}

	angles := make([]float64, n)
	for i := range angles {
		angles[i] = 2*math.Pi*float64(i)/float64(n) + (rng.Float64()*2-1)*p.AngleJitter
	}
	sort.Float64s(angles)

	anchors := make([]Point, n)
	for i, th := range angles {
		r := p.MinScale + rng.Float64()*(p.MaxScale-p.MinScale)
		anchors[i] = Point{
			X: p.CenterX + p.RadiusX*r*math.Cos(th),
			Y: p.CenterY + p.RadiusY*r*math.Sin(th),
		}
	}

	pts := anchors
	for i := 0; i < p.Smoothing; i++ {
		pts = chaikin(pts)
	}
	return pts
}

// chaikin performs one closed corner-cutting pass at 1/4 and 3/4 of each segment.
func chaikin(pts []Point) []Point {
	n := len(pts)
	out := make([]Point, 0, 2*n)
	for i := 0; i < n; i++ {
		p0 := pts[i]
		p1 := pts[(i+1)%n]
		out = append(out,
			Point{0.75*p0.X + 0.25*p1.X, 0.75*p0.Y + 0.25*p1.Y},
			Point{0.25*p0.X + 0.75*p1.X, 0.25*p0.Y + 0.75*p1.Y},
		)
	}
	return out
}

// linspace returns n evenly spaced samples over [start, stop], endpoints included.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	out[n-1] = stop
	return out
}
