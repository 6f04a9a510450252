// Package track holds the closed centerline the vehicle drives on and the
// geometric queries against it.
package track

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pthm-cable/racer/components"
	"github.com/pthm-cable/racer/physics"
)

// Layout names.
const (
	LayoutOval    = "oval"
	LayoutFigure8 = "figure8"
	LayoutRandom  = "random"
)

// DefaultWidth is the full track width in meters (half on either side).
const DefaultWidth = 8.0

// segmentEpsilon guards tangent normalisation on zero-length segments.
const segmentEpsilon = 1e-9

var (
	// ErrUnknownLayout is returned for a layout name that is not recognised.
	ErrUnknownLayout = errors.New("unknown track layout")
	// ErrTooFewPoints is returned when a centerline has fewer than three points.
	ErrTooFewPoints = errors.New("centerline needs at least 3 points")
)

// Point is a 2D centerline sample.
type Point struct {
	X, Y float64
}

// Track is a closed polyline plus a width. Index arithmetic wraps modulo the
// number of points. A Track is read-only except for Regenerate, so it may be
// shared between environments as long as nobody calls Regenerate on it.
// Environments use Regenerated, which never touches the shared value.
type Track struct {
	layout     string
	width      float64
	centerline []Point
	random     RandomParams
}

// Option configures New.
type Option func(*Track)

// WithWidth sets the full track width.
func WithWidth(w float64) Option {
	return func(t *Track) { t.width = w }
}

// WithRandomParams overrides the procedural generator settings.
func WithRandomParams(p RandomParams) Option {
	return func(t *Track) { t.random = p }
}

// New builds a track for the named layout. The random layout draws its first
// centerline from rng; fixed layouts ignore rng, which may be nil for them.
func New(layout string, rng *rand.Rand, opts ...Option) (*Track, error) {
	t := &Track{
		layout: layout,
		width:  DefaultWidth,
		random: DefaultRandomParams(),
	}
	for _, opt := range opts {
		opt(t)
	}

	switch layout {
	case LayoutOval:
		t.centerline = generateOval()
	case LayoutFigure8:
		t.centerline = generateFigure8()
	case LayoutRandom:
		if rng == nil {
			return nil, fmt.Errorf("track %q: random layout needs an rng", layout)
		}
		t.centerline = generateRandom(t.random, rng)
	default:
		return nil, fmt.Errorf("track %q: %w", layout, ErrUnknownLayout)
	}
	return t, nil
}

// FromPoints builds a track over an explicit centerline. The slice is copied.
func FromPoints(points []Point, width float64) (*Track, error) {
	if len(points) < 3 {
		return nil, ErrTooFewPoints
	}
	cl := make([]Point, len(points))
	copy(cl, points)
	return &Track{layout: "custom", width: width, centerline: cl}, nil
}

// Layout returns the layout name.
func (t *Track) Layout() string { return t.layout }

// Width returns the full track width.
func (t *Track) Width() float64 { return t.width }

// Len returns the number of centerline points.
func (t *Track) Len() int { return len(t.centerline) }

// Point returns centerline point i, wrapping the index.
func (t *Track) Point(i int) Point {
	n := len(t.centerline)
	return t.centerline[((i%n)+n)%n]
}

// Centerline returns a copy of the centerline.
func (t *Track) Centerline() []Point {
	out := make([]Point, len(t.centerline))
	copy(out, t.centerline)
	return out
}

// ProjectionInfo is the result of projecting a position onto the centerline.
type ProjectionInfo struct {
	SignedOffset float64 // distance to the closest point, positive = left of travel
	Index        int     // index of the closest centerline point
	Point        Point   // the closest centerline point
	Tangent      float64 // heading from Point to the next point
	Curvature    float64 // wrapped change in tangent over the next segment, (-Pi, Pi]
}

// ClosestPointInfo projects (x, y) onto the nearest centerline sample.
// Ties go to the lowest index.
func (t *Track) ClosestPointInfo(x, y float64) ProjectionInfo {
	best := 0
	bestSq := math.Inf(1)
	for i, p := range t.centerline {
		dx := p.X - x
		dy := p.Y - y
		d := dx*dx + dy*dy
		if d < bestSq {
			bestSq = d
			best = i
		}
	}

	cur := t.centerline[best]
	next := t.Point(best + 1)
	nextNext := t.Point(best + 2)

	tx, ty := next.X-cur.X, next.Y-cur.Y
	tangent := segmentHeading(tx, ty)
	nextTangent := segmentHeading(nextNext.X-next.X, nextNext.Y-next.Y)

	// cross(tangent, point->vehicle): positive when the vehicle is on the left.
	cross := tx*(y-cur.Y) - ty*(x-cur.X)
	dist := math.Sqrt(bestSq)
	signed := dist
	switch {
	case cross < 0:
		signed = -dist
	case cross == 0:
		signed = 0
	}

	return ProjectionInfo{
		SignedOffset: signed,
		Index:        best,
		Point:        cur,
		Tangent:      tangent,
		Curvature:    physics.WrapAngle(nextTangent - tangent),
	}
}

// IsOffTrack reports whether (x, y) is further than half the width from the centerline.
func (t *Track) IsOffTrack(x, y float64) bool {
	return math.Abs(t.ClosestPointInfo(x, y).SignedOffset) > t.width/2
}

// Progress returns the fraction of the centerline index reached, in [0, 1).
func (t *Track) Progress(index int) float64 {
	return float64(index) / float64(len(t.centerline))
}

// StartPose is the first centerline point with heading 0.
func (t *Track) StartPose() components.Pose {
	p := t.centerline[0]
	return components.Pose{X: p.X, Y: p.Y, Heading: 0}
}

// PoseAt returns centerline point i facing along the local tangent.
func (t *Track) PoseAt(i int) components.Pose {
	p := t.Point(i)
	n := t.Point(i + 1)
	return components.Pose{X: p.X, Y: p.Y, Heading: segmentHeading(n.X-p.X, n.Y-p.Y)}
}

// Regenerate draws a new procedural centerline from rng. It is a no-op with a
// warning for the fixed layouts.
func (t *Track) Regenerate(rng *rand.Rand) {
	if t.layout != LayoutRandom {
		slog.Warn("cannot regenerate fixed track layout", "layout", t.layout)
		return
	}
	t.centerline = generateRandom(t.random, rng)
}

// Regenerated returns a new track with a centerline drawn from rng, leaving t
// untouched. Fixed layouts return t itself.
func (t *Track) Regenerated(rng *rand.Rand) *Track {
	if t.layout != LayoutRandom {
		return t
	}
	return &Track{
		layout:     t.layout,
		width:      t.width,
		random:     t.random,
		centerline: generateRandom(t.random, rng),
	}
}

// segmentHeading returns the heading of (dx, dy). A degenerate segment gives 0.
func segmentHeading(dx, dy float64) float64 {
	if dx*dx+dy*dy < segmentEpsilon*segmentEpsilon {
		return 0
	}
	return math.Atan2(dy, dx)
}
