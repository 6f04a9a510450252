package track

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustOval(t testing.TB) *Track {
	t.Helper()
	trk, err := New(LayoutOval, nil)
	if err != nil {
		t.Fatalf("New(oval): %v", err)
	}
	return trk
}

func TestNewUnknownLayout(t *testing.T) {
	trk, err := New("hexagon", nil)
	if !errors.Is(err, ErrUnknownLayout) {
		t.Fatalf("err = %v, want ErrUnknownLayout", err)
	}
	if trk != nil {
		t.Error("expected no track on error")
	}
}

func TestNewRandomRequiresRNG(t *testing.T) {
	if _, err := New(LayoutRandom, nil); err == nil {
		t.Fatal("expected error without rng")
	}
}

func TestLayoutSizes(t *testing.T) {
	tests := []struct {
		layout string
		want   int
	}{
		{LayoutOval, 50 + 29 + 49 + 29},
		{LayoutFigure8, 200},
		{LayoutRandom, 24 * 8},
	}
	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			trk, err := New(tt.layout, rand.New(rand.NewSource(1)))
			if err != nil {
				t.Fatal(err)
			}
			if trk.Len() != tt.want {
				t.Errorf("Len = %d, want %d", trk.Len(), tt.want)
			}
			if trk.Width() != DefaultWidth {
				t.Errorf("Width = %v, want %v", trk.Width(), DefaultWidth)
			}
		})
	}
}

func TestStartPose(t *testing.T) {
	trk := mustOval(t)
	pose := trk.StartPose()
	if pose.X != 0 || pose.Y != 0 || pose.Heading != 0 {
		t.Errorf("StartPose = %+v, want origin heading 0", pose)
	}
}

func TestClosestPointSignedOffset(t *testing.T) {
	trk := mustOval(t)

	left := trk.ClosestPointInfo(10.2, 1)
	if left.SignedOffset <= 0 {
		t.Errorf("left of travel should be positive, got %v", left.SignedOffset)
	}
	right := trk.ClosestPointInfo(10.2, -1)
	if right.SignedOffset >= 0 {
		t.Errorf("right of travel should be negative, got %v", right.SignedOffset)
	}
	if math.Abs(left.Tangent) > 1e-12 {
		t.Errorf("bottom straight tangent = %v, want 0", left.Tangent)
	}
}

func TestClosestPointSignFlipsAtCenterline(t *testing.T) {
	trk := mustOval(t)
	cl := trk.Centerline()

	for y := -2.0; y <= 2.0; y += 0.05 {
		info := trk.ClosestPointInfo(20.3, y)

		// Magnitude is the Euclidean distance to the nearest sample.
		want := math.Inf(1)
		for _, p := range cl {
			want = math.Min(want, math.Hypot(p.X-20.3, p.Y-y))
		}
		if math.Abs(math.Abs(info.SignedOffset)-want) > 1e-9 {
			t.Fatalf("y=%v: |offset| = %v, want %v", y, math.Abs(info.SignedOffset), want)
		}

		switch {
		case y > 1e-9 && info.SignedOffset <= 0:
			t.Fatalf("y=%v: offset %v should be positive", y, info.SignedOffset)
		case y < -1e-9 && info.SignedOffset >= 0:
			t.Fatalf("y=%v: offset %v should be negative", y, info.SignedOffset)
		}
	}
}

func TestClosestPointCurvature(t *testing.T) {
	trk := mustOval(t)

	straight := trk.ClosestPointInfo(25, 0)
	if math.Abs(straight.Curvature) > 1e-9 {
		t.Errorf("straight curvature = %v, want 0", straight.Curvature)
	}

	// Right-hand end of the oval turns counter-clockwise.
	turn := trk.ClosestPointInfo(60, 10)
	want := math.Pi / 29
	if math.Abs(turn.Curvature-want) > 1e-6 {
		t.Errorf("turn curvature = %v, want %v", turn.Curvature, want)
	}
	if turn.Curvature <= -math.Pi || turn.Curvature > math.Pi {
		t.Errorf("curvature %v outside (-Pi, Pi]", turn.Curvature)
	}
}

func TestClosestPointTieBreaksLowestIndex(t *testing.T) {
	trk, err := FromPoints([]Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got := trk.ClosestPointInfo(1, 1).Index; got != 0 {
		t.Errorf("Index = %d, want 0", got)
	}
}

func TestClosestPointDegenerateSegment(t *testing.T) {
	trk, err := FromPoints([]Point{{0, 0}, {0, 0}, {1, 0}, {1, 1}}, 4)
	if err != nil {
		t.Fatal(err)
	}
	info := trk.ClosestPointInfo(0.01, 0.5)
	if math.IsNaN(info.Tangent) || math.IsNaN(info.Curvature) || math.IsNaN(info.SignedOffset) {
		t.Fatalf("degenerate segment produced NaN: %+v", info)
	}
}

func TestFromPointsTooFew(t *testing.T) {
	if _, err := FromPoints([]Point{{0, 0}, {1, 1}}, 4); !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("err = %v, want ErrTooFewPoints", err)
	}
}

func TestIsOffTrack(t *testing.T) {
	trk := mustOval(t)
	tests := []struct {
		x, y float64
		want bool
	}{
		{10, 0, false},
		{10, 3.5, false},
		{10, -3.5, false},
		{10, 4.5, true},
		{10, -4.5, true},
		{25, 10, true}, // infield
	}
	for _, tt := range tests {
		if got := trk.IsOffTrack(tt.x, tt.y); got != tt.want {
			t.Errorf("IsOffTrack(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRegenerateFixedLayoutIsNoop(t *testing.T) {
	trk := mustOval(t)
	before := trk.Centerline()
	trk.Regenerate(rand.New(rand.NewSource(3)))
	if diff := cmp.Diff(before, trk.Centerline()); diff != "" {
		t.Errorf("oval changed on Regenerate (-before +after):\n%s", diff)
	}
}

func TestRandomLayoutDeterministic(t *testing.T) {
	a, err := New(LayoutRandom, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(LayoutRandom, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.Centerline(), b.Centerline()); diff != "" {
		t.Fatalf("same seed gave different tracks:\n%s", diff)
	}

	before := a.Centerline()
	a.Regenerate(rand.New(rand.NewSource(100)))
	if cmp.Equal(before, a.Centerline()) {
		t.Error("Regenerate did not change the random layout")
	}
	if a.Len() != 24*8 {
		t.Errorf("regenerated Len = %d, want %d", a.Len(), 24*8)
	}
}

func TestRegeneratedLeavesOriginal(t *testing.T) {
	orig, err := New(LayoutRandom, rand.New(rand.NewSource(5)), WithWidth(6))
	if err != nil {
		t.Fatal(err)
	}
	before := orig.Centerline()

	fresh := orig.Regenerated(rand.New(rand.NewSource(6)))
	if fresh == orig {
		t.Fatal("Regenerated returned the receiver for a random layout")
	}
	if diff := cmp.Diff(before, orig.Centerline()); diff != "" {
		t.Errorf("original centerline changed (-before +after):\n%s", diff)
	}
	if cmp.Equal(before, fresh.Centerline()) {
		t.Error("regenerated centerline equals the original")
	}
	if fresh.Width() != 6 || fresh.Layout() != LayoutRandom {
		t.Errorf("regenerated track = (%q, %v), want (%q, 6)", fresh.Layout(), fresh.Width(), LayoutRandom)
	}

	oval := mustOval(t)
	if got := oval.Regenerated(rand.New(rand.NewSource(6))); got != oval {
		t.Error("fixed layout should return itself")
	}
}

func TestRandomLayoutStaysInsideEllipse(t *testing.T) {
	p := DefaultRandomParams()
	trk, err := New(LayoutRandom, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatal(err)
	}
	for _, pt := range trk.Centerline() {
		nx := (pt.X - p.CenterX) / p.RadiusX
		ny := (pt.Y - p.CenterY) / p.RadiusY
		if math.Hypot(nx, ny) > p.MaxScale+1e-9 {
			t.Fatalf("point %+v outside the max-scale ellipse", pt)
		}
	}
}

func TestChaikinDoublesPoints(t *testing.T) {
	square := []Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	out := chaikin(square)
	want := []Point{{1, 0}, {3, 0}, {4, 1}, {4, 3}, {3, 4}, {1, 4}, {0, 3}, {0, 1}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("chaikin mismatch (-want +got):\n%s", diff)
	}
}

func TestPointWraps(t *testing.T) {
	trk := mustOval(t)
	if trk.Point(trk.Len()) != trk.Point(0) {
		t.Error("Point(len) should wrap to Point(0)")
	}
	if trk.Point(-1) != trk.Point(trk.Len()-1) {
		t.Error("Point(-1) should wrap to the last point")
	}
}

func BenchmarkClosestPointInfo(b *testing.B) {
	trk := mustOval(b)
	for i := 0; i < b.N; i++ {
		trk.ClosestPointInfo(30, 1)
	}
}
