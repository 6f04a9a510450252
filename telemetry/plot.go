package telemetry

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/pthm-cable/racer/eval"
	"github.com/pthm-cable/racer/track"
)

var (
	colorMean   = color.RGBA{0, 80, 255, 255}
	colorMax    = color.RGBA{120, 170, 255, 255}
	colorCenter = color.RGBA{0, 140, 0, 255}
	colorBest   = color.RGBA{220, 0, 0, 255}
	colorTrack  = color.RGBA{128, 128, 128, 255}
)

// PlotLearningCurve renders population mean/max, center and best return per
// generation to a PNG (or any format plot.Save accepts by extension).
func PlotLearningCurve(path string, rows []GenerationStats) error {
	if len(rows) == 0 {
		return fmt.Errorf("no generations to plot")
	}

	p := plot.New()
	p.Title.Text = "Learning curve"
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Return"
	p.Add(plotter.NewGrid())

	mean := make(plotter.XYs, 0, len(rows))
	best := make(plotter.XYs, 0, len(rows))
	maxPts := make(plotter.XYs, 0, len(rows))
	center := make(plotter.XYs, 0, len(rows))
	for _, r := range rows {
		x := float64(r.Generation)
		mean = append(mean, plotter.XY{X: x, Y: r.Mean})
		maxPts = append(maxPts, plotter.XY{X: x, Y: r.Max})
		if !math.IsInf(r.BestReturn, 0) && !math.IsNaN(r.BestReturn) {
			best = append(best, plotter.XY{X: x, Y: r.BestReturn})
		}
		if !math.IsNaN(r.CenterReturn) {
			center = append(center, plotter.XY{X: x, Y: r.CenterReturn})
		}
	}

	series := []struct {
		name   string
		pts    plotter.XYs
		c      color.Color
		dashed bool
	}{
		{"population mean", mean, colorMean, false},
		{"population max", maxPts, colorMax, true},
		{"center", center, colorCenter, false},
		{"best", best, colorBest, true},
	}
	for _, s := range series {
		if len(s.pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(s.pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.name, err)
		}
		l.Color = s.c
		l.Width = vg.Points(1.2)
		if s.dashed {
			l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(l)
		p.Legend.Add(s.name, l)
	}
	p.Legend.Top = false
	p.Legend.Left = false

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

// trackEdges returns the left and right boundaries, closed.
func trackEdges(trk *track.Track) (left, right plotter.XYs) {
	n := trk.Len()
	half := trk.Width() / 2
	left = make(plotter.XYs, n+1)
	right = make(plotter.XYs, n+1)
	for i := 0; i <= n; i++ {
		pose := trk.PoseAt(i)
		nx, ny := -math.Sin(pose.Heading), math.Cos(pose.Heading)
		left[i] = plotter.XY{X: pose.X + nx*half, Y: pose.Y + ny*half}
		right[i] = plotter.XY{X: pose.X - nx*half, Y: pose.Y - ny*half}
	}
	return left, right
}

// PlotTrajectory draws the track centerline and boundaries with the recorded
// vehicle path on top. Off-track samples are marked.
func PlotTrajectory(path string, trk *track.Track, ep eval.Episode) error {
	if len(ep.Trajectory) == 0 {
		return fmt.Errorf("episode has no recorded trajectory")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectory (return %.1f, %d steps)", ep.Return, ep.Steps)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	cl := trk.Centerline()
	center := make(plotter.XYs, len(cl)+1)
	for i, pt := range cl {
		center[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	center[len(cl)] = center[0]

	cline, err := plotter.NewLine(center)
	if err != nil {
		return err
	}
	cline.Color = colorTrack
	cline.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	p.Add(cline)
	p.Legend.Add("centerline", cline)

	left, right := trackEdges(trk)
	for _, edge := range []plotter.XYs{left, right} {
		l, err := plotter.NewLine(edge)
		if err != nil {
			return err
		}
		l.Color = colorTrack
		l.Width = vg.Points(0.8)
		p.Add(l)
	}

	xy := make(plotter.XYs, len(ep.Trajectory))
	var off plotter.XYs
	for i, tp := range ep.Trajectory {
		xy[i] = plotter.XY{X: tp.X, Y: tp.Y}
		if tp.OffTrack {
			off = append(off, xy[i])
		}
	}
	line, err := plotter.NewLine(xy)
	if err != nil {
		return err
	}
	line.Color = colorMean
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("vehicle", line)

	start, err := plotter.NewScatter(xy[:1])
	if err != nil {
		return err
	}
	start.GlyphStyle.Shape = draw.CircleGlyph{}
	start.GlyphStyle.Color = colorCenter
	start.GlyphStyle.Radius = vg.Points(4)
	p.Add(start)
	p.Legend.Add("start", start)

	if len(off) > 0 {
		s, err := plotter.NewScatter(off)
		if err != nil {
			return err
		}
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Color = colorBest
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("off track", s)
	}

	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

// errorPoints pairs mean returns with +/- one std for error bars.
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// PlotRobustness renders mean return with std error bars against observation
// noise level.
func PlotRobustness(path string, rows []SweepStats) error {
	if len(rows) == 0 {
		return fmt.Errorf("no sweep results to plot")
	}

	p := plot.New()
	p.Title.Text = "Robustness to observation noise"
	p.X.Label.Text = "Observation noise std"
	p.Y.Label.Text = "Mean return"
	p.Add(plotter.NewGrid())

	pts := errorPoints{
		XYs:     make(plotter.XYs, len(rows)),
		YErrors: make(plotter.YErrors, len(rows)),
	}
	for i, r := range rows {
		pts.XYs[i] = plotter.XY{X: r.ObsNoise, Y: r.MeanReturn}
		pts.YErrors[i].Low = r.StdReturn
		pts.YErrors[i].High = r.StdReturn
	}

	line, scatter, err := plotter.NewLinePoints(pts.XYs)
	if err != nil {
		return err
	}
	line.Color = colorMean
	scatter.GlyphStyle.Color = colorMean
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}

	bars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return err
	}
	bars.Color = colorMean

	p.Add(line, scatter, bars)
	p.Legend.Add("mean return", line, scatter)

	return p.Save(7*vg.Inch, 5*vg.Inch, path)
}
