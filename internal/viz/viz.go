// Package viz renders predicted vs ground-truth actions and an episode image strip.
package viz

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DefaultLabels names the action dims of the reference robot setup.
var DefaultLabels = []string{"x", "y", "z", "yaw", "pitch", "roll", "grasp", "aa", "bb"}

const (
	gridCols   = 3
	stripEvery = 3
)

var (
	predColor  = color.RGBA{R: 220, G: 60, B: 40, A: 255}
	truthColor = color.RGBA{R: 30, G: 100, B: 200, A: 255}
)

// #region files
// Files lists the images written by Render.
type Files struct {
	Actions string
	Strip   string
}

// Render writes actions.png and strip.png into dir.
func Render(dir string, frames []image.Image, pred, truth [][]float32, labels []string) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create plot dir: %w", err)
	}
	files := Files{
		Actions: filepath.Join(dir, "actions.png"),
		Strip:   filepath.Join(dir, "strip.png"),
	}
	var g errgroup.Group
	g.Go(func() error {
		return PlotActions(files.Actions, pred, truth, labels)
	})
	g.Go(func() error {
		strip, err := ImageStrip(frames, stripEvery)
		if err != nil {
			return err
		}
		return savePNG(files.Strip, strip)
	})
	if err := g.Wait(); err != nil {
		return Files{}, err
	}
	return files, nil
}

// #endregion files

// #region actions
// PlotActions draws one panel per action dim, predicted vs ground truth over
// the episode, and saves the grid as a PNG.
func PlotActions(path string, pred, truth [][]float32, labels []string) error {
	if len(pred) == 0 || len(pred) != len(truth) {
		return fmt.Errorf("plot actions: %d predictions, %d ground-truth actions", len(pred), len(truth))
	}
	dim := len(truth[0])
	if len(pred[0]) < dim {
		dim = len(pred[0])
	}
	if dim == 0 {
		return fmt.Errorf("plot actions: zero action dims")
	}

	cols := gridCols
	if dim < cols {
		cols = dim
	}
	rows := (dim + cols - 1) / cols

	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, cols)
	}
	for d := 0; d < dim; d++ {
		p, err := dimPlot(pred, truth, d, label(labels, d))
		if err != nil {
			return err
		}
		plots[d/cols][d%cols] = p
	}
	for d := dim; d < rows*cols; d++ {
		blank := plot.New()
		blank.HideAxes()
		plots[d/cols][d%cols] = blank
	}

	img := vgimg.New(vg.Length(cols)*4*vg.Inch, vg.Length(rows)*3*vg.Inch)
	dc := draw.New(img)
	canvases := plot.Align(plots, draw.Tiles{Rows: rows, Cols: cols, PadX: vg.Millimeter, PadY: vg.Millimeter}, dc)
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func dimPlot(pred, truth [][]float32, d int, name string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "Time in one episode"
	p.Add(plotter.NewGrid())

	predXY := make(plotter.XYs, len(pred))
	truthXY := make(plotter.XYs, len(truth))
	for i := range pred {
		predXY[i] = plotter.XY{X: float64(i), Y: float64(pred[i][d])}
		truthXY[i] = plotter.XY{X: float64(i), Y: float64(truth[i][d])}
	}

	pl, err := plotter.NewLine(predXY)
	if err != nil {
		return nil, fmt.Errorf("predicted line %s: %w", name, err)
	}
	pl.Color = predColor
	pl.Width = vg.Points(1.2)

	tl, err := plotter.NewLine(truthXY)
	if err != nil {
		return nil, fmt.Errorf("ground truth line %s: %w", name, err)
	}
	tl.Color = truthColor
	tl.Width = vg.Points(1.2)

	p.Add(pl, tl)
	p.Legend.Add("predicted action", pl)
	p.Legend.Add("ground truth", tl)
	p.Legend.Top = true
	return p, nil
}

func label(labels []string, d int) string {
	if d < len(labels) {
		return labels[d]
	}
	return fmt.Sprintf("dim_%d", d)
}

// #endregion actions

// #region strip
// ImageStrip concatenates every n-th frame left to right. Frames are scaled
// to the height of the first frame.
func ImageStrip(frames []image.Image, every int) (*image.RGBA, error) {
	if every <= 0 {
		every = 1
	}
	var picked []image.Image
	for i := 0; i < len(frames); i += every {
		if frames[i] == nil {
			return nil, fmt.Errorf("frame %d is nil", i)
		}
		picked = append(picked, frames[i])
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("image strip: no frames")
	}

	h := picked[0].Bounds().Dy()
	width := 0
	widths := make([]int, len(picked))
	for i, f := range picked {
		b := f.Bounds()
		widths[i] = b.Dx() * h / b.Dy()
		width += widths[i]
	}

	out := image.NewRGBA(image.Rect(0, 0, width, h))
	x := 0
	for i, f := range picked {
		dst := image.Rect(x, 0, x+widths[i], h)
		xdraw.BiLinear.Scale(out, dst, f, f.Bounds(), xdraw.Src, nil)
		x += widths[i]
	}
	return out, nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// #endregion strip
