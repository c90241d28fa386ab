// Package fass processes FASS (full aperture scintillation sensor) image
// cubes: pupil background and geometry measurement, and unwrapping the
// annular pupil into polar coordinates.  Unlike the DIMM tracker, every
// frame's unwrap is independent, so the cube is fanned out over a fixed
// worker pool with frame-disjoint output.
package fass

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/saao/timdimm/improc"
)

// PupilStats describes the background level and pupil geometry of one
// FASS image.
type PupilStats struct {
	BkgMean   float64
	BkgMedian float64
	BkgStd    float64

	// X, Y is the pupil center, Width its mean extent in pixels
	X, Y  float64
	Width float64
}

// ProcessImage subtracts the background, estimated from boxSize corner
// boxes, and measures the pupil center and width.  widthCut is the
// fraction of the peak marginal sum that counts as inside the pupil.
func ProcessImage(im improc.Image, boxSize int, widthCut float64) (improc.Image, PupilStats) {
	var bkg []float64
	for _, origin := range [4][2]int{
		{0, 0},
		{0, im.Height - boxSize},
		{im.Width - boxSize, 0},
		{im.Width - boxSize, im.Height - boxSize},
	} {
		for y := origin[1]; y < origin[1]+boxSize; y++ {
			for x := origin[0]; x < origin[0]+boxSize; x++ {
				bkg = append(bkg, im.At(x, y))
			}
		}
	}
	var st PupilStats
	st.BkgMean, st.BkgStd = stat.MeanStdDev(bkg, nil)
	st.BkgMedian = improc.Median(bkg)

	proc := im.SubScalar(st.BkgMedian)
	var total, sx, sy float64
	xsum := make([]float64, im.Width)
	ysum := make([]float64, im.Height)
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			v := proc.At(x, y)
			total += v
			sx += v * float64(x)
			sy += v * float64(y)
			xsum[x] += v
			ysum[y] += v
		}
	}
	st.X = sx / total
	st.Y = sy / total
	st.Width = (countAbove(xsum, widthCut) + countAbove(ysum, widthCut)) / 2
	return proc, st
}

func countAbove(sums []float64, cut float64) float64 {
	max := math.Inf(-1)
	for _, v := range sums {
		if v > max {
			max = v
		}
	}
	n := 0
	for _, v := range sums {
		if v > cut*max {
			n++
		}
	}
	return float64(n)
}

// InitCube averages the first nseed frames to measure the pupil size and
// initial center.
func InitCube(frames []improc.Image, nseed int) (improc.Image, PupilStats) {
	if nseed > len(frames) {
		nseed = len(frames)
	}
	proc, st := ProcessImage(improc.MeanStack(frames[:nseed]), 15, 0.1)
	return proc, st
}

// UnwrapConfig holds the polar unwrap tunables; zero fields take the
// defaults noted on each.
type UnwrapConfig struct {
	CenterGain float64 // pupil-center tracking gain, default 0.1
	RadialPad  int     // radial padding in pixels, default 10
	Oversample int     // output sampling factor, default 2
	Workers    int     // worker pool size, default 8
	SeedFrames int     // frames averaged for the initial geometry, default 500
}

func (c *UnwrapConfig) fillDefaults() {
	if c.CenterGain == 0 {
		c.CenterGain = 0.1
	}
	if c.RadialPad == 0 {
		c.RadialPad = 10
	}
	if c.Oversample == 0 {
		c.Oversample = 2
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.SeedFrames == 0 {
		c.SeedFrames = 500
	}
}

// UnwrapCube transforms every frame from (x, y) to (azimuth, radius)
// about the tracked pupil center.  Each frame is independent; frames are
// distributed over a fixed pool of workers, each writing only its own
// output slot.
func UnwrapCube(frames []improc.Image, cfg UnwrapConfig) []improc.Image {
	cfg.fillDefaults()
	_, st := InitCube(frames, cfg.SeedFrames)
	radius := st.Width/2 + float64(cfg.RadialPad)
	outW := int(float64(cfg.Oversample) * radius)
	outH := int(2 * math.Pi * float64(cfg.Oversample) * radius)

	out := make([]improc.Image, len(frames))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				proc, ps := ProcessImage(frames[idx], 15, 0.1)
				cx := st.X + cfg.CenterGain*(ps.X-st.X)
				cy := st.Y + cfg.CenterGain*(ps.Y-st.Y)
				out[idx] = warpPolar(proc, cx, cy, radius, outW, outH)
			}
		}()
	}
	for i := range frames {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

// warpPolar resamples im onto an (azimuth, radius) grid about (cx, cy)
// with bilinear interpolation; samples beyond the image edge are zero.
func warpPolar(im improc.Image, cx, cy, radius float64, w, h int) improc.Image {
	out := improc.NewImage(w, h)
	for a := 0; a < h; a++ {
		theta := 2 * math.Pi * float64(a) / float64(h)
		sin, cos := math.Sincos(theta)
		for r := 0; r < w; r++ {
			rad := radius * float64(r) / float64(w)
			out.Set(r, a, bilinear(im, cx+rad*cos, cy+rad*sin))
		}
	}
	return out
}

func bilinear(im improc.Image, x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	if x0 < 0 || y0 < 0 || x0 >= im.Width-1 || y0 >= im.Height-1 {
		return 0
	}
	fx := x - float64(x0)
	fy := y - float64(y0)
	return im.At(x0, y0)*(1-fx)*(1-fy) +
		im.At(x0+1, y0)*fx*(1-fy) +
		im.At(x0, y0+1)*(1-fx)*fy +
		im.At(x0+1, y0+1)*fx*fy
}
