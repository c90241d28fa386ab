package improc

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrTooFewSources is returned by FindApertures when fewer than the
// requested number of sources survive segmentation.
var ErrTooFewSources = errors.New("improc: too few sources detected")

// Aperture is a circular measurement region centered at (X, Y).
type Aperture struct {
	X, Y float64
	R    float64
}

// FindConfig holds the tunables for source detection.  The zero value is
// filled in with the defaults used on the reference frame.
type FindConfig struct {
	// Threshold is the detection threshold in units of the sigma-clipped
	// background standard deviation
	Threshold float64

	// Radius is the radius of the returned apertures, in pixels
	Radius float64

	// MinPixels is the smallest segment kept as a source
	MinPixels int

	// KernelFWHM and KernelSize describe the Gaussian matched to the
	// expected spot profile
	KernelFWHM float64
	KernelSize int

	// Deblend splits segments that contain more than one local peak
	Deblend bool
}

func (c *FindConfig) fillDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 15
	}
	if c.Radius == 0 {
		c.Radius = 11
	}
	if c.MinPixels == 0 {
		c.MinPixels = 15
	}
	if c.KernelFWHM == 0 {
		c.KernelFWHM = 5
	}
	if c.KernelSize == 0 {
		c.KernelSize = 15
	}
}

type source struct {
	cx, cy float64
	flux   float64
	peak   float64
	npix   int
}

// FindApertures detects the n brightest compact sources in im and returns
// one circular aperture per source.  The image is background subtracted
// using sigma-clipped statistics, smoothed with a Gaussian kernel, and
// segmented above threshold.  Sources are ranked by peak value; the
// returned apertures are sorted ascending by x centroid so baselines refer
// to the same physical pairs from call to call.
func FindApertures(im Image, n int, cfg FindConfig) ([]Aperture, error) {
	cfg.fillDefaults()
	mean, _, std := SigmaClippedStats(im.Pix, 3, 5)
	sub := im.SubScalar(mean)
	conv := Convolve(sub, GaussianKernel(cfg.KernelFWHM, cfg.KernelSize))
	segs := findSegments(conv, cfg.Threshold*std, cfg.MinPixels)
	if cfg.Deblend {
		segs = deblendSegments(conv, segs, cfg.MinPixels)
	}
	srcs := make([]source, 0, len(segs))
	for _, px := range segs {
		s := measureSegment(sub, px)
		if s.npix >= cfg.MinPixels && s.flux > 0 {
			srcs = append(srcs, s)
		}
	}
	if len(srcs) < n {
		return nil, fmt.Errorf("%w: found %d, want %d", ErrTooFewSources, len(srcs), n)
	}
	sort.Slice(srcs, func(i, j int) bool { return srcs[i].peak > srcs[j].peak })
	srcs = srcs[:n]
	sort.Slice(srcs, func(i, j int) bool { return srcs[i].cx < srcs[j].cx })
	aps := make([]Aperture, n)
	for i, s := range srcs {
		aps[i] = Aperture{X: s.cx, Y: s.cy, R: cfg.Radius}
	}
	return aps, nil
}

// measureSegment computes the flux, peak value, and flux-weighted centroid
// of a segment over the background-subtracted image.
func measureSegment(im Image, px []int) source {
	var s source
	s.peak = math.Inf(-1)
	var sx, sy float64
	for _, i := range px {
		v := im.Pix[i]
		x := float64(i % im.Width)
		y := float64(i / im.Width)
		s.flux += v
		sx += v * x
		sy += v * y
		if v > s.peak {
			s.peak = v
		}
	}
	s.npix = len(px)
	if s.flux != 0 {
		s.cx = sx / s.flux
		s.cy = sy / s.flux
	} else {
		s.cx = math.NaN()
		s.cy = math.NaN()
	}
	return s
}

// neighbor offsets for 8-connectivity
var offsets8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// findSegments labels 8-connected regions of im above thresh and returns
// the flat pixel indices of each region at least minPix pixels large.
func findSegments(im Image, thresh float64, minPix int) [][]int {
	visited := make([]bool, len(im.Pix))
	var segs [][]int
	var stack []int
	for i := range im.Pix {
		if visited[i] || im.Pix[i] <= thresh {
			continue
		}
		visited[i] = true
		stack = append(stack[:0], i)
		var px []int
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px = append(px, j)
			x := j % im.Width
			y := j / im.Width
			for _, off := range offsets8 {
				nx, ny := x+off[0], y+off[1]
				if nx < 0 || nx >= im.Width || ny < 0 || ny >= im.Height {
					continue
				}
				k := ny*im.Width + nx
				if !visited[k] && im.Pix[k] > thresh {
					visited[k] = true
					stack = append(stack, k)
				}
			}
		}
		if len(px) >= minPix {
			segs = append(segs, px)
		}
	}
	return segs
}

// deblendSegments splits any segment containing more than one local peak
// by assigning each pixel to its nearest peak.  Sub-segments smaller than
// minPix are discarded.
func deblendSegments(im Image, segs [][]int, minPix int) [][]int {
	out := make([][]int, 0, len(segs))
	for _, px := range segs {
		inSeg := make(map[int]bool, len(px))
		for _, i := range px {
			inSeg[i] = true
		}
		var peaks []int
		for _, i := range px {
			if isLocalMax(im, i, inSeg) {
				peaks = append(peaks, i)
			}
		}
		if len(peaks) <= 1 {
			out = append(out, px)
			continue
		}
		buckets := make([][]int, len(peaks))
		for _, i := range px {
			x := float64(i % im.Width)
			y := float64(i / im.Width)
			best := 0
			bestD := math.Inf(1)
			for pi, p := range peaks {
				dx := x - float64(p%im.Width)
				dy := y - float64(p/im.Width)
				d := dx*dx + dy*dy
				if d < bestD {
					bestD = d
					best = pi
				}
			}
			buckets[best] = append(buckets[best], i)
		}
		for _, b := range buckets {
			if len(b) >= minPix {
				out = append(out, b)
			}
		}
	}
	return out
}

func isLocalMax(im Image, i int, inSeg map[int]bool) bool {
	v := im.Pix[i]
	x := i % im.Width
	y := i / im.Width
	for _, off := range offsets8 {
		nx, ny := x+off[0], y+off[1]
		if nx < 0 || nx >= im.Width || ny < 0 || ny >= im.Height {
			continue
		}
		k := ny*im.Width + nx
		if inSeg[k] && im.Pix[k] > v {
			return false
		}
	}
	return true
}

// ApStats holds the integrated flux and flux-weighted centroid measured
// inside one circular aperture.
type ApStats struct {
	X, Y float64
	Flux float64
}

// Photometry measures the integrated flux and centroid of im inside ap.
// Pixels whose centers fall within the aperture radius are included.  If
// the integrated flux is zero the centroid is NaN.
func Photometry(im Image, ap Aperture) ApStats {
	x0 := int(math.Floor(ap.X - ap.R))
	x1 := int(math.Ceil(ap.X + ap.R))
	y0 := int(math.Floor(ap.Y - ap.R))
	y1 := int(math.Ceil(ap.Y + ap.R))
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > im.Width-1 {
		x1 = im.Width - 1
	}
	if y1 > im.Height-1 {
		y1 = im.Height - 1
	}
	r2 := ap.R * ap.R
	var flux, sx, sy float64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := float64(x) - ap.X
			dy := float64(y) - ap.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			v := im.At(x, y)
			flux += v
			sx += v * float64(x)
			sy += v * float64(y)
		}
	}
	st := ApStats{Flux: flux}
	if flux != 0 {
		st.X = sx / flux
		st.Y = sy / flux
	} else {
		st.X = math.NaN()
		st.Y = math.NaN()
	}
	return st
}
