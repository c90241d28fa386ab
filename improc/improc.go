// Package improc contains the 2D image processing used by the seeing
// pipeline: robust image statistics, Gaussian smoothing, source
// segmentation, and circular aperture photometry.
package improc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Image is a row-major 2D float image.
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// NewImage allocates a zeroed w x h image
func NewImage(w, h int) Image {
	return Image{Width: w, Height: h, Pix: make([]float64, w*h)}
}

// At returns the pixel value at (x, y)
func (im Image) At(x, y int) float64 {
	return im.Pix[y*im.Width+x]
}

// Set assigns the pixel value at (x, y)
func (im Image) Set(x, y int, v float64) {
	im.Pix[y*im.Width+x] = v
}

// SubScalar returns a new image with v subtracted from every pixel
func (im Image) SubScalar(v float64) Image {
	out := NewImage(im.Width, im.Height)
	for i, p := range im.Pix {
		out.Pix[i] = p - v
	}
	return out
}

// Median returns the median pixel value
func (im Image) Median() float64 {
	return Median(im.Pix)
}

// Median returns the median of data.  The input is not modified.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	work := make([]float64, len(data))
	copy(work, data)
	sort.Float64s(work)
	n := len(work)
	if n%2 == 1 {
		return work[n/2]
	}
	return (work[n/2-1] + work[n/2]) / 2
}

// MeanStack averages a stack of equally sized frames into one image
func MeanStack(frames []Image) Image {
	out := NewImage(frames[0].Width, frames[0].Height)
	for _, f := range frames {
		for i, p := range f.Pix {
			out.Pix[i] += p
		}
	}
	n := float64(len(frames))
	for i := range out.Pix {
		out.Pix[i] /= n
	}
	return out
}

// SigmaClippedStats computes the mean, median, and standard deviation of
// data with iterative outlier rejection.  Samples further than sigma
// standard deviations from the running mean are discarded and the moments
// recomputed, up to maxiters times or until no samples are rejected.
func SigmaClippedStats(data []float64, sigma float64, maxiters int) (mean, median, std float64) {
	if len(data) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	work := make([]float64, len(data))
	copy(work, data)
	for iter := 0; iter < maxiters; iter++ {
		m, s := stat.MeanStdDev(work, nil)
		lo, hi := m-sigma*s, m+sigma*s
		kept := work[:0]
		for _, v := range work {
			if v >= lo && v <= hi {
				kept = append(kept, v)
			}
		}
		stable := len(kept) == len(work)
		work = kept
		if stable || len(work) < 2 {
			break
		}
	}
	if len(work) < 2 {
		// everything clipped away; degenerate input
		if len(work) == 1 {
			return work[0], work[0], 0
		}
		return math.NaN(), math.NaN(), math.NaN()
	}
	mean, std = stat.MeanStdDev(work, nil)
	median = Median(work)
	return mean, median, std
}
