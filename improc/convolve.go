package improc

import "math"

// GaussianKernel returns a normalized 2D Gaussian kernel with the given
// full width at half maximum, in a size x size image.  Even sizes are
// bumped up by one so the kernel has a central pixel.
func GaussianKernel(fwhm float64, size int) Image {
	if size%2 == 0 {
		size++
	}
	sigma := fwhm / (2 * math.Sqrt(2*math.Ln2))
	k := NewImage(size, size)
	c := float64(size / 2)
	sum := 0.0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) - c
			dy := float64(y) - c
			v := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			k.Set(x, y, v)
			sum += v
		}
	}
	for i := range k.Pix {
		k.Pix[i] /= sum
	}
	return k
}

// Convolve convolves im with kernel k, treating pixels beyond the image
// edge as zero.  The output has the same dimensions as im.
func Convolve(im, k Image) Image {
	out := NewImage(im.Width, im.Height)
	kcx := k.Width / 2
	kcy := k.Height / 2
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			acc := 0.0
			for ky := 0; ky < k.Height; ky++ {
				sy := y + ky - kcy
				if sy < 0 || sy >= im.Height {
					continue
				}
				for kx := 0; kx < k.Width; kx++ {
					sx := x + kx - kcx
					if sx < 0 || sx >= im.Width {
						continue
					}
					acc += im.At(sx, sy) * k.At(kx, ky)
				}
			}
			out.Set(x, y, acc)
		}
	}
	return out
}
