package improc

import (
	"math"
	"testing"
)

func TestGaussianKernelNormalized(t *testing.T) {
	k := GaussianKernel(5, 15)
	if k.Width != 15 || k.Height != 15 {
		t.Fatalf("kernel is %dx%d, want 15x15", k.Width, k.Height)
	}
	sum := 0.0
	for _, v := range k.Pix {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("kernel sums to %v, want 1", sum)
	}
	// the peak is at the central pixel
	c := k.At(7, 7)
	for i, v := range k.Pix {
		if v > c {
			t.Fatalf("pixel %d exceeds the center", i)
		}
	}
}

func TestGaussianKernelEvenSize(t *testing.T) {
	k := GaussianKernel(5, 14)
	if k.Width != 15 {
		t.Errorf("even size not bumped to odd: got %d", k.Width)
	}
}

func TestConvolveImpulse(t *testing.T) {
	im := NewImage(21, 21)
	im.Set(10, 10, 1)
	k := GaussianKernel(5, 15)
	out := Convolve(im, k)
	// convolving a unit impulse reproduces the kernel about the impulse
	for ky := 0; ky < k.Height; ky++ {
		for kx := 0; kx < k.Width; kx++ {
			got := out.At(10+kx-7, 10+ky-7)
			want := k.At(kx, ky)
			if math.Abs(got-want) > 1e-12 {
				t.Fatalf("out(%d,%d) = %v, want %v", 10+kx-7, 10+ky-7, got, want)
			}
		}
	}
}
