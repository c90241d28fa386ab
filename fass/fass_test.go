package fass

import (
	"math"
	"testing"

	"github.com/saao/timdimm/improc"
)

// pupilFrame paints a filled square pupil on a flat background.
func pupilFrame(size, cx, cy, width int, amp, bkg float64) improc.Image {
	im := improc.NewImage(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := bkg
			if abs(x-cx) <= width/2 && abs(y-cy) <= width/2 {
				v += amp
			}
			im.Set(x, y, v)
		}
	}
	return im
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestProcessImage(t *testing.T) {
	im := pupilFrame(64, 32, 32, 21, 500, 10)
	proc, st := ProcessImage(im, 8, 0.1)
	if st.BkgMedian != 10 {
		t.Errorf("background median = %v, want 10", st.BkgMedian)
	}
	if st.BkgStd != 0 {
		t.Errorf("background std = %v, want 0", st.BkgStd)
	}
	if math.Abs(st.X-32) > 0.5 || math.Abs(st.Y-32) > 0.5 {
		t.Errorf("pupil center = (%v, %v), want (32, 32)", st.X, st.Y)
	}
	if math.Abs(st.Width-21) > 1 {
		t.Errorf("pupil width = %v, want 21", st.Width)
	}
	// background is removed
	if proc.At(0, 0) != 0 {
		t.Errorf("corner pixel = %v after subtraction", proc.At(0, 0))
	}
}

func TestUnwrapCubeWorkerCountInvariant(t *testing.T) {
	frames := make([]improc.Image, 12)
	for i := range frames {
		frames[i] = pupilFrame(64, 32, 32, 21, 500, 10)
	}
	one := UnwrapCube(frames, UnwrapConfig{Workers: 1, SeedFrames: 4})
	four := UnwrapCube(frames, UnwrapConfig{Workers: 4, SeedFrames: 4})
	if len(one) != len(frames) || len(four) != len(frames) {
		t.Fatalf("output lengths %d and %d, want %d", len(one), len(four), len(frames))
	}
	for i := range one {
		if one[i].Width != four[i].Width || one[i].Height != four[i].Height {
			t.Fatalf("frame %d geometry differs between worker counts", i)
		}
		for j := range one[i].Pix {
			if one[i].Pix[j] != four[i].Pix[j] {
				t.Fatalf("frame %d pixel %d differs between worker counts", i, j)
			}
		}
	}
}

func TestUnwrapGeometry(t *testing.T) {
	frames := []improc.Image{pupilFrame(64, 32, 32, 21, 500, 10)}
	out := UnwrapCube(frames, UnwrapConfig{Workers: 2, SeedFrames: 1})
	im := out[0]
	if im.Width <= 0 || im.Height <= 0 {
		t.Fatal("empty unwrap output")
	}
	// radius zero maps every azimuth row to the pupil center value
	center := im.At(0, 0)
	for a := 1; a < im.Height; a++ {
		if im.At(0, a) != center {
			t.Fatalf("azimuth row %d differs at radius zero", a)
		}
	}
}
