package improc

import (
	"math"
	"testing"
)

func TestMedian(t *testing.T) {
	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd median = %v, want 2", got)
	}
	if got := Median([]float64{4, 1, 2, 3}); got != 2.5 {
		t.Errorf("even median = %v, want 2.5", got)
	}
	if !math.IsNaN(Median(nil)) {
		t.Error("empty median should be NaN")
	}
	// input must not be reordered
	data := []float64{3, 1, 2}
	Median(data)
	if data[0] != 3 || data[1] != 1 || data[2] != 2 {
		t.Error("Median reordered its input")
	}
}

func TestMeanStack(t *testing.T) {
	a := NewImage(2, 2)
	b := NewImage(2, 2)
	for i := range a.Pix {
		a.Pix[i] = 1
		b.Pix[i] = 3
	}
	m := MeanStack([]Image{a, b})
	for i, v := range m.Pix {
		if v != 2 {
			t.Errorf("pixel %d = %v, want 2", i, v)
		}
	}
}

func TestSigmaClippedStatsRejectsOutlier(t *testing.T) {
	var data []float64
	for i := 0; i < 30; i++ {
		data = append(data, float64(i%10))
	}
	data = append(data, 1000)
	mean, median, std := SigmaClippedStats(data, 3, 5)
	if math.Abs(mean-4.5) > 1e-9 {
		t.Errorf("clipped mean = %v, want 4.5", mean)
	}
	if math.Abs(median-4.5) > 1e-9 {
		t.Errorf("clipped median = %v, want 4.5", median)
	}
	if std > 5 {
		t.Errorf("clipped std = %v, outlier not rejected", std)
	}
}

func TestSigmaClippedStatsDegenerate(t *testing.T) {
	mean, median, std := SigmaClippedStats([]float64{7, 7, 7, 7}, 3, 5)
	if mean != 7 || median != 7 || std != 0 {
		t.Errorf("constant data: got %v %v %v, want 7 7 0", mean, median, std)
	}
	m, _, _ := SigmaClippedStats(nil, 3, 5)
	if !math.IsNaN(m) {
		t.Error("empty data should yield NaN")
	}
}

func TestImageAccess(t *testing.T) {
	im := NewImage(3, 2)
	im.Set(2, 1, 9)
	if im.At(2, 1) != 9 {
		t.Error("Set/At disagree")
	}
	sub := im.SubScalar(1)
	if sub.At(2, 1) != 8 || sub.At(0, 0) != -1 {
		t.Error("SubScalar wrong")
	}
	if im.At(2, 1) != 9 {
		t.Error("SubScalar modified its receiver")
	}
}
