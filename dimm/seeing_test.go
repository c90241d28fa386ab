package dimm

import (
	"math"
	"testing"

	"github.com/saao/timdimm/improc"
)

func TestSeeingKnownValue(t *testing.T) {
	// 0.3 px of longitudinal motion on the timDIMM mask, worked by hand
	// from the Tokovinin (2002) relations
	s, err := Seeing(0.3, TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s-0.3119) > 0.005 {
		t.Errorf("seeing = %v, want 0.3119 +/- 0.005", s)
	}
}

func TestSeeingFromBaselineScatter(t *testing.T) {
	// a baseline series with analytically known sample deviation run
	// through the clipped-scatter path must match the closed form exactly
	const n = 100
	const d = 0.3
	series := make([]float64, n)
	for i := range series {
		if i%2 == 0 {
			series[i] = 60 - d
		} else {
			series[i] = 60 + d
		}
	}
	_, _, sigma := improc.SigmaClippedStats(series, 10, 10)
	want := d * math.Sqrt(float64(n)/float64(n-1))
	if math.Abs(sigma-want) > 1e-12 {
		t.Fatalf("sigma = %v, want %v", sigma, want)
	}
	got, err := Seeing(sigma, TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	direct, err := Seeing(want, TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-direct)/direct > 1e-6 {
		t.Errorf("seeing via scatter path = %v, closed form = %v", got, direct)
	}
}

func TestSeeingScaling(t *testing.T) {
	// seeing goes as sigma^1.2
	s1, err := Seeing(0.3, TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	s2, err := Seeing(0.6, TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	want := s1 * math.Pow(2, 1.2)
	if math.Abs(s2-want) > 1e-9 {
		t.Errorf("Seeing(0.6) = %v, want %v", s2, want)
	}
}

func TestSeeingTransverseLarger(t *testing.T) {
	// the transverse response coefficient is smaller, so the same motion
	// implies worse seeing
	long, err := Seeing(0.3, TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	cfg := TimDIMM()
	cfg.Direction = "transverse"
	trans, err := Seeing(0.3, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if trans <= long {
		t.Errorf("transverse %v should exceed longitudinal %v", trans, long)
	}
}

func TestSeeingZeroMotion(t *testing.T) {
	s, err := Seeing(0, TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	if s != 0 {
		t.Errorf("zero motion gives seeing %v, want 0", s)
	}
}

func TestSeeingNaNPropagates(t *testing.T) {
	s, err := Seeing(math.NaN(), TimDIMM())
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(s) {
		t.Errorf("NaN motion gives %v, want NaN", s)
	}
}

func TestSeeingBadDirection(t *testing.T) {
	cfg := TimDIMM()
	cfg.Direction = "sideways"
	if _, err := Seeing(0.3, cfg); err == nil {
		t.Error("expected an error for an unknown direction")
	}
}

func TestMaskPresets(t *testing.T) {
	if c := TimDIMM(); c.Baseline != 0.200 || c.ApertureDiameter != 0.050 {
		t.Errorf("TimDIMM geometry wrong: %+v", c)
	}
	if c := MASSDIMM(); c.Baseline != 0.170 || c.ApertureDiameter != 0.070 {
		t.Errorf("MASSDIMM geometry wrong: %+v", c)
	}
	if c := HDIMM(); c.Baseline != 0.143 || c.ApertureDiameter != 0.0762 {
		t.Errorf("HDIMM geometry wrong: %+v", c)
	}
}
