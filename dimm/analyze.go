package dimm

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/saao/timdimm/improc"
	"github.com/saao/timdimm/ser"
)

// Config drives one cube analysis.
type Config struct {
	// NApertures selects the mode: 2 for DIMM, 3 for HDIMM
	NApertures int `yaml:"napertures"`

	// Mask is the physical mask/detector description
	Mask MaskConfig `yaml:"mask"`

	// Airmass of the observation, used to project seeing to zenith.
	// Zero means 1 (zenith).
	Airmass float64 `yaml:"airmass"`

	// Radius overrides the default aperture radius when nonzero
	Radius float64 `yaml:"radius"`

	// SeedFrames is how many leading frames are averaged for the initial
	// detection image.  Zero means 5.
	SeedFrames int `yaml:"seed_frames"`

	// SeedThreshold is the detection threshold for the initial
	// detection, in background sigma.  Zero means 15.
	SeedThreshold float64 `yaml:"seed_threshold"`

	// BadFrameLimit overrides the tracker bad frame budget when nonzero
	BadFrameLimit int `yaml:"bad_frame_limit"`
}

// Result is the final artifact of a cube analysis.
type Result struct {
	// Seeing is the zenith-projected seeing in arcsec, averaged over
	// baselines.  It may be non-finite; callers decide how to treat
	// implausible values.
	Seeing float64

	// PerBaseline holds the seeing from each baseline
	PerBaseline []float64

	// BaselineSeries holds the baseline length time series, indexed
	// [baseline][valid frame]
	BaselineSeries [][]float64

	// Positions is the mean aperture position on each valid frame
	Positions [][2]float64

	// Fluxes holds the per-aperture fluxes on each valid frame
	Fluxes [][]float64

	// NBad counts frames that failed validation even after recovery
	NBad int

	// FrameTimes are the per-frame UTC timestamps from the cube trailer;
	// empty if the cube had none
	FrameTimes []time.Time

	// Timestamp is the observation time: the last frame time when the
	// trailer is present, otherwise the wall clock at analysis time
	Timestamp time.Time

	// Reference is the seed detection image (mean of the leading frames)
	// and Apertures the apertures found on it, for diagnostics
	Reference improc.Image
	Apertures []improc.Aperture
}

// AnalyzeCube runs the full seeing pipeline over a loaded cube: seed
// detection on the average of the first few frames, per-frame tracking
// across the whole cube, and conversion of the baseline scatter to
// seeing.
func AnalyzeCube(c *ser.Cube, cfg Config) (*Result, error) {
	n := cfg.NApertures
	if n == 0 {
		n = 2
	}
	tcfg := DefaultTrackerConfig(n)
	if cfg.Radius > 0 {
		tcfg.Radius = cfg.Radius
	}
	if cfg.BadFrameLimit > 0 {
		tcfg.BadFrameLimit = cfg.BadFrameLimit
	}
	airmass := cfg.Airmass
	if airmass == 0 {
		airmass = 1
	}
	seed := cfg.SeedFrames
	if seed == 0 {
		seed = 5
	}
	if seed > c.NFrames {
		seed = c.NFrames
	}
	seedThresh := cfg.SeedThreshold
	if seedThresh == 0 {
		seedThresh = 15
	}

	frames := make([]improc.Image, seed)
	for i := range frames {
		frames[i] = c.Frame(i)
	}
	ref := improc.MeanStack(frames)
	aps, err := improc.FindApertures(ref, n, improc.FindConfig{
		Threshold: seedThresh,
		Radius:    tcfg.Radius,
		Deblend:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("dimm: initial detection on reference frame: %w", err)
	}

	nb := n * (n - 1) / 2
	res := &Result{
		BaselineSeries: make([][]float64, nb),
		FrameTimes:     c.FrameTimes,
		Reference:      ref,
		Apertures:      aps,
	}
	tracker := NewTracker(aps, tcfg)
	for i := 0; i < c.NFrames; i++ {
		m, err := tracker.Step(c.Frame(i))
		if err != nil {
			return nil, err
		}
		if !m.Valid {
			continue
		}
		for bi, d := range m.Baselines {
			res.BaselineSeries[bi] = append(res.BaselineSeries[bi], d)
		}
		var mx, my float64
		for _, p := range m.Positions {
			mx += p[0]
			my += p[1]
		}
		fn := float64(len(m.Positions))
		res.Positions = append(res.Positions, [2]float64{mx / fn, my / fn})
		res.Fluxes = append(res.Fluxes, m.Fluxes)
	}
	res.NBad = tracker.BadFrames()

	res.PerBaseline = make([]float64, nb)
	for bi, series := range res.BaselineSeries {
		_, _, sigma := improc.SigmaClippedStats(series, 10, 10)
		s, err := Seeing(sigma, cfg.Mask)
		if err != nil {
			return nil, err
		}
		res.PerBaseline[bi] = s / math.Pow(airmass, 0.6)
	}
	res.Seeing = stat.Mean(res.PerBaseline, nil)

	if len(res.FrameTimes) > 0 {
		res.Timestamp = res.FrameTimes[len(res.FrameTimes)-1]
	} else {
		res.Timestamp = time.Now().UTC()
	}
	return res, nil
}
