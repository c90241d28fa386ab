package dimm

import (
	"errors"
	"math"
	"sort"

	"github.com/saao/timdimm/improc"
)

// ErrBadFrameBudget is returned by the tracker when more frames failed
// validation than the configured limit allows.  A run that trips the
// budget is unusable; no partial result is kept.
var ErrBadFrameBudget = errors.New("dimm: bad frame budget exceeded")

// State is the tracker state.
type State int

const (
	// Tracking means the current apertures are assumed valid
	Tracking State = iota
	// Redetecting means a single-frame recovery attempt is in progress
	Redetecting
	// Aborted is terminal; the bad frame budget was exceeded
	Aborted
)

// Measurement is the per-frame tracking result.  Invalid measurements
// carry no positions; they only advance the bad frame count.
type Measurement struct {
	Valid     bool
	Positions [][2]float64 // per-aperture centroid, sorted ascending by x
	Fluxes    []float64    // per-aperture integrated flux
	Baselines []float64    // pairwise distances, (0,1), (0,2), (1,2), ...
}

// TrackerConfig holds the tunables of the per-frame tracking loop.
type TrackerConfig struct {
	// NApertures is 2 for a classic DIMM, 3 for a Hartmann DIMM
	NApertures int

	// Radius is the aperture radius in pixels
	Radius float64

	// BadFrameLimit is the number of unrecoverable frames tolerated
	// before the run aborts.  Exceeding the limit aborts; hitting it
	// exactly does not.
	BadFrameLimit int

	// OverlapFraction rejects 3-aperture frames where any baseline is
	// shorter than this fraction of the radius
	OverlapFraction float64

	// RedetectThreshold is the detection threshold, in background sigma,
	// used for the single-frame recovery detection
	RedetectThreshold float64

	// Deblend toggles segment splitting during recovery detection
	Deblend bool
}

// DefaultTrackerConfig returns the observed operational defaults for an
// n-aperture mask.
func DefaultTrackerConfig(n int) TrackerConfig {
	cfg := TrackerConfig{
		NApertures:      n,
		Radius:          11,
		BadFrameLimit:   100,
		OverlapFraction: 0.5,
	}
	if n == 2 {
		cfg.RedetectThreshold = 7
	} else {
		cfg.Radius = 15
		cfg.RedetectThreshold = 15
		cfg.Deblend = true
	}
	return cfg
}

// Tracker re-centroids a fixed set of apertures frame by frame, falling
// back to a fresh detection when a frame fails validation.  The aperture
// set is owned by the tracker: it is updated on every valid frame and
// retained across invalid ones so the next frame starts from the last
// good positions.
type Tracker struct {
	cfg   TrackerConfig
	aps   []improc.Aperture
	state State
	nbad  int
}

// NewTracker returns a tracker seeded with an initial aperture set.
func NewTracker(initial []improc.Aperture, cfg TrackerConfig) *Tracker {
	aps := make([]improc.Aperture, len(initial))
	copy(aps, initial)
	return &Tracker{cfg: cfg, aps: aps}
}

// BadFrames returns the number of frames that failed validation even
// after the recovery detection.
func (t *Tracker) BadFrames() int { return t.nbad }

// State returns the current tracker state.
func (t *Tracker) State() State { return t.state }

// Apertures returns a copy of the current aperture set.
func (t *Tracker) Apertures() []improc.Aperture {
	aps := make([]improc.Aperture, len(t.aps))
	copy(aps, t.aps)
	return aps
}

// Step processes one frame.  The frame is background corrected by
// subtracting its own median before measurement.  Step returns
// ErrBadFrameBudget once the cumulative bad frame count exceeds the
// configured limit; the tracker is then aborted and unusable.
func (t *Tracker) Step(frame improc.Image) (Measurement, error) {
	if t.state == Aborted {
		return Measurement{}, ErrBadFrameBudget
	}
	sub := frame.SubScalar(frame.Median())

	aps, m, ok := t.measure(sub, t.aps)
	if ok {
		t.aps = aps
		t.state = Tracking
		return m, nil
	}

	// recovery: locate the spots from scratch on this frame alone
	t.state = Redetecting
	fresh, err := improc.FindApertures(sub, t.cfg.NApertures, improc.FindConfig{
		Threshold: t.cfg.RedetectThreshold,
		Radius:    t.cfg.Radius,
		Deblend:   t.cfg.Deblend,
	})
	if err == nil {
		aps, m, ok = t.measure(sub, fresh)
		if ok {
			t.aps = aps
			t.state = Tracking
			return m, nil
		}
	}

	// unrecoverable frame; keep the last good apertures for the next one
	t.nbad++
	t.state = Tracking
	if t.nbad > t.cfg.BadFrameLimit {
		t.state = Aborted
		return Measurement{}, ErrBadFrameBudget
	}
	return Measurement{Valid: false}, nil
}

// measure centroids every aperture on the background-subtracted frame and
// validates the result.  On success it returns the aperture set moved to
// the new centroids, sorted ascending by x.
func (t *Tracker) measure(im improc.Image, aps []improc.Aperture) ([]improc.Aperture, Measurement, bool) {
	n := t.cfg.NApertures
	if len(aps) != n {
		return nil, Measurement{}, false
	}
	stats := make([]improc.ApStats, n)
	for i, ap := range aps {
		stats[i] = improc.Photometry(im, ap)
	}
	// keep the ordering invariant: apertures stay sorted by x so each
	// baseline index refers to the same physical pair every frame
	sort.Slice(stats, func(i, j int) bool { return stats[i].X < stats[j].X })

	for _, s := range stats {
		if !isFinite(s.X) || !isFinite(s.Y) {
			return nil, Measurement{}, false
		}
		if s.Flux <= 0 {
			return nil, Measurement{}, false
		}
	}

	var baselines []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := stats[j].X - stats[i].X
			dy := stats[j].Y - stats[i].Y
			baselines = append(baselines, math.Hypot(dx, dy))
		}
	}
	if n > 2 {
		for _, b := range baselines {
			if b < t.cfg.OverlapFraction*t.cfg.Radius {
				return nil, Measurement{}, false
			}
		}
	}

	out := make([]improc.Aperture, n)
	m := Measurement{
		Valid:     true,
		Positions: make([][2]float64, n),
		Fluxes:    make([]float64, n),
		Baselines: baselines,
	}
	for i, s := range stats {
		out[i] = improc.Aperture{X: s.X, Y: s.Y, R: t.cfg.Radius}
		m.Positions[i] = [2]float64{s.X, s.Y}
		m.Fluxes[i] = s.Flux
	}
	return out, m, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
