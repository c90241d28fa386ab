// Package ser reads and writes SER format video cubes.
//
// SER is a fixed binary container for uncompressed astronomical video,
// specified at
// http://www.grischa-hahn.homepage.t-online.de/astro/ser/SER%20Doc%20V3b.pdf
// The file is a 178 byte header, followed by the raw frame payload, and
// optionally a trailer of per-frame UTC timestamps.
package ser

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/saao/timdimm/improc"
)

// FileID is the fixed 14 character tag at the start of every SER file.
const FileID = "LUCAM-RECORDER"

const (
	headerSize     = 178
	ticksPerSecond = 10_000_000 // timestamps are 100 ns ticks
)

// serEpochUnix is 0001-01-01T00:00:00Z expressed in Unix seconds.
var serEpochUnix = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()

// ErrFormat is wrapped by all malformed-file errors from Load.
var ErrFormat = errors.New("ser: malformed file")

// ColorID enumerates the SER color/plane encodings.
type ColorID int32

// Color IDs from the SER specification.  Values below 100 are single
// plane (monochrome or Bayer mosaic); RGB and BGR carry three planes.
const (
	Mono      ColorID = 0
	BayerRGGB ColorID = 8
	BayerGRBG ColorID = 9
	BayerGBRG ColorID = 10
	BayerBGGR ColorID = 11
	BayerCYYM ColorID = 16
	BayerYCMY ColorID = 17
	BayerYMCY ColorID = 18
	BayerMYYC ColorID = 19
	RGB       ColorID = 100
	BGR       ColorID = 101
)

func (c ColorID) valid() bool {
	switch c {
	case Mono, BayerRGGB, BayerGRBG, BayerGBRG, BayerBGGR,
		BayerCYYM, BayerYCMY, BayerYMCY, BayerMYYC, RGB, BGR:
		return true
	}
	return false
}

// Planes returns the number of image planes for the color encoding.
func (c ColorID) Planes() int {
	if c >= 100 {
		return 3
	}
	return 1
}

// Cube is an in-memory SER video cube.  The geometry fields are fixed at
// load time; Samples holds every pixel sample in frame-major, row-major,
// plane-minor order, widened to uint16 for 8-bit data.
type Cube struct {
	Filename string

	LuID         int32
	Color        ColorID
	LittleEndian bool
	Width        int
	Height       int
	PixDepth     int // true bits per pixel per plane
	NFrames      int

	Observer   string
	Instrument string
	Telescope  string

	DateObs    time.Time // stream start, local clock
	DateObsUTC time.Time // stream start, UTC

	// FrameTimes holds the per-frame UTC timestamps from the trailer.
	// It is empty when the file has no trailer.
	FrameTimes []time.Time

	Samples []uint16
}

// BytesPerPixel returns the on-disk bytes per pixel, planes included.
func (c *Cube) BytesPerPixel() int {
	bps := 1
	if c.PixDepth > 8 {
		bps = 2
	}
	return bps * c.Color.Planes()
}

// Frame returns frame i as a float image.  Three-plane cubes are reduced
// to luminance by averaging the planes.
func (c *Cube) Frame(i int) improc.Image {
	planes := c.Color.Planes()
	npix := c.Width * c.Height
	base := i * npix * planes
	im := improc.NewImage(c.Width, c.Height)
	if planes == 1 {
		for j := 0; j < npix; j++ {
			im.Pix[j] = float64(c.Samples[base+j])
		}
		return im
	}
	for j := 0; j < npix; j++ {
		var acc float64
		for p := 0; p < planes; p++ {
			acc += float64(c.Samples[base+j*planes+p])
		}
		im.Pix[j] = acc / float64(planes)
	}
	return im
}

func formatErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// Load reads an entire SER file into memory.
func Load(path string) (*Cube, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Decode(b)
	if c != nil {
		c.Filename = path
	}
	return c, err
}

// Decode parses a SER file held in memory.
func Decode(b []byte) (*Cube, error) {
	if len(b) < headerSize {
		return nil, formatErr("truncated header, have %d bytes, need %d", len(b), headerSize)
	}
	if string(b[0:14]) != FileID {
		return nil, formatErr("file ID %q, want %q", string(b[0:14]), FileID)
	}
	le := binary.LittleEndian
	c := &Cube{
		LuID:         int32(le.Uint32(b[14:18])),
		Color:        ColorID(le.Uint32(b[18:22])),
		LittleEndian: le.Uint32(b[22:26]) != 0,
		Width:        int(int32(le.Uint32(b[26:30]))),
		Height:       int(int32(le.Uint32(b[30:34]))),
		PixDepth:     int(int32(le.Uint32(b[34:38]))),
		NFrames:      int(int32(le.Uint32(b[38:42]))),
		Observer:     trimPadded(b[42:82]),
		Instrument:   trimPadded(b[82:122]),
		Telescope:    trimPadded(b[122:162]),
		DateObs:      ticksToTime(int64(le.Uint64(b[162:170]))),
		DateObsUTC:   ticksToTime(int64(le.Uint64(b[170:178]))),
	}
	if !c.Color.valid() {
		return nil, formatErr("unsupported color ID %d", c.Color)
	}
	if c.Width <= 0 || c.Height <= 0 || c.NFrames <= 0 {
		return nil, formatErr("bad geometry %dx%d x %d frames", c.Width, c.Height, c.NFrames)
	}

	nsamples := c.NFrames * c.Width * c.Height * c.Color.Planes()
	payload := c.NFrames * c.Width * c.Height * c.BytesPerPixel()
	if len(b) < headerSize+payload {
		return nil, formatErr("truncated payload, have %d bytes, need %d", len(b)-headerSize, payload)
	}
	raw := b[headerSize : headerSize+payload]
	c.Samples = make([]uint16, nsamples)
	if c.BytesPerPixel() == c.Color.Planes() { // 8 bit samples
		for i, v := range raw {
			c.Samples[i] = uint16(v)
		}
	} else {
		var order binary.ByteOrder = binary.BigEndian
		if c.LittleEndian {
			order = binary.LittleEndian
		}
		for i := 0; i < nsamples; i++ {
			c.Samples[i] = order.Uint16(raw[2*i : 2*i+2])
		}
	}

	// the trailer is optional; a short or absent trailer means no
	// per-frame timestamps are available
	trailer := b[headerSize+payload:]
	if len(trailer) >= 8*c.NFrames {
		c.FrameTimes = make([]time.Time, c.NFrames)
		for i := 0; i < c.NFrames; i++ {
			c.FrameTimes[i] = ticksToTime(int64(le.Uint64(trailer[8*i : 8*i+8])))
		}
	}
	return c, nil
}

// Write serializes the cube to path in SER format.  The trailer is only
// written when FrameTimes is populated.
func Write(path string, c *Cube) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Encode(f, c)
}

// Encode writes the cube in SER format.
func Encode(w io.Writer, c *Cube) error {
	le := binary.LittleEndian
	hdr := make([]byte, headerSize)
	copy(hdr[0:14], FileID)
	le.PutUint32(hdr[14:18], uint32(c.LuID))
	le.PutUint32(hdr[18:22], uint32(c.Color))
	if c.LittleEndian {
		le.PutUint32(hdr[22:26], 1)
	}
	le.PutUint32(hdr[26:30], uint32(c.Width))
	le.PutUint32(hdr[30:34], uint32(c.Height))
	le.PutUint32(hdr[34:38], uint32(c.PixDepth))
	le.PutUint32(hdr[38:42], uint32(c.NFrames))
	copy(hdr[42:82], padded(c.Observer))
	copy(hdr[82:122], padded(c.Instrument))
	copy(hdr[122:162], padded(c.Telescope))
	le.PutUint64(hdr[162:170], uint64(timeToTicks(c.DateObs)))
	le.PutUint64(hdr[170:178], uint64(timeToTicks(c.DateObsUTC)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	if c.PixDepth <= 8 {
		raw := make([]byte, len(c.Samples))
		for i, v := range c.Samples {
			raw[i] = byte(v)
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	} else {
		var order binary.ByteOrder = binary.BigEndian
		if c.LittleEndian {
			order = binary.LittleEndian
		}
		raw := make([]byte, 2*len(c.Samples))
		for i, v := range c.Samples {
			order.PutUint16(raw[2*i:2*i+2], v)
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}

	if len(c.FrameTimes) == 0 {
		return nil
	}
	trailer := make([]byte, 8*len(c.FrameTimes))
	for i, t := range c.FrameTimes {
		le.PutUint64(trailer[8*i:8*i+8], uint64(timeToTicks(t)))
	}
	_, err := w.Write(trailer)
	return err
}

// trimPadded decodes a fixed-width ASCII field, dropping NUL and space
// padding.
func trimPadded(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

func padded(s string) []byte {
	b := make([]byte, 40)
	copy(b, s)
	return b
}

// ticksToTime converts a SER timestamp (100 ns ticks since year 1) to a
// time.Time.  The arithmetic stays in seconds to avoid overflowing a
// nanosecond Duration over a two-millennium span.
func ticksToTime(ticks int64) time.Time {
	if ticks <= 0 {
		return time.Time{}
	}
	secs := ticks / ticksPerSecond
	ns := (ticks % ticksPerSecond) * 100
	return time.Unix(serEpochUnix+secs, ns).UTC()
}

// timeToTicks is the inverse of ticksToTime.
func timeToTicks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	secs := t.Unix() - serEpochUnix
	return secs*ticksPerSecond + int64(t.Nanosecond())/100
}
