package ser

import (
	"io"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/saao/timdimm/improc"
)

// WriteFrameFITS streams frame idx of the cube to w as a 16-bit FITS
// image with the cube metadata in the header.
func WriteFrameFITS(w io.Writer, c *Cube, idx int) error {
	cards := []fitsio.Card{
		{Name: "BZERO", Value: 32768},
		{Name: "BSCALE", Value: 1.0},
		{Name: "OBSERVER", Value: c.Observer},
		{Name: "INSTRUME", Value: c.Instrument},
		{Name: "TELESCOP", Value: c.Telescope},
	}
	if !c.DateObsUTC.IsZero() {
		cards = append(cards, fitsio.Card{Name: "DATE-OBS", Value: c.DateObsUTC.Format(time.RFC3339)})
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{c.Width, c.Height}
	im := fitsio.NewImage(16, dims)
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	planes := c.Color.Planes()
	npix := c.Width * c.Height
	base := idx * npix * planes
	ints := make([]int16, npix)
	for i := 0; i < npix; i++ {
		ints[i] = int16(c.Samples[base+i*planes] - 32768)
	}
	if err := im.Write(ints); err != nil {
		return err
	}
	return fits.Write(im)
}

// WriteImageFITS streams a float image to w as a 32-bit floating point
// FITS image.  cards may be nil.
func WriteImageFITS(w io.Writer, img improc.Image, cards []fitsio.Card) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-32, []int{img.Width, img.Height})
	defer im.Close()
	if len(cards) > 0 {
		if err := im.Header().Append(cards...); err != nil {
			return err
		}
	}
	f32 := make([]float32, len(img.Pix))
	for i, v := range img.Pix {
		f32[i] = float32(v)
	}
	if err := im.Write(f32); err != nil {
		return err
	}
	return fits.Write(im)
}
