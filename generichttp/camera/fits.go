package camera

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/astrogo/fitsio"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
)

// WriteFits streams a fits file to w.  Frames are written as 8 bit data if
// they have one byte per pixel and as 16 bit unsigned data otherwise; more
// than one frame makes a cube.  All frames must share a size and format.
func WriteFits(w io.Writer, metadata []fitsio.Card, frames []camera.Frame) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to write")
	}
	first := frames[0]
	bpp := camera.BytesPerPixel(first.PixelFormat)
	if bpp != 1 && bpp != 2 {
		return camera.ErrUnsupportedFormat{PixelFormat: first.PixelFormat}
	}
	npix := first.Width * first.Height
	for _, f := range frames {
		if f.Width != first.Width || f.Height != first.Height || f.PixelFormat != first.PixelFormat {
			return fmt.Errorf("frame %d is %dx%d %s, the first is %dx%d %s",
				f.Seq, f.Width, f.Height, f.PixelFormat, first.Width, first.Height, first.PixelFormat)
		}
		if len(f.Data) < npix*bpp {
			return fmt.Errorf("frame %d holds %d bytes, needs %d", f.Seq, len(f.Data), npix*bpp)
		}
	}

	metadata = append(metadata,
		fitsio.Card{Name: "PIXFMT", Value: first.PixelFormat, Comment: "camera pixel format"},
		fitsio.Card{Name: "FRAMESEQ", Value: int(first.Seq), Comment: "sequence number of the first frame"},
		fitsio.Card{Name: "DATACRC", Value: int(Checksum(first.Data)), Comment: "CRC-32 of the first frame payload"},
	)
	bitpix := 8
	if bpp == 2 {
		bitpix = 16
		metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{first.Width, first.Height}
	if len(frames) > 1 {
		dims = append(dims, len(frames))
	}
	im := fitsio.NewImage(bitpix, dims)
	defer im.Close()
	if err := im.Header().Append(metadata...); err != nil {
		return err
	}

	if bitpix == 8 {
		buf := make([]byte, 0, npix*len(frames))
		for _, f := range frames {
			buf = append(buf, f.Data[:npix]...)
		}
		err = im.Write(buf)
	} else {
		ints := make([]int16, 0, npix*len(frames))
		for _, f := range frames {
			for i := 0; i < npix; i++ {
				ints = append(ints, int16(int32(binary.LittleEndian.Uint16(f.Data[2*i:]))-32768))
			}
		}
		err = im.Write(ints)
	}
	if err != nil {
		return err
	}
	return fits.Write(im)
}
