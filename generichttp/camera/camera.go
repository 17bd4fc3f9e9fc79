// Package camera provides a generic HTTP interface to a streaming camera
package camera

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/generichttp"
	"github.jpl.nasa.gov/bdube/pylonsrc/imgrec"
)

// MaxBurst is the largest number of frames a single burst request may ask for
const MaxBurst = 1000

var crcTable = crc.NewTable(crc.CRC32)

// Checksum returns the CRC-32 of a frame's payload
func Checksum(b []byte) uint32 {
	return crcTable.CRC32(crcTable.UpdateCrc(crcTable.InitCrc(), b))
}

// MetadataMaker can produce an array of FITS cards
type MetadataMaker interface {
	// CollectHeaderMetadata produces an array of FITS cards
	CollectHeaderMetadata() []fitsio.Card
}

// HTTPCamera wraps a camera.Streamer in an HTTP route table
type HTTPCamera struct {
	// Camera is the underlying stream
	Camera camera.Streamer

	// Recorder, if active, gets a copy of every FITS frame served
	Recorder *imgrec.Recorder

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPCamera returns a new HTTP wrapper around a stream
func NewHTTPCamera(s camera.Streamer, rec *imgrec.Recorder) HTTPCamera {
	h := HTTPCamera{Camera: s, Recorder: rec}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/frame"}: GetFrame(s, rec),
		{Method: http.MethodGet, Path: "/burst"}: Burst(s, rec),
		{Method: http.MethodGet, Path: "/caps"}:  GetCaps(s),
		{Method: http.MethodPost, Path: "/start"}: func(w http.ResponseWriter, r *http.Request) {
			if err := s.Start(r.Context()); err != nil {
				generichttp.Error(w, err)
				return
			}
			w.WriteHeader(http.StatusOK)
		},
		{Method: http.MethodPost, Path: "/stop"}: generichttp.Do(s.Stop),
	}
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
	}
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPCamera) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetCaps returns the stream description as {'str': caps}
func GetCaps(s camera.Streamer) http.HandlerFunc {
	return generichttp.GetString(func() (string, error) {
		return s.Caps().String(), nil
	})
}

func frameHeaders(w http.ResponseWriter, f camera.Frame) {
	hdr := w.Header()
	hdr.Set("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
	hdr.Set("X-Frame-CRC32", fmt.Sprintf("%08x", Checksum(f.Data)))
	hdr.Set("X-Pixel-Format", f.PixelFormat)
	hdr.Set("X-Width", strconv.Itoa(f.Width))
	hdr.Set("X-Height", strconv.Itoa(f.Height))
}

func cards(s camera.Streamer) []fitsio.Card {
	if carder, ok := s.(MetadataMaker); ok {
		return carder.CollectHeaderMetadata()
	}
	return nil
}

// fitsWriter returns w, teed into rec when it is recording, and a func to
// call once the file is written
func fitsWriter(w io.Writer, rec *imgrec.Recorder) (io.Writer, func()) {
	if rec.Active() {
		return io.MultiWriter(w, rec), rec.Incr
	}
	return w, func() {}
}

// GetFrame pulls the next frame and returns it on a GET request.
//
// the image format may be specified with the fmt query parameter, one of
// jpg, png, fits or raw; default to jpg.  rot rotates jpg and png images
// clockwise by 90, 180 or 270 degrees.
//
// fits frames are also written to the recorder, if it is enabled.
func GetFrame(s camera.Streamer, rec *imgrec.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format := q.Get("fmt")
		if format == "" {
			format = "jpg"
		}
		rot := 0
		if str := q.Get("rot"); str != "" {
			var err error
			rot, err = strconv.Atoi(str)
			if err != nil || rot%90 != 0 {
				http.Error(w, fmt.Sprintf("rot must be a multiple of 90, got %q", str), http.StatusBadRequest)
				return
			}
		}
		switch format {
		case "jpg", "png", "fits", "raw":
		default:
			http.Error(w, fmt.Sprintf("format %q is not one of jpg, png, fits, raw", format), http.StatusBadRequest)
			return
		}

		f, err := s.Create(r.Context())
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		frameHeaders(w, f)
		hdr := w.Header()

		switch format {
		case "raw":
			hdr.Set("Content-Type", "application/octet-stream")
			hdr.Set("Content-Length", strconv.Itoa(len(f.Data)))
			w.Write(f.Data)
			return
		case "fits":
			out, done := fitsWriter(w, rec)
			defer done()
			hdr.Set("Content-Type", "image/fits")
			hdr.Set("Content-Disposition", "attachment; filename=image.fits")
			if err := WriteFits(out, cards(s), []camera.Frame{f}); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}

		img, err := f.Image()
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		img = Rotate(img, rot)
		if format == "png" {
			hdr.Set("Content-Type", "image/png")
			png.Encode(w, img)
			return
		}
		hdr.Set("Content-Type", "image/jpeg")
		jpeg.Encode(w, to8bit(img), nil)
	}
}

// to8bit scales 16 bit gray images down for jpeg
func to8bit(img image.Image) image.Image {
	g16, ok := img.(*image.Gray16)
	if !ok {
		return img
	}
	b := g16.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)] = g16.Pix[g16.PixOffset(x, y)]
		}
	}
	return out
}

// Burst pulls the number of frames given by the frames query parameter and
// returns them as a fits image cube
func Burst(s camera.Streamer, rec *imgrec.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("frames"))
		if err != nil || n < 1 || n > MaxBurst {
			http.Error(w, fmt.Sprintf("frames must be an integer from 1 to %d", MaxBurst), http.StatusBadRequest)
			return
		}
		frames := make([]camera.Frame, 0, n)
		start := time.Now()
		for i := 0; i < n; i++ {
			f, err := s.Create(r.Context())
			if err != nil {
				generichttp.Error(w, err)
				return
			}
			frames = append(frames, f)
		}
		elapsed := time.Since(start)

		c := cards(s)
		if n > 1 {
			c = append(c, fitsio.Card{Name: "FPS", Value: float64(n-1) / elapsed.Seconds(), Comment: "measured frame rate"})
		}
		out, done := fitsWriter(w, rec)
		defer done()
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=burst.fits")
		hdr.Set("X-Frame-Seq", strconv.FormatUint(frames[0].Seq, 10))
		if err := WriteFits(out, c, frames); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
