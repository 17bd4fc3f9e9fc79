package camera_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
	hcam "github.jpl.nasa.gov/bdube/pylonsrc/generichttp/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/imgrec"
)

type busy struct{}

func (busy) Error() string   { return "not connected" }
func (busy) StatusCode() int { return http.StatusServiceUnavailable }

// ramp is a streamer of 4x2 frames whose pixels count up from the frame's
// sequence number
type ramp struct {
	format  string
	seq     uint64
	fail    error
	started bool
}

func (r *ramp) Start(context.Context) error { r.started = true; return nil }
func (r *ramp) Stop() error                 { r.started = false; return nil }
func (r *ramp) Caps() camera.StreamDescription {
	return camera.StreamDescription{Media: "video/x-raw", Format: "GRAY8", Width: 4, Height: 2}
}
func (r *ramp) CollectHeaderMetadata() []fitsio.Card {
	return []fitsio.Card{{Name: "MODEL", Value: "ramp"}}
}
func (r *ramp) Create(context.Context) (camera.Frame, error) {
	if r.fail != nil {
		return camera.Frame{}, r.fail
	}
	bpp := camera.BytesPerPixel(r.format)
	data := make([]byte, 8*bpp)
	for i := range data {
		data[i] = byte(r.seq) + byte(i)
	}
	f := camera.Frame{Seq: r.seq, Data: data, Width: 4, Height: 2, PixelFormat: r.format, Timestamp: time.Now()}
	r.seq++
	return f, nil
}

func serve(t *testing.T, s camera.Streamer, rec *imgrec.Recorder, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := chi.NewRouter()
	hcam.NewHTTPCamera(s, rec).RT().Bind(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRawFrame(t *testing.T) {
	s := &ramp{format: "Mono8"}
	w := serve(t, s, nil, http.MethodGet, "/frame?fmt=raw")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, w.Body.Bytes())
	assert.Equal(t, "0", w.Header().Get("X-Frame-Seq"))
	assert.Equal(t, fmt.Sprintf("%08x", hcam.Checksum(w.Body.Bytes())), w.Header().Get("X-Frame-CRC32"))
	assert.Equal(t, "Mono8", w.Header().Get("X-Pixel-Format"))
}

func TestChecksum(t *testing.T) {
	// the CRC-32 check value
	assert.Equal(t, uint32(0xCBF43926), hcam.Checksum([]byte("123456789")))
}

func TestImageFrames(t *testing.T) {
	s := &ramp{format: "Mono8"}
	w := serve(t, s, nil, http.MethodGet, "/frame")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = serve(t, s, nil, http.MethodGet, "/frame?fmt=png&rot=90")
	require.Equal(t, http.StatusOK, w.Code)
	img, _, err := image.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 4), img.Bounds())
}

func TestBadRequests(t *testing.T) {
	s := &ramp{format: "Mono8"}
	assert.Equal(t, http.StatusBadRequest, serve(t, s, nil, http.MethodGet, "/frame?fmt=tiff").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, nil, http.MethodGet, "/frame?rot=45").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, nil, http.MethodGet, "/burst?frames=0").Code)
	assert.Equal(t, uint64(0), s.seq, "no frame is pulled for a bad request")
}

func TestFrameError(t *testing.T) {
	s := &ramp{format: "Mono8", fail: busy{}}
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, nil, http.MethodGet, "/frame").Code)
}

func TestFitsFrameIsRecorded(t *testing.T) {
	root := t.TempDir()
	rec := &imgrec.Recorder{Root: root, Prefix: "f", Enabled: true,
		Now: func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }}
	s := &ramp{format: "Mono10"}
	w := serve(t, s, rec, http.MethodGet, "/frame?fmt=fits")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/fits", w.Header().Get("Content-Type"))

	f, err := fitsio.Open(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	img := f.HDU(0).(fitsio.Image)
	assert.Equal(t, 16, img.Header().Bitpix())
	assert.Equal(t, []int{4, 2}, img.Header().Axes())
	assert.Equal(t, "Mono10", img.Header().Get("PIXFMT").Value)
	assert.Equal(t, "ramp", img.Header().Get("MODEL").Value)

	disk, err := os.ReadFile(filepath.Join(root, "2024-01-02", "f000001.fits"))
	require.NoError(t, err)
	assert.Equal(t, w.Body.Bytes(), disk)
	p, err := rec.Path()
	require.NoError(t, err)
	assert.Equal(t, "f000002.fits", filepath.Base(p))
}

func TestBurstCube(t *testing.T) {
	s := &ramp{format: "Mono8"}
	w := serve(t, s, nil, http.MethodGet, "/burst?frames=3")
	require.Equal(t, http.StatusOK, w.Code)
	f, err := fitsio.Open(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	img := f.HDU(0).(fitsio.Image)
	assert.Equal(t, 8, img.Header().Bitpix())
	assert.Equal(t, []int{4, 2, 3}, img.Header().Axes())
	assert.Equal(t, uint64(3), s.seq)
}

func TestWriteFitsRejectsColor(t *testing.T) {
	f := camera.Frame{Width: 1, Height: 1, PixelFormat: "RGB8", Data: make([]byte, 3)}
	err := hcam.WriteFits(&bytes.Buffer{}, nil, []camera.Frame{f})
	var uf camera.ErrUnsupportedFormat
	assert.ErrorAs(t, err, &uf)
}

func TestStartStopCaps(t *testing.T) {
	s := &ramp{format: "Mono8"}
	assert.Equal(t, http.StatusOK, serve(t, s, nil, http.MethodPost, "/start").Code)
	assert.True(t, s.started)
	w := serve(t, s, nil, http.MethodGet, "/caps")
	assert.JSONEq(t, `{"str": "video/x-raw,format=GRAY8,width=4,height=2,framerate=0/1"}`, w.Body.String())
	assert.Equal(t, http.StatusOK, serve(t, s, nil, http.MethodPost, "/stop").Code)
	assert.False(t, s.started)
}

func TestRotate(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(0, 0, color.Gray{Y: 9})
	r90 := hcam.Rotate(img, 90).(*image.Gray)
	assert.Equal(t, image.Rect(0, 0, 2, 3), r90.Bounds())
	assert.Equal(t, uint8(9), r90.GrayAt(1, 0).Y)
	r180 := hcam.Rotate(img, 180).(*image.Gray)
	assert.Equal(t, uint8(9), r180.GrayAt(2, 1).Y)
	r270 := hcam.Rotate(img, -90).(*image.Gray)
	assert.Equal(t, uint8(9), r270.GrayAt(0, 2).Y)
	assert.Same(t, img, hcam.Rotate(img, 0))
}
