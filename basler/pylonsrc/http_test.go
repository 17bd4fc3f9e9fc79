package pylonsrc_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylonsrc"
)

type client struct {
	t   *testing.T
	mux chi.Router
}

func newClient(t *testing.T, s *pylonsrc.Session) client {
	mux := chi.NewRouter()
	pylonsrc.NewHTTPSession(s, nil).RT().Bind(mux)
	return client{t, mux}
}

func (c client) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c.mux.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestHTTPLifecycle(t *testing.T) {
	drv := pylon.NewMockDriver(1)
	s := pylonsrc.NewSession(drv, testConfig(), zerolog.Nop())
	c := newClient(t, s)
	defer s.Stop()

	assert.Equal(t, http.StatusServiceUnavailable, c.do(http.MethodGet, "/frame?fmt=raw", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, c.do(http.MethodGet, "/feature/Gain", "").Code)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/config", `{"ImageFormat": "mono8"}`).Code)
	assert.Equal(t, "mono8", s.CurrentConfig().ImageFormat)
	assert.True(t, s.CurrentConfig().Continuous, "keys left out keep their value")
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/config", `{"Gamma": 9}`).Code)
	require.NotNil(t, s.CurrentConfig().Gamma)
	assert.Equal(t, 1.0, *s.CurrentConfig().Gamma, "a rejected config leaves the stored one alone")

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/start", "").Code)
	assert.JSONEq(t, `{"bool": true}`, c.do(http.MethodGet, "/connected", "").Body.String())
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/config", `{}`).Code)
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/start", "").Code)

	w := c.do(http.MethodGet, "/frame?fmt=raw", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1920*1200, w.Body.Len())
	assert.Equal(t, "Mono8", w.Header().Get("X-Pixel-Format"))

	w = c.do(http.MethodGet, "/caps", "")
	assert.JSONEq(t, `{"str": "video/x-raw,format=GRAY8,width=1920,height=1200,framerate=0/1"}`, w.Body.String())

	var id pylon.Identity
	require.NoError(t, json.Unmarshal(c.do(http.MethodGet, "/identity", "").Body.Bytes(), &id))
	assert.Equal(t, "40000000", id.Serial)

	var neg pylonsrc.Negotiated
	require.NoError(t, json.Unmarshal(c.do(http.MethodGet, "/negotiated", "").Body.Bytes(), &neg))
	assert.Equal(t, "Mono8", neg.PixelFormat)

	drv.Cameras[0].Grabber().Stall(true)
	assert.Equal(t, http.StatusGatewayTimeout, c.do(http.MethodGet, "/frame", "").Code)
	drv.Cameras[0].Grabber().Stall(false)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/stop", "").Code)
	assert.False(t, drv.Cameras[0].IsOpen())
}

func TestHTTPFeatures(t *testing.T) {
	drv := pylon.NewMockDriver(1)
	s := pylonsrc.NewSession(drv, testConfig(), zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	c := newClient(t, s)
	cam := drv.Cameras[0]

	assert.JSONEq(t, `{"f64": 5000}`, c.do(http.MethodGet, "/feature/ExposureTime", "").Body.String())
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/feature/ExposureTime", `{"f64": 1200}`).Code)
	assert.Equal(t, 1200., cam.Value("ExposureTime"))

	assert.JSONEq(t, `{"int": 1920}`, c.do(http.MethodGet, "/feature/Width", "").Body.String())
	assert.JSONEq(t, `{"str": "acA1920-155uc"}`, c.do(http.MethodGet, "/feature/DeviceModelName", "").Body.String())

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/feature/Width", `{"int": "wide"}`).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/feature/Width", ``).Code)
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/feature/Width", `{"int": 640}`).Code)
	assert.Equal(t, int64(1920), cam.Value("Width"))
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/feature/PixelFormat", `{"str": "Mono8"}`).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/feature/FluxCapacitor", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, c.do(http.MethodGet, "/feature/TriggerSoftware", "").Code)
	assert.Equal(t, http.StatusNotImplemented, c.do(http.MethodPost, "/feature/DeviceModelName", `{"str": "x"}`).Code)

	cam.Reject("Gain", errors.New("out of range"))
	assert.Equal(t, http.StatusUnprocessableEntity, c.do(http.MethodPost, "/feature/Gain", `{"f64": 99}`).Code)

	before := cam.Triggers()
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/feature/TriggerSoftware", "").Code)
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/feature/AcquisitionStop", "").Code)
	assert.Equal(t, before, cam.Triggers())
	assert.True(t, cam.Acquiring())
}

func TestFeatureWriteWaitsForPull(t *testing.T) {
	drv := pylon.NewMockDriver(1)
	cfg := testConfig()
	cfg.GrabTimeout = 200 * time.Millisecond
	s := pylonsrc.NewSession(drv, cfg, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	c := newClient(t, s)
	cam := drv.Cameras[0]
	g := cam.Grabber()
	g.Stall(true)

	done := make(chan error, 1)
	go func() {
		_, err := s.Create(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/feature/ExposureTime", `{"f64": 1200}`).Code)
	assert.Equal(t, 1, g.Waits(), "the write went through while a frame was being waited for")
	assert.Equal(t, 1200., cam.Value("ExposureTime"))
	var te pylon.AcquisitionTimeoutError
	assert.ErrorAs(t, <-done, &te)
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{pylonsrc.ErrNotConnected, http.StatusServiceUnavailable},
		{fmt.Errorf("writing Width: %w", pylonsrc.ErrStreaming), http.StatusConflict},
		{fmt.Errorf("start: %w", pylonsrc.ErrClaimed), http.StatusConflict},
		{pylon.NoDeviceError{}, http.StatusNotFound},
		{pylon.InvalidRangeError{Parameter: "exposure"}, http.StatusBadRequest},
		{pylon.AcquisitionTimeoutError{}, http.StatusGatewayTimeout},
		{pylon.GrabError{Status: pylon.Failed}, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, pylonsrc.StatusCode(c.err), "%v", c.err)
	}
}

func TestFitsHeaderFromSession(t *testing.T) {
	drv := pylon.NewMockDriver(1)
	cfg := testConfig()
	cfg.ImageFormat = "mono8"
	s := pylonsrc.NewSession(drv, cfg, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	names := map[string]interface{}{}
	for _, card := range s.CollectHeaderMetadata() {
		names[card.Name] = card.Value
	}
	assert.Equal(t, "acA1920-155uc", names["MODEL"])
	assert.Equal(t, "40000000", names["SERIAL"])
	assert.Equal(t, 0.005, names["EXPTIME"])

	w := newClient(t, s).do(http.MethodGet, "/frame?fmt=fits", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/fits", w.Header().Get("Content-Type"))
}
