package pylonsrc

import (
	"context"
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/generichttp"
	hcam "github.jpl.nasa.gov/bdube/pylonsrc/generichttp/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/imgrec"
)

// statusError carries the HTTP status an error is reported with
type statusError struct {
	error
	code int
}

func (e statusError) StatusCode() int { return e.code }
func (e statusError) Unwrap() error   { return e.error }

// StatusCode returns the HTTP status for an error from a session
func StatusCode(err error) int {
	var (
		noDev     pylon.NoDeviceError
		ambiguous pylon.AmbiguousSelectionError
		param     pylon.InvalidParameterError
		rng       pylon.InvalidRangeError
		oor       pylon.OutOfRangeError
		unsup     pylon.UnsupportedFeatureError
		notFound  pylon.ErrFeatureNotFound
		rejected  pylon.DeviceRejectedValueError
		timeout   pylon.AcquisitionTimeoutError
	)
	switch {
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrStarted), errors.Is(err, ErrStreaming), errors.Is(err, ErrClaimed), errors.As(err, &ambiguous):
		return http.StatusConflict
	case errors.As(err, &noDev), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &param), errors.As(err, &rng), errors.As(err, &oor):
		return http.StatusBadRequest
	case errors.As(err, &unsup):
		return http.StatusNotImplemented
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	return statusError{err, StatusCode(err)}
}

// httpStream gives the errors of a session their HTTP status
type httpStream struct {
	*Session
}

func (h httpStream) Start(ctx context.Context) error { return classify(h.Session.Start(ctx)) }
func (h httpStream) Stop() error                     { return classify(h.Session.Stop()) }
func (h httpStream) Create(ctx context.Context) (camera.Frame, error) {
	f, err := h.Session.Create(ctx)
	return f, classify(err)
}

// CollectHeaderMetadata describes the connected camera in FITS cards
func (s *Session) CollectHeaderMetadata() []fitsio.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	cards := []fitsio.Card{
		{Name: "HDRVER", Value: "pylonsrc-1", Comment: "header version"},
		{Name: "SESSION", Value: s.ID.String()},
	}
	if s.dev == nil {
		return cards
	}
	cards = append(cards,
		fitsio.Card{Name: "MODEL", Value: s.ident.Model, Comment: "camera model"},
		fitsio.Card{Name: "SERIAL", Value: s.ident.Serial, Comment: "camera serial number"},
		fitsio.Card{Name: "USERID", Value: s.ident.UserID},
	)
	if v, err := s.fs.GetFloat("ExposureTime"); err == nil {
		cards = append(cards, fitsio.Card{Name: "EXPTIME", Value: v / 1e6, Comment: "exposure time, seconds"})
	}
	if v, err := s.fs.GetFloat("Gain"); err == nil {
		cards = append(cards, fitsio.Card{Name: "GAIN", Value: v, Comment: "dB"})
	}
	return cards
}

// HTTPSession wraps a Session in an HTTP route table
type HTTPSession struct {
	// Session is the underlying camera session
	Session *Session

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPSession returns an HTTP wrapper around a session.  The frame routes
// come from generichttp/camera; rec may be nil.
func NewHTTPSession(s *Session, rec *imgrec.Recorder) HTTPSession {
	h := HTTPSession{Session: s, RouteTable: hcam.NewHTTPCamera(httpStream{s}, rec).RT()}
	rt := h.RouteTable
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/connected"}] = generichttp.GetBool(func() (bool, error) {
		return s.Connected(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/queued"}] = generichttp.GetInt(func() (int, error) {
		return s.Queued(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/fps"}] = generichttp.GetJSON(func() (interface{}, error) {
		return s.FPS(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/negotiated"}] = generichttp.GetJSON(func() (interface{}, error) {
		if !s.Connected() {
			return nil, classify(ErrNotConnected)
		}
		return s.Negotiated(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/identity"}] = generichttp.GetJSON(func() (interface{}, error) {
		id, err := s.Identity()
		return id, classify(err)
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/devices"}] = generichttp.GetJSON(func() (interface{}, error) {
		ids, err := s.Devices()
		return ids, classify(err)
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/config"}] = generichttp.GetJSON(func() (interface{}, error) {
		return s.CurrentConfig(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/config"}] = h.SetConfig
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/feature/{feature}"}] = h.GetFeature
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/feature/{feature}"}] = h.SetFeature
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPSession) RT() generichttp.RouteTable {
	return h.RouteTable
}

// SetConfig replaces the session's configuration with a JSON Config.  Keys
// left out of the body keep their current value.
func (h HTTPSession) SetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.Session.CurrentConfig()
	err := json.NewDecoder(r.Body).Decode(&cfg)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Session.SetConfig(cfg); err != nil {
		generichttp.Error(w, classify(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// feature resolves the {feature} route parameter on a connected camera
func (h HTTPSession) feature(r *http.Request) (*pylon.FeatureStore, string, pylon.Kind, error) {
	name := chi.URLParam(r, "feature")
	kind, ok := pylon.Features[name]
	if !ok {
		return nil, name, kind, classify(pylon.ErrFeatureNotFound{Feature: name})
	}
	fs, err := h.Session.Features()
	if err != nil {
		return nil, name, kind, classify(err)
	}
	return fs, name, kind, nil
}

// GetFeature reads one camera feature, replying with the JSON payload for
// its kind
func (h HTTPSession) GetFeature(w http.ResponseWriter, r *http.Request) {
	fs, name, kind, err := h.feature(r)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	var hp generichttp.HumanPayload
	switch kind {
	case pylon.KindInt:
		var v int64
		v, err = fs.GetInt(name)
		hp = generichttp.HumanPayload{T: types.Int, Int: int(v)}
	case pylon.KindFloat:
		hp.T = types.Float64
		hp.Float, err = fs.GetFloat(name)
	case pylon.KindBool:
		hp.T = types.Bool
		hp.Bool, err = fs.GetBool(name)
	case pylon.KindEnum:
		hp.T = types.String
		hp.String, err = fs.GetEnum(name)
	case pylon.KindString:
		hp.T = types.String
		hp.String, err = fs.GetString(name)
	default:
		http.Error(w, fmt.Sprintf("%s is a %s and cannot be read", name, kind), http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		generichttp.Error(w, classify(err))
		return
	}
	hp.EncodeAndRespond(w, r)
}

// SetFeature writes one camera feature from the JSON payload for its kind.
// The write happens between two pulls; features the stream depends on and
// commands are refused while the camera streams.
func (h HTTPSession) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "feature")
	kind, ok := pylon.Features[name]
	if !ok {
		generichttp.Error(w, classify(pylon.ErrFeatureNotFound{Feature: name}))
		return
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	var (
		write func(*pylon.FeatureStore) error
		err   error
	)
	switch kind {
	case pylon.KindInt:
		v := generichttp.IntT{}
		err = dec.Decode(&v)
		write = func(fs *pylon.FeatureStore) error { return fs.SetInt(name, int64(v.Int)) }
	case pylon.KindFloat:
		v := generichttp.FloatT{}
		err = dec.Decode(&v)
		write = func(fs *pylon.FeatureStore) error { return fs.SetFloat(name, v.F64) }
	case pylon.KindBool:
		v := generichttp.BoolT{}
		err = dec.Decode(&v)
		write = func(fs *pylon.FeatureStore) error { return fs.SetBool(name, v.Bool) }
	case pylon.KindEnum:
		v := generichttp.StrT{}
		err = dec.Decode(&v)
		write = func(fs *pylon.FeatureStore) error { return fs.SetEnum(name, v.Str) }
	case pylon.KindString:
		v := generichttp.StrT{}
		err = dec.Decode(&v)
		write = func(fs *pylon.FeatureStore) error { return fs.SetString(name, v.Str) }
	case pylon.KindCommand:
		write = func(fs *pylon.FeatureStore) error { return fs.Execute(name) }
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Session.WriteFeature(name, write); err != nil {
		generichttp.Error(w, classify(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
