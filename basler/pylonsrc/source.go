/*Package pylonsrc streams frames from a Basler USB3 camera.

A Session connects to a camera, runs the configuration Pipeline over it,
then cycles a Pool of frame buffers to deliver frames one pull at a time.
*/
package pylonsrc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/fps"
)

type claimKey struct {
	drv pylon.Driver
	idx int
}

// claims are the cameras held by a session in this process
var claims = struct {
	sync.Mutex
	held map[claimKey]bool
}{held: map[claimKey]bool{}}

func claim(drv pylon.Driver, idx int) error {
	claims.Lock()
	defer claims.Unlock()
	k := claimKey{drv, idx}
	if claims.held[k] {
		return ErrClaimed
	}
	claims.held[k] = true
	return nil
}

func unclaim(drv pylon.Driver, idx int) {
	claims.Lock()
	defer claims.Unlock()
	delete(claims.held, claimKey{drv, idx})
}

// Session is a connection to one camera.  The camera is connected between a
// successful Start and Stop.
type Session struct {
	// ID distinguishes sessions in logs
	ID uuid.UUID

	// Config is applied at Start
	Config Config

	// Metrics, if not nil, are updated by Create
	Metrics *Metrics

	drv      pylon.Driver
	catalog  *pylon.Catalog
	pipeline *Pipeline
	log      zerolog.Logger
	meter    *fps.Meter

	mu          sync.Mutex
	initialized bool
	claimed     bool
	idx         int
	dev         pylon.Device
	fs          *pylon.FeatureStore
	pool        *Pool
	neg         Negotiated
	ident       pylon.Identity
	t0          time.Time
}

// NewSession returns a session which will connect to a camera through drv
func NewSession(drv pylon.Driver, cfg Config, log zerolog.Logger) *Session {
	id := uuid.New()
	log = log.With().Str("pkg", "pylonsrc").Str("session", id.String()).Logger()
	return &Session{
		ID:       id,
		Config:   cfg,
		drv:      drv,
		catalog:  pylon.NewCatalog(drv, log),
		pipeline: NewPipeline(log),
		log:      log,
		meter:    fps.NewMeter(fps.DefaultInterval, fps.DefaultHistory),
	}
}

// Start connects to the camera, configures it and begins acquisition.
// On failure the camera is released and the session is left disconnected.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		return ErrStarted
	}
	cfg := s.Config.Clone()
	if err := cfg.Validate(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if terr := s.teardown(); terr != nil {
				s.log.Warn().Err(terr).Msg("releasing the camera after a failed start")
			}
		}
	}()

	if err := s.drv.Initialize(); err != nil {
		return pylon.TransportError{Op: "initializing pylon", Err: err}
	}
	s.initialized = true
	idx, err := s.catalog.Select(cfg.Camera)
	if err != nil {
		return err
	}
	if err := claim(s.drv, idx); err != nil {
		return err
	}
	s.claimed, s.idx = true, idx
	dev, err := s.catalog.Open(idx)
	if err != nil {
		return err
	}
	s.dev, s.fs = dev, pylon.NewFeatureStore(dev, s.log)

	if cfg.UserID != "" {
		if s.fs.Writable("DeviceUserID") {
			if err := s.fs.SetString("DeviceUserID", cfg.UserID); err != nil {
				return err
			}
		} else {
			s.log.Warn().Msg("the camera's user id cannot be written")
		}
	}
	s.ident = pylon.Describe(dev, idx)
	s.log.Info().Stringer("camera", s.ident).Msg("connected")

	fs, neg, err := s.pipeline.Run(ctx, cfg, s.fs, s.reboot)
	s.fs = fs
	if err != nil {
		return err
	}
	s.neg = neg

	pool := NewPool(fs, PoolOptions{
		Timeout:     cfg.GrabTimeout,
		Triggered:   neg.Triggered,
		TriggerWait: cfg.TriggerWait,
		PixelFormat: neg.PixelFormat,
	}, s.log)
	s.pool = pool
	if err := pool.Prepare(); err != nil {
		return err
	}
	if err := linkCheck(fs, s.log); err != nil {
		return err
	}
	if err := pool.Start(); err != nil {
		return err
	}
	s.t0 = time.Now()
	s.meter.Reset(0)
	s.log.Info().Stringer("caps", StreamCaps(neg)).Msg("streaming")
	return nil
}

// CurrentConfig returns the configuration the next Start will apply
func (s *Session) CurrentConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Config.Clone()
}

// SetConfig validates and replaces the configuration.  It is refused while
// the session is connected.
func (s *Session) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		return ErrStarted
	}
	s.Config = cfg.Clone()
	return nil
}

// reboot reconnects after a DeviceReset.  s.mu is held by Start.
func (s *Session) reboot(ctx context.Context) (*pylon.FeatureStore, error) {
	if err := s.dev.Close(); err != nil {
		s.log.Debug().Err(err).Msg("closing the camera for reset")
	}
	s.dev, s.fs = nil, nil
	if err := s.drv.Terminate(); err != nil {
		s.log.Debug().Err(err).Msg("terminating pylon for reset")
	}
	s.initialized = false

	s.log.Info().Dur("settle", s.Config.ResetSettle).Msg("waiting for the camera to reboot")
	t := time.NewTimer(s.Config.ResetSettle)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
		return nil, ctx.Err()
	}

	if err := s.drv.Initialize(); err != nil {
		return nil, pylon.TransportError{Op: "initializing pylon", Err: err}
	}
	s.initialized = true
	var dev pylon.Device
	op := func() error {
		n, err := s.drv.DeviceCount()
		if err != nil {
			return err
		}
		if s.idx >= n {
			return pylon.NoDeviceError{Requested: s.idx, Count: n}
		}
		dev, err = s.drv.Open(s.idx)
		return err
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      s.Config.ReconnectTimeout,
		Clock:               backoff.SystemClock}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, pylon.ConnectError{Index: s.idx, Err: err}
	}
	s.dev = dev
	s.fs = pylon.NewFeatureStore(dev, s.log)
	s.log.Info().Msg("reconnected after reset")
	return s.fs, nil
}

// Create waits for the next frame.  It is safe to call Stop while Create
// is blocked.
func (s *Session) Create(ctx context.Context) (camera.Frame, error) {
	s.mu.Lock()
	pool, t0 := s.pool, s.t0
	s.mu.Unlock()
	if pool == nil {
		return camera.Frame{}, ErrNotConnected
	}
	f, err := pool.Produce(ctx)
	if err != nil {
		s.Metrics.failed(err, pool.Queued())
		return f, err
	}
	s.Metrics.frame(pool.Queued())
	if r, ok := s.meter.Add(time.Since(t0)); ok {
		s.log.Info().Float64("fps", r.FPS).Float64("msPerFrame", r.MsPerFrame).Msg("frame rate")
		s.Metrics.rate(r.FPS)
	}
	return f, nil
}

// Stop ends acquisition and disconnects.  It does nothing if the session is
// not connected.
func (s *Session) Stop() error {
	if pool := s.currentPool(); pool != nil {
		// unblocks a Create in progress before s.mu is taken
		if err := pool.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("stopping acquisition")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardown()
}

func (s *Session) currentPool() *Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// teardown releases whatever Start acquired.  s.mu must be held.
func (s *Session) teardown() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if s.pool != nil {
		keep(s.pool.Stop())
		s.pool = nil
	}
	if s.dev != nil {
		if strings.ToLower(s.Config.Reset) == ResetAfter {
			if s.fs.Available("DeviceReset") {
				s.log.Info().Msg("resetting the camera")
				keep(s.fs.Execute("DeviceReset"))
			} else {
				s.log.Warn().Msg("the camera cannot be reset")
			}
		}
		if err := s.dev.Close(); err != nil {
			keep(pylon.TransportError{Op: "closing the camera", Err: err})
		}
		s.dev, s.fs = nil, nil
		s.log.Info().Msg("disconnected")
	}
	if s.claimed {
		unclaim(s.drv, s.idx)
		s.claimed = false
	}
	if s.initialized {
		if err := s.drv.Terminate(); err != nil {
			keep(pylon.TransportError{Op: "terminating pylon", Err: err})
		}
		s.initialized = false
	}
	s.neg = Negotiated{}
	return first
}

// Connected returns true between a successful Start and Stop
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev != nil && s.pool != nil
}

// Caps describes the frames Create returns
func (s *Session) Caps() camera.StreamDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamCaps(s.neg)
}

// Negotiated returns what the camera settled on
func (s *Session) Negotiated() Negotiated {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neg
}

// Identity returns the connected camera's identity
func (s *Session) Identity() (pylon.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return pylon.Identity{}, ErrNotConnected
	}
	return s.ident, nil
}

// fixedWhileStreaming are the features the buffers, the negotiated stream
// description and the grab loop depend on
var fixedWhileStreaming = map[string]bool{
	"Width":                     true,
	"Height":                    true,
	"OffsetX":                   true,
	"OffsetY":                   true,
	"CenterX":                   true,
	"CenterY":                   true,
	"ReverseX":                  true,
	"ReverseY":                  true,
	"PixelFormat":               true,
	"TriggerSelector":           true,
	"TriggerMode":               true,
	"TriggerSource":             true,
	"AcquisitionMode":           true,
	"AcquisitionStatusSelector": true,
}

// WriteFeature runs write against the connected camera between two pulls,
// so it never interleaves with a Create in progress.  Commands and the
// features fixedWhileStreaming lists are refused with ErrStreaming.
func (s *Session) WriteFeature(feature string, write func(*pylon.FeatureStore) error) error {
	if fixedWhileStreaming[feature] || pylon.Features[feature] == pylon.KindCommand {
		return errors.Wrapf(ErrStreaming, "writing %s", feature)
	}
	s.mu.Lock()
	fs, pool := s.fs, s.pool
	s.mu.Unlock()
	if fs == nil || pool == nil {
		return ErrNotConnected
	}
	return pool.Exclusive(func() error { return write(fs) })
}

// Features returns the feature store of the connected camera for reading.
// Writes go through WriteFeature.
func (s *Session) Features() (*pylon.FeatureStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fs == nil || s.pool == nil {
		return nil, ErrNotConnected
	}
	return s.fs, nil
}

// Queued returns the number of buffers waiting for a frame
func (s *Session) Queued() int {
	if pool := s.currentPool(); pool != nil {
		return pool.Queued()
	}
	return 0
}

// FPS summarizes the delivered frame rate
func (s *Session) FPS() fps.Summary {
	return s.meter.Summary()
}

// Devices lists the cameras the driver can see.  It initializes the driver
// if the session has not.
func (s *Session) Devices() ([]pylon.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		if err := s.drv.Initialize(); err != nil {
			return nil, pylon.TransportError{Op: "initializing pylon", Err: err}
		}
		defer s.drv.Terminate()
	}
	n, err := s.catalog.Enumerate()
	if err != nil {
		return nil, err
	}
	ids := s.catalog.List(n)
	if s.dev != nil && s.idx < len(ids) {
		// the connected camera cannot be opened a second time
		ids[s.idx] = s.ident
	}
	return ids, nil
}
