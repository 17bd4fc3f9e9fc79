package pylonsrc

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

// Metrics are the prometheus collectors of a session.  A nil *Metrics
// records nothing.
type Metrics struct {
	Frames     prometheus.Counter
	GrabErrors *prometheus.CounterVec
	Queued     prometheus.Gauge
	FPS        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pylonsrc_frames_total",
			Help: "frames delivered",
		}),
		GrabErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pylonsrc_grab_errors_total",
			Help: "pulls which did not deliver a frame, by kind",
		}, []string{"kind"}),
		Queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pylonsrc_queued_buffers",
			Help: "buffers waiting for a frame",
		}),
		FPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pylonsrc_fps",
			Help: "frame rate over the last report window",
		}),
	}
	for _, c := range []prometheus.Collector{m.Frames, m.GrabErrors, m.Queued, m.FPS} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// errorKind is the label a pull error is counted under
func errorKind(err error) string {
	var (
		timeout   pylon.AcquisitionTimeoutError
		retrieval pylon.AcquisitionRetrievalError
		grab      pylon.GrabError
	)
	switch {
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &retrieval):
		return "retrieval"
	case errors.As(err, &grab):
		return "grab"
	case errors.Is(err, ErrStopped):
		return "stopped"
	}
	return "other"
}

func (m *Metrics) frame(queued int) {
	if m == nil {
		return
	}
	m.Frames.Inc()
	m.Queued.Set(float64(queued))
}

func (m *Metrics) failed(err error, queued int) {
	if m == nil {
		return
	}
	m.GrabErrors.WithLabelValues(errorKind(err)).Inc()
	m.Queued.Set(float64(queued))
}

func (m *Metrics) rate(fps float64) {
	if m == nil {
		return
	}
	m.FPS.Set(fps)
}
