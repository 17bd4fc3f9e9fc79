package fps

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultHistory is the number of reports a Meter keeps by default
const DefaultHistory = 60

// Meter is an Accumulator that keeps its recent reports.  It is safe for
// concurrent use.
type Meter struct {
	mu   sync.Mutex
	acc  *Accumulator
	hist []float64
	size int
	last Report
}

// NewMeter returns a meter reporting every interval and keeping history
// reports.  Zero values use the defaults.
func NewMeter(interval time.Duration, history int) *Meter {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Meter{acc: NewAccumulator(interval), size: history}
}

// Add counts a frame delivered at t.  See Accumulator.Add.
func (m *Meter) Add(t time.Duration) (Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.acc.Add(t)
	if !ok {
		return r, ok
	}
	m.last = r
	m.hist = append(m.hist, r.FPS)
	if len(m.hist) > m.size {
		m.hist = m.hist[len(m.hist)-m.size:]
	}
	return r, ok
}

// Reset forgets the history and starts timing from t
func (m *Meter) Reset(t time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acc.Reset(t)
	m.hist = m.hist[:0]
	m.last = Report{}
}

// Last returns the most recent report
func (m *Meter) Last() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Summary describes the reports held by a Meter
type Summary struct {
	Last    Report  `json:"last"`
	Reports int     `json:"reports"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stdDev"`
}

// Summary returns the mean and standard deviation of the recent frame rates
func (m *Meter) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Summary{Last: m.last, Reports: len(m.hist)}
	switch len(m.hist) {
	case 0:
	case 1:
		s.Mean = m.hist[0]
	default:
		s.Mean, s.StdDev = stat.MeanStdDev(m.hist, nil)
	}
	return s
}
