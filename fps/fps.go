/*Package fps measures the rate frames are delivered at.

An Accumulator counts frames over fixed windows and carries the part of a
window that overruns the report boundary into the next one, so no frame or
interval is lost between reports.
*/
package fps

import (
	"fmt"
	"time"
)

// DefaultInterval is the report window used when none is given
const DefaultInterval = time.Second

// Report is the rate measured over one window
type Report struct {
	Frames     int64         `json:"frames"`
	Elapsed    time.Duration `json:"elapsed"`
	FPS        float64       `json:"fps"`
	MsPerFrame float64       `json:"msPerFrame"`
}

func (r Report) String() string {
	return fmt.Sprintf("%d frames in %v, %.2f fps, %.2f ms/frame", r.Frames, r.Elapsed, r.FPS, r.MsPerFrame)
}

// Accumulator counts frames in report windows.  It is not safe for
// concurrent use.
type Accumulator struct {
	frames   int64
	elapsed  time.Duration
	interval time.Duration
	last     time.Duration
	seeded   bool
}

// NewAccumulator returns an accumulator reporting every interval.
// interval <= 0 uses DefaultInterval.
func NewAccumulator(interval time.Duration) *Accumulator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Accumulator{interval: interval}
}

// Interval returns the report window
func (a *Accumulator) Interval() time.Duration {
	return a.interval
}

// Reset clears the window and starts timing from t without counting a frame
func (a *Accumulator) Reset(t time.Duration) {
	a.frames = 0
	a.elapsed = 0
	a.last = t
	a.seeded = true
}

// Add counts a frame delivered at t, a time on any monotonic clock.
// ok is true when the frame closed a window and r holds its measurement.
// The first frame seen without Reset adds no elapsed time.
func (a *Accumulator) Add(t time.Duration) (r Report, ok bool) {
	if !a.seeded {
		a.Reset(t)
	}
	a.frames++
	a.elapsed += t - a.last
	a.last = t
	if a.elapsed < a.interval {
		return Report{}, false
	}
	r.Frames, r.Elapsed = a.frames, a.elapsed
	if r.Elapsed != a.interval {
		// the last frame straddles the boundary and belongs to the next window
		r.Frames--
		r.Elapsed -= r.Elapsed % a.interval
	}
	if r.Frames > 0 {
		r.FPS = float64(r.Frames) / r.Elapsed.Seconds()
		r.MsPerFrame = float64(r.Elapsed) / float64(time.Millisecond) / float64(r.Frames)
	}
	a.frames -= r.Frames
	a.elapsed -= r.Elapsed
	return r, true
}

// Pending returns the frames and time counted toward the open window
func (a *Accumulator) Pending() (int64, time.Duration) {
	return a.frames, a.elapsed
}
