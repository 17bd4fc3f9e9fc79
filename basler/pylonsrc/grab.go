package pylonsrc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
)

// statusPoll is how often AcquisitionStatus is read while waiting to trigger
const statusPoll = time.Millisecond

// Produce waits for the next frame and returns a copy of it.  The buffer
// goes back to the camera whether or not the frame was good.
func (p *Pool) Produce(ctx context.Context) (camera.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing.IsSet() || p.State() != PoolStreaming {
		return camera.Frame{}, ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return camera.Frame{}, err
	}

	ready, err := p.grabber.Wait(p.opts.Timeout)
	if p.closing.IsSet() {
		return camera.Frame{}, ErrStopped
	}
	if err != nil {
		return camera.Frame{}, pylon.TransportError{Op: "waiting for a frame", Err: err}
	}
	if !ready {
		return camera.Frame{}, pylon.AcquisitionTimeoutError{Timeout: p.opts.Timeout}
	}

	res, ok, err := p.grabber.RetrieveResult()
	if err != nil {
		return camera.Frame{}, pylon.AcquisitionRetrievalError{Err: err}
	}
	if !ok {
		return camera.Frame{}, pylon.AcquisitionRetrievalError{}
	}
	idx := SlotIndex(res.Context)
	if idx < 0 || int(idx) >= len(p.slots) || p.slots[idx].handle != res.Handle {
		return camera.Frame{}, pylon.AcquisitionRetrievalError{Err: fmt.Errorf("result for unknown buffer %d", res.Context)}
	}
	s := &p.slots[idx]
	s.state = slotInFlight
	atomic.AddInt32(&p.queued, -1)
	if res.Status == pylon.Canceled {
		s.state = slotFree
		return camera.Frame{}, ErrStopped
	}

	frame, err := p.consume(ctx, s, res)
	if qerr := p.queue(idx); qerr != nil && err == nil {
		err = qerr
	}
	if err != nil {
		return camera.Frame{}, err
	}
	return frame, nil
}

// consume triggers the next frame and copies this one out of its slot.
// p.mu must be held.
func (p *Pool) consume(ctx context.Context, s *slot, res pylon.GrabResult) (camera.Frame, error) {
	if p.opts.Triggered {
		if err := p.awaitTriggerReady(ctx); err != nil {
			return camera.Frame{}, err
		}
		if err := p.fs.Execute("TriggerSoftware"); err != nil {
			return camera.Frame{}, err
		}
	}
	if res.Status != pylon.Grabbed {
		return camera.Frame{}, pylon.GrabError{Status: res.Status, Code: res.ErrorCode, Detail: res.ErrorDescription}
	}
	n := res.PayloadSize
	if n > len(s.buf) {
		n = len(s.buf)
	}
	data := make([]byte, n)
	copy(data, s.buf[:n])
	f := camera.Frame{
		Seq:         p.seq,
		Data:        data,
		Timestamp:   time.Now(),
		Width:       res.SizeX,
		Height:      res.SizeY,
		PixelFormat: p.opts.PixelFormat,
	}
	p.seq++
	return f, nil
}

// awaitTriggerReady polls AcquisitionStatus until the camera will accept a
// trigger, for at most TriggerWait
func (p *Pool) awaitTriggerReady(parent context.Context) error {
	if !p.fs.Readable("AcquisitionStatus") {
		return nil
	}
	ctx, cancel := context.WithTimeout(parent, p.opts.TriggerWait)
	defer cancel()
	lim := rate.NewLimiter(rate.Every(statusPoll), 1)
	for {
		ready, err := p.fs.GetBool("AcquisitionStatus")
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if err := lim.Wait(ctx); err != nil {
			if perr := parent.Err(); perr != nil {
				return perr
			}
			return pylon.AcquisitionTimeoutError{Timeout: p.opts.TriggerWait, Waiting: "the camera to be ready for a trigger"}
		}
	}
}
