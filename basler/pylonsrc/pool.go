package pylonsrc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tevino/abool"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

// SlotIndex addresses a buffer of a Pool.  It is the context the buffer is
// queued with.
type SlotIndex int

type slotState int

const (
	slotFree slotState = iota
	slotQueued
	slotInFlight
)

type slot struct {
	buf        []byte
	handle     pylon.BufferHandle
	registered bool
	state      slotState
}

// PoolState is the lifecycle state of a Pool
type PoolState int32

const (
	// PoolIdle holds no buffers
	PoolIdle PoolState = iota
	// PoolPrepared has its buffers queued, acquisition is not running
	PoolPrepared
	// PoolStreaming is acquiring
	PoolStreaming
	// PoolDraining is tearing down
	PoolDraining
)

func (s PoolState) String() string {
	switch s {
	case PoolIdle:
		return "idle"
	case PoolPrepared:
		return "prepared"
	case PoolStreaming:
		return "streaming"
	case PoolDraining:
		return "draining"
	}
	return fmt.Sprintf("PoolState(%d)", int32(s))
}

// PoolOptions configures a Pool
type PoolOptions struct {
	// Buffers is the number of frame buffers, NumBuffers if zero
	Buffers int

	// Timeout bounds the wait for each frame
	Timeout time.Duration

	// Triggered is software triggered acquisition
	Triggered bool

	// TriggerWait bounds the wait for the camera to accept a trigger
	TriggerWait time.Duration

	// PixelFormat labels the frames
	PixelFormat string
}

// Pool is a fixed set of frame buffers registered with a camera's stream
// grabber, and the loop that cycles them.
//
// One goroutine calls Produce; Stop may be called from any goroutine.
type Pool struct {
	fs   *pylon.FeatureStore
	opts PoolOptions
	log  zerolog.Logger

	// mu serialises Produce and teardown
	mu sync.Mutex

	grabber     pylon.StreamGrabber
	grabberOpen bool
	prepared    bool
	slots       []slot
	payload     int
	seq         uint64

	state     int32
	queued    int32
	streaming abool.AtomicBool
	closing   abool.AtomicBool

	// stopped is closed once the first Stop has released everything
	stopped chan struct{}
}

// NewPool returns an idle pool for the camera behind fs
func NewPool(fs *pylon.FeatureStore, opts PoolOptions, log zerolog.Logger) *Pool {
	if opts.Buffers <= 0 {
		opts.Buffers = NumBuffers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.TriggerWait <= 0 {
		opts.TriggerWait = time.Second
	}
	return &Pool{fs: fs, opts: opts, stopped: make(chan struct{}),
		log: log.With().Str("pkg", "pylonsrc").Str("component", "pool").Logger()}
}

// State returns the lifecycle state
func (p *Pool) State() PoolState {
	return PoolState(atomic.LoadInt32(&p.state))
}

func (p *Pool) setState(s PoolState) {
	atomic.StoreInt32(&p.state, int32(s))
}

// Queued returns the number of buffers waiting for a frame
func (p *Pool) Queued() int {
	return int(atomic.LoadInt32(&p.queued))
}

// PayloadSize is the size of each buffer
func (p *Pool) PayloadSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payload
}

// Prepare opens the stream grabber, allocates and registers the buffers and
// queues them all.  On failure everything done so far is undone.
func (p *Pool) Prepare() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != PoolIdle {
		return fmt.Errorf("pool is %s, not idle", p.State())
	}
	if err := p.prepare(); err != nil {
		if rerr := p.release(); rerr != nil {
			p.log.Error().Err(rerr).Msg("releasing buffers after a failed prepare")
		}
		return err
	}
	p.setState(PoolPrepared)
	return nil
}

func (p *Pool) prepare() error {
	dev := p.fs.Device()
	n, err := dev.StreamChannels()
	if err != nil {
		return pylon.TransportError{Op: "counting stream channels", Err: err}
	}
	if n < 1 {
		return pylon.TransportError{Op: "opening the stream grabber", Err: errors.New("the camera has no stream channels")}
	}
	g, err := dev.StreamGrabber(0)
	if err != nil {
		return pylon.TransportError{Op: "getting the stream grabber", Err: err}
	}
	if err := g.Open(); err != nil {
		return pylon.TransportError{Op: "opening the stream grabber", Err: err}
	}
	p.grabber, p.grabberOpen = g, true

	payload, err := p.fs.GetInt("PayloadSize")
	if err != nil {
		return err
	}
	p.payload = int(payload)
	if err := g.SetMaxNumBuffer(p.opts.Buffers); err != nil {
		return pylon.TransportError{Op: "setting the buffer count", Err: err}
	}
	if err := g.SetMaxBufferSize(p.payload); err != nil {
		return pylon.TransportError{Op: "setting the buffer size", Err: err}
	}
	if err := g.PrepareGrab(); err != nil {
		return pylon.TransportError{Op: "preparing the stream grabber", Err: err}
	}
	p.prepared = true

	p.slots = make([]slot, p.opts.Buffers)
	for i := range p.slots {
		s := &p.slots[i]
		s.buf, err = g.AllocBuffer(p.payload)
		if err != nil {
			return pylon.AllocationError{Slot: i, Size: p.payload, Err: err}
		}
		s.handle, err = g.RegisterBuffer(s.buf)
		if err != nil {
			return pylon.AllocationError{Slot: i, Size: p.payload, Err: err}
		}
		s.registered = true
	}
	for i := range p.slots {
		if err := p.queue(SlotIndex(i)); err != nil {
			return err
		}
	}
	p.log.Debug().Int("buffers", len(p.slots)).Int("size", p.payload).Msg("buffers queued")
	return nil
}

// queue hands a slot to the grabber.  p.mu must be held.
func (p *Pool) queue(i SlotIndex) error {
	s := &p.slots[i]
	if err := p.grabber.QueueBuffer(s.handle, int(i)); err != nil {
		s.state = slotFree
		return pylon.TransportError{Op: fmt.Sprintf("queueing buffer %d", i), Err: err}
	}
	s.state = slotQueued
	atomic.AddInt32(&p.queued, 1)
	return nil
}

// Exclusive runs fn between two pulls.  It waits for a Produce in progress
// to return and fails with ErrStopped unless the pool is streaming.
func (p *Pool) Exclusive(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing.IsSet() || p.State() != PoolStreaming {
		return ErrStopped
	}
	return fn()
}

// Start begins acquisition.  In triggered mode the first frame is triggered.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != PoolPrepared {
		return fmt.Errorf("pool is %s, not prepared", p.State())
	}
	if err := p.fs.Execute("AcquisitionStart"); err != nil {
		return err
	}
	p.streaming.Set()
	p.setState(PoolStreaming)
	if p.opts.Triggered {
		if err := p.fs.Execute("TriggerSoftware"); err != nil {
			return err
		}
	}
	p.log.Info().Bool("triggered", p.opts.Triggered).Msg("acquisition started")
	return nil
}

// Stop ends acquisition and releases every buffer.  It may be called while
// Produce is blocked, which then returns ErrStopped.  Later and concurrent
// calls wait for the first to finish releasing and return nil.
func (p *Pool) Stop() error {
	if !p.closing.SetToIf(false, true) {
		<-p.stopped
		return nil
	}
	defer close(p.stopped)
	if p.streaming.IsSet() {
		// wakes a Produce blocked in Wait
		if err := p.grabber.CancelGrab(); err != nil {
			p.log.Warn().Err(err).Msg("cancelling the grab")
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setState(PoolDraining)
	var first error
	if p.streaming.IsSet() {
		if err := p.fs.Execute("AcquisitionStop"); err != nil {
			first = err
		}
		p.streaming.UnSet()
	}
	if err := p.release(); err != nil && first == nil {
		first = err
	}
	p.setState(PoolIdle)
	p.log.Debug().Msg("pool released")
	return first
}

// release undoes whatever part of prepare was done.  p.mu must be held.
func (p *Pool) release() error {
	if p.grabber == nil {
		return nil
	}
	g := p.grabber
	var first error
	keep := func(err error, op string) {
		if err != nil && first == nil {
			first = pylon.TransportError{Op: op, Err: err}
		}
	}
	if p.prepared {
		keep(g.CancelGrab(), "cancelling the grab")
		for {
			res, ok, err := g.RetrieveResult()
			if err != nil || !ok {
				break
			}
			if i := SlotIndex(res.Context); i >= 0 && int(i) < len(p.slots) {
				p.slots[i].state = slotFree
			}
		}
	}
	for i := range p.slots {
		s := &p.slots[i]
		if s.registered {
			keep(g.DeregisterBuffer(s.handle), fmt.Sprintf("deregistering buffer %d", i))
			s.registered = false
		}
		if s.buf != nil {
			g.FreeBuffer(s.buf)
			s.buf = nil
		}
		s.state = slotFree
	}
	atomic.StoreInt32(&p.queued, 0)
	if p.prepared {
		keep(g.FinishGrab(), "finishing the grab")
		p.prepared = false
	}
	if p.grabberOpen {
		keep(g.Close(), "closing the stream grabber")
		p.grabberOpen = false
	}
	p.grabber = nil
	p.slots = nil
	return first
}
