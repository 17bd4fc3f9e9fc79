package gstsink

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
)

var (
	errTimeout = errors.New("timeout")
	errStopped = errors.New("stopped")
	errBroken  = errors.New("broken")
)

// script is a stream returning its errors in order, a frame for each nil
type script struct {
	steps []error
	seq   uint64
}

func (s *script) Start(context.Context) error    { return nil }
func (s *script) Stop() error                    { return nil }
func (s *script) Caps() camera.StreamDescription { return camera.StreamDescription{} }
func (s *script) Create(context.Context) (camera.Frame, error) {
	if len(s.steps) == 0 {
		return camera.Frame{}, errStopped
	}
	err := s.steps[0]
	s.steps = s.steps[1:]
	if err != nil {
		return camera.Frame{}, err
	}
	s.seq++
	return camera.Frame{Seq: s.seq - 1}, nil
}

type collector struct {
	seqs []uint64
	fail error
}

func (c *collector) Push(f camera.Frame) error {
	c.seqs = append(c.seqs, f.Seq)
	return c.fail
}

func pump() Pump {
	return Pump{
		Recoverable: func(err error) bool { return errors.Is(err, errTimeout) },
		Stopped:     errStopped,
		Log:         zerolog.Nop(),
	}
}

func TestPumpSkipsRecoverable(t *testing.T) {
	st := &script{steps: []error{nil, errTimeout, nil, nil}}
	c := &collector{}
	assert.NoError(t, pump().Run(context.Background(), st, c))
	assert.Equal(t, []uint64{0, 1, 2}, c.seqs)
}

func TestPumpStopsOnFatal(t *testing.T) {
	st := &script{steps: []error{nil, errBroken, nil}}
	c := &collector{}
	assert.ErrorIs(t, pump().Run(context.Background(), st, c), errBroken)
	assert.Equal(t, []uint64{0}, c.seqs)
}

func TestPumpPushError(t *testing.T) {
	st := &script{steps: []error{nil, nil}}
	c := &collector{fail: errBroken}
	assert.ErrorIs(t, pump().Run(context.Background(), st, c), errBroken)
	assert.Len(t, c.seqs, 1)
}

func TestPumpCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &collector{}
	assert.NoError(t, pump().Run(ctx, &script{steps: []error{nil}}, c))
	assert.Empty(t, c.seqs)
}
