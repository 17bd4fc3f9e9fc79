/*Package gstsink feeds camera frames to GStreamer.

The Sink itself needs cgo and the GStreamer development files and is only
built with the gst build tag.  Pump works with any Pusher.
*/
package gstsink

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
)

// Pusher accepts frames
type Pusher interface {
	Push(camera.Frame) error
}

// Pump moves frames from a stream to a pusher
type Pump struct {
	// Recoverable reports errors from Create after which the pump keeps
	// pulling.  Nil treats every error as fatal.
	Recoverable func(error) bool

	// Stopped reports the error Create returns once the stream is stopped,
	// which ends the pump without error
	Stopped error

	Log zerolog.Logger
}

// Run pulls frames from st and pushes them to p until ctx is done, the
// stream stops or an unrecoverable error occurs
func (pp Pump) Run(ctx context.Context, st camera.Streamer, p Pusher) error {
	var dropped int
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		f, err := st.Create(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case pp.Stopped != nil && errors.Is(err, pp.Stopped):
				return nil
			case pp.Recoverable != nil && pp.Recoverable(err):
				dropped++
				pp.Log.Warn().Err(err).Int("dropped", dropped).Msg("frame not delivered")
				continue
			}
			return err
		}
		if err := p.Push(f); err != nil {
			return err
		}
	}
}
