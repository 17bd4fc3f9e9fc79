/*Package camera describes a standard set of interfaces for streaming cameras

Streamer is the contract a camera source honors toward whatever consumes its
frames: an HTTP server, a recorder, or a GStreamer pipeline.

*/
package camera

import (
	"context"
	"fmt"
	"time"
)

// Frame is one image delivered by a camera.  Data is owned by the frame.
type Frame struct {
	// Seq counts the frames of a session from zero without gaps
	Seq uint64

	Data      []byte
	Timestamp time.Time

	Width, Height int

	// PixelFormat is the camera's name for the pixel layout, e.g. Mono8
	PixelFormat string
}

// StreamDescription is the negotiated layout of the frames of a stream
type StreamDescription struct {
	// Media is the GStreamer media type, video/x-raw or video/x-bayer
	Media string

	// Format is the GStreamer format name, e.g. GRAY8 or rggb
	Format string

	// PixelFormat is the camera's name for the layout
	PixelFormat string

	Width, Height int

	// FPS is the nominal frame rate, 0 if variable
	FPS float64
}

// String renders the description as GStreamer caps
func (s StreamDescription) String() string {
	num, den := 0, 1
	if s.FPS > 0 {
		// millihertz precision is plenty for a nominal rate
		num, den = int(s.FPS*1000+0.5), 1000
	}
	return fmt.Sprintf("%s,format=%s,width=%d,height=%d,framerate=%d/%d", s.Media, s.Format, s.Width, s.Height, num, den)
}

// Streamer is a source of frames
type Streamer interface {
	// Start connects to and configures the camera, and begins acquisition
	Start(ctx context.Context) error

	// Create blocks for the next frame.  It does not block forever.
	Create(ctx context.Context) (Frame, error)

	// Stop ends acquisition and releases the camera.  It is safe to call
	// more than once and while Create is blocked.
	Stop() error

	// Caps describes the frames Create returns
	Caps() StreamDescription
}
