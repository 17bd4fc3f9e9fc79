//go:build gst
// +build gst

package gstsink

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
)

// SourceName is the name of the appsrc element frames are pushed into
const SourceName = "pylonsrc"

// Sink pushes frames into a GStreamer pipeline through an appsrc
type Sink struct {
	pipeline *gst.Pipeline
	src      *app.Source
	log      zerolog.Logger
	first    time.Time
}

// New builds the pipeline "appsrc ! launch" with caps on the appsrc and sets
// it playing.  launch is in gst-launch syntax, e.g. "videoconvert ! autovideosink".
func New(caps camera.StreamDescription, launch string, log zerolog.Logger) (*Sink, error) {
	gst.Init(nil)
	desc := fmt.Sprintf("appsrc name=%s ! %s", SourceName, launch)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline %q: %w", desc, err)
	}
	elem, err := pipeline.GetElementByName(SourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to find appsrc: %w", err)
	}
	src := app.SrcFromElement(elem)
	src.SetCaps(gst.NewCapsFromString(caps.String()))
	src.SetFormat(gst.FormatTime)
	src.SetProperty("is-live", true)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	log.Info().Str("pipeline", desc).Stringer("caps", caps).Msg("gstreamer pipeline playing")
	return &Sink{pipeline: pipeline, src: src, log: log}, nil
}

// Push hands one frame to the pipeline, stamped relative to the first
func (s *Sink) Push(f camera.Frame) error {
	if s.first.IsZero() {
		s.first = f.Timestamp
	}
	buf := gst.NewBufferFromBytes(f.Data)
	buf.SetPresentationTimestamp(f.Timestamp.Sub(s.first))
	if ret := s.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("pushing frame %d: %s", f.Seq, ret)
	}
	return nil
}

// Close ends the stream and stops the pipeline
func (s *Sink) Close() error {
	s.src.EndStream()
	return s.pipeline.SetState(gst.StateNull)
}
