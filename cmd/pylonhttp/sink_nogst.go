//go:build !gst
// +build !gst

package main

import (
	"errors"

	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/gstsink"
)

type sink interface {
	gstsink.Pusher
	Close() error
}

func newSink(camera.StreamDescription, string, zerolog.Logger) (sink, error) {
	return nil, errors.New("pylon-http was built without the gst tag, gstreamer output is unavailable")
}
