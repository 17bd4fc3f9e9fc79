//go:build gst
// +build gst

package main

import (
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/gstsink"
)

type sink interface {
	gstsink.Pusher
	Close() error
}

func newSink(caps camera.StreamDescription, launch string, log zerolog.Logger) (sink, error) {
	return gstsink.New(caps, launch, log)
}
