//go:build !pylonc
// +build !pylonc

package main

import (
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

func driver(log zerolog.Logger) pylon.Driver {
	log.Warn().Msg("built without the pylonc tag, using a simulated camera")
	return pylon.NewMockDriver(1)
}
