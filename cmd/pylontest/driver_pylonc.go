//go:build pylonc
// +build pylonc

package main

import (
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

func driver(zerolog.Logger) pylon.Driver {
	return pylon.CDriver{}
}
