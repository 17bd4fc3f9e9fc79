package pylonsrc

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStopped is returned by Create once the session is stopping
	ErrStopped = errors.New("camera session stopped")

	// ErrNotConnected is returned when a session is used before Start
	ErrNotConnected = errors.New("camera is not connected")

	// ErrClaimed is returned when another session holds the camera
	ErrClaimed = errors.New("camera is already in use by another session")

	// ErrStarted is returned by Start and SetConfig on a connected session
	ErrStarted = errors.New("camera session already started")

	// ErrStreaming is returned for feature writes which cannot happen while
	// frames are being acquired
	ErrStreaming = errors.New("the camera is streaming")
)

type errNotEnoughBandwidth struct {
	Throughput, Speed int64
}

func (e errNotEnoughBandwidth) Error() string {
	return fmt.Sprintf("not enough bandwidth for the camera: %d B/s needed and the link carries %d B/s, "+
		"lower the frame rate, image size or set maxbandwidth", e.Throughput, e.Speed)
}
