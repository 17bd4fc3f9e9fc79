/*Package pylon exposes control of Basler USB3 Vision cameras in Go via the
pylon C SDK.

The SDK sits behind the Driver, Device and StreamGrabber interfaces.  A cgo
binding is compiled with the pylonc build tag; MockDriver is an in-memory
camera used for tests and for running without hardware.

*/
package pylon

import (
	"fmt"
	"time"
)

// WRAPVER is the pylon wrapper code version.
// Increment this when pkg pylon is updated.
const WRAPVER = 1

// Driver is the library level entry point of the SDK
type Driver interface {
	// Initialize loads the SDK.  It may be called again after Terminate
	Initialize() error

	// Terminate unloads the SDK
	Terminate() error

	// DeviceCount enumerates the connected devices and returns how many there are
	DeviceCount() (int, error)

	// Open creates the device at idx and opens it for control and streaming
	Open(idx int) (Device, error)
}

// Device is an open camera
type Device interface {
	// Close closes and destroys the device
	Close() error

	IsImplemented(feature string) bool
	IsAvailable(feature string) bool
	IsReadable(feature string) bool
	IsWritable(feature string) bool

	GetInt(feature string) (int64, error)
	SetInt(feature string, v int64) error
	GetFloat(feature string) (float64, error)
	SetFloat(feature string, v float64) error
	GetBool(feature string) (bool, error)
	SetBool(feature string, v bool) error

	// GetString reads any feature as a string, including enumerations
	GetString(feature string) (string, error)

	// SetString writes any feature from a string, including enumerations
	SetString(feature, value string) error

	// Execute runs a command feature
	Execute(feature string) error

	// LastError returns the SDK's message and detail for the last failure
	LastError() (msg, detail string)

	// StreamChannels is the number of stream grabber channels
	StreamChannels() (int, error)

	// StreamGrabber returns the stream grabber on a channel.  It is not opened.
	StreamGrabber(channel int) (StreamGrabber, error)
}

// BufferHandle is the SDK's handle to a registered buffer
type BufferHandle uintptr

// StreamGrabber delivers frames into registered buffers
type StreamGrabber interface {
	Open() error
	Close() error

	SetMaxNumBuffer(n int) error
	SetMaxBufferSize(size int) error
	PrepareGrab() error
	FinishGrab() error

	// AllocBuffer returns memory suitable for registration.  It is owned by
	// the caller, who returns it with FreeBuffer
	AllocBuffer(size int) ([]byte, error)
	FreeBuffer(buf []byte)

	RegisterBuffer(buf []byte) (BufferHandle, error)
	DeregisterBuffer(h BufferHandle) error

	// QueueBuffer hands a buffer to the device.  context is returned
	// with the grab result of that buffer
	QueueBuffer(h BufferHandle, context int) error

	// Wait blocks until a result is ready or timeout passes.
	// ready is false on timeout
	Wait(timeout time.Duration) (ready bool, err error)

	// RetrieveResult pops a result.  ok is false if none was pending
	RetrieveResult() (res GrabResult, ok bool, err error)

	// CancelGrab flushes queued buffers to the output queue with status
	// Canceled and wakes any waiter
	CancelGrab() error
}

// GrabStatus is the status of a grab result
type GrabStatus int

const (
	// UndefinedGrabStatus is the zero value
	UndefinedGrabStatus GrabStatus = iota - 1
	// Idle means the buffer is not in use
	Idle
	// Queued means the buffer is waiting for a frame
	Queued
	// Grabbed means the buffer holds a good frame
	Grabbed
	// Canceled means the buffer was flushed by CancelGrab
	Canceled
	// Failed means the frame was lost or damaged
	Failed
)

func (s GrabStatus) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Queued:
		return "Queued"
	case Grabbed:
		return "Grabbed"
	case Canceled:
		return "Canceled"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("GrabStatus(%d)", int(s))
}

// GrabResult describes a completed buffer
type GrabResult struct {
	Handle  BufferHandle
	Context int
	Status  GrabStatus

	// PayloadSize is the number of valid bytes in the buffer
	PayloadSize int

	SizeX, SizeY int
	BlockID      uint64

	// TimeStamp is the camera's tick counter at exposure
	TimeStamp uint64

	ErrorCode        uint32
	ErrorDescription string
}
