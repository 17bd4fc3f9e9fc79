package pylon

import (
	"fmt"
	"strings"
	"time"
)

// GenAPIError is a result code returned by the pylon C API
type GenAPIError uint32

// ErrCodes maps the GenApi result codes pylon reports to their names
var ErrCodes = map[GenAPIError]string{
	0x00000000: "GENAPI_E_OK",
	0x80000001: "GENAPI_E_FAIL",
	0x80000002: "GENAPI_E_NOT_INITIALIZED",
	0x80000003: "GENAPI_E_INVALID_ARG",
	0x80000004: "GENAPI_E_NOT_IMPLEMENTED",
	0x80000005: "GENAPI_E_NOT_AVAILABLE",
	0x80000006: "GENAPI_E_INSUFFICIENT_BUFFER",
	0x80000007: "GENAPI_E_OUT_OF_RANGE",
	0x80000008: "GENAPI_E_TIMEOUT",
	0x80000009: "GENAPI_E_ACCESS_DENIED",
	0x8000000A: "GENAPI_E_INVALID_HANDLE",
	0x8000000B: "GENAPI_E_NOT_WRITABLE",
	0x8000000C: "GENAPI_E_NOT_READABLE",
}

const (
	errNotInitialized GenAPIError = 0x80000002
	errInvalidArg     GenAPIError = 0x80000003
	errNotImplemented GenAPIError = 0x80000004
	errNotAvailable   GenAPIError = 0x80000005
	errOutOfRange     GenAPIError = 0x80000007
	errInvalidHandle  GenAPIError = 0x8000000A
	errNotWritable    GenAPIError = 0x8000000B
	errNotReadable    GenAPIError = 0x8000000C
)

// Error satisfies the error interface
func (e GenAPIError) Error() string {
	if s, ok := ErrCodes[e]; ok {
		return fmt.Sprintf("%#08x - %s", uint32(e), s)
	}
	return fmt.Sprintf("%#08x - unknown GenApi error", uint32(e))
}

// Result returns nil for GENAPI_E_OK or a GenAPIError otherwise
func Result(code uint32) error {
	if code == 0 {
		return nil
	}
	return GenAPIError(code)
}

// NoDeviceError is generated when no device exists at the index asked for
type NoDeviceError struct {
	// Requested is the index asked for, -1 if none was
	Requested int

	// Count is the number of devices found
	Count int
}

func (e NoDeviceError) Error() string {
	if e.Count == 0 {
		return "no camera connected"
	}
	return fmt.Sprintf("no camera found with id %d, %d camera(s) connected", e.Requested, e.Count)
}

// AmbiguousSelectionError is generated when several devices are present
// and none was chosen.  Devices lists them for the operator.
type AmbiguousSelectionError struct {
	Devices []Identity
}

func (e AmbiguousSelectionError) Error() string {
	lines := make([]string, 0, len(e.Devices)+1)
	lines = append(lines, fmt.Sprintf("%d cameras found and no camera id was given, the camera ids are:", len(e.Devices)))
	for _, id := range e.Devices {
		lines = append(lines, id.String())
	}
	return strings.Join(lines, "\n")
}

// ConnectError is generated when a device cannot be created or opened
type ConnectError struct {
	Index int
	Err   error
}

func (e ConnectError) Error() string {
	return fmt.Sprintf("connecting to camera %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying SDK error
func (e ConnectError) Unwrap() error { return e.Err }

// UnsupportedFeatureError is generated when a feature is used without the
// device supporting the access
type UnsupportedFeatureError struct {
	Feature string

	// Access is the predicate that failed, e.g. "writable"
	Access string
}

func (e UnsupportedFeatureError) Error() string {
	if e.Access == "" {
		return fmt.Sprintf("feature %s is not supported by the camera", e.Feature)
	}
	return fmt.Sprintf("feature %s is not %s on the camera", e.Feature, e.Access)
}

// DeviceRejectedValueError is generated when the device refuses a write
type DeviceRejectedValueError struct {
	Feature string
	Value   interface{}

	// Detail holds the SDK's diagnostic message
	Detail string
	Err    error
}

func (e DeviceRejectedValueError) Error() string {
	s := fmt.Sprintf("camera rejected %v for %s", e.Value, e.Feature)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

// Unwrap returns the underlying SDK error
func (e DeviceRejectedValueError) Unwrap() error { return e.Err }

// InvalidParameterError is generated when a configuration value is not one
// of the values accepted for it
type InvalidParameterError struct {
	Parameter string
	Value     string
	Allowed   []string
}

func (e InvalidParameterError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid value %q for %s", e.Value, e.Parameter)
	}
	return fmt.Sprintf("invalid value %q for %s, available values are: %s", e.Value, e.Parameter, strings.Join(e.Allowed, ", "))
}

// InvalidRangeError is generated when a lower limit is not below its upper limit
type InvalidRangeError struct {
	Parameter string
	Lower     float64
	Upper     float64
}

func (e InvalidRangeError) Error() string {
	return fmt.Sprintf("%s lower limit %g must be less than the upper limit %g", e.Parameter, e.Lower, e.Upper)
}

// OutOfRangeError is generated when a value exceeds what the device allows
type OutOfRangeError struct {
	Parameter string
	Value     int64
	Max       int64
}

func (e OutOfRangeError) Error() string {
	return fmt.Sprintf("%s of %d exceeds the maximum of %d", e.Parameter, e.Value, e.Max)
}

// AllocationError is generated when frame buffers cannot be allocated or registered
type AllocationError struct {
	Slot int
	Size int
	Err  error
}

func (e AllocationError) Error() string {
	return fmt.Sprintf("allocating frame buffer %d of %d bytes: %v", e.Slot, e.Size, e.Err)
}

// Unwrap returns the underlying error
func (e AllocationError) Unwrap() error { return e.Err }

// AcquisitionTimeoutError is generated when no frame is ready in time
type AcquisitionTimeoutError struct {
	Timeout time.Duration

	// Waiting is what was being waited on
	Waiting string
}

func (e AcquisitionTimeoutError) Error() string {
	w := e.Waiting
	if w == "" {
		w = "a frame"
	}
	return fmt.Sprintf("camera did not deliver %s within %s", w, e.Timeout)
}

// AcquisitionRetrievalError is generated when the wait succeeded but no
// result could be retrieved
type AcquisitionRetrievalError struct {
	Err error
}

func (e AcquisitionRetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieving grab result: %v", e.Err)
	}
	return "stream signalled a ready buffer but no grab result was available"
}

// Unwrap returns the underlying error
func (e AcquisitionRetrievalError) Unwrap() error { return e.Err }

// GrabError is generated when a grab result does not carry a good frame
type GrabError struct {
	Status GrabStatus
	Code   uint32
	Detail string
}

func (e GrabError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("grab %s (%#08x): %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("grab %s", e.Status)
}

// TransportError is generated by SDK failures outside of value writes
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e TransportError) Unwrap() error { return e.Err }
