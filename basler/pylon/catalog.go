package pylon

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Identity describes a camera for selection and diagnostics
type Identity struct {
	// Index is the enumeration index
	Index int `json:"index"`

	// Model is DeviceModelName
	Model string `json:"model"`

	// Serial is DeviceSerialNumber
	Serial string `json:"serial"`

	// UserID is DeviceUserID, "None" if empty
	UserID string `json:"userID"`

	// Available is false if the camera could not be opened, usually because
	// another process holds it
	Available bool `json:"available"`
}

func (i Identity) String() string {
	if !i.Available {
		return fmt.Sprintf("ID:%d, Name: Unavailable, Serial No: Unavailable, Status: In use?", i.Index)
	}
	return fmt.Sprintf("ID:%d, Name:%s, Serial No:%s, Status: Available. Custom ID: %s", i.Index, i.Model, i.Serial, i.UserID)
}

// Catalog enumerates and opens the cameras a driver can see
type Catalog struct {
	Driver Driver
	Log    zerolog.Logger
}

// NewCatalog returns a catalog over drv
func NewCatalog(drv Driver, log zerolog.Logger) *Catalog {
	return &Catalog{Driver: drv, Log: log.With().Str("pkg", "pylon").Logger()}
}

// Enumerate returns the number of cameras connected
func (c *Catalog) Enumerate() (int, error) {
	n, err := c.Driver.DeviceCount()
	if err != nil {
		return 0, TransportError{Op: "enumerating devices", Err: err}
	}
	c.Log.Debug().Int("count", n).Msg("found Basler device(s)")
	return n, nil
}

// Resolve picks the device index to use given the index requested (nil if
// none was) and the number of devices found.
//
// With several devices and no request it returns AmbiguousSelectionError
// without a listing; Select fills that in.
func Resolve(requested *int, count int, log zerolog.Logger) (int, error) {
	req := -1
	if requested != nil {
		req = *requested
	}
	switch {
	case count == 0:
		return 0, NoDeviceError{Requested: req, Count: 0}
	case count == 1:
		if req > 0 {
			log.Info().Int("requested", req).Msg("camera id was set, but was ignored as only one camera was found")
		}
		return 0, nil
	case req < 0:
		return 0, AmbiguousSelectionError{}
	case req >= count:
		return 0, NoDeviceError{Requested: req, Count: count}
	}
	return req, nil
}

// Select enumerates the cameras and resolves requested against them.  When
// the choice is ambiguous the error lists every camera.
func (c *Catalog) Select(requested *int) (int, error) {
	n, err := c.Enumerate()
	if err != nil {
		return 0, err
	}
	idx, err := Resolve(requested, n, c.Log)
	if _, ok := err.(AmbiguousSelectionError); ok {
		return 0, AmbiguousSelectionError{Devices: c.List(n)}
	}
	return idx, err
}

// List opens each of the first n cameras in turn to read its identity.
// Cameras which cannot be opened are listed as unavailable.
func (c *Catalog) List(n int) []Identity {
	ids := make([]Identity, 0, n)
	for i := 0; i < n; i++ {
		dev, err := c.Driver.Open(i)
		if err != nil {
			ids = append(ids, Identity{Index: i})
			continue
		}
		ids = append(ids, Describe(dev, i))
		dev.Close()
	}
	return ids
}

// Open connects to the camera at idx for control and streaming
func (c *Catalog) Open(idx int) (Device, error) {
	c.Log.Debug().Int("index", idx).Msg("connecting to the camera")
	dev, err := c.Driver.Open(idx)
	if err != nil {
		return nil, ConnectError{Index: idx, Err: err}
	}
	return dev, nil
}

// Describe reads the identity of an open camera.  Fields that cannot be read
// are filled with placeholders.
func Describe(dev Device, idx int) Identity {
	id := Identity{Index: idx, Model: "unknown", Serial: "unknown", UserID: "None", Available: true}
	if !dev.IsReadable("DeviceModelName") || !dev.IsReadable("DeviceSerialNumber") {
		return id
	}
	if s, err := dev.GetString("DeviceModelName"); err == nil {
		id.Model = s
	}
	if s, err := dev.GetString("DeviceSerialNumber"); err == nil {
		id.Serial = s
	}
	if dev.IsReadable("DeviceUserID") {
		if s, err := dev.GetString("DeviceUserID"); err == nil && s != "" {
			id.UserID = s
		}
	}
	return id
}
