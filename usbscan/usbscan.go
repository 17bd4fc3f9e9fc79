/*Package usbscan scans the USB bus for cameras.

pylon reports no devices both when nothing is plugged in and when the camera
is on the bus but cannot be claimed (permissions, a USB2 port, another
driver).  Looking at the bus directly tells these apart.
*/
package usbscan

import (
	"fmt"

	"github.com/google/gousb"
)

// BaslerVID is the USB vendor ID of Basler AG
const BaslerVID gousb.ID = 0x2676

// Device is a USB device seen on the bus
type Device struct {
	Bus, Address, Port int
	Vendor, Product    gousb.ID
	Speed              gousb.Speed

	// Spec is the USB version the device reports
	Spec gousb.BCD
}

// SuperSpeed returns true if the device is connected at USB3 speed.  USB3
// Vision cameras do not stream on slower links.
func (d Device) SuperSpeed() bool {
	return d.Speed >= gousb.SpeedSuper
}

func (d Device) String() string {
	return fmt.Sprintf("bus %03d address %03d port %d: %s:%s USB %s, %s", d.Bus, d.Address, d.Port, d.Vendor, d.Product, d.Spec, d.Speed)
}

// Lister is satisfied by *gousb.Context
type Lister interface {
	OpenDevices(opener func(desc *gousb.DeviceDesc) bool) ([]*gousb.Device, error)
}

// Scan lists the devices with vendor vid.  Devices are only inspected, never
// opened, so no permissions are needed.
func Scan(l Lister, vid gousb.ID) ([]Device, error) {
	var out []Device
	devs, err := l.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == vid {
			out = append(out, Device{
				Bus:     desc.Bus,
				Address: desc.Address,
				Port:    desc.Port,
				Vendor:  desc.Vendor,
				Product: desc.Product,
				Speed:   desc.Speed,
				Spec:    desc.Spec,
			})
		}
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	return out, err
}

// ScanBus lists the Basler devices on the system's USB bus
func ScanBus() ([]Device, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	return Scan(ctx, BaslerVID)
}
