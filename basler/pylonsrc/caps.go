package pylonsrc

import (
	"strings"

	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
)

var bayerCaps = map[string]string{
	"BG": "bggr",
	"GB": "gbrg",
	"GR": "grbg",
	"RG": "rggb",
}

var rawCaps = map[string]string{
	"RGB8":       "RGB",
	"BGR8":       "BGR",
	"YCbCr422_8": "YUY2",
	"Mono8":      "GRAY8",
}

// StreamCaps returns the GStreamer description of frames in the negotiated
// layout.  Bayer depth is not carried in the caps.
func StreamCaps(n Negotiated) camera.StreamDescription {
	d := camera.StreamDescription{PixelFormat: n.PixelFormat, Width: int(n.Width), Height: int(n.Height)}
	if strings.HasPrefix(n.PixelFormat, "Bayer") && len(n.PixelFormat) >= 7 {
		d.Media = "video/x-bayer"
		d.Format = bayerCaps[n.PixelFormat[5:7]]
		return d
	}
	d.Media = "video/x-raw"
	d.Format = rawCaps[n.PixelFormat]
	return d
}
