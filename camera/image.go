package camera

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"strings"
)

// ErrUnsupportedFormat is generated when a frame's pixels cannot be
// converted to an image
type ErrUnsupportedFormat struct {
	PixelFormat string
}

func (e ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("pixel format %s cannot be converted to an image", e.PixelFormat)
}

// BytesPerPixel returns the number of bytes one pixel occupies, 0 for
// packed or unknown formats
func BytesPerPixel(pixelFormat string) int {
	switch {
	case pixelFormat == "RGB8", pixelFormat == "BGR8":
		return 3
	case strings.HasPrefix(pixelFormat, "YCbCr422"):
		return 2
	case strings.HasSuffix(pixelFormat, "10p"):
		return 0
	case strings.HasSuffix(pixelFormat, "10"):
		return 2
	case strings.HasSuffix(pixelFormat, "8"):
		return 1
	}
	return 0
}

// Packed10 reports if a pixel format packs four 10 bit pixels into five
// bytes, least significant bits first
func Packed10(pixelFormat string) bool {
	return strings.HasSuffix(pixelFormat, "10p")
}

// PayloadSize returns the number of bytes a width x height frame of
// pixelFormat occupies, 0 for unknown formats
func PayloadSize(pixelFormat string, width, height int) int {
	if Packed10(pixelFormat) {
		return (width*height*10 + 7) / 8
	}
	return width * height * BytesPerPixel(pixelFormat)
}

// unpack10 expands packed 10 bit pixels to one value each
func unpack10(data []byte, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		bit := 10 * i
		b := bit / 8
		out[i] = (uint16(data[b]) | uint16(data[b+1])<<8) >> uint(bit%8) & 0x3ff
	}
	return out
}

// Image converts the frame to an image.  Bayer mosaics are returned as
// gray images of the raw sensor values.
func (f Frame) Image() (image.Image, error) {
	if Packed10(f.PixelFormat) {
		if need := PayloadSize(f.PixelFormat, f.Width, f.Height); len(f.Data) < need {
			return nil, fmt.Errorf("frame holds %d bytes, %dx%d %s needs %d", len(f.Data), f.Width, f.Height, f.PixelFormat, need)
		}
		img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
		for i, v := range unpack10(f.Data, f.Width*f.Height) {
			img.SetGray16(i%f.Width, i/f.Width, color.Gray16{Y: v << 6})
		}
		return img, nil
	}
	bpp := BytesPerPixel(f.PixelFormat)
	if bpp == 0 {
		return nil, ErrUnsupportedFormat{f.PixelFormat}
	}
	if need := f.Width * f.Height * bpp; len(f.Data) < need {
		return nil, fmt.Errorf("frame holds %d bytes, %dx%d %s needs %d", len(f.Data), f.Width, f.Height, f.PixelFormat, need)
	}
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch {
	case bpp == 1:
		return &image.Gray{Pix: f.Data[:f.Width*f.Height], Stride: f.Width, Rect: rect}, nil
	case f.PixelFormat == "RGB8", f.PixelFormat == "BGR8":
		img := image.NewRGBA(rect)
		r, b := 0, 2
		if f.PixelFormat == "BGR8" {
			r, b = 2, 0
		}
		for i := 0; i < f.Width*f.Height; i++ {
			px := f.Data[3*i : 3*i+3]
			img.Pix[4*i] = px[r]
			img.Pix[4*i+1] = px[1]
			img.Pix[4*i+2] = px[b]
			img.Pix[4*i+3] = 0xff
		}
		return img, nil
	case strings.HasPrefix(f.PixelFormat, "YCbCr422"):
		// packed as Y0 Cb Y1 Cr
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for y := 0; y < f.Height; y++ {
			row := f.Data[y*f.Width*2 : (y+1)*f.Width*2]
			for x := 0; x+1 < f.Width; x += 2 {
				q := row[2*x : 2*x+4]
				img.Y[y*img.YStride+x] = q[0]
				img.Y[y*img.YStride+x+1] = q[2]
				ci := img.COffset(x, y)
				img.Cb[ci] = q[1]
				img.Cr[ci] = q[3]
			}
		}
		return img, nil
	}
	img := image.NewGray16(rect)
	for i := 0; i < f.Width*f.Height; i++ {
		v := binary.LittleEndian.Uint16(f.Data[2*i:])
		// scale the sensor bits to the full 16 bit range
		img.SetGray16(i%f.Width, i/f.Width, color.Gray16{Y: v << 6})
	}
	return img, nil
}
