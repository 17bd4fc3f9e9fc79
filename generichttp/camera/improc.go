// this file contains a few small image processing utilities
package camera

import (
	"image"
	"image/draw"
)

// Rotate rotates an image clockwise by a multiple of 90 degrees.  Other
// angles return img unchanged.
func Rotate(img image.Image, deg int) image.Image {
	deg = ((deg % 360) + 360) % 360
	if deg == 0 || deg%90 != 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dstRect := image.Rect(0, 0, h, w)
	if deg == 180 {
		dstRect = image.Rect(0, 0, w, h)
	}
	dst := blank(img, dstRect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch deg {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

// blank returns an empty image of the same kind as img
func blank(img image.Image, r image.Rectangle) draw.Image {
	switch img.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	}
	return image.NewRGBA(r)
}
