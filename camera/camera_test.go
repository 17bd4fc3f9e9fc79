package camera

import (
	"fmt"
	"image"
	"testing"
)

func TestStreamDescriptionString(t *testing.T) {
	s := StreamDescription{Media: "video/x-raw", Format: "GRAY8", Width: 1920, Height: 1200}
	exp := "video/x-raw,format=GRAY8,width=1920,height=1200,framerate=0/1"
	if got := s.String(); got != exp {
		t.Errorf("expected %s got %s", exp, got)
	}
	s.FPS = 30
	exp = "video/x-raw,format=GRAY8,width=1920,height=1200,framerate=30000/1000"
	if got := s.String(); got != exp {
		t.Errorf("expected %s got %s", exp, got)
	}
}

func TestBytesPerPixel(t *testing.T) {
	cases := map[string]int{
		"Mono8":      1,
		"BayerRG8":   1,
		"BayerRG10":  2,
		"BayerRG10p": 0,
		"RGB8":       3,
		"BGR8":       3,
		"YCbCr422_8": 2,
		"Coord3D":    0,
	}
	for pf, exp := range cases {
		if got := BytesPerPixel(pf); got != exp {
			t.Errorf("%s: expected %d got %d", pf, exp, got)
		}
	}
}

func TestImageBGR8SwapsChannels(t *testing.T) {
	f := Frame{Width: 1, Height: 1, PixelFormat: "BGR8", Data: []byte{1, 2, 3}}
	img, err := f.Image()
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 3 || g>>8 != 2 || b>>8 != 1 {
		t.Errorf("expected 3,2,1 got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestImageShortFrame(t *testing.T) {
	f := Frame{Width: 4, Height: 4, PixelFormat: "Mono8", Data: make([]byte, 15)}
	if _, err := f.Image(); err == nil {
		t.Error("expected an error for a truncated frame")
	}
}

// pack10 packs 10 bit values four to five bytes, least significant bits first
func pack10(vals []uint16) []byte {
	out := make([]byte, (len(vals)*10+7)/8)
	for i, v := range vals {
		for b := 0; b < 10; b++ {
			if v&(1<<uint(b)) != 0 {
				bit := 10*i + b
				out[bit/8] |= 1 << uint(bit%8)
			}
		}
	}
	return out
}

func TestImagePacked(t *testing.T) {
	vals := []uint16{0x3ff, 0, 0x155, 1, 0x200, 0x2aa, 7, 0x100}
	f := Frame{Width: 4, Height: 2, PixelFormat: "BayerBG10p", Data: pack10(vals)}
	if len(f.Data) != PayloadSize(f.PixelFormat, 4, 2) {
		t.Fatalf("packed %d bytes, PayloadSize says %d", len(f.Data), PayloadSize(f.PixelFormat, 4, 2))
	}
	img, err := f.Image()
	if err != nil {
		t.Fatal(err)
	}
	g := img.(*image.Gray16)
	for i, v := range vals {
		if got := g.Gray16At(i%4, i/4).Y; got != v<<6 {
			t.Errorf("pixel %d: expected %#x got %#x", i, v<<6, got)
		}
	}

	f.Data = f.Data[:9]
	if _, err := f.Image(); err == nil {
		t.Error("expected an error for a truncated packed frame")
	}
}

func TestPayloadSize(t *testing.T) {
	if got := PayloadSize("Mono10p", 1920, 1200); got != 2880000 {
		t.Errorf("Mono10p: expected 2880000 got %d", got)
	}
	if got := PayloadSize("Mono10", 1920, 1200); got != 4608000 {
		t.Errorf("Mono10: expected 4608000 got %d", got)
	}
}

func ExampleFrame_Image() {
	f := Frame{Width: 2, Height: 1, PixelFormat: "Mono8", Data: []byte{0, 255}}
	img, _ := f.Image()
	fmt.Println(img.Bounds(), img.(*image.Gray).GrayAt(1, 0).Y)
	// Output: (0,0)-(2,1) 255
}
