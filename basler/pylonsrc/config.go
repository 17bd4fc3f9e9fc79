package pylonsrc

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

// NumBuffers is the number of frame buffers kept queued on the stream grabber
const NumBuffers = 10

// reset modes
const (
	ResetOff    = "off"
	ResetBefore = "before"
	ResetAfter  = "after"
)

// Config is the configuration of a camera session.  Keys are the names of
// the gstreamer pylonsrc properties.
//
// A nil pointer or empty string leaves the value stored on the camera alone.
type Config struct {
	// Camera is the enumeration index of the camera to use.  It is ignored
	// when a single camera is connected
	Camera *int `koanf:"camera" yaml:"camera,omitempty"`

	// UserID is written to DeviceUserID before anything else
	UserID string `koanf:"userid" yaml:"userid"`

	// Reset is off, before or after
	Reset string `koanf:"reset" yaml:"reset"`

	Width   *int64 `koanf:"width" yaml:"width,omitempty"`
	Height  *int64 `koanf:"height" yaml:"height,omitempty"`
	OffsetX *int64 `koanf:"offsetx" yaml:"offsetx,omitempty"`
	OffsetY *int64 `koanf:"offsety" yaml:"offsety,omitempty"`
	CenterX bool   `koanf:"centerx" yaml:"centerx"`
	CenterY bool   `koanf:"centery" yaml:"centery"`
	FlipX   bool   `koanf:"flipx" yaml:"flipx"`
	FlipY   bool   `koanf:"flipy" yaml:"flipy"`

	// ImageFormat is one of bayer8, bayer10, bayer10p, rgb8, bgr8, ycbcr422_8, mono8
	ImageFormat string `koanf:"imageformat" yaml:"imageformat"`

	// TestImage selects a test pattern 1-6, 0 for live video
	TestImage int `koanf:"testimage" yaml:"testimage"`

	// SensorReadoutMode is normal or fast
	SensorReadoutMode string `koanf:"sensorreadoutmode" yaml:"sensorreadoutmode"`

	LimitBandwidth bool `koanf:"limitbandwidth" yaml:"limitbandwidth"`

	// MaxBandwidth is in bytes per second, 0 leaves it alone
	MaxBandwidth int64 `koanf:"maxbandwidth" yaml:"maxbandwidth"`

	AcquisitionFrameRateEnable bool `koanf:"acquisitionframerateenable" yaml:"acquisitionframerateenable"`

	// FPS caps the frame rate, 0 for uncapped
	FPS float64 `koanf:"fps" yaml:"fps"`

	// LightSource is off, 2800k, 5000k or 6500k
	LightSource string `koanf:"lightsource" yaml:"lightsource"`

	// the auto modes are off, once or continuous
	AutoExposure     string `koanf:"autoexposure" yaml:"autoexposure"`
	AutoGain         string `koanf:"autogain" yaml:"autogain"`
	AutoWhiteBalance string `koanf:"autowhitebalance" yaml:"autowhitebalance"`

	AutoExposureLowerLimit *float64 `koanf:"exposurelowerlimit" yaml:"exposurelowerlimit,omitempty"`
	AutoExposureUpperLimit *float64 `koanf:"exposureupperlimit" yaml:"exposureupperlimit,omitempty"`
	GainLowerLimit         *float64 `koanf:"gainlowerlimit" yaml:"gainlowerlimit,omitempty"`
	GainUpperLimit         *float64 `koanf:"gainupperlimit" yaml:"gainupperlimit,omitempty"`
	BrightnessTarget       *float64 `koanf:"autobrightnesstarget" yaml:"autobrightnesstarget,omitempty"`

	// AutoProfile is gain or exposure, empty or "default" keeps the camera's
	AutoProfile string `koanf:"autoprofile" yaml:"autoprofile"`

	BalanceRed   *float64 `koanf:"balancered" yaml:"balancered,omitempty"`
	BalanceGreen *float64 `koanf:"balancegreen" yaml:"balancegreen,omitempty"`
	BalanceBlue  *float64 `koanf:"balanceblue" yaml:"balanceblue,omitempty"`

	RedHue            *float64 `koanf:"colorredhue" yaml:"colorredhue,omitempty"`
	RedSaturation     *float64 `koanf:"colorredsaturation" yaml:"colorredsaturation,omitempty"`
	YellowHue         *float64 `koanf:"coloryellowhue" yaml:"coloryellowhue,omitempty"`
	YellowSaturation  *float64 `koanf:"coloryellowsaturation" yaml:"coloryellowsaturation,omitempty"`
	GreenHue          *float64 `koanf:"colorgreenhue" yaml:"colorgreenhue,omitempty"`
	GreenSaturation   *float64 `koanf:"colorgreensaturation" yaml:"colorgreensaturation,omitempty"`
	CyanHue           *float64 `koanf:"colorcyanhue" yaml:"colorcyanhue,omitempty"`
	CyanSaturation    *float64 `koanf:"colorcyansaturation" yaml:"colorcyansaturation,omitempty"`
	BlueHue           *float64 `koanf:"colorbluehue" yaml:"colorbluehue,omitempty"`
	BlueSaturation    *float64 `koanf:"colorbluesaturation" yaml:"colorbluesaturation,omitempty"`
	MagentaHue        *float64 `koanf:"colormagentahue" yaml:"colormagentahue,omitempty"`
	MagentaSaturation *float64 `koanf:"colormagentasaturation" yaml:"colormagentasaturation,omitempty"`

	// TransformationSelector is rgbrgb, rgbyuv or yuvrgb
	TransformationSelector string `koanf:"transformationselector" yaml:"transformationselector"`

	Transformation00 *float64 `koanf:"transformation00" yaml:"transformation00,omitempty"`
	Transformation01 *float64 `koanf:"transformation01" yaml:"transformation01,omitempty"`
	Transformation02 *float64 `koanf:"transformation02" yaml:"transformation02,omitempty"`
	Transformation10 *float64 `koanf:"transformation10" yaml:"transformation10,omitempty"`
	Transformation11 *float64 `koanf:"transformation11" yaml:"transformation11,omitempty"`
	Transformation12 *float64 `koanf:"transformation12" yaml:"transformation12,omitempty"`
	Transformation20 *float64 `koanf:"transformation20" yaml:"transformation20,omitempty"`
	Transformation21 *float64 `koanf:"transformation21" yaml:"transformation21,omitempty"`
	Transformation22 *float64 `koanf:"transformation22" yaml:"transformation22,omitempty"`

	// Exposure is in microseconds
	Exposure *float64 `koanf:"exposure" yaml:"exposure,omitempty"`

	// Gain is in dB
	Gain       *float64 `koanf:"gain" yaml:"gain,omitempty"`
	BlackLevel *float64 `koanf:"blacklevel" yaml:"blacklevel,omitempty"`
	Gamma      *float64 `koanf:"gamma" yaml:"gamma,omitempty"`

	// Demosaicing enables Basler PGI on non-Bayer output
	Demosaicing          bool     `koanf:"demosaicing" yaml:"demosaicing"`
	NoiseReduction       *float64 `koanf:"noisereduction" yaml:"noisereduction,omitempty"`
	SharpnessEnhancement *float64 `koanf:"sharpnessenhancement" yaml:"sharpnessenhancement,omitempty"`

	// Continuous is free running acquisition, false for software triggered
	Continuous bool `koanf:"continuous" yaml:"continuous"`

	// GrabTimeout bounds the wait for each frame
	GrabTimeout time.Duration `koanf:"grabtimeout" yaml:"grabtimeout"`

	// TriggerWait bounds the wait for the camera to accept the next trigger
	TriggerWait time.Duration `koanf:"triggerwait" yaml:"triggerwait"`

	// ResetSettle is how long the camera takes to reboot after DeviceReset
	ResetSettle time.Duration `koanf:"resetsettle" yaml:"resetsettle"`

	// ReconnectTimeout bounds reconnection attempts after a reset
	ReconnectTimeout time.Duration `koanf:"reconnecttimeout" yaml:"reconnecttimeout"`
}

// Defaults returns the configuration used when nothing is specified
func Defaults() Config {
	return Config{
		Reset:             ResetOff,
		ImageFormat:       "bayer8",
		SensorReadoutMode: "normal",
		LimitBandwidth:    true,
		LightSource:       "5000k",
		AutoExposure:      "off",
		AutoGain:          "off",
		AutoWhiteBalance:  "off",
		Gain:              Float(0),
		BlackLevel:        Float(0),
		Gamma:             Float(1),
		Continuous:        true,
		GrabTimeout:       time.Second,
		TriggerWait:       time.Second,
		ResetSettle:       6 * time.Second,
		ReconnectTimeout:  30 * time.Second,
	}
}

// Clone returns a copy of c which shares no pointers with it
func (c Config) Clone() Config {
	v := reflect.ValueOf(&c).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() != reflect.Ptr || f.IsNil() || !f.CanSet() {
			continue
		}
		cp := reflect.New(f.Type().Elem())
		cp.Elem().Set(f.Elem())
		f.Set(cp)
	}
	return c
}

// Int returns a pointer to v
func Int(v int) *int { return &v }

// Int64 returns a pointer to v
func Int64(v int64) *int64 { return &v }

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

type floatRange struct {
	name   string
	v      *float64
	lo, hi float64
}

func (c *Config) floatRanges() []floatRange {
	r := []floatRange{
		{"fps", &c.FPS, 0, 1024},
		{"exposure", c.Exposure, 0, 1e6},
		{"gain", c.Gain, 0, 12},
		{"blacklevel", c.BlackLevel, 0, 63.75},
		{"gamma", c.Gamma, 0, 3.9},
		{"balancered", c.BalanceRed, 0, 15.9},
		{"balancegreen", c.BalanceGreen, 0, 15.9},
		{"balanceblue", c.BalanceBlue, 0, 15.9},
		{"exposurelowerlimit", c.AutoExposureLowerLimit, 105, 1e6},
		{"exposureupperlimit", c.AutoExposureUpperLimit, 105, 1e6},
		{"gainlowerlimit", c.GainLowerLimit, 0, 12.00921},
		{"gainupperlimit", c.GainUpperLimit, 0, 12.00921},
		{"autobrightnesstarget", c.BrightnessTarget, 0.19608, 0.80392},
		{"noisereduction", c.NoiseReduction, 0, 2},
		{"sharpnessenhancement", c.SharpnessEnhancement, 1, 3.98},
	}
	for _, h := range c.hues() {
		r = append(r, floatRange{"color" + strings.ToLower(h.name) + "hue", h.hue, -4, 3.9})
		r = append(r, floatRange{"color" + strings.ToLower(h.name) + "saturation", h.saturation, 0, 1.9})
	}
	for _, cell := range c.transformation() {
		r = append(r, floatRange{"transformation" + cell.name[4:], cell.v, -8, 7.96875})
	}
	return r
}

type hueSetting struct {
	name            string
	hue, saturation *float64
}

func (c *Config) hues() []hueSetting {
	return []hueSetting{
		{"Red", c.RedHue, c.RedSaturation},
		{"Yellow", c.YellowHue, c.YellowSaturation},
		{"Green", c.GreenHue, c.GreenSaturation},
		{"Cyan", c.CyanHue, c.CyanSaturation},
		{"Blue", c.BlueHue, c.BlueSaturation},
		{"Magenta", c.MagentaHue, c.MagentaSaturation},
	}
}

type matrixCell struct {
	// name is the ColorTransformationValueSelector entry
	name string
	v    *float64
}

func (c *Config) transformation() []matrixCell {
	return []matrixCell{
		{"Gain00", c.Transformation00}, {"Gain01", c.Transformation01}, {"Gain02", c.Transformation02},
		{"Gain10", c.Transformation10}, {"Gain11", c.Transformation11}, {"Gain12", c.Transformation12},
		{"Gain20", c.Transformation20}, {"Gain21", c.Transformation21}, {"Gain22", c.Transformation22},
	}
}

func outside(name, value string, lo, hi interface{}) error {
	return pylon.InvalidParameterError{Parameter: name, Value: value, Allowed: []string{fmt.Sprintf("%v to %v", lo, hi)}}
}

// Validate checks every set value against its documented range.  The
// symbolic values are checked by the stage that uses them.
func (c *Config) Validate() error {
	if c.Camera != nil && (*c.Camera < 0 || *c.Camera > 100) {
		return outside("camera", fmt.Sprint(*c.Camera), 0, 100)
	}
	switch strings.ToLower(c.Reset) {
	case "", ResetOff, ResetBefore, ResetAfter:
	default:
		return pylon.InvalidParameterError{Parameter: "reset", Value: c.Reset, Allowed: []string{ResetOff, ResetBefore, ResetAfter}}
	}
	ints := []struct {
		name   string
		v      *int64
		lo, hi int64
	}{
		{"width", c.Width, 1, 10000},
		{"height", c.Height, 1, 10000},
		{"offsetx", c.OffsetX, 0, 10000},
		{"offsety", c.OffsetY, 0, 10000},
	}
	for _, i := range ints {
		if i.v != nil && (*i.v < i.lo || *i.v > i.hi) {
			return outside(i.name, fmt.Sprint(*i.v), i.lo, i.hi)
		}
	}
	if c.TestImage < 0 || c.TestImage > 6 {
		return outside("testimage", fmt.Sprint(c.TestImage), 0, 6)
	}
	if c.MaxBandwidth < 0 || c.MaxBandwidth > 999999999 {
		return outside("maxbandwidth", fmt.Sprint(c.MaxBandwidth), 0, 999999999)
	}
	for _, f := range c.floatRanges() {
		if f.v != nil && (*f.v < f.lo || *f.v > f.hi) {
			return outside(f.name, fmt.Sprint(*f.v), f.lo, f.hi)
		}
	}
	if c.GrabTimeout <= 0 {
		return outside("grabtimeout", c.GrabTimeout.String(), "1ns", "any")
	}
	return nil
}
