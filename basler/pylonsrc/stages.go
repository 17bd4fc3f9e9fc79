package pylonsrc

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

func resetStage(sc *stageContext) (Outcome, error) {
	if strings.ToLower(sc.cfg.Reset) != ResetBefore {
		return Skipped, nil
	}
	if !sc.fs.Available("DeviceReset") {
		return Skipped, pylon.UnsupportedFeatureError{Feature: "DeviceReset", Access: "available"}
	}
	sc.log.Info().Msg("resetting the camera")
	if err := sc.fs.Execute("DeviceReset"); err != nil {
		return Skipped, err
	}
	if sc.reboot == nil {
		return Skipped, errors.New("no way to reconnect after a reset")
	}
	fs, err := sc.reboot(sc.ctx)
	if err != nil {
		return Skipped, err
	}
	sc.fs = fs
	return Applied, nil
}

func resolutionStage(sc *stageContext) (Outcome, error) {
	for _, f := range []string{"Width", "Height"} {
		if !sc.fs.Implemented(f) {
			return Skipped, pylon.UnsupportedFeatureError{Feature: f, Access: "implemented"}
		}
	}
	w, err := sc.fs.GetInt("Width")
	if err != nil {
		return Skipped, err
	}
	h, err := sc.fs.GetInt("Height")
	if err != nil {
		return Skipped, err
	}
	maxW, maxH := w, h
	if sc.fs.Implemented("WidthMax") {
		if maxW, err = sc.fs.GetInt("WidthMax"); err != nil {
			return Skipped, err
		}
	}
	if sc.fs.Implemented("HeightMax") {
		if maxH, err = sc.fs.GetInt("HeightMax"); err != nil {
			return Skipped, err
		}
	}
	sc.out.MaxWidth, sc.out.MaxHeight = maxW, maxH
	sc.log.Debug().Int64("maxwidth", maxW).Int64("maxheight", maxH).Msg("maximum resolution")

	if sc.cfg.Width == nil && sc.cfg.Height == nil {
		sc.out.Width, sc.out.Height = w, h
		sc.log.Info().Int64("width", w).Int64("height", h).Msg("using the camera's resolution")
		return Skipped, nil
	}
	if sc.cfg.Width != nil {
		if *sc.cfg.Width > maxW {
			return Skipped, pylon.OutOfRangeError{Parameter: "width", Value: *sc.cfg.Width, Max: maxW}
		}
		w = *sc.cfg.Width
	}
	if sc.cfg.Height != nil {
		if *sc.cfg.Height > maxH {
			return Skipped, pylon.OutOfRangeError{Parameter: "height", Value: *sc.cfg.Height, Max: maxH}
		}
		h = *sc.cfg.Height
	}
	if err := sc.fs.SetInt("Width", w); err != nil {
		return Skipped, err
	}
	if err := sc.fs.SetInt("Height", h); err != nil {
		return Skipped, err
	}
	sc.out.Width, sc.out.Height = w, h
	sc.log.Info().Int64("width", w).Int64("height", h).Msg("resolution set")
	return Applied, nil
}

// axisOffset applies centering or an explicit offset on one axis
func axisOffset(sc *stageContext, axis string, center bool, offset *int64, max, size int64) error {
	if err := sc.fs.SetBool("Center"+axis, center); err != nil {
		return err
	}
	if center {
		sc.log.Info().Str("axis", axis).Msg("centering")
		return nil
	}
	if offset == nil {
		return nil
	}
	if max-size < *offset {
		return pylon.OutOfRangeError{Parameter: "offset" + strings.ToLower(axis), Value: *offset, Max: max - size}
	}
	return sc.fs.SetInt("Offset"+axis, *offset)
}

func offsetStage(sc *stageContext) (Outcome, error) {
	if !sc.fs.Implemented("OffsetX") || !sc.fs.Implemented("OffsetY") {
		sc.warn("OffsetX", "the camera does not support offsets, the offset settings are ignored")
		return Skipped, nil
	}
	if !sc.fs.Implemented("CenterX") || !sc.fs.Implemented("CenterY") {
		sc.warn("CenterX", "the camera does not support centering, the offset settings are ignored")
		return Skipped, nil
	}
	if err := axisOffset(sc, "X", sc.cfg.CenterX, sc.cfg.OffsetX, sc.out.MaxWidth, sc.out.Width); err != nil {
		return Skipped, err
	}
	if err := axisOffset(sc, "Y", sc.cfg.CenterY, sc.cfg.OffsetY, sc.out.MaxHeight, sc.out.Height); err != nil {
		return Skipped, err
	}
	return Applied, nil
}

func orientationStage(sc *stageContext) (Outcome, error) {
	o := Skipped
	axes := []struct {
		feature string
		flip    *bool
	}{
		{"ReverseX", &sc.cfg.FlipX},
		{"ReverseY", &sc.cfg.FlipY},
	}
	for _, a := range axes {
		if !sc.fs.Implemented(a.feature) {
			if *a.flip {
				sc.warn(a.feature, "the camera cannot flip this axis, the flip is ignored")
			}
			*a.flip = false
			continue
		}
		if err := sc.fs.SetBool(a.feature, *a.flip); err != nil {
			return Skipped, err
		}
		o = Applied
	}
	return o, nil
}

// BayerFilter returns the two letter filter pattern the sensor presents
// with the given flips
func BayerFilter(flipx, flipy bool) string {
	switch {
	case flipx && flipy:
		return "RG"
	case flipx:
		return "GB"
	case flipy:
		return "GR"
	}
	return "BG"
}

var rawFormats = map[string]string{
	"rgb8":       "RGB8",
	"bgr8":       "BGR8",
	"ycbcr422_8": "YCbCr422_8",
	"mono8":      "Mono8",
}

var bayerFormats = map[string]string{
	"bayer8":   "8",
	"bayer10":  "10",
	"bayer10p": "10p",
}

// ImageFormats lists the accepted values of Config.ImageFormat
var ImageFormats = []string{"bayer8", "bayer10", "bayer10p", "rgb8", "bgr8", "ycbcr422_8", "mono8"}

// PixelFormat maps an image format name to the PixelFormat enumerant.
// Bayer formats take the filter pattern the flips produce.
func PixelFormat(format string, flipx, flipy bool) (string, error) {
	f := strings.ToLower(format)
	if depth, ok := bayerFormats[f]; ok {
		return "Bayer" + BayerFilter(flipx, flipy) + depth, nil
	}
	if pf, ok := rawFormats[f]; ok {
		return pf, nil
	}
	return "", pylon.InvalidParameterError{Parameter: "imageformat", Value: format, Allowed: ImageFormats}
}

func pixelFormatStage(sc *stageContext) (Outcome, error) {
	pf, err := PixelFormat(sc.cfg.ImageFormat, sc.cfg.FlipX, sc.cfg.FlipY)
	if err != nil {
		return Skipped, err
	}
	if !sc.fs.EnumAvailable("PixelFormat", pf) {
		return Skipped, pylon.InvalidParameterError{Parameter: "imageformat", Value: sc.cfg.ImageFormat,
			Allowed: availableFormats(sc.fs)}
	}
	if err := sc.fs.SetEnum("PixelFormat", pf); err != nil {
		return Skipped, err
	}
	sc.out.PixelFormat = pf
	sc.out.Bayer = strings.HasPrefix(pf, "Bayer")
	if sc.fs.Readable("PixelSize") {
		if sc.out.PixelSize, err = sc.fs.GetEnum("PixelSize"); err != nil {
			return Skipped, err
		}
	} else {
		sc.warn("PixelSize", "the pixel size cannot be read")
	}
	sc.log.Info().Str("pixelformat", pf).Str("pixelsize", sc.out.PixelSize).Msg("pixel format set")
	return Applied, nil
}

// availableFormats lists the image formats the camera supports without flips
func availableFormats(fs *pylon.FeatureStore) []string {
	var out []string
	for _, f := range ImageFormats {
		pf, _ := PixelFormat(f, false, false)
		if fs.EnumAvailable("PixelFormat", pf) {
			out = append(out, f)
		}
	}
	return out
}

func testImageStage(sc *stageContext) (Outcome, error) {
	if !sc.fs.Implemented("TestImageSelector") {
		if sc.cfg.TestImage != 0 {
			sc.warn("TestImageSelector", "the camera has no test images, showing live video")
		}
		return Skipped, nil
	}
	v := "Off"
	if sc.cfg.TestImage != 0 {
		v = fmt.Sprintf("Testimage%d", sc.cfg.TestImage)
		sc.log.Info().Int("testimage", sc.cfg.TestImage).Msg("test image enabled")
	}
	return Applied, sc.fs.SetEnum("TestImageSelector", v)
}

// choose maps a case-insensitive setting to an enumerant
func choose(param, value string, m map[string]string, allowed []string) (string, error) {
	if v, ok := m[strings.ToLower(value)]; ok {
		return v, nil
	}
	return "", pylon.InvalidParameterError{Parameter: param, Value: value, Allowed: allowed}
}

func readoutModeStage(sc *stageContext) (Outcome, error) {
	if !sc.fs.Implemented("SensorReadoutMode") {
		sc.warn("SensorReadoutMode", "the camera has no readout modes")
		return Skipped, nil
	}
	v, err := choose("sensorreadoutmode", sc.cfg.SensorReadoutMode,
		map[string]string{"normal": "Normal", "fast": "Fast"}, []string{"normal", "fast"})
	if err != nil {
		return Skipped, err
	}
	return Applied, sc.fs.SetEnum("SensorReadoutMode", v)
}

func bandwidthStage(sc *stageContext) (Outcome, error) {
	if !sc.fs.Implemented("DeviceLinkThroughputLimitMode") {
		sc.warn("DeviceLinkThroughputLimitMode", "the camera cannot limit its bandwidth")
		return Skipped, nil
	}
	mode := "Off"
	if sc.cfg.LimitBandwidth {
		mode = "On"
	}
	if err := sc.fs.SetEnum("DeviceLinkThroughputLimitMode", mode); err != nil {
		return Skipped, err
	}
	if sc.cfg.MaxBandwidth == 0 {
		return Applied, nil
	}
	if !sc.cfg.LimitBandwidth {
		sc.warn("DeviceLinkThroughputLimit", "maxbandwidth is set but limitbandwidth is off, the limit has no effect")
	}
	if !sc.fs.Implemented("DeviceLinkThroughputLimit") {
		sc.warn("DeviceLinkThroughputLimit", "the camera does not take a bandwidth limit")
		return Applied, nil
	}
	return Applied, sc.fs.SetInt("DeviceLinkThroughputLimit", sc.cfg.MaxBandwidth)
}

func frameRateStage(sc *stageContext) (Outcome, error) {
	if !sc.fs.Available("AcquisitionFrameRateEnable") {
		if sc.cfg.FPS != 0 || sc.cfg.AcquisitionFrameRateEnable {
			sc.warn("AcquisitionFrameRateEnable", "the camera cannot cap its frame rate")
		}
		return Skipped, nil
	}
	enable := sc.cfg.AcquisitionFrameRateEnable || sc.cfg.FPS != 0
	if err := sc.fs.SetBool("AcquisitionFrameRateEnable", enable); err != nil {
		return Skipped, err
	}
	if !enable || sc.cfg.FPS == 0 {
		return Applied, nil
	}
	if err := sc.fs.SetFloat("AcquisitionFrameRate", sc.cfg.FPS); err != nil {
		return Skipped, err
	}
	sc.log.Info().Float64("fps", sc.cfg.FPS).Msg("frame rate capped")
	return Applied, nil
}
