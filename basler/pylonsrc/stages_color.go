package pylonsrc

import (
	"strings"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

var lightSources = map[string]string{
	"off":   "Off",
	"2800k": "Tungsten2800K",
	"5000k": "Daylight5000K",
	"6500k": "Daylight6500K",
}

func lightSourceStage(sc *stageContext) (Outcome, error) {
	if sc.cfg.LightSource == "" {
		return Skipped, nil
	}
	v, err := choose("lightsource", sc.cfg.LightSource, lightSources, []string{"off", "2800k", "5000k", "6500k"})
	if err != nil {
		return Skipped, err
	}
	if !sc.fs.Available("LightSourcePreset") {
		sc.warn("LightSourcePreset", "the camera has no light source presets")
		return Skipped, nil
	}
	return Applied, sc.fs.SetEnum("LightSourcePreset", v)
}

var autoModes = map[string]string{
	"off":        "Off",
	"once":       "Once",
	"continuous": "Continuous",
}

func autoModesStage(sc *stageContext) (Outcome, error) {
	o := Skipped
	modes := []struct {
		param, feature, value string
	}{
		{"autoexposure", "ExposureAuto", sc.cfg.AutoExposure},
		{"autogain", "GainAuto", sc.cfg.AutoGain},
		{"autowhitebalance", "BalanceWhiteAuto", sc.cfg.AutoWhiteBalance},
	}
	for _, m := range modes {
		if m.value == "" {
			continue
		}
		v, err := choose(m.param, m.value, autoModes, []string{"off", "once", "continuous"})
		if err != nil {
			return Skipped, err
		}
		if !sc.fs.Available(m.feature) {
			sc.warn(m.feature, "the camera does not have this auto function")
			continue
		}
		if err := sc.fs.SetEnum(m.feature, v); err != nil {
			return Skipped, err
		}
		o = Applied
	}
	return o, nil
}

func autoLimitsStage(sc *stageContext) (Outcome, error) {
	c := sc.cfg
	pairs := []struct {
		name         string
		lower, upper *float64
	}{
		{"exposure", c.AutoExposureLowerLimit, c.AutoExposureUpperLimit},
		{"gain", c.GainLowerLimit, c.GainUpperLimit},
	}
	for _, p := range pairs {
		if p.lower != nil && p.upper != nil && *p.lower >= *p.upper {
			return Skipped, pylon.InvalidRangeError{Parameter: p.name, Lower: *p.lower, Upper: *p.upper}
		}
	}
	writes := []struct {
		feature string
		v       *float64
	}{
		{"AutoExposureTimeUpperLimit", c.AutoExposureUpperLimit},
		{"AutoExposureTimeLowerLimit", c.AutoExposureLowerLimit},
		{"AutoGainUpperLimit", c.GainUpperLimit},
		{"AutoGainLowerLimit", c.GainLowerLimit},
		{"AutoTargetBrightness", c.BrightnessTarget},
	}
	o := Skipped
	for _, w := range writes {
		if w.v == nil {
			continue
		}
		if !sc.fs.Available(w.feature) {
			sc.warn(w.feature, "the camera does not have this auto function limit")
			continue
		}
		if err := sc.fs.SetFloat(w.feature, *w.v); err != nil {
			return Skipped, err
		}
		o = Applied
	}
	return o, nil
}

func autoProfileStage(sc *stageContext) (Outcome, error) {
	p := strings.ToLower(sc.cfg.AutoProfile)
	if p == "" || p == "default" {
		return Skipped, nil
	}
	v, err := choose("autoprofile", p, map[string]string{
		"gain":     "MinimizeGain",
		"exposure": "MinimizeExposureTime",
	}, []string{"gain", "exposure", "default"})
	if err != nil {
		return Skipped, err
	}
	if !sc.fs.Available("AutoFunctionProfile") {
		sc.warn("AutoFunctionProfile", "the camera has no auto function profiles")
		return Skipped, nil
	}
	return Applied, sc.fs.SetEnum("AutoFunctionProfile", v)
}

// selectAndSet picks an entry of a selector feature then writes the selected value
func selectAndSet(sc *stageContext, selector, entry, feature string, v float64) error {
	if err := sc.fs.SetEnum(selector, entry); err != nil {
		return err
	}
	return sc.fs.SetFloat(feature, v)
}

func balanceStage(sc *stageContext) (Outcome, error) {
	c := sc.cfg
	if strings.ToLower(c.AutoWhiteBalance) != "off" && c.AutoWhiteBalance != "" {
		if c.BalanceRed != nil || c.BalanceGreen != nil || c.BalanceBlue != nil {
			sc.warn("BalanceRatio", "auto white balance is on, the manual balance is ignored")
		}
		return Skipped, nil
	}
	if !sc.fs.Available("BalanceRatio") {
		sc.warn("BalanceRatio", "the camera has no white balance")
		return Skipped, nil
	}
	o := Skipped
	ratios := []struct {
		entry string
		v     *float64
	}{
		{"Red", c.BalanceRed},
		{"Green", c.BalanceGreen},
		{"Blue", c.BalanceBlue},
	}
	for _, r := range ratios {
		if r.v == nil {
			continue
		}
		if err := selectAndSet(sc, "BalanceRatioSelector", r.entry, "BalanceRatio", *r.v); err != nil {
			return Skipped, err
		}
		o = Applied
	}
	return o, nil
}

func colorAdjustmentStage(sc *stageContext) (Outcome, error) {
	o := Skipped
	for _, h := range sc.cfg.hues() {
		if h.hue == nil && h.saturation == nil {
			continue
		}
		if !sc.fs.Available("ColorAdjustmentSelector") {
			sc.warn("ColorAdjustmentSelector", "the camera has no color adjustment")
			return Skipped, nil
		}
		if h.hue != nil {
			if err := selectAndSet(sc, "ColorAdjustmentSelector", h.name, "ColorAdjustmentHue", *h.hue); err != nil {
				return Skipped, err
			}
		}
		if h.saturation != nil {
			if err := selectAndSet(sc, "ColorAdjustmentSelector", h.name, "ColorAdjustmentSaturation", *h.saturation); err != nil {
				return Skipped, err
			}
		}
		o = Applied
	}
	return o, nil
}

var transformations = map[string]string{
	"rgbrgb": "RGBtoRGB",
	"rgbyuv": "RGBtoYUV",
	"yuvrgb": "YUVtoRGB",
}

func colorTransformationStage(sc *stageContext) (Outcome, error) {
	o := Skipped
	if sel := strings.ToLower(sc.cfg.TransformationSelector); sel != "" && sel != "default" {
		v, err := choose("transformationselector", sel, transformations, []string{"rgbrgb", "rgbyuv", "yuvrgb", "default"})
		if err != nil {
			return Skipped, err
		}
		if !sc.fs.Available("ColorTransformationSelector") {
			sc.warn("ColorTransformationSelector", "the camera has no color transformation")
			return Skipped, nil
		}
		if err := sc.fs.SetEnum("ColorTransformationSelector", v); err != nil {
			return Skipped, err
		}
		o = Applied
	}
	for _, cell := range sc.cfg.transformation() {
		if cell.v == nil {
			continue
		}
		if !sc.fs.Available("ColorTransformationValueSelector") {
			sc.warn("ColorTransformationValueSelector", "the camera has no color transformation matrix")
			return o, nil
		}
		if err := selectAndSet(sc, "ColorTransformationValueSelector", cell.name, "ColorTransformationValue", *cell.v); err != nil {
			return Skipped, err
		}
		o = Applied
	}
	return o, nil
}

// manualOff is true when an auto mode setting leaves the value to the user
func manualOff(mode string) bool {
	m := strings.ToLower(mode)
	return m == "" || m == "off"
}

func manualStage(sc *stageContext) (Outcome, error) {
	c := sc.cfg
	values := []struct {
		feature string
		v       *float64
		manual  bool
	}{
		{"ExposureTime", c.Exposure, manualOff(c.AutoExposure)},
		{"Gain", c.Gain, manualOff(c.AutoGain)},
		{"BlackLevel", c.BlackLevel, true},
		{"Gamma", c.Gamma, true},
	}
	o := Skipped
	for _, m := range values {
		if m.v == nil {
			continue
		}
		if !m.manual {
			sc.log.Info().Str("feature", m.feature).Msg("automatic, the manual value is ignored")
			continue
		}
		if !sc.fs.Available(m.feature) {
			sc.warn(m.feature, "the camera does not have this setting")
			continue
		}
		if err := sc.fs.SetFloat(m.feature, *m.v); err != nil {
			return Skipped, err
		}
		o = Applied
	}
	return o, nil
}

func demosaicingStage(sc *stageContext) (Outcome, error) {
	c := sc.cfg
	requested := c.Demosaicing || c.NoiseReduction != nil || c.SharpnessEnhancement != nil
	if !sc.fs.Implemented("DemosaicingMode") {
		if requested {
			sc.warn("DemosaicingMode", "the camera does not support PGI")
		}
		return Skipped, nil
	}
	if sc.out.Bayer {
		if requested {
			sc.warn("DemosaicingMode", "PGI cannot be used with bayer output, demosaicing is left to the pipeline")
		}
		return Applied, sc.fs.SetEnum("DemosaicingMode", "Simple")
	}
	if !requested {
		return Skipped, nil
	}
	if err := sc.fs.SetEnum("DemosaicingMode", "BaslerPGI"); err != nil {
		return Skipped, err
	}
	pgi := []struct {
		feature string
		v       *float64
	}{
		{"NoiseReduction", c.NoiseReduction},
		{"SharpnessEnhancement", c.SharpnessEnhancement},
	}
	for _, p := range pgi {
		if p.v == nil {
			continue
		}
		if !sc.fs.Available(p.feature) {
			sc.warn(p.feature, "the camera does not have this PGI setting")
			continue
		}
		if err := sc.fs.SetFloat(p.feature, *p.v); err != nil {
			return Skipped, err
		}
	}
	return Applied, nil
}
