package pylonsrc

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

// mockStage returns a stage context over a fresh mock camera
func mockStage(t *testing.T, cfg Config) (*stageContext, *pylon.MockCamera) {
	t.Helper()
	drv := pylon.NewMockDriver(1)
	require.NoError(t, drv.Initialize())
	dev, err := drv.Open(0)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	sc := &stageContext{
		ctx: context.Background(),
		cfg: &cfg,
		fs:  pylon.NewFeatureStore(dev, zerolog.Nop()),
		log: zerolog.Nop(),
	}
	return sc, drv.Cameras[0]
}

func TestStageNames(t *testing.T) {
	exp := []string{"reset", "resolution", "offset", "orientation", "pixelformat", "testimage",
		"readoutmode", "bandwidth", "framerate", "lightsource", "automodes", "autolimits",
		"autoprofile", "balance", "coloradjustment", "colortransformation", "manual",
		"demosaicing", "trigger"}
	if diff := cmp.Diff(exp, StageNames()); diff != "" {
		t.Errorf("stage order (-want +got):\n%s", diff)
	}
}

func TestBayerFilter(t *testing.T) {
	cases := []struct {
		flipx, flipy bool
		exp          string
	}{
		{false, false, "BG"},
		{true, false, "GB"},
		{false, true, "GR"},
		{true, true, "RG"},
	}
	for _, c := range cases {
		assert.Equal(t, c.exp, BayerFilter(c.flipx, c.flipy), "flipx=%v flipy=%v", c.flipx, c.flipy)
	}
}

func TestPixelFormat(t *testing.T) {
	cases := []struct {
		in           string
		flipx, flipy bool
		exp          string
	}{
		{"bayer8", false, false, "BayerBG8"},
		{"Bayer10", true, false, "BayerGB10"},
		{"bayer10p", true, true, "BayerRG10p"},
		{"rgb8", true, true, "RGB8"},
		{"bgr8", false, false, "BGR8"},
		{"YCbCr422_8", false, false, "YCbCr422_8"},
		{"mono8", false, false, "Mono8"},
	}
	for _, c := range cases {
		got, err := PixelFormat(c.in, c.flipx, c.flipy)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.exp, got, c.in)
	}
	_, err := PixelFormat("jpeg", false, false)
	var ip pylon.InvalidParameterError
	require.True(t, errors.As(err, &ip))
	assert.Equal(t, "imageformat", ip.Parameter)
}

func TestPixelFormatStageUnavailableEntry(t *testing.T) {
	cfg := Defaults()
	cfg.ImageFormat = "rgb8"
	sc, cam := mockStage(t, cfg)
	cam.SetEntry("PixelFormat", "RGB8", false)
	_, err := pixelFormatStage(sc)
	var ip pylon.InvalidParameterError
	require.True(t, errors.As(err, &ip), "got %v", err)
	assert.NotContains(t, ip.Allowed, "rgb8")
	assert.Contains(t, ip.Allowed, "mono8")
	assert.Empty(t, cam.WritesTo("PixelFormat"))
}

func TestPixelFormatStageFlipped(t *testing.T) {
	cfg := Defaults()
	cfg.FlipX = true
	sc, cam := mockStage(t, cfg)
	o, err := pixelFormatStage(sc)
	require.NoError(t, err)
	assert.Equal(t, Applied, o)
	assert.Equal(t, "BayerGB8", cam.Value("PixelFormat"))
	assert.True(t, sc.out.Bayer)
	assert.Equal(t, "Bpp8", sc.out.PixelSize)
}

func TestResolutionDefaults(t *testing.T) {
	sc, cam := mockStage(t, Defaults())
	o, err := resolutionStage(sc)
	require.NoError(t, err)
	assert.Equal(t, Skipped, o)
	assert.Equal(t, int64(1920), sc.out.Width)
	assert.Equal(t, int64(1200), sc.out.Height)
	assert.Empty(t, cam.Writes())
}

func TestResolutionFillsUnsetDimension(t *testing.T) {
	cfg := Defaults()
	cfg.Width = Int64(1280)
	sc, cam := mockStage(t, cfg)
	_, err := resolutionStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{{Feature: "Width", Value: int64(1280)}, {Feature: "Height", Value: int64(1200)}}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}
}

func TestResolutionTooLarge(t *testing.T) {
	cfg := Defaults()
	cfg.Height = Int64(1201)
	sc, cam := mockStage(t, cfg)
	_, err := resolutionStage(sc)
	var oor pylon.OutOfRangeError
	require.True(t, errors.As(err, &oor), "got %v", err)
	assert.Equal(t, int64(1200), oor.Max)
	assert.Empty(t, cam.Writes())
}

func TestResolutionNotImplemented(t *testing.T) {
	sc, cam := mockStage(t, Defaults())
	cam.Remove("Height")
	_, err := resolutionStage(sc)
	var uf pylon.UnsupportedFeatureError
	require.True(t, errors.As(err, &uf), "got %v", err)
	assert.Equal(t, "Height", uf.Feature)
}

func TestResolutionWithoutMax(t *testing.T) {
	sc, cam := mockStage(t, Defaults())
	cam.Remove("WidthMax")
	_, err := resolutionStage(sc)
	require.NoError(t, err)
	assert.Equal(t, int64(1920), sc.out.MaxWidth)
}

func TestOffsetValidation(t *testing.T) {
	for _, tc := range []struct {
		offset int64
		ok     bool
	}{{700, false}, {600, true}, {640, true}} {
		cfg := Defaults()
		cfg.OffsetX = Int64(tc.offset)
		sc, cam := mockStage(t, cfg)
		sc.out = Negotiated{Width: 1280, Height: 1200, MaxWidth: 1920, MaxHeight: 1200}
		_, err := offsetStage(sc)
		if !tc.ok {
			var oor pylon.OutOfRangeError
			require.True(t, errors.As(err, &oor), "offset %d: got %v", tc.offset, err)
			assert.Equal(t, int64(640), oor.Max)
			assert.Empty(t, cam.WritesTo("OffsetX"))
			continue
		}
		require.NoError(t, err, "offset %d", tc.offset)
		assert.Equal(t, tc.offset, cam.Value("OffsetX"))
	}
}

func TestOffsetCenterOverridesOffset(t *testing.T) {
	cfg := Defaults()
	cfg.CenterX = true
	cfg.OffsetX = Int64(5000)
	sc, cam := mockStage(t, cfg)
	sc.out = Negotiated{Width: 1280, Height: 1200, MaxWidth: 1920, MaxHeight: 1200}
	_, err := offsetStage(sc)
	require.NoError(t, err)
	assert.Equal(t, true, cam.Value("CenterX"))
	assert.Empty(t, cam.WritesTo("OffsetX"))
}

func TestOffsetMissingIsSoft(t *testing.T) {
	cfg := Defaults()
	cfg.OffsetX = Int64(5000)
	sc, cam := mockStage(t, cfg)
	cam.Remove("OffsetY")
	o, err := offsetStage(sc)
	require.NoError(t, err)
	assert.Equal(t, Skipped, o)
	assert.Empty(t, cam.Writes())
}

func TestOrientationForcesMissingAxisOff(t *testing.T) {
	cfg := Defaults()
	cfg.FlipX, cfg.FlipY = true, true
	sc, cam := mockStage(t, cfg)
	cam.Remove("ReverseY")
	_, err := orientationStage(sc)
	require.NoError(t, err)
	assert.True(t, sc.cfg.FlipX)
	assert.False(t, sc.cfg.FlipY)
	assert.Equal(t, []interface{}{true}, cam.WritesTo("ReverseX"))
	assert.Empty(t, cam.WritesTo("ReverseY"))
}

func TestTestImage(t *testing.T) {
	cfg := Defaults()
	cfg.TestImage = 3
	sc, cam := mockStage(t, cfg)
	_, err := testImageStage(sc)
	require.NoError(t, err)
	assert.Equal(t, "Testimage3", cam.Value("TestImageSelector"))
}

func TestReadoutModeInvalid(t *testing.T) {
	cfg := Defaults()
	cfg.SensorReadoutMode = "slow"
	sc, _ := mockStage(t, cfg)
	_, err := readoutModeStage(sc)
	var ip pylon.InvalidParameterError
	require.True(t, errors.As(err, &ip), "got %v", err)
}

func TestBandwidth(t *testing.T) {
	cfg := Defaults()
	cfg.LimitBandwidth = false
	cfg.MaxBandwidth = 200000000
	sc, cam := mockStage(t, cfg)
	_, err := bandwidthStage(sc)
	require.NoError(t, err)
	assert.Equal(t, "Off", cam.Value("DeviceLinkThroughputLimitMode"))
	assert.Equal(t, int64(200000000), cam.Value("DeviceLinkThroughputLimit"))
}

func TestFrameRate(t *testing.T) {
	cfg := Defaults()
	cfg.FPS = 30
	sc, cam := mockStage(t, cfg)
	_, err := frameRateStage(sc)
	require.NoError(t, err)
	assert.Equal(t, true, cam.Value("AcquisitionFrameRateEnable"))
	assert.Equal(t, 30., cam.Value("AcquisitionFrameRate"))

	cfg = Defaults()
	cfg.AcquisitionFrameRateEnable = true
	sc, cam = mockStage(t, cfg)
	_, err = frameRateStage(sc)
	require.NoError(t, err)
	assert.Equal(t, true, cam.Value("AcquisitionFrameRateEnable"))
	assert.Empty(t, cam.WritesTo("AcquisitionFrameRate"))
}

func TestLightSourceInvalid(t *testing.T) {
	cfg := Defaults()
	cfg.LightSource = "3000k"
	sc, _ := mockStage(t, cfg)
	_, err := lightSourceStage(sc)
	var ip pylon.InvalidParameterError
	require.True(t, errors.As(err, &ip), "got %v", err)
	assert.Equal(t, "lightsource", ip.Parameter)
}

func TestAutoModes(t *testing.T) {
	cfg := Defaults()
	cfg.AutoExposure = "Continuous"
	cfg.AutoWhiteBalance = "once"
	sc, cam := mockStage(t, cfg)
	_, err := autoModesStage(sc)
	require.NoError(t, err)
	assert.Equal(t, "Continuous", cam.Value("ExposureAuto"))
	assert.Equal(t, "Off", cam.Value("GainAuto"))
	assert.Equal(t, "Once", cam.Value("BalanceWhiteAuto"))

	cfg.AutoGain = "sometimes"
	sc, _ = mockStage(t, cfg)
	_, err = autoModesStage(sc)
	var ip pylon.InvalidParameterError
	require.True(t, errors.As(err, &ip), "got %v", err)
	assert.Equal(t, "autogain", ip.Parameter)
}

func TestAutoLimitsOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.AutoExposureLowerLimit = Float(500)
	cfg.AutoExposureUpperLimit = Float(200)
	cfg.BrightnessTarget = Float(0.5)
	sc, cam := mockStage(t, cfg)
	_, err := autoLimitsStage(sc)
	var ir pylon.InvalidRangeError
	require.True(t, errors.As(err, &ir), "got %v", err)
	assert.Equal(t, "exposure", ir.Parameter)
	assert.Empty(t, cam.Writes())
}

func TestAutoLimitsWriteOrder(t *testing.T) {
	cfg := Defaults()
	cfg.AutoExposureLowerLimit = Float(200)
	cfg.AutoExposureUpperLimit = Float(500)
	cfg.GainLowerLimit = Float(1)
	cfg.GainUpperLimit = Float(2)
	cfg.BrightnessTarget = Float(0.5)
	sc, cam := mockStage(t, cfg)
	_, err := autoLimitsStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{
		{Feature: "AutoExposureTimeUpperLimit", Value: 500.},
		{Feature: "AutoExposureTimeLowerLimit", Value: 200.},
		{Feature: "AutoGainUpperLimit", Value: 2.},
		{Feature: "AutoGainLowerLimit", Value: 1.},
		{Feature: "AutoTargetBrightness", Value: 0.5},
	}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}
}

func TestAutoProfile(t *testing.T) {
	cfg := Defaults()
	cfg.AutoProfile = "exposure"
	sc, cam := mockStage(t, cfg)
	_, err := autoProfileStage(sc)
	require.NoError(t, err)
	assert.Equal(t, "MinimizeExposureTime", cam.Value("AutoFunctionProfile"))

	cfg.AutoProfile = "Default"
	sc, cam = mockStage(t, cfg)
	o, err := autoProfileStage(sc)
	require.NoError(t, err)
	assert.Equal(t, Skipped, o)
	assert.Empty(t, cam.Writes())
}

func TestBalance(t *testing.T) {
	cfg := Defaults()
	cfg.BalanceRed = Float(1.5)
	cfg.BalanceBlue = Float(2)
	sc, cam := mockStage(t, cfg)
	_, err := balanceStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{
		{Feature: "BalanceRatioSelector", Value: "Red"},
		{Feature: "BalanceRatio", Value: 1.5},
		{Feature: "BalanceRatioSelector", Value: "Blue"},
		{Feature: "BalanceRatio", Value: 2.},
	}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}

	cfg.AutoWhiteBalance = "continuous"
	sc, cam = mockStage(t, cfg)
	o, err := balanceStage(sc)
	require.NoError(t, err)
	assert.Equal(t, Skipped, o)
	assert.Empty(t, cam.Writes())
}

func TestColorAdjustment(t *testing.T) {
	cfg := Defaults()
	cfg.CyanHue = Float(-1)
	cfg.MagentaSaturation = Float(0.5)
	sc, cam := mockStage(t, cfg)
	_, err := colorAdjustmentStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{
		{Feature: "ColorAdjustmentSelector", Value: "Cyan"},
		{Feature: "ColorAdjustmentHue", Value: -1.},
		{Feature: "ColorAdjustmentSelector", Value: "Magenta"},
		{Feature: "ColorAdjustmentSaturation", Value: 0.5},
	}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}
}

func TestColorTransformation(t *testing.T) {
	cfg := Defaults()
	cfg.TransformationSelector = "yuvrgb"
	cfg.Transformation01 = Float(0.25)
	sc, cam := mockStage(t, cfg)
	_, err := colorTransformationStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{
		{Feature: "ColorTransformationSelector", Value: "YUVtoRGB"},
		{Feature: "ColorTransformationValueSelector", Value: "Gain01"},
		{Feature: "ColorTransformationValue", Value: 0.25},
	}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}
}

func TestManualSkipsAutomatic(t *testing.T) {
	cfg := Defaults()
	cfg.AutoExposure = "continuous"
	cfg.Exposure = Float(100)
	cfg.Gain = Float(3)
	cfg.BlackLevel = nil
	sc, cam := mockStage(t, cfg)
	_, err := manualStage(sc)
	require.NoError(t, err)
	assert.Empty(t, cam.WritesTo("ExposureTime"))
	assert.Equal(t, []interface{}{3.}, cam.WritesTo("Gain"))
	assert.Empty(t, cam.WritesTo("BlackLevel"))
	assert.Equal(t, []interface{}{1.}, cam.WritesTo("Gamma"))
}

func TestManualRejected(t *testing.T) {
	cfg := Defaults()
	cfg.Gain = Float(11)
	sc, cam := mockStage(t, cfg)
	cam.Reject("Gain", errors.New("Value 11 is out of range"))
	_, err := manualStage(sc)
	var dr pylon.DeviceRejectedValueError
	require.True(t, errors.As(err, &dr), "got %v", err)
	assert.Equal(t, "Gain", dr.Feature)
}

func TestDemosaicingBayerForcedSimple(t *testing.T) {
	cfg := Defaults()
	cfg.Demosaicing = true
	sc, cam := mockStage(t, cfg)
	cam.SetValue("DemosaicingMode", "BaslerPGI")
	sc.out.Bayer = true
	_, err := demosaicingStage(sc)
	require.NoError(t, err)
	assert.Equal(t, "Simple", cam.Value("DemosaicingMode"))
	assert.Empty(t, cam.WritesTo("NoiseReduction"))
}

func TestDemosaicingPGI(t *testing.T) {
	cfg := Defaults()
	cfg.NoiseReduction = Float(1)
	cfg.SharpnessEnhancement = Float(2)
	sc, cam := mockStage(t, cfg)
	_, err := demosaicingStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{
		{Feature: "DemosaicingMode", Value: "BaslerPGI"},
		{Feature: "NoiseReduction", Value: 1.},
		{Feature: "SharpnessEnhancement", Value: 2.},
	}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}
}

func TestTriggerContinuous(t *testing.T) {
	sc, cam := mockStage(t, Defaults())
	_, err := triggerStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{
		{Feature: "TriggerSelector", Value: "FrameBurstStart"},
		{Feature: "TriggerMode", Value: "Off"},
		{Feature: "TriggerSelector", Value: "FrameStart"},
		{Feature: "TriggerMode", Value: "Off"},
		{Feature: "TriggerSelector", Value: "FrameStart"},
		{Feature: "TriggerSource", Value: "Software"},
		{Feature: "AcquisitionMode", Value: "Continuous"},
	}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}
	assert.False(t, sc.out.Triggered)
}

func TestTriggerAcquisitionStartOnly(t *testing.T) {
	cfg := Defaults()
	cfg.Continuous = false
	sc, cam := mockStage(t, cfg)
	cam.SetEntry("TriggerSelector", "FrameStart", false)
	cam.SetEntry("TriggerSelector", "FrameBurstStart", false)
	cam.SetEntry("TriggerSelector", "AcquisitionStart", true)
	_, err := triggerStage(sc)
	require.NoError(t, err)
	exp := []pylon.Write{
		{Feature: "TriggerSelector", Value: "AcquisitionStart"},
		{Feature: "TriggerMode", Value: "On"},
		{Feature: "AcquisitionStatusSelector", Value: "FrameTriggerWait"},
		{Feature: "TriggerSelector", Value: "AcquisitionStart"},
		{Feature: "TriggerSource", Value: "Software"},
		{Feature: "AcquisitionMode", Value: "Continuous"},
	}
	if diff := cmp.Diff(exp, cam.Writes()); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}
	assert.True(t, sc.out.Triggered)
	assert.Equal(t, "AcquisitionStart", sc.out.TriggerSelector)
}

func TestResetUnsupported(t *testing.T) {
	cfg := Defaults()
	cfg.Reset = "Before"
	sc, cam := mockStage(t, cfg)
	cam.SetAccess("DeviceReset", true, false, false, false)
	_, err := resetStage(sc)
	var uf pylon.UnsupportedFeatureError
	require.True(t, errors.As(err, &uf), "got %v", err)
	assert.Equal(t, 0, cam.Resets())
}

func TestLinkCheck(t *testing.T) {
	sc, cam := mockStage(t, Defaults())
	require.NoError(t, linkCheck(sc.fs, zerolog.Nop()))

	cam.SetValue("DeviceLinkThroughputLimitMode", "Off")
	cam.SetValue("PixelFormat", "RGB8")
	err := linkCheck(sc.fs, zerolog.Nop())
	var te pylon.TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Contains(t, err.Error(), "not enough bandwidth")
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	cfg := Defaults()
	cfg.ImageFormat = "jpeg"
	cfg.TestImage = 2
	sc, cam := mockStage(t, cfg)
	_, _, err := NewPipeline(zerolog.Nop()).Run(context.Background(), cfg, sc.fs, nil)
	var ip pylon.InvalidParameterError
	require.True(t, errors.As(err, &ip), "got %v", err)
	assert.Contains(t, err.Error(), "stage pixelformat")
	assert.NotEmpty(t, cam.WritesTo("ReverseX"))
	assert.Empty(t, cam.WritesTo("TestImageSelector"))
}

func TestPipelineLeavesConfigAlone(t *testing.T) {
	cfg := Defaults()
	cfg.FlipY = true
	sc, cam := mockStage(t, cfg)
	cam.Remove("ReverseY")
	_, neg, err := NewPipeline(zerolog.Nop()).Run(context.Background(), cfg, sc.fs, nil)
	require.NoError(t, err)
	assert.True(t, cfg.FlipY)
	assert.False(t, neg.FlipY)
	assert.Equal(t, "BayerBG8", neg.PixelFormat)
}

func TestStreamCaps(t *testing.T) {
	assert.Equal(t, "video/x-bayer,format=gbrg,width=640,height=480,framerate=0/1",
		StreamCaps(Negotiated{PixelFormat: "BayerGB8", Width: 640, Height: 480}).String())
	assert.Equal(t, "video/x-raw,format=YUY2,width=640,height=480,framerate=0/1",
		StreamCaps(Negotiated{PixelFormat: "YCbCr422_8", Width: 640, Height: 480}).String())
}
