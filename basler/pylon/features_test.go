package pylon_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

func openMock(t *testing.T) (*pylon.MockCamera, *pylon.FeatureStore) {
	t.Helper()
	drv := pylon.NewMockDriver(1)
	require.NoError(t, drv.Initialize())
	dev, err := drv.Open(0)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return drv.Cameras[0], pylon.NewFeatureStore(dev, zerolog.Nop())
}

func TestFeatureStoreRoundTrip(t *testing.T) {
	cam, fs := openMock(t)
	require.NoError(t, fs.SetInt("Width", 1280))
	w, err := fs.GetInt("Width")
	require.NoError(t, err)
	assert.EqualValues(t, 1280, w)

	require.NoError(t, fs.SetFloat("ExposureTime", 2500))
	require.NoError(t, fs.SetBool("ReverseX", true))
	require.NoError(t, fs.SetEnum("PixelFormat", "Mono8"))
	pf, err := fs.GetEnum("PixelFormat")
	require.NoError(t, err)
	assert.Equal(t, "Mono8", pf)

	assert.Equal(t, []pylon.Write{
		{Feature: "Width", Value: int64(1280)},
		{Feature: "ExposureTime", Value: 2500.0},
		{Feature: "ReverseX", Value: true},
		{Feature: "PixelFormat", Value: "Mono8"},
	}, cam.Writes())
}

func TestFeatureStoreReadOnly(t *testing.T) {
	cam, fs := openMock(t)
	err := fs.SetInt("WidthMax", 10)
	var uf pylon.UnsupportedFeatureError
	require.True(t, errors.As(err, &uf))
	assert.Equal(t, "writable", uf.Access)
	assert.Empty(t, cam.Writes())
}

func TestFeatureStoreMissingFeature(t *testing.T) {
	cam, fs := openMock(t)
	cam.Remove("SensorReadoutMode")
	assert.False(t, fs.Implemented("SensorReadoutMode"))
	_, err := fs.GetEnum("SensorReadoutMode")
	var uf pylon.UnsupportedFeatureError
	require.True(t, errors.As(err, &uf))
	assert.Equal(t, "readable", uf.Access)
}

func TestFeatureStoreRejectedValue(t *testing.T) {
	cam, fs := openMock(t)
	cam.Reject("Gain", errors.New("Value 40 out of range"))
	err := fs.SetFloat("Gain", 40)
	var rv pylon.DeviceRejectedValueError
	require.True(t, errors.As(err, &rv))
	assert.Equal(t, "Gain", rv.Feature)
	assert.Equal(t, 40.0, rv.Value)
	assert.Contains(t, rv.Detail, "out of range")
	var code pylon.GenAPIError
	assert.True(t, errors.As(err, &code))
}

func TestFeatureStoreEnumEntries(t *testing.T) {
	cam, fs := openMock(t)
	assert.True(t, fs.EnumAvailable("PixelFormat", "BayerBG8"))
	assert.False(t, fs.EnumAvailable("TriggerSelector", "AcquisitionStart"))

	cam.SetEntry("PixelFormat", "RGB8", false)
	assert.False(t, fs.EnumAvailable("PixelFormat", "RGB8"))
	err := fs.SetEnum("PixelFormat", "RGB8")
	var rv pylon.DeviceRejectedValueError
	assert.True(t, errors.As(err, &rv))
}

func TestFeatureStoreExecute(t *testing.T) {
	cam, fs := openMock(t)
	require.NoError(t, fs.Execute("TriggerSoftware"))
	assert.Equal(t, 1, cam.Triggers())

	cam.SetAccess("DeviceReset", true, false, false, false)
	err := fs.Execute("DeviceReset")
	var uf pylon.UnsupportedFeatureError
	require.True(t, errors.As(err, &uf))
	assert.Equal(t, 0, cam.Resets())
}

func TestGenAPIErrorMessage(t *testing.T) {
	assert.NoError(t, pylon.Result(0))
	assert.EqualError(t, pylon.Result(0x80000007), "0x80000007 - GENAPI_E_OUT_OF_RANGE")
}

func TestPayloadFollowsPixelFormat(t *testing.T) {
	_, fs := openMock(t)
	cases := []struct {
		format string
		size   string
		bytes  int64
	}{
		{"Mono8", "Bpp8", 1920 * 1200},
		{"BayerBG10", "Bpp16", 1920 * 1200 * 2},
		{"BayerBG10p", "Bpp10", 1920 * 1200 * 10 / 8},
		{"RGB8", "Bpp24", 1920 * 1200 * 3},
	}
	for _, c := range cases {
		require.NoError(t, fs.SetEnum("PixelFormat", c.format))
		payload, err := fs.GetInt("PayloadSize")
		require.NoError(t, err)
		assert.Equal(t, c.bytes, payload, c.format)
		size, err := fs.GetEnum("PixelSize")
		require.NoError(t, err)
		assert.Equal(t, c.size, size, c.format)
	}
}
