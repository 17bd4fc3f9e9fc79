package pylon

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Kind is the type of a feature's value
type Kind int

const (
	// KindUnknown is a feature not in Features
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindBool
	KindEnum
	KindString
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindString:
		return "string"
	case KindCommand:
		return "command"
	}
	return "unknown"
}

// ErrFeatureNotFound is generated when a feature is looked up in the Features
// map but does not exist there
type ErrFeatureNotFound struct {
	// Feature is the specific feature not found
	Feature string
}

// Error satisfies the error interface
func (e ErrFeatureNotFound) Error() string {
	return fmt.Sprintf("feature %s not found in Features map, see pylon#Features for known features", e.Feature)
}

var (
	// Features maps the features used by this package to their kind
	Features = map[string]Kind{
		// ints
		"Width":                       KindInt,
		"Height":                      KindInt,
		"WidthMax":                    KindInt,
		"HeightMax":                   KindInt,
		"OffsetX":                     KindInt,
		"OffsetY":                     KindInt,
		"PayloadSize":                 KindInt,
		"DeviceLinkThroughputLimit":   KindInt,
		"DeviceLinkCurrentThroughput": KindInt,
		"DeviceLinkSpeed":             KindInt,

		// bools
		"CenterX":                    KindBool,
		"CenterY":                    KindBool,
		"ReverseX":                   KindBool,
		"ReverseY":                   KindBool,
		"AcquisitionFrameRateEnable": KindBool,
		"AcquisitionStatus":          KindBool,

		// commands
		"AcquisitionStart": KindCommand,
		"AcquisitionStop":  KindCommand,
		"TriggerSoftware":  KindCommand,
		"DeviceReset":      KindCommand,

		// floats
		"AcquisitionFrameRate":       KindFloat,
		"ExposureTime":               KindFloat,
		"Gain":                       KindFloat,
		"BlackLevel":                 KindFloat,
		"Gamma":                      KindFloat,
		"BalanceRatio":               KindFloat,
		"ColorAdjustmentHue":         KindFloat,
		"ColorAdjustmentSaturation":  KindFloat,
		"ColorTransformationValue":   KindFloat,
		"AutoExposureTimeLowerLimit": KindFloat,
		"AutoExposureTimeUpperLimit": KindFloat,
		"AutoGainLowerLimit":         KindFloat,
		"AutoGainUpperLimit":         KindFloat,
		"AutoTargetBrightness":       KindFloat,
		"NoiseReduction":             KindFloat,
		"SharpnessEnhancement":       KindFloat,
		"SensorReadoutTime":          KindFloat,
		"ResultingFrameRate":         KindFloat,

		// enums
		"PixelFormat":                      KindEnum,
		"PixelSize":                        KindEnum,
		"TestImageSelector":                KindEnum,
		"SensorReadoutMode":                KindEnum,
		"DeviceLinkThroughputLimitMode":    KindEnum,
		"LightSourcePreset":                KindEnum,
		"ExposureAuto":                     KindEnum,
		"GainAuto":                         KindEnum,
		"BalanceWhiteAuto":                 KindEnum,
		"AutoFunctionProfile":              KindEnum,
		"BalanceRatioSelector":             KindEnum,
		"ColorAdjustmentSelector":          KindEnum,
		"ColorTransformationSelector":      KindEnum,
		"ColorTransformationValueSelector": KindEnum,
		"DemosaicingMode":                  KindEnum,
		"TriggerSelector":                  KindEnum,
		"TriggerMode":                      KindEnum,
		"TriggerSource":                    KindEnum,
		"AcquisitionMode":                  KindEnum,
		"AcquisitionStatusSelector":        KindEnum,

		// strings
		"DeviceModelName":       KindString,
		"DeviceSerialNumber":    KindString,
		"DeviceUserID":          KindString,
		"DeviceVendorName":      KindString,
		"DeviceFirmwareVersion": KindString,
	}
)

// EnumEntry returns the name of the pseudo-feature pylon uses to report
// availability of one value of an enumeration
func EnumEntry(feature, entry string) string {
	return "EnumEntry_" + feature + "_" + entry
}

// FeatureStore is a capability checked view of a device's features.
//
// The predicates are queried from the device every time, the answer can
// change with other settings.
type FeatureStore struct {
	dev Device
	log zerolog.Logger
}

// NewFeatureStore returns a FeatureStore over dev
func NewFeatureStore(dev Device, log zerolog.Logger) *FeatureStore {
	return &FeatureStore{dev: dev, log: log}
}

// Device returns the device behind the store
func (f *FeatureStore) Device() Device {
	return f.dev
}

// Implemented returns true if the camera has the feature at all
func (f *FeatureStore) Implemented(feature string) bool {
	return f.dev.IsImplemented(feature)
}

// Available returns true if the feature can be used with the current settings
func (f *FeatureStore) Available(feature string) bool {
	return f.dev.IsAvailable(feature)
}

// Readable returns true if the feature can be read
func (f *FeatureStore) Readable(feature string) bool {
	return f.dev.IsReadable(feature)
}

// Writable returns true if the feature can be written
func (f *FeatureStore) Writable(feature string) bool {
	return f.dev.IsWritable(feature)
}

// EnumAvailable returns true if entry is a usable value of the enumeration feature
func (f *FeatureStore) EnumAvailable(feature, entry string) bool {
	return f.dev.IsAvailable(EnumEntry(feature, entry))
}

func (f *FeatureStore) readable(feature string) error {
	if !f.dev.IsReadable(feature) {
		return UnsupportedFeatureError{Feature: feature, Access: "readable"}
	}
	return nil
}

func (f *FeatureStore) writable(feature string) error {
	if !f.dev.IsWritable(feature) {
		return UnsupportedFeatureError{Feature: feature, Access: "writable"}
	}
	return nil
}

func (f *FeatureStore) rejected(feature string, v interface{}, err error) error {
	msg, detail := f.dev.LastError()
	if detail != "" {
		msg = msg + " " + detail
	}
	return DeviceRejectedValueError{Feature: feature, Value: v, Detail: msg, Err: err}
}

// GetInt reads an integer feature
func (f *FeatureStore) GetInt(feature string) (int64, error) {
	if err := f.readable(feature); err != nil {
		return 0, err
	}
	v, err := f.dev.GetInt(feature)
	if err != nil {
		return 0, TransportError{Op: "reading " + feature, Err: err}
	}
	return v, nil
}

// SetInt writes an integer feature
func (f *FeatureStore) SetInt(feature string, v int64) error {
	if err := f.writable(feature); err != nil {
		return err
	}
	if err := f.dev.SetInt(feature, v); err != nil {
		return f.rejected(feature, v, err)
	}
	f.log.Debug().Str("feature", feature).Int64("value", v).Msg("set")
	return nil
}

// GetFloat reads a floating point feature
func (f *FeatureStore) GetFloat(feature string) (float64, error) {
	if err := f.readable(feature); err != nil {
		return 0, err
	}
	v, err := f.dev.GetFloat(feature)
	if err != nil {
		return 0, TransportError{Op: "reading " + feature, Err: err}
	}
	return v, nil
}

// SetFloat writes a floating point feature
func (f *FeatureStore) SetFloat(feature string, v float64) error {
	if err := f.writable(feature); err != nil {
		return err
	}
	if err := f.dev.SetFloat(feature, v); err != nil {
		return f.rejected(feature, v, err)
	}
	f.log.Debug().Str("feature", feature).Float64("value", v).Msg("set")
	return nil
}

// GetBool reads a boolean feature
func (f *FeatureStore) GetBool(feature string) (bool, error) {
	if err := f.readable(feature); err != nil {
		return false, err
	}
	v, err := f.dev.GetBool(feature)
	if err != nil {
		return false, TransportError{Op: "reading " + feature, Err: err}
	}
	return v, nil
}

// SetBool writes a boolean feature
func (f *FeatureStore) SetBool(feature string, v bool) error {
	if err := f.writable(feature); err != nil {
		return err
	}
	if err := f.dev.SetBool(feature, v); err != nil {
		return f.rejected(feature, v, err)
	}
	f.log.Debug().Str("feature", feature).Bool("value", v).Msg("set")
	return nil
}

// GetEnum reads the symbolic value of an enumeration feature
func (f *FeatureStore) GetEnum(feature string) (string, error) {
	return f.GetString(feature)
}

// SetEnum writes the symbolic value of an enumeration feature
func (f *FeatureStore) SetEnum(feature, value string) error {
	return f.SetString(feature, value)
}

// GetString reads a feature as a string
func (f *FeatureStore) GetString(feature string) (string, error) {
	if err := f.readable(feature); err != nil {
		return "", err
	}
	v, err := f.dev.GetString(feature)
	if err != nil {
		return "", TransportError{Op: "reading " + feature, Err: err}
	}
	return v, nil
}

// SetString writes a feature from a string
func (f *FeatureStore) SetString(feature, value string) error {
	if err := f.writable(feature); err != nil {
		return err
	}
	if err := f.dev.SetString(feature, value); err != nil {
		return f.rejected(feature, value, err)
	}
	f.log.Debug().Str("feature", feature).Str("value", value).Msg("set")
	return nil
}

// Execute runs a command feature
func (f *FeatureStore) Execute(command string) error {
	if !f.dev.IsAvailable(command) {
		return UnsupportedFeatureError{Feature: command, Access: "available"}
	}
	if err := f.dev.Execute(command); err != nil {
		return f.rejected(command, "execute", err)
	}
	f.log.Debug().Str("command", command).Msg("executed")
	return nil
}
