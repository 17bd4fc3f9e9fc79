package pylonsrc

import (
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

// triggerOff turns off the trigger behind selector if the camera has it
func triggerOff(sc *stageContext, selector string) error {
	if !sc.fs.EnumAvailable("TriggerSelector", selector) {
		return nil
	}
	if err := sc.fs.SetEnum("TriggerSelector", selector); err != nil {
		return err
	}
	return sc.fs.SetEnum("TriggerMode", "Off")
}

func triggerStage(sc *stageContext) (Outcome, error) {
	mode := "Off"
	if !sc.cfg.Continuous {
		mode = "On"
	}
	acqStart := sc.fs.EnumAvailable("TriggerSelector", "AcquisitionStart")
	frameStart := sc.fs.EnumAvailable("TriggerSelector", "FrameStart")

	selector := "FrameStart"
	if acqStart && !frameStart {
		selector = "AcquisitionStart"
		if err := sc.fs.SetEnum("TriggerSelector", selector); err != nil {
			return Skipped, err
		}
		if err := sc.fs.SetEnum("TriggerMode", mode); err != nil {
			return Skipped, err
		}
	} else {
		if err := triggerOff(sc, "AcquisitionStart"); err != nil {
			return Skipped, err
		}
		if err := triggerOff(sc, "FrameBurstStart"); err != nil {
			return Skipped, err
		}
		if err := sc.fs.SetEnum("TriggerSelector", selector); err != nil {
			return Skipped, err
		}
		if err := sc.fs.SetEnum("TriggerMode", mode); err != nil {
			return Skipped, err
		}
	}
	if !sc.cfg.Continuous {
		if sc.fs.Available("AcquisitionStatusSelector") {
			if err := sc.fs.SetEnum("AcquisitionStatusSelector", "FrameTriggerWait"); err != nil {
				return Skipped, err
			}
		} else {
			sc.warn("AcquisitionStatusSelector", "the camera cannot report trigger readiness")
		}
	}
	if err := sc.fs.SetEnum("TriggerSelector", selector); err != nil {
		return Skipped, err
	}
	if err := sc.fs.SetEnum("TriggerSource", "Software"); err != nil {
		return Skipped, err
	}
	if err := sc.fs.SetEnum("AcquisitionMode", "Continuous"); err != nil {
		return Skipped, err
	}
	sc.out.Triggered = !sc.cfg.Continuous
	sc.out.TriggerSelector = selector
	sc.log.Info().Str("selector", selector).Str("mode", mode).Msg("trigger configured")
	return Applied, nil
}

// linkCheck fails if the camera would need more bandwidth than the link
// carries.  It also logs the timing the camera settled on.
func linkCheck(fs *pylon.FeatureStore, log zerolog.Logger) error {
	if fs.Implemented("DeviceLinkCurrentThroughput") && fs.Implemented("DeviceLinkSpeed") {
		throughput, err := fs.GetInt("DeviceLinkCurrentThroughput")
		if err != nil {
			return err
		}
		speed, err := fs.GetInt("DeviceLinkSpeed")
		if err != nil {
			return err
		}
		if throughput > speed {
			return pylon.TransportError{Op: "checking link bandwidth",
				Err: errNotEnoughBandwidth{Throughput: throughput, Speed: speed}}
		}
		log.Info().Int64("throughput", throughput).Int64("speed", speed).Msg("link bandwidth in bytes per second")
	} else {
		log.Warn().Msg("the camera cannot report its link bandwidth")
	}
	timing := []struct {
		feature, field string
	}{
		{"SensorReadoutTime", "readoutus"},
		{"ResultingFrameRate", "fps"},
	}
	for _, t := range timing {
		if !fs.Implemented(t.feature) {
			log.Warn().Str("feature", t.feature).Msg("the camera cannot report this")
			continue
		}
		v, err := fs.GetFloat(t.feature)
		if err != nil {
			return err
		}
		log.Info().Float64(t.field, v).Msg("camera timing")
	}
	return nil
}
