package pylonsrc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
)

// Outcome is the result of a stage that did not fail
type Outcome int

const (
	// Applied means the stage wrote to the camera
	Applied Outcome = iota

	// Skipped means the stage had nothing to do or degraded to a warning
	Skipped
)

func (o Outcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "applied"
}

// Negotiated is what the camera settled on once configured
type Negotiated struct {
	Width, Height       int64
	MaxWidth, MaxHeight int64

	// PixelFormat is the PixelFormat enumerant, e.g. BayerBG8
	PixelFormat string

	// PixelSize is the PixelSize enumerant, empty if it could not be read
	PixelSize string

	// Bayer is true for raw Bayer output
	Bayer bool

	// FlipX and FlipY are the orientation actually applied
	FlipX, FlipY bool

	// Triggered is true for software triggered acquisition
	Triggered bool

	// TriggerSelector is the trigger that gates each frame
	TriggerSelector string
}

// Rebooter reconnects to the camera after a DeviceReset and returns a store
// over the new device
type Rebooter func(ctx context.Context) (*pylon.FeatureStore, error)

// stageContext is the state threaded through the stages
type stageContext struct {
	ctx    context.Context
	cfg    *Config
	fs     *pylon.FeatureStore
	log    zerolog.Logger
	reboot Rebooter
	out    Negotiated
}

// warn logs a capability fallback
func (sc *stageContext) warn(feature, msg string) {
	sc.log.Warn().Str("feature", feature).Msg(msg)
}

// Stage is one step of camera configuration
type Stage struct {
	Name  string
	apply func(*stageContext) (Outcome, error)
}

// Stages returns the configuration stages in the order they run
func Stages() []Stage {
	return []Stage{
		{"reset", resetStage},
		{"resolution", resolutionStage},
		{"offset", offsetStage},
		{"orientation", orientationStage},
		{"pixelformat", pixelFormatStage},
		{"testimage", testImageStage},
		{"readoutmode", readoutModeStage},
		{"bandwidth", bandwidthStage},
		{"framerate", frameRateStage},
		{"lightsource", lightSourceStage},
		{"automodes", autoModesStage},
		{"autolimits", autoLimitsStage},
		{"autoprofile", autoProfileStage},
		{"balance", balanceStage},
		{"coloradjustment", colorAdjustmentStage},
		{"colortransformation", colorTransformationStage},
		{"manual", manualStage},
		{"demosaicing", demosaicingStage},
		{"trigger", triggerStage},
	}
}

// StageNames returns the names of Stages()
func StageNames() []string {
	s := Stages()
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i].Name
	}
	return out
}

// Pipeline applies a Config to a camera
type Pipeline struct {
	Stages []Stage
	Log    zerolog.Logger
}

// NewPipeline returns a pipeline of every stage
func NewPipeline(log zerolog.Logger) *Pipeline {
	return &Pipeline{Stages: Stages(), Log: log}
}

// Run applies cfg stage by stage and stops at the first failure.
//
// The store returned is the one in use at the end, a reset replaces the
// device.  cfg is not modified; flips the camera cannot do are reported as
// false in the Negotiated.
func (p *Pipeline) Run(ctx context.Context, cfg Config, fs *pylon.FeatureStore, reboot Rebooter) (*pylon.FeatureStore, Negotiated, error) {
	sc := &stageContext{ctx: ctx, cfg: &cfg, fs: fs, reboot: reboot}
	for _, s := range p.Stages {
		if err := ctx.Err(); err != nil {
			return sc.fs, sc.out, err
		}
		sc.log = p.Log.With().Str("stage", s.Name).Logger()
		o, err := s.apply(sc)
		if err != nil {
			sc.log.Error().Err(err).Msg("configuration failed")
			return sc.fs, sc.out, errors.Wrapf(err, "stage %s", s.Name)
		}
		sc.log.Debug().Stringer("outcome", o).Msg("stage done")
	}
	sc.out.FlipX, sc.out.FlipY = sc.cfg.FlipX, sc.cfg.FlipY
	return sc.fs, sc.out, nil
}
