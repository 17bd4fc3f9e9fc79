// pylon-test connects to a camera, pulls frames and reports the frame rate
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/theckman/yacspin"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylonsrc"
	"github.jpl.nasa.gov/bdube/pylonsrc/camera"
	hcam "github.jpl.nasa.gov/bdube/pylonsrc/generichttp/camera"
	"github.jpl.nasa.gov/bdube/pylonsrc/imgrec"
)

func spinner(msg string) (*yacspin.Spinner, error) {
	s, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return nil, err
	}
	return s, s.Start()
}

func main() {
	var (
		n      = flag.Int("n", 100, "number of frames to pull")
		cam    = flag.Int("camera", -1, "camera index, -1 to pick the only camera")
		format = flag.String("format", "", "image format, e.g. mono8 or bayer8; empty keeps the default")
		fps    = flag.Float64("fps", 0, "frame rate cap, 0 for none")
		reset  = flag.String("reset", pylonsrc.ResetOff, "reset the camera before or after, or off")
		out    = flag.String("out", "", "folder to write every frame to as fits, empty for none")
		list   = flag.Bool("list", false, "list the cameras and exit")
		level  = flag.String("loglevel", "warn", "log level")
	)
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	if err := run(*n, *cam, *format, *fps, *reset, *out, *list, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(n, cam int, format string, fps float64, reset, out string, list bool, log zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := pylonsrc.Defaults()
	if cam >= 0 {
		cfg.Camera = pylonsrc.Int(cam)
	}
	if format != "" {
		cfg.ImageFormat = format
	}
	if fps > 0 {
		cfg.FPS, cfg.AcquisitionFrameRateEnable = fps, true
	}
	cfg.Reset = reset
	s := pylonsrc.NewSession(driver(log), cfg, log)

	if list {
		ids, err := s.Devices()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	spin, err := spinner("connecting")
	if err != nil {
		return err
	}
	if cfg.Reset == pylonsrc.ResetBefore {
		spin.Message("resetting the camera, this takes a few seconds")
	}
	if err := s.Start(ctx); err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		return err
	}
	defer s.Stop()
	id, _ := s.Identity()
	spin.StopMessage(fmt.Sprintf("%s streaming %s", id, s.Caps()))
	spin.Stop()

	var rec *imgrec.Recorder
	if out != "" {
		rec = &imgrec.Recorder{Root: out, Prefix: "frame", Enabled: true}
	}

	spin, err = spinner("grabbing")
	if err != nil {
		return err
	}
	var failed int
	start := time.Now()
	for i := 0; i < n && ctx.Err() == nil; i++ {
		f, err := s.Create(ctx)
		if err != nil {
			failed++
			log.Warn().Err(err).Msg("pull failed")
			continue
		}
		spin.Message(fmt.Sprintf("frame %d/%d", f.Seq+1, n))
		if rec.Active() {
			if err := hcam.WriteFits(rec, s.CollectHeaderMetadata(), []camera.Frame{f}); err != nil {
				spin.StopFailMessage(err.Error())
				spin.StopFail()
				return err
			}
			rec.Incr()
		}
	}
	elapsed := time.Since(start)
	spin.StopMessage(fmt.Sprintf("%d frames in %v, %d failed", n-failed, elapsed.Round(time.Millisecond), failed))
	spin.Stop()

	sum := s.FPS()
	if sum.Reports == 0 {
		fmt.Printf("%.2f fps\n", float64(n-failed)/elapsed.Seconds())
		return nil
	}
	fmt.Println("last:", sum.Last)
	fmt.Printf("mean of %d reports %.2f fps, std %.2f fps\n", sum.Reports, sum.Mean, sum.StdDev)
	return nil
}
