package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylon"
	"github.jpl.nasa.gov/bdube/pylonsrc/basler/pylonsrc"
	"github.jpl.nasa.gov/bdube/pylonsrc/generichttp"
	"github.jpl.nasa.gov/bdube/pylonsrc/gstsink"
	"github.jpl.nasa.gov/bdube/pylonsrc/imgrec"
	"github.jpl.nasa.gov/bdube/pylonsrc/server"
	"github.jpl.nasa.gov/bdube/pylonsrc/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/pylonsrc/usbscan"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "pylon-http.yml"

	// EnvPrefix prefixes environment variables which override the config file
	EnvPrefix = "PYLONSRC_"

	k = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to write to
	Root string `koanf:"root" yaml:"root"`

	// Prefix is the filename prefix to use
	Prefix string `koanf:"prefix" yaml:"prefix"`

	// Enabled turns recording of served fits frames on at startup
	Enabled bool `koanf:"enabled" yaml:"enabled"`
}

type config struct {
	Addr     string `koanf:"addr" yaml:"addr"`
	Root     string `koanf:"root" yaml:"root"`
	LogLevel string `koanf:"loglevel" yaml:"loglevel"`

	// AutoStart connects to the camera when the server starts
	AutoStart bool `koanf:"autostart" yaml:"autostart"`

	// GStreamer is a gst-launch pipeline the frames are pushed into while
	// the camera streams, empty for none
	GStreamer string `koanf:"gstreamer" yaml:"gstreamer"`

	Recorder recorder        `koanf:"recorder" yaml:"recorder"`
	Camera   pylonsrc.Config `koanf:"camera" yaml:"camera"`
}

func setupconfig() error {
	k.Load(structs.Provider(config{
		Addr:     ":8000",
		Root:     "/",
		LogLevel: "info",
		Recorder: recorder{Prefix: "pylon"},
		Camera:   pylonsrc.Defaults()}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) { // file missing, who cares
			return fmt.Errorf("error loading config: %w", err)
		}
	}
	return k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil)
}

func loadconfig() (config, error) {
	c := config{}
	err := k.Unmarshal("", &c)
	return c, err
}

func root() {
	str := `pylon-http exposes a Basler USB3 camera over HTTP
This enables a server-client architecture,
and the clients can leverage the excellent HTTP
libraries for any programming language,
instead of custom socket logic.

Usage:
	pylon-http <command>

Commands:
	run
	help
	mkconf
	conf
	devices
	version`
	fmt.Println(str)
}

func help() {
	str := `pylon-http is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are lower case.
The command mkconf generates the configuration file with the default values.
Any key may be overridden with an environment variable, e.g.
PYLONSRC_CAMERA_FPS=30 sets camera.fps.

The camera section holds the same properties as the gstreamer pylonsrc element.
Properties left out keep whatever value is stored on the camera.

camera.camera selects a camera by index when more than one is connected; run
pylon-http devices to list them.  If no camera is found, devices also lists the
Basler devices on the USB bus, which tells a camera that is not plugged in from
one that cannot be claimed.

The camera is configured when the server starts if autostart is true, and on
POST /start otherwise.  The configuration may be changed with POST /config
while the camera is stopped.

gstreamer, if set, is a gst-launch pipeline the frames are pushed into, e.g.
"videoconvert ! autovideosink".  It needs a binary built with the gst tag.`
	fmt.Println(str)
}

func mkconf() error {
	c, err := loadconfig()
	if err != nil {
		return err
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(c)
}

func printconf() error {
	c, err := loadconfig()
	if err != nil {
		return err
	}
	return yml.NewEncoder(os.Stdout).Encode(c)
}

func pversion() {
	fmt.Printf("pylon-http version %v\n", Version)
}

func devices(log zerolog.Logger) error {
	s := pylonsrc.NewSession(driver(log), pylonsrc.Defaults(), log)
	ids, err := s.Devices()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	if len(ids) == 0 {
		fmt.Println("pylon sees no cameras, scanning the USB bus")
		return scanBus()
	}
	return nil
}

func scanBus() error {
	devs, err := usbscan.ScanBus()
	if err != nil {
		return err
	}
	if len(devs) == 0 {
		fmt.Println("no Basler devices on the USB bus, check the cable")
	}
	for _, d := range devs {
		fmt.Println(d)
		if !d.SuperSpeed() {
			fmt.Println("\tnot connected at USB3 speed, use a USB3 port and cable")
		}
	}
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger(), nil
}

func run(cfg config, log zerolog.Logger) error {
	if cfg.GStreamer != "" && !cfg.AutoStart {
		return errors.New("gstreamer output needs autostart")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s := pylonsrc.NewSession(driver(log), cfg.Camera, log)
	m, err := pylonsrc.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	s.Metrics = m
	defer s.Stop()

	rec := &imgrec.Recorder{Root: cfg.Recorder.Root, Prefix: cfg.Recorder.Prefix, Enabled: cfg.Recorder.Enabled}
	w := pylonsrc.NewHTTPSession(s, rec)
	l := locker.New()
	locker.Inject(w, l)

	// clean up the submux string
	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	r := chi.NewRouter()
	mux := chi.NewRouter()
	mux.Use(l.Check)
	w.RT().Bind(mux)
	r.Mount(hndlrS, mux)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.AutoStart {
		if err := s.Start(ctx); err != nil {
			var nd pylon.NoDeviceError
			if errors.As(err, &nd) {
				if perr := scanBus(); perr != nil {
					log.Warn().Err(perr).Msg("scanning the USB bus")
				}
			}
			return err
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.ListenAndServe(ctx, cfg.Addr, r, log)
	})
	if cfg.GStreamer != "" {
		sink, err := newSink(s.Caps(), cfg.GStreamer, log)
		if err != nil {
			return err
		}
		defer sink.Close()
		pump := gstsink.Pump{Recoverable: recoverable, Stopped: pylonsrc.ErrStopped, Log: log}
		eg.Go(func() error {
			return pump.Run(ctx, s, sink)
		})
	}
	return eg.Wait()
}

// recoverable errors lose one frame and leave the stream usable
func recoverable(err error) bool {
	var (
		timeout pylon.AcquisitionTimeoutError
		grab    pylon.GrabError
	)
	return errors.As(err, &timeout) || errors.As(err, &grab)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	fail := func(err error) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := setupconfig(); err != nil {
		fail(err)
	}
	cfg, err := loadconfig()
	if err != nil {
		fail(err)
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fail(err)
	}
	log = log.With().Str("app", "pylon-http").Logger()

	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		err = mkconf()
	case "conf":
		err = printconf()
	case "devices":
		err = devices(log)
	case "run":
		err = run(cfg, log)
	case "version":
		pversion()
	default:
		err = fmt.Errorf("unknown command %q", args[1])
	}
	if err != nil {
		log.Error().Err(err).Msg(args[1])
		os.Exit(1)
	}
}
