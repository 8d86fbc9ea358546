package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/httphandlers"
	"go2tv.app/castvideos/internal/castsession"
	"go2tv.app/castvideos/internal/config"
	"go2tv.app/castvideos/internal/interactive"
	"go2tv.app/castvideos/internal/localplayer"
	"go2tv.app/castvideos/internal/media"
	"go2tv.app/castvideos/internal/playback"
	"go2tv.app/castvideos/utils"
)

var (
	version    string
	build      string
	videoArg   = flag.String("v", "", "Path to a local video/audio file. Without it the media list is browsed.")
	subsArg    = flag.String("s", "", "Path to the subtitles file (.srt or .vtt).")
	listURLArg = flag.String("u", "", "Media list URL, overrides the settings file.")
	targetPtr  = flag.String("t", "", "Cast to a specific receiver (DLNA description URL or http://host:8009).")
	listPtr    = flag.Bool("l", false, "List all available receivers.")
	devicePtr  = flag.Int("d", 0, "Cast to the Nth receiver as numbered by -l.")
	configPtr  = flag.String("c", "", "Path to the settings file.")
	versionPtr = flag.Bool("version", false, "Print version.")
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if checkVerflag() {
		return nil
	}
	if err := checkflags(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *listPtr {
		return listFlagFunction(ctx, cfg.DiscoveryTimeout)
	}

	if err := utils.CheckFFprobe(cfg.FFprobePath); err != nil {
		logger.Warn().Str("Method", "run").Err(err).Msg("ffprobe unavailable, local durations come from the media list only")
	}

	dev, err := chooseDevice(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var srv *httphandlers.HTTPserver
	defer func() {
		if srv != nil {
			srv.StopServer()
		}
	}()

	var info *media.Info
	if *videoArg != "" {
		srv, err = startServer(dev, logger)
		if err != nil {
			return err
		}
		info, err = localMedia(srv, *videoArg, *subsArg)
	} else {
		info, err = catalogMedia(ctx, cfg, logger)
	}
	if err != nil {
		return err
	}

	return play(ctx, cfg, logger, dev, info)
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *configPtr != "" {
		cfg, err = config.Load(*configPtr)
	} else {
		cfg, err = config.GetAppConfig()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// mediaListURL is -u when given. The flag is not written to the settings
// file.
func mediaListURL(cfg *config.Config) string {
	if *listURLArg != "" {
		return *listURLArg
	}
	return cfg.MediaListURL
}

// chooseDevice returns the receiver from -t, or lets the user pick one of
// the discovered receivers. Nil means playing on this computer only.
func chooseDevice(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*devices.Device, error) {
	if *targetPtr != "" {
		d, err := deviceFromTarget(*targetPtr)
		if err != nil {
			return nil, err
		}
		d = describeTarget(ctx, d, logger)
		return &d, nil
	}

	fmt.Println("Looking for receivers…")
	devs, err := devices.LoadAllDevices(ctx, cfg.DiscoveryTimeout)
	if errors.Is(err, devices.ErrNoDeviceAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if *devicePtr > 0 {
		d, err := devices.DevicePicker(devs, *devicePtr)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}

	d, ok, err := interactive.PickDevice(devs)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

// startServer exposes local files on the interface that reaches dev.
func startServer(dev *devices.Device, logger zerolog.Logger) (*httphandlers.HTTPserver, error) {
	var (
		addr string
		err  error
	)
	if dev != nil {
		addr, err = utils.URLtoListenIPandPort(dev.Addr)
	} else {
		addr, err = utils.ListenAddrFor(utils.GetOutboundIP() + ":80")
	}
	if err != nil {
		return nil, err
	}

	srv := httphandlers.NewServer(addr, logger)
	serverStarted := make(chan error)
	go srv.StartServer(serverStarted)

	// Wait for HTTP server to properly initialize
	if err := <-serverStarted; err != nil {
		return nil, err
	}
	return srv, nil
}

func localMedia(srv *httphandlers.HTTPserver, path, subs string) (*media.Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	mtype, err := utils.GetMimeDetailsFromFile(f)
	if err != nil {
		return nil, err
	}

	mediaURL, err := srv.ServeFile(abs, mtype)
	if err != nil {
		return nil, err
	}

	var tracks []media.Track
	if subs != "" {
		subsURL, err := srv.ServeSubtitles(subs)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, media.Track{
			ID:          1,
			Type:        media.TrackText,
			Subtype:     "SUBTITLES",
			ContentID:   subsURL,
			ContentType: "text/vtt",
			Name:        "Subtitles",
		})
	}

	return media.FromFile(abs, mediaURL, tracks)
}

func catalogMedia(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*media.Info, error) {
	cat, err := media.NewLoader(logger).Load(ctx, mediaListURL(cfg))
	if err != nil {
		return nil, err
	}
	return interactive.PickMedia(cat)
}

// play wires the playback loop, the controller and the player screen, and
// blocks until the screen is closed.
func play(ctx context.Context, cfg *config.Config, logger zerolog.Logger, dev *devices.Device, info *media.Info) error {
	loop := playback.NewLoop(logger)
	go loop.Run(ctx)
	defer loop.Stop()

	scr, err := interactive.InitTcellNewScreen()
	if err != nil {
		return err
	}

	sessions := castsession.NewManager(castsession.Config{
		Loop: loop,
		OnDevice: func(addr string) {
			if cfg.LastDevice == addr {
				return
			}
			cfg.LastDevice = addr
			if err := cfg.SaveAppConfig(); err != nil {
				logger.Warn().Str("Method", "OnDevice").Err(err).Msg("settings not saved")
			}
		},
		Logger: logger,
	})

	screen := interactive.NewPlayerScreen(interactive.ScreenConfig{
		Screen:        scr,
		Loop:          loop,
		Sessions:      sessions,
		Device:        dev,
		Previewer:     localplayer.NewPreviewer(logger),
		SeekStep:      cfg.SeekStepDuration(),
		ShowRemaining: cfg.ShowRemaining,
		Logger:        logger,
	})

	elements := localplayer.NewFactory(localplayer.Config{
		Loop:    loop,
		FFprobe: cfg.FFprobePath,
		Logger:  logger,
	})

	ctrl := playback.NewController(playback.ControllerConfig{
		Presenter:   screen,
		Sessions:    sessions,
		NewElement:  elements.New,
		Scheduler:   loop,
		PreloadTime: cfg.PreloadTime,
		Logger:      logger,
	})
	screen.Attach(ctrl)

	if err := screen.Init(); err != nil {
		return err
	}

	loop.Call(func() {
		ctrl.Appear()
		ctrl.SelectMedia(info)

		if dev == nil {
			return
		}
		if dev.Addr == cfg.LastDevice {
			sessions.ResumeSession(ctx, *dev)
			return
		}
		sessions.StartSession(ctx, *dev)
	})

	err = screen.Run(ctx)

	loop.Call(func() {
		ctrl.Disappear()
		sessions.EndSession(false)
	})

	return err
}
