package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mirrorstore/internal/config"
	"mirrorstore/internal/fsops"
	"mirrorstore/internal/hotplug"
	"mirrorstore/internal/logging"
	"mirrorstore/internal/registry"
	"mirrorstore/internal/server"
	"mirrorstore/internal/version"
)

func main() {
	var configPath string
	var showVersion bool
	var logLevel string

	flag.StringVar(&configPath, "config", "mirrorstore.yaml", "Path to the server config (YAML or JSON)")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.StringVar(&logLevel, "log-level", "", "Override log.level from the config (debug, info, warn, error)")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Get().String())
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if _, err := logging.Setup(logging.Options{Level: cfg.Log.Level, Console: cfg.Log.Console}); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid log level:", err)
		os.Exit(1)
	}

	reg, err := cfg.Registry()
	if err != nil {
		log.Fatal().Err(err).Str("config", configPath).Msg("invalid device list")
	}

	log.Info().Str("version", version.Get().Short()).Str("config", configPath).Msg("mirrorstore server")
	for _, d := range reg.Devices() {
		logDevice(d)
	}

	// Bind first so we can fail early.
	ln, err := net.Listen("tcp", cfg.Listen())
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Listen()).Msg("listen failed")
	}
	log.Info().Str("addr", ln.Addr().String()).Int("devices", reg.Len()).Msg("listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, reg)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	if cfg.Hotplug.Enabled {
		src, err := hotplug.WatchDevices(cfg.Hotplug.DevDir)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.Hotplug.DevDir).Msg("hotplug disabled: cannot watch device directory")
		} else {
			mon := hotplug.NewMonitor(reg, src, cfg.Hotplug)
			g.Go(func() error {
				return mon.Run(gctx)
			})
		}
	}

	err = g.Wait()
	st := srv.Stats()
	log.Info().
		Uint64("requests", st.TotalReq).
		Uint64("errors", st.TotalErr).
		Uint64("dropped", st.Dropped).
		Uint64("bytes_in", st.BytesIn).
		Uint64("bytes_out", st.BytesOut).
		Int64("uptime_sec", st.UptimeSec).
		Msg("shutting down")
	for _, r := range srv.Recent(10, true) {
		log.Debug().Str("cmd", string(r.Command)).Str("path", r.Path).Str("err", r.Err).Time("at", r.At).Msg("recent failure")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func logDevice(d registry.Device) {
	ev := log.Info().Str("device", d.Name()).Str("root", d.Root())
	if fi, err := os.Stat(d.Root()); err != nil || !fi.IsDir() {
		ev.Bool("available", false).Msg("storage device")
		return
	}
	if u, err := fsops.DiskUsage(d.Root()); err == nil {
		ev = ev.Uint64("total_bytes", u.Total).Uint64("used_bytes", u.Used())
	}
	ev.Bool("available", true).Msg("storage device")
}
