// linkbridge feeds racing game positions and identity into the Mumble
// positional audio link.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tm-proximity/linkbridge/internal/channel"
	"github.com/tm-proximity/linkbridge/internal/config"
	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/internal/feed"
	"github.com/tm-proximity/linkbridge/internal/identity"
	"github.com/tm-proximity/linkbridge/internal/influx"
	"github.com/tm-proximity/linkbridge/internal/link"
	"github.com/tm-proximity/linkbridge/internal/link/mumble"
	"github.com/tm-proximity/linkbridge/internal/logging"
	"github.com/tm-proximity/linkbridge/internal/monitor"
	"github.com/tm-proximity/linkbridge/internal/poller"
	"github.com/tm-proximity/linkbridge/internal/server"
	"github.com/tm-proximity/linkbridge/internal/session"
	"github.com/tm-proximity/linkbridge/internal/telemetry"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"

	AppName = "linkbridge"
)

const outboxSize = 4096

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	start := time.Now()

	flagSet := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	configDir := flagSet.String("config-dir", ".", "directory containing "+config.FileName)
	flagSet.String("method", "", "ingestion method: socket or telemetry (empty waits for the observer)")
	flagSet.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flagSet.String("host", server.DefaultHost, "socket server host")
	flagSet.Int("port", server.DefaultPort, "socket server port")
	flagSet.Bool("feed", false, "stream events to the WebSocket observer")
	showVersion := flagSet.Bool("version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("%s %s (%s)\n", AppName, Version, BuildDate)
		return nil
	}

	configErr := config.Load(*configDir)
	for key, flag := range map[string]string{
		"method":       "method",
		"logLevel":     "log-level",
		"server.host":  "host",
		"server.port":  "port",
		"feed.enabled": "feed",
	} {
		if err := viper.BindPFlag(key, flagSet.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	log, closeLogs := setupLogging(start)
	defer closeLogs()
	if configErr != nil {
		log.Warn().Err(configErr).Msg("Failed to load config, using defaults!")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Loaded config")
	}

	method, hasMethod, err := parseMethod(config.GetString("method"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feedCfg := config.GetFeedConfig()
	outbox := events.NewOutbox(outboxSize)
	visibility := events.NewFlag(!feedCfg.Enabled)
	details := identity.NewContext()

	adapter, err := link.NewAdapter(mumble.Connector{}, log.With().Str("component", "link").Logger())
	if err != nil {
		return err
	}
	defer adapter.Close()

	serverCfg := config.GetServerConfig()
	telemetryCfg := config.GetTelemetryConfig()
	linkCfg := config.GetLinkConfig()

	coord, err := session.New(session.Config{
		AppName:     linkCfg.AppName,
		Description: linkCfg.Description,
	}, session.Dependencies{
		Link:   adapter,
		Outbox: outbox,
		Socket: func() (session.Pipeline, error) {
			return server.New(server.Config{
				Host:            serverCfg.Host,
				Port:            serverCfg.Port,
				Version:         Version,
				ObfuscateServer: serverCfg.ObfuscateContext,
			}, server.Dependencies{
				Link:       adapter,
				Details:    details,
				Outbox:     outbox,
				Visibility: visibility,
				Logger:     log,
			})
		},
		Telemetry: func() (session.Pipeline, error) {
			return poller.New(poller.Config{
				Interval: telemetryCfg.PollInterval,
				Scale:    telemetryCfg.Scale,
			}, poller.Dependencies{
				Reader:  telemetry.NewRegionReader(telemetryCfg.RegionName),
				Link:    adapter,
				Outbox:  outbox,
				Details: details,
				Logger:  log,
			})
		},
		Logger: log,
	})
	if err != nil {
		return err
	}
	log = log.With().Str("session", coord.ID()).Logger()

	inbox := make(chan session.Control, 16)
	var wg sync.WaitGroup

	// Observer: the WebSocket feed when it connects, the log otherwise.
	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()
	var f *feed.Feed
	if feedCfg.Enabled {
		f, err = feed.New(feed.Config{URL: feedCfg.URL, Secret: feedCfg.Secret, Version: Version}, feed.Dependencies{
			SessionID:  coord.ID(),
			Visibility: visibility,
			Controls:   inbox,
			Logger:     log,
		})
		if err == nil {
			err = f.Init()
		}
		if err != nil {
			log.Error().Err(err).Str("url", feedCfg.URL).Msg("Event feed unavailable, logging events instead")
			f = nil
			visibility.SetVisible(true)
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if f != nil {
			f.Run(drainCtx, outbox.Receive())
			return
		}
		drainToLog(drainCtx, log, outbox.Receive())
	}()

	var stats monitor.PointWriter
	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		mgr := influx.NewManager(log.With().Str("component", "influx").Logger(), influxCfg)
		if err := mgr.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("Influx unavailable")
		} else {
			stats = mgr
		}
		defer mgr.Close()
	}

	monitorCfg := config.GetMonitorConfig()
	if monitorCfg.Enabled {
		mon := monitor.NewService(monitor.Dependencies{
			Link:       adapter,
			Session:    coord,
			Details:    details,
			Outbox:     outbox,
			Influx:     stats,
			StatusFile: monitorCfg.StatusFile,
			Interval:   monitorCfg.Interval,
			Logger:     log,
		})
		monCtx, stopMon := context.WithCancel(ctx)
		monDone := make(chan struct{})
		go func() {
			defer close(monDone)
			mon.Run(monCtx)
		}()
		defer func() {
			stopMon()
			<-monDone
		}()
	}

	hostCtx, stopHost := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hostLoop(hostCtx, coord, inbox, method, hasMethod, linkCfg.RetryInterval)
	}()

	log.Info().Str("version", Version).Str("buildDate", BuildDate).
		Bool("synchronousOutbox", channel.Synchronous).Msg("Bridge starting")
	runErr := coord.Run(ctx, inbox)
	stopHost()
	if runErr != nil && !errors.Is(runErr, events.ErrObserverGone) && ctx.Err() == nil {
		log.Error().Err(runErr).Msg("Pipeline stopped, waiting for shutdown")
		awaitShutdown(ctx, log, inbox)
	}

	// Let the observer see the last events before the outbox goes away.
	outbox.Close()
	if f != nil {
		defer f.Close()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		stopDrain()
		<-done
	}

	if runErr != nil && !errors.Is(runErr, events.ErrObserverGone) {
		log.Error().Err(runErr).Msg("Bridge stopped with error")
		return runErr
	}
	log.Info().Msg("Bridge stopped")
	return nil
}

// setupLogging creates the logs directory, the session log file and the
// optional Graylog sink.
func setupLogging(start time.Time) (zerolog.Logger, func()) {
	var file io.Writer
	var closers []func()

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logs dir %s: %v\n", logsDir, err)
	} else {
		path := logging.LogFilePath(logsDir, AppName, start)
		if _, err := os.Stat(path); err == nil {
			_ = os.Rename(path, path+".old")
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", path, err)
		} else {
			file = f
			closers = append(closers, func() { _ = f.Close() })
		}
	}

	var extra []io.Writer
	var gelfErr error
	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGelfWriter(config.GetString("graylog.address"), AppName)
		if err != nil {
			gelfErr = err
		} else {
			extra = append(extra, w)
			closers = append(closers, func() { _ = w.Close() })
		}
	}

	log := logging.Setup(logging.Options{
		Level:   config.GetString("logLevel"),
		Console: os.Stdout,
		File:    file,
		Extra:   extra,
		Context: func(e *zerolog.Event) {
			e.Str("app", AppName)
		},
	})
	if gelfErr != nil {
		log.Warn().Err(gelfErr).Msg("Graylog sink unavailable")
	}

	return log, func() {
		for _, c := range closers {
			c()
		}
	}
}
