package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"codeberg.org/mutker/bsec-exporter/internal/bridge"
	"codeberg.org/mutker/bsec-exporter/internal/config"
	"codeberg.org/mutker/bsec-exporter/internal/engine"
	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/exporter"
	"codeberg.org/mutker/bsec-exporter/internal/journal"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
	"codeberg.org/mutker/bsec-exporter/internal/pid"
	"codeberg.org/mutker/bsec-exporter/internal/scheduler"
	"codeberg.org/mutker/bsec-exporter/internal/sensor"
	"codeberg.org/mutker/bsec-exporter/internal/state"
	"codeberg.org/mutker/bsec-exporter/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.PrintConfig {
		if err := cfg.Print(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "failed to print config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Str("config_file", cfg.File).Msg("Config loaded")

	if err := run(cfg); err != nil {
		logError(err, "bsec-exporter stopped with an error")
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func run(cfg *config.Config) error {
	errFactory := errors.New()
	runID := uuid.NewString()

	logger.Info().
		Str("version", version).
		Str("run_id", runID).
		Msg("Starting bsec-exporter")

	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Warn().Err(err).Msg("failed to remove PID file")
		}
	}()

	subs, err := cfg.Subscriptions()
	if err != nil {
		return err
	}
	active := engine.Active(subs)

	jrnl, err := journal.NewService(cfg.JournalConfig(), runID)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := jrnl.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close journal")
		}
	}()

	eng, err := engine.Open()
	if err != nil {
		return errFactory.Wrap(errors.ErrEngineSetup, err)
	}
	defer eng.Close()

	if err := engine.Setup(eng, cfg.BSEC.Config, subs); err != nil {
		return errFactory.Wrap(errors.ErrEngineSetup, err)
	}
	logger.Info().
		Str("engine_version", eng.Version()).
		Int("outputs", len(active)).
		Msg("Fusion engine initialized")

	sensCfg, err := cfg.SensorConfig()
	if err != nil {
		return err
	}
	sens, err := sensor.Open(sensCfg)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	defer sens.Close()

	store, err := state.Open(cfg.BSEC.StateFile)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	br := bridge.New(active)

	reg := prometheus.NewRegistry()
	if err := reg.Register(exporter.NewCollector(br, active)); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	rec, err := telemetry.NewPrometheus(reg, cfg.Scheduler.FailureThreshold)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	expCfg := cfg.ExporterConfig()
	srv := exporter.NewServer(expCfg, exporter.NewRouter(expCfg, reg, br, version))
	if err := srv.Listen(); err != nil {
		return err
	}

	sched := scheduler.New(cfg.SchedulerConfig(), eng, sens, store, br,
		scheduler.WithClassifier(cfg.Classifier()),
		scheduler.WithRecorder(rec),
		scheduler.WithJournal(jrnl),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := jrnl.Record(ctx, journal.Event{
		Time:   time.Now(),
		Kind:   journal.EventStartup,
		Detail: version,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to record startup")
	}

	return serve(ctx, sched, srv)
}

// serve runs the sampling loop and the HTTP servers until a signal arrives or
// either of them fails. The servers stay up while the loop flushes its state.
func serve(ctx context.Context, sched *scheduler.Scheduler, srv *exporter.Server) error {
	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	srvCtx, cancelSrv := context.WithCancel(context.Background())
	defer cancelSrv()

	loopErr := make(chan error, 1)
	go func() { loopErr <- sched.Run(loopCtx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(srvCtx) }()

	select {
	case err := <-loopErr:
		cancelSrv()
		if sErr := <-serveErr; sErr != nil {
			logError(sErr, "HTTP server stopped with an error")
		}
		return err

	case err := <-serveErr:
		logger.Warn().Msg("HTTP server stopped, stopping sampling loop")
		cancelLoop()
		if lErr := <-loopErr; lErr != nil {
			logError(lErr, "sampling loop stopped with an error")
		}
		if err == nil {
			err = errors.New().WithMessage(errors.ErrServeHTTP, "HTTP server stopped unexpectedly")
		}
		return err
	}
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
