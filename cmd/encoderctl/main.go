package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/encoderctl/internal/buffer"
	"codeberg.org/mutker/encoderctl/internal/config"
	"codeberg.org/mutker/encoderctl/internal/dashboard"
	"codeberg.org/mutker/encoderctl/internal/ingest"
	"codeberg.org/mutker/encoderctl/internal/logger"
	"codeberg.org/mutker/encoderctl/internal/pid"
	"codeberg.org/mutker/encoderctl/internal/recorder"
	"codeberg.org/mutker/encoderctl/internal/serialport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	sampleLog := buffer.NewLog()
	compositeLog := buffer.NewCompositeLog()
	coord := ingest.NewCoordinator(ingest.Grammar(cfg.Grammar), sampleLog, compositeLog)

	if cfg.Recorder {
		rec, err := recorder.New(recorder.DefaultConfig(cfg.Database))
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close session recorder")
			}
		}()

		coord.SetSampleHook(func(s buffer.Sample) {
			if err := rec.Record(s); err != nil {
				logger.Error().Err(err).Msg("failed to record sample")
			}
		})
	}

	link := serialport.NewSupervisor(serialport.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Millisecond,
		RetryBackoff: time.Duration(cfg.RetryBackoff) * time.Millisecond,
	})
	if err := link.Start(cfg.Port, cfg.Baud, coord.HandleLine); err != nil {
		return err
	}
	defer link.Stop()

	// Capture starts immediately; the dashboard can pause it.
	coord.Start()

	server := dashboard.New(dashboard.Config{
		Listen:      cfg.Listen,
		Refresh:     time.Duration(cfg.Refresh) * time.Millisecond,
		PlotPoints:  cfg.PlotPoints,
		ExportRows:  cfg.ExportRows,
		ZeroCommand: cfg.ZeroCommand,
	}, sampleLog, compositeLog, coord, link)

	return server.Run(ctx)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
