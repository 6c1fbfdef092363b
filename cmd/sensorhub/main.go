package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"sensorhub/internal/config"
	"sensorhub/internal/hub"
	"sensorhub/internal/replay"
	"sensorhub/internal/report"
	"sensorhub/internal/runner"
)

func main() {
	var (
		configPath  string
		summaryPath string
		jsonReport  bool
	)
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.StringVar(&summaryPath, "log-summary", "", "Print a summary of a recorded sample log and exit")
	flag.BoolVar(&jsonReport, "json", false, "Print the run report as JSON")
	flag.Parse()

	if summaryPath != "" {
		if err := printLogSummary(os.Stdout, summaryPath); err != nil {
			fmt.Fprintf(os.Stderr, "log summary failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, os.Stdout, jsonReport); err != nil {
		logger.Error("sensorhub failed", "err", err)
		os.Exit(1)
	}
}

// run drives one session from cfg until the source is exhausted or ctx
// ends, then writes the report to out.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer, jsonReport bool) error {
	runID := uuid.New()
	v := hub.Version()

	sensors, results, err := buildDescriptors(cfg)
	if err != nil {
		return err
	}
	src, closeSrc, err := buildSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	var rec runner.Recorder
	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path, "run "+runID.String(), "sensorhub "+v.String)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("record close failed", "path", cfg.Record.Path, "err", err)
			}
		}()
		rec = w
	}

	svc, err := runner.New(runner.Config{
		Hub:                cfg.HubConfig(),
		Sensors:            sensors,
		Results:            results,
		Source:             src,
		Recorder:           rec,
		BackgroundInterval: cfg.System.DrainInterval,
		Logger:             logger,
		RunID:              runID,
	})
	if err != nil {
		return err
	}

	logger.Info("sensorhub starting", "version", v.String, "run_id", runID, "source", cfg.Source.Kind, "sensors", len(sensors), "results", len(results))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	select {
	case <-svc.Done():
	case <-ctx.Done():
		logger.Info("sensorhub stopping")
	}
	svc.Close()

	sum := report.Build(svc.Snapshot(), svc.Segments())
	if jsonReport {
		err = sum.WriteJSON(out)
	} else {
		err = sum.WriteText(out)
	}
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return svc.Err()
}
