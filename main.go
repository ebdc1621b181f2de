package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/imcf/nvsmi-prometheus-textfile/buildinfo"
	"github.com/imcf/nvsmi-prometheus-textfile/collector"
	"github.com/imcf/nvsmi-prometheus-textfile/config"
	"github.com/imcf/nvsmi-prometheus-textfile/smi"
)

var (
	configFile  = flag.String("config.file", "", "Path to configuration file. Defaults apply when unset.")
	outputPath  = flag.String("output.path", "", "Write metrics to this file instead of standard output.")
	logLevel    = flag.String("loglevel", "", "Override the configured log level (debug, info, warn, error).")
	showVersion = flag.Bool("version", false, "Print version information and exit.")
)

// Parse the log level from input
func parseLogLevel(level string) slog.Level {
	ret := slog.LevelInfo
	switch level {
	case "debug":
		ret = slog.LevelDebug
	case "info":
		ret = slog.LevelInfo
	case "warn":
		ret = slog.LevelWarn
	case "error":
		ret = slog.LevelError
	default:
		slog.Warn("Invalid loglevel provided. Fallback to default")
	}

	return ret
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.VersionString())
		return
	}

	// load config when given, otherwise run on defaults
	cfg := config.DefaultConfig
	if *configFile != "" {
		loaded, err := config.NewConfigFromFile(*configFile)
		if err != nil {
			slog.Error("Error parsing config file", slog.Any("error", err))
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *outputPath != "" {
		cfg.Output.Path = *outputPath
	}
	if *logLevel != "" {
		cfg.Loglevel = *logLevel
	}

	// stdout carries the metrics blob, so all logging goes to stderr
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.AppLogLevel()),
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	slog.Info("Starting nvsmi-prometheus-textfile", slog.String("version", buildinfo.VersionString()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.Error("collection failed, no output written", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// run performs one complete pass: query nvidia-smi, normalize and
// format every device row, append the collector's own telemetry and
// emit the blob. Any error means nothing at all was written.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	start := time.Now()

	registry := collector.DefaultRegistry()
	runner := smi.NewRunner(cfg.SMI.Command, time.Duration(cfg.SMI.Timeout), logger)

	rows, err := runner.Query(ctx, registry.QueryFields())
	if err != nil {
		return err
	}

	coll, devices, err := collector.NewCollector(registry, logger).Collect(rows)
	if err != nil {
		return err
	}

	if err := addSelfTelemetry(coll, devices, time.Since(start)); err != nil {
		return err
	}

	logger.Info("collection pass finished",
		slog.Int("devices", devices),
		slog.Int("metrics", len(coll.Names())),
		slog.Int("samples", coll.SampleCount()),
		slog.Duration("duration", time.Since(start)))

	return writeOutput(coll, cfg.Output.Path, logger)
}

func addSelfTelemetry(coll *collector.Collection, devices int, elapsed time.Duration) error {
	if err := coll.AddGauge("nvsmi_textfile_scrape_duration_seconds",
		"wall time of the nvidia-smi query and formatting pass", nil, elapsed.Seconds()); err != nil {
		return err
	}
	if err := coll.AddGauge("nvsmi_textfile_device_count",
		"device rows rendered in the last pass", nil, float64(devices)); err != nil {
		return err
	}
	version, commit, _ := buildinfo.Info()
	return coll.AddGauge("nvsmi_textfile_build_info",
		"constant 1, labeled with the running build",
		collector.LabelSet{{Key: "version", Value: version}, {Key: "commit", Value: commit}}, 1)
}

// writeOutput emits the finished blob in one piece: straight to stdout,
// or into a temp file renamed over the target so the textfile
// collector never reads a half written file.
func writeOutput(coll *collector.Collection, path string, logger *slog.Logger) error {
	var buf bytes.Buffer
	if _, err := coll.WriteTo(&buf); err != nil {
		return err
	}

	if path == "" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	// CreateTemp starts at 0600, the textfile collector runs as its own
	// user and needs to read this
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	logger.Info("metrics written", slog.String("path", path), slog.Int("bytes", buf.Len()))
	return nil
}
