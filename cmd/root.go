package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harwoodlabs/meterbridge/internal/config"
	"github.com/harwoodlabs/meterbridge/internal/core"
	"github.com/harwoodlabs/meterbridge/internal/exporters"
	meterbridge_io "github.com/harwoodlabs/meterbridge/internal/io"
	"github.com/harwoodlabs/meterbridge/internal/meter"
	"github.com/harwoodlabs/meterbridge/internal/telemetry"
	"github.com/harwoodlabs/meterbridge/internal/transform"
	"github.com/spf13/cobra"
)

var cfgFilePath string

var rootCmd = &cobra.Command{
	Use:   "meterbridge",
	Short: "meterbridge drains an in-process meter registry and ships metric batches to a telemetry backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge(cfgFilePath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFilePath, "config", "c", "meterbridge.yaml", "path to the meterbridge config file")
}

func loadConfig(path string) (config.MeterbridgeConfig, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.GetDefaultConfig(), nil
		}
		return config.MeterbridgeConfig{}, fmt.Errorf("error reading config file: %v", err)
	}

	return config.ReadMeterbridgeConfig(fileBytes)
}

func newBatchSender(cfg *config.MeterbridgeConfig, logDir string) (telemetry.BatchSender, error) {
	switch cfg.Exporter {
	case "datadog":
		return exporters.NewDatadogBatchSender(cfg, logDir)
	case "otlp":
		return exporters.NewOTLPBatchSender(cfg, logDir)
	default:
		return nil, fmt.Errorf("unsupported exporter: %q", cfg.Exporter)
	}
}

func runBridge(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	logger, logFile, err := meterbridge_io.CreateLogger(cfg.LogDirectory, "meterbridge.log")
	if err != nil {
		return fmt.Errorf("error creating logger: %v", err)
	}

	registry := meter.NewRegistry()
	customizer := transform.NewHistogramCustomizer(cfg.Percentiles, core.BaseTimeUnit)
	registry.OnCreation(customizer.Hook())

	sender, err := newBatchSender(&cfg, cfg.LogDirectory)
	if err != nil {
		return err
	}

	client := telemetry.NewTelemetryClient(sender, cfg.AuditMode, logger)
	tracker := transform.NewIntervalTracker(nil)

	opts := core.BridgeOptions{ServiceName: cfg.ServiceName}
	if cfg.BatchSize != nil {
		opts.BatchSize = *cfg.BatchSize
	}
	if cfg.StepSeconds != nil {
		opts.Step = time.Duration(*cfg.StepSeconds) * time.Second
	}

	bridge, err := core.NewBridge(registry, client, tracker, opts, logger)
	if err != nil {
		return err
	}

	if cfg.ProcessMetrics {
		err = core.RegisterProcessMeters(registry, logger)
		if err != nil {
			return fmt.Errorf("error registering process meters: %v", err)
		}
	}

	err = bridge.Start()
	if err != nil {
		return err
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	sig := <-signalChan
	logger.Infof("received %v. flushing final window and shutting down...", sig)

	err = bridge.Close()
	if logFile != nil {
		logFile.Close()
	}
	return err
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
