package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bess-analytics/internal/analytics"
	"bess-analytics/internal/app"
	"bess-analytics/internal/config"
	"bess-analytics/internal/logging"
	"bess-analytics/internal/storage"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bess-analytics",
		Short: "Battery energy storage analytics: telemetry processing, health metrics and anomaly detection",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the analytics HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			application, err := app.New(cfg, logger)
			if err != nil {
				logger.Error("failed to init application", zap.Error(err))
				return err
			}
			defer application.Close()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("application stopped with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var (
		nominalCapacity float64
		nominalVoltage  float64
		contamination   float64
		resampleFreq    time.Duration
		skipClean       bool
		skipFeatures    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <telemetry.csv>",
		Short: "Run the pipeline, metrics and anomaly detection over a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := storage.ReadFrameFile(args[0])
			if err != nil {
				return err
			}

			processor := analytics.NewProcessor()
			processed, err := processor.ProcessPipeline(frame, analytics.PipelineOptions{
				Clean:        !skipClean,
				AddFeatures:  !skipFeatures,
				ResampleFreq: resampleFreq,
			})
			if err != nil {
				return err
			}

			calculator := analytics.NewMetricsCalculator(nominalCapacity, nominalVoltage)
			snapshot := calculator.ComprehensiveMetrics(processed)

			detector, err := analytics.NewDetector(contamination)
			if err != nil {
				return err
			}
			annotated, err := detector.DetectAll(processed, nil)
			if err != nil {
				return err
			}

			out := map[string]any{
				"records_processed": processed.Len(),
				"validation":        processor.Validate(frame),
				"metrics":           snapshot,
				"anomaly_summary":   analytics.Summarize(annotated),
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}

	cmd.Flags().Float64Var(&nominalCapacity, "nominal-capacity", analytics.DefaultNominalCapacity, "Nominal battery capacity in kWh")
	cmd.Flags().Float64Var(&nominalVoltage, "nominal-voltage", analytics.DefaultNominalVoltage, "Nominal battery voltage in V")
	cmd.Flags().Float64Var(&contamination, "contamination", analytics.DefaultContamination, "Expected outlier fraction in [0, 0.5]")
	cmd.Flags().DurationVar(&resampleFreq, "resample", 0, "Optional resampling frequency, e.g. 1m")
	cmd.Flags().BoolVar(&skipClean, "skip-clean", false, "Skip the cleaning stage")
	cmd.Flags().BoolVar(&skipFeatures, "skip-features", false, "Skip derived feature computation")
	return cmd
}
