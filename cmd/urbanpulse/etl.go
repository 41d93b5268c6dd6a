package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/urban-pulse-etl/internal/pipeline"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run extract, load and transform once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireWeatherKey(); err != nil {
				return err
			}
			return a.cycle(cmd.Context())
		},
	}
}

func newExtractCommand(opts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Fetch weather, read the sensor and score sentiment without storing",
		Long: `Extract writes the raw rows as JSON so that a later "load --in" can
store them from a separate process.

Example:
  urbanpulse extract --out staged.json
  urbanpulse load --in staged.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireWeatherKey(); err != nil {
				return err
			}

			ext, err := a.pipeline.Extract(cmd.Context())
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			data, err := json.MarshalIndent(ext, "", "  ")
			if err != nil {
				return fmt.Errorf("encode extraction: %w", err)
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			a.logger.Info("extraction staged", "path", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "-", "file to write the staged extraction to (- for stdout)")
	return cmd
}

func newLoadCommand(opts *rootOptions) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Store a staged extraction in the raw tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}
			var ext pipeline.Extraction
			if err := json.Unmarshal(data, &ext); err != nil {
				return fmt.Errorf("decode %s: %w", in, err)
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.pipeline.Load(cmd.Context(), ext)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d weather, %d sensor, %d social rows\n", stats.Weather, stats.Sensor, stats.Social)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "staged extraction file written by extract (required)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newTransformCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transform",
		Short: "Recompute the urban_stress table from the raw tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			samples, err := a.pipeline.Transform(cmd.Context())
			if err != nil {
				return fmt.Errorf("transform: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d urban stress samples\n", len(samples))
			return nil
		},
	}
}

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline now and then on every schedule.interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireWeatherKey(); err != nil {
				return err
			}
			return a.runner.Schedule(cmd.Context(), a.cfg.Schedule.Interval, a.cycle)
		},
	}
}
