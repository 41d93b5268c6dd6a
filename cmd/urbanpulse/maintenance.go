package main

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/sensor"
	"github.com/couchcryptid/urban-pulse-etl/internal/sentiment"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete raw rows older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("days") {
				days = a.cfg.Database.RetentionDays
			}
			res, err := a.pipeline.Sweep(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d weather, %d sensor, %d social rows older than %d days\n",
				res.Weather, res.Sensor, res.Social, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (defaults to database.retention_days)")
	return cmd
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert hourly synthetic rows for the configured cities without calling any API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rows <= 0 {
				return fmt.Errorf("--rows must be positive, got %d", rows)
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sim := sensor.NewSimulator()
			lex := sentiment.NewLexicon()
			texts := a.cfg.Sentiment.Texts
			if len(texts) == 0 {
				texts = sentiment.SampleTexts
			}
			start := domain.Now().Truncate(time.Hour).Add(-time.Duration(rows-1) * time.Hour)

			for i := range rows {
				at := start.Add(time.Duration(i) * time.Hour)
				for _, city := range a.cfg.Cities {
					if _, err := a.store.InsertWeather(ctx, syntheticWeather(city, at)); err != nil {
						return err
					}
				}
				if _, err := a.store.InsertSensor(ctx, sim.Generate(at)); err != nil {
					return err
				}
				text := texts[i%len(texts)]
				rec := domain.NewSocialRecord(text, lex.Classify(text))
				rec.Timestamp = at
				if _, err := a.store.InsertSocial(ctx, rec); err != nil {
					return err
				}
			}
			a.logger.Info("seed complete", "rows", rows, "cities", len(a.cfg.Cities), "from", start)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d hourly rows per table starting %s\n", rows, start.Format(time.DateTime))
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 48, "number of hourly rows to insert")
	return cmd
}

// syntheticWeather follows a diurnal curve peaking mid-afternoon.
func syntheticWeather(city string, at time.Time) domain.WeatherReading {
	h := float64(at.Hour()) + float64(at.Minute())/60
	phase := 2 * math.Pi * (h - 15) / 24
	return domain.WeatherReading{
		City:        city,
		Temperature: math.Round((18+6*math.Cos(phase))*100) / 100,
		Humidity:    math.Round(60 - 15*math.Cos(phase)),
		Description: "synthetic",
		Timestamp:   at,
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config, open the database and print row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.CheckReadiness(cmd.Context()); err != nil {
				return err
			}
			counts, err := a.store.Counts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %s\n", opts.ConfigPath)
			fmt.Fprintf(out, "database: %s\n", a.cfg.Database.Path)
			fmt.Fprintf(out, "cities: %v\n", a.cfg.Cities)
			fmt.Fprintf(out, "sentiment provider: %s\n", a.cfg.Sentiment.Provider)
			fmt.Fprintf(out, "kafka publishing: %t\n", a.cfg.Kafka.Enabled())
			if a.cfg.API.OpenWeatherMapKey == "" {
				fmt.Fprintln(out, "warning: api.openweathermap_key is not set; run, extract and schedule will refuse to start")
			}

			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			slices.Sort(names)

			table := tablewriter.NewWriter(out)
			table.SetAutoFormatHeaders(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
			table.SetBorder(true)
			table.SetHeader([]string{"Table", "Rows"})
			for _, name := range names {
				table.Append([]string{name, fmt.Sprint(counts[name])})
			}
			table.Render()
			return nil
		},
	}
}
