package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/urban-pulse-etl/internal/dashboard"
)

func newDashboardCommand(opts *rootOptions) *cobra.Command {
	var (
		city    string
		maxRows int
		html    string
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the dashboard to the terminal or write it as HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("city") {
				city = a.cfg.Transform.City
			}
			d, err := dashboard.Build(cmd.Context(), a.store, dashboard.Options{City: city, MaxRows: maxRows})
			if err != nil {
				return fmt.Errorf("build dashboard: %w", err)
			}

			if html == "" {
				return dashboard.RenderText(cmd.OutOrStdout(), d)
			}
			f, err := os.Create(html)
			if err != nil {
				return fmt.Errorf("create %s: %w", html, err)
			}
			if err := dashboard.RenderHTML(f, d); err != nil {
				f.Close() //nolint:errcheck
				return fmt.Errorf("render %s: %w", html, err)
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "only show weather for this city (defaults to transform.city)")
	cmd.Flags().IntVar(&maxRows, "rows", 20, "newest rows shown per table; 0 shows all")
	cmd.Flags().StringVar(&html, "html", "", "write an HTML page to this file instead of printing")
	return cmd
}
