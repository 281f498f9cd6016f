package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hfanalytics/internal/config"
	"github.com/ehr/hfanalytics/internal/domain/aggregate"
	"github.com/ehr/hfanalytics/internal/domain/cohort"
	"github.com/ehr/hfanalytics/internal/domain/dashboard"
	"github.com/ehr/hfanalytics/internal/platform/source"
)

// datasetFlags are shared by the commands that read a dataset outside the
// server. Unset flags fall back to the environment.
func datasetFlags(cmd *cobra.Command) {
	cmd.Flags().String("dataset", "", "Dataset path (workbook or CSV directory); defaults to DATASET_PATH")
	cmd.Flags().String("source", "", "Dataset source: xlsx, csv or postgres; defaults to DATASET_SOURCE")
}

// cliConfig loads configuration for an offline command. Server-only settings
// such as the signing key are not validated.
func cliConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("dataset"); path != "" {
		cfg.DatasetPath = path
	}
	if kind, _ := cmd.Flags().GetString("source"); kind != "" {
		cfg.DatasetSource = strings.ToLower(kind)
	}
	if cfg.UsesPostgres() && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres source")
	}
	return cfg, nil
}

// offlineService opens the dataset named by cfg and wraps it in a dashboard
// service. The returned func releases the database pool, if any.
func offlineService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*dashboard.Service, *source.Cache, func(), error) {
	loader, pool, err := openLoader(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closer := func() {
		if pool != nil {
			pool.Close()
		}
	}
	snapshots := source.NewCache(loader, logger, nil)
	svc, err := dashboard.NewService(snapshots, dashboard.ServiceConfig{}, logger)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	return svc, snapshots, closer, nil
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute dashboard panels for a cohort and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliConfig(cmd)
			if err != nil {
				return err
			}
			criteria, err := criteriaFromFlags(cmd)
			if err != nil {
				return err
			}
			panels, _ := cmd.Flags().GetStringSlice("tab")
			format, _ := cmd.Flags().GetString("format")
			if format != "json" && format != "text" {
				return fmt.Errorf("unknown format %q", format)
			}

			logger := newLogger(cfg, os.Stderr)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, _, closer, err := offlineService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closer()

			d, err := svc.Dashboard(ctx, criteria, panels...)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			return renderText(cmd.OutOrStdout(), d)
		},
	}
	datasetFlags(cmd)
	cmd.Flags().String("age-min", "", "Lower age bound, inclusive")
	cmd.Flags().String("age-max", "", "Upper age bound, inclusive")
	cmd.Flags().StringSlice("gender", nil, "Genders to keep; pass an empty value to select none")
	cmd.Flags().StringSlice("ward", nil, "Admission wards to keep; pass an empty value to select none")
	cmd.Flags().StringSlice("tab", nil, "Panels to compute: "+strings.Join(dashboard.PanelIDs, ", "))
	cmd.Flags().String("format", "text", "Output format: text or json")
	return cmd
}

// criteriaFromFlags maps the filter flags onto the query parameters the API
// accepts, so both share one parser. A selection flag that was given counts
// as present even when empty.
func criteriaFromFlags(cmd *cobra.Command) (cohort.Criteria, error) {
	q := url.Values{}
	for _, name := range []string{"age-min", "age-max"} {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			q.Set(strings.Replace(name, "-", "_", 1), v)
		}
	}
	for _, name := range []string{"gender", "ward"} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		values, _ := cmd.Flags().GetStringSlice(name)
		q[name] = append([]string{}, values...)
	}
	return dashboard.CriteriaFromQuery(q)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderText prints one line per view.
func renderText(w io.Writer, d *dashboard.Dashboard) error {
	fmt.Fprintf(w, "dataset:  %s\n", d.Identity)
	fmt.Fprintf(w, "criteria: %s\n", d.Criteria)
	fmt.Fprintf(w, "cohort:   %d of %d patients\n", d.CohortSize, d.Total)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range d.Panels {
		fmt.Fprintf(tw, "\n[%s] %s\n", p.ID, p.Title)
		for _, v := range p.Views {
			title := v.Title
			if v.Source == dashboard.SourcePublished {
				title += " (published)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", v.ID, title, summarize(v))
		}
	}
	return tw.Flush()
}

// summarize renders a view's data on one line. Structured data is named by
// kind only; use --format json for the full figures.
func summarize(v dashboard.View) string {
	if !v.Available {
		if v.Error != "" {
			return "error: " + v.Error
		}
		return "unavailable, missing " + strings.Join(v.Missing, ", ")
	}
	switch data := v.Data.(type) {
	case aggregate.Proportion:
		return fmt.Sprintf("%d/%d (%.1f%%)", data.Count, data.Total, data.Percent)
	case aggregate.Stat:
		if data.Value == nil {
			return fmt.Sprintf("n/a (n=%d)", data.N)
		}
		return fmt.Sprintf("%s (n=%d)", strconv.FormatFloat(*data.Value, 'f', 2, 64), data.N)
	case string:
		if data == "" {
			return "n/a"
		}
		return data
	case []aggregate.CategoryCount:
		parts := make([]string, 0, 3)
		for i, cc := range data {
			if i == 3 {
				parts = append(parts, "...")
				break
			}
			parts = append(parts, fmt.Sprintf("%s %d", cc.Label, cc.Count))
		}
		return strings.Join(parts, ", ")
	default:
		return "(" + string(v.Kind) + ")"
	}
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load the dataset and print its relations and filter options",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, snapshots, closer, err := offlineService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closer()

			snap, err := snapshots.Snapshot(ctx)
			if err != nil {
				return err
			}
			opts, err := svc.Options(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dataset: %s\n\n", snap.Identity)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RELATION\tROWS\tCOLUMNS")
			for _, rs := range snap.Summary() {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", rs.Name, rs.Rows, len(rs.Columns))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			if opts.AgeMin != nil && opts.AgeMax != nil {
				fmt.Fprintf(out, "ages:    %d-%d\n", *opts.AgeMin, *opts.AgeMax)
			}
			fmt.Fprintf(out, "genders: %s\n", strings.Join(opts.Genders, ", "))
			fmt.Fprintf(out, "wards:   %s\n", strings.Join(opts.Wards, ", "))
			return nil
		},
	}
	datasetFlags(cmd)
	return cmd
}
