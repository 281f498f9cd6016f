package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/hfanalytics/internal/config"
	"github.com/ehr/hfanalytics/internal/platform/auth"
	"github.com/ehr/hfanalytics/internal/platform/db"
	"github.com/ehr/hfanalytics/internal/platform/source"
	"github.com/ehr/hfanalytics/internal/platform/synth"
)

func synthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic dataset for demos and smoke tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			patients, _ := cmd.Flags().GetInt("patients")
			seed, _ := cmd.Flags().GetUint32("seed")
			format, _ := cmd.Flags().GetString("format")
			if out == "" {
				return fmt.Errorf("--out is required")
			}

			snap, err := synth.Generate(synth.Options{Patients: patients, Seed: seed})
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case source.KindXLSX:
				err = source.WriteXLSX(out, snap)
			case source.KindCSV:
				err = source.WriteCSVDir(out, snap)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d patients to %s (%s)\n", snap.Demography.Len(), out, snap.Identity)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Output workbook path or CSV directory")
	cmd.Flags().Int("patients", 500, "Number of patients")
	cmd.Flags().Uint32("seed", 1, "Generator seed; 0 picks a random one")
	cmd.Flags().String("format", source.KindXLSX, "Output format: xlsx or csv")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a workbook or CSV directory into Postgres for the postgres source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			from, _ := cmd.Flags().GetString("from")
			if from == "" {
				from = cfg.DatasetPath
			}
			schema, _ := cmd.Flags().GetString("schema")
			if schema == "" {
				schema = cfg.DatasetSchema
			}

			loader, err := source.Open(source.Config{Path: from})
			if err != nil {
				return err
			}

			ctx := context.Background()
			snap, err := loader.Load(ctx)
			if err != nil {
				return err
			}

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, db.ApplicationName("hf-import"))
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Importing %s into schema: %s\n", snap.Identity, schema)
			done, err := db.NewImporter(pool).Import(ctx, schema, snap)
			for _, s := range done {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-28s %6d rows\n", s.Sheet, s.Rows)
			}
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sheet(s). Serve them with DATASET_SOURCE=postgres DATASET_SCHEMA=%s\n", len(done), schema)
			return nil
		},
	}
	cmd.Flags().String("from", "", "Workbook or CSV directory; defaults to DATASET_PATH")
	cmd.Flags().String("schema", "", "Target schema; defaults to DATASET_SCHEMA")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past imports into a schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			schema, _ := cmd.Flags().GetString("schema")
			if schema == "" {
				schema = cfg.DatasetSchema
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, db.ApplicationName("hf-import"))
			if err != nil {
				return err
			}
			defer pool.Close()

			history, err := db.NewImporter(pool).History(ctx, schema)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IMPORTED AT\tSHEET\tROWS\tIDENTITY")
			for _, s := range history {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ImportedAt.Format(time.RFC3339), s.Sheet, s.Rows, s.Identity)
			}
			return tw.Flush()
		},
	}
	historyCmd.Flags().String("schema", "", "Schema to inspect; defaults to DATASET_SCHEMA")
	cmd.AddCommand(historyCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			roles, _ := cmd.Flags().GetStringSlice("role")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			token, err := jwtConfig(cfg).Issue(subject, roles, ttl)
			if err != nil {
				if err == auth.ErrNoSigningKey {
					fmt.Fprintln(os.Stderr, "set AUTH_SIGNING_KEY to issue tokens")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringSlice("role", []string{"analyst"}, "Roles to embed")
	return cmd
}
