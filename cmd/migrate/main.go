// cmd/migrate/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"memberportal/internal/config"
	"memberportal/internal/database"
	"memberportal/internal/logging"
	"memberportal/internal/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "One-off schema and source migrations for the member portal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cfgFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if cfg, err = config.Decode(v); err != nil {
				return err
			}
			logging.Init(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the config file")
	root.PersistentFlags().String("database.driver", "", "database driver (mysql, postgres, sqlite)")
	root.PersistentFlags().String("database.dsn", "", "database connection string")
	root.PersistentFlags().String("log.level", "", "log level")

	root.AddCommand(
		newAddColumnsCmd(func() *config.Config { return cfg }),
		newRenameTablesCmd(),
	)
	return root
}

func newAddColumnsCmd(cfg func() *config.Config) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "add-columns",
		Short: "Add the location, video_link and duration columns to the talk table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			db, err := database.Open(cmd.Context(), database.Config{
				Driver: c.Database.Driver,
				DSN:    c.Database.DSN,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := migrate.NewColumnMigrator(db).AddColumns(cmd.Context(), table, migrate.TalkColumns)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "%-12s %s: %v\n", r.Column, r.Outcome, r.Err)
					continue
				}
				fmt.Fprintf(out, "%-12s %s\n", r.Column, r.Outcome)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d columns failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", migrate.DefaultTalkTable, "table to extend")
	return cmd
}

func newRenameTablesCmd() *cobra.Command {
	var (
		root   string
		pairs  []string
		exts   []string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "rename-tables",
		Short: "Rewrite table references in PHP and SQL sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := migrate.ParseMapping(pairs)
			if err != nil {
				return err
			}
			r, err := migrate.NewRenamer(mapping, exts, dryRun)
			if err != nil {
				return err
			}
			report, err := r.Run(cmd.Context(), root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range report.Modified {
				fmt.Fprintf(out, "modified %s\n", path)
			}
			for _, path := range report.Skipped {
				fmt.Fprintf(out, "skipped  %s\n", path)
			}
			fmt.Fprintf(out, "scanned %d files, modified %d, %d replacements",
				report.FilesScanned, report.FilesModified, report.Replacements)
			if dryRun {
				fmt.Fprint(out, " (dry run)")
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "directory to scan")
	cmd.Flags().StringArrayVar(&pairs, "map", nil, "table mapping old=new, repeatable")
	cmd.Flags().StringSliceVar(&exts, "ext", migrate.DefaultExtensions, "file extensions to scan")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing files")
	_ = cmd.MarkFlagRequired("map")
	return cmd
}
