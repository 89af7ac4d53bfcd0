package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hlop3z/tilehouse/internal/cli"
	"github.com/hlop3z/tilehouse/internal/config"
	"github.com/hlop3z/tilehouse/pkg/tilehouse"
)

// scanTimeout bounds the sources command's database work.
const scanTimeout = 2 * time.Minute

// sourcesCmd scans the database and prints the discovered catalogs.
func sourcesCmd() *cobra.Command {
	var (
		jsonOutput bool
		saveConfig string
	)

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Scan the database and list table and function sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.ConnectionString == "" {
				return tilehouse.ErrMissingDatabaseURL
			}

			logger, err := newLogger(cfg.LogLevel, os.Stderr)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
			defer cancel()

			client, err := tilehouse.New(ctx,
				tilehouse.WithDatabaseURL(cfg.ConnectionString),
				tilehouse.WithPoolSize(1),
				tilehouse.WithLogger(logger),
				tilehouse.WithScanOnly(),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			tables, functions, err := client.Scan(ctx)
			if err != nil {
				return err
			}

			if saveConfig != "" {
				cfg.SetSources(tables, functions)
				if err := config.Save(saveConfig, cfg); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "%s wrote %s\n", cli.Success("saved"), saveConfig)
			}

			out := cli.Default()
			if jsonOutput {
				out = cli.NewConfigWithMode(cli.ModeJSON)
			}
			return cli.WriteSources(os.Stdout, out, tables, functions)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the catalogs as JSON")
	cmd.Flags().StringVar(&saveConfig, "save-config", "", "Write a config file listing the scanned sources")
	return cmd
}
