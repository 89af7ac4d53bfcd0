// Package main is the tilehouse command: a PostGIS vector tile server.
//
// Usage:
//
//	tilehouse                     # same as `tilehouse serve`
//	tilehouse serve --watch       # serve tiles, rescanning on every index request
//	tilehouse sources --json      # scan the database and print the catalogs
//	tilehouse sources --save-config tilehouse.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hlop3z/tilehouse/internal/cli"
	"github.com/hlop3z/tilehouse/internal/config"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

// Global flags
var (
	databaseURL string
	configFile  string
)

func rootCmd() *cobra.Command {
	var flags serveFlags

	root := &cobra.Command{
		Use:   "tilehouse",
		Short: "PostGIS vector tile server",
		Long: `tilehouse serves Mapbox Vector Tiles straight from PostGIS tables and
SQL functions. Without a subcommand it runs "serve".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &flags)
		},
	}

	root.PersistentFlags().StringVarP(&databaseURL, "database-url", "d", "", "Database connection URL (overrides DATABASE_URL)")
	root.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultFile, "Path to config file (.yaml or .toml)")
	addServeFlags(root.Flags(), &flags)

	root.AddCommand(serveCmd(), sourcesCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprint(os.Stderr, cli.FormatError(err))
		os.Exit(1)
	}
}
