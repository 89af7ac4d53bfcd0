package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hlop3z/tilehouse/internal/auth"
	"github.com/hlop3z/tilehouse/internal/config"
	"github.com/hlop3z/tilehouse/pkg/tilehouse"
)

// serveFlags mirrors the config keys a flag can override.
type serveFlags struct {
	listen       string
	poolSize     int
	workers      int
	keepAlive    int
	watch        bool
	watchConfig  bool
	rescan       string
	jwt          bool
	jwtSecret    string
	jwtAlgorithm string
	jwtCheckExp  bool
	logLevel     string
}

func addServeFlags(fs *pflag.FlagSet, f *serveFlags) {
	fs.StringVar(&f.listen, "listen", config.DefaultListenAddresses, "Address to listen on")
	fs.IntVar(&f.poolSize, "pool-size", config.DefaultPoolSize, "Number of database connections")
	fs.IntVar(&f.workers, "workers", 0, "Number of request lanes (default: number of CPUs)")
	fs.IntVar(&f.keepAlive, "keep-alive", config.DefaultKeepAlive, "Idle keep-alive timeout in seconds")
	fs.BoolVar(&f.watch, "watch", false, "Rescan the database on every index request")
	fs.BoolVar(&f.watchConfig, "watch-config", false, "Reload static sources when the config file changes")
	fs.StringVar(&f.rescan, "rescan", "", `Cron schedule for background rescans in watch mode (e.g. "@every 5m")`)
	fs.BoolVar(&f.jwt, "jwt", false, "Require a JWT bearer token")
	fs.StringVar(&f.jwtSecret, "jwt-secret", "", "HMAC secret for JWT validation")
	fs.StringVar(&f.jwtAlgorithm, "jwt-algorithm", "", "Only accept this JWT algorithm (HS256, HS384, HS512)")
	fs.BoolVar(&f.jwtCheckExp, "jwt-check-exp", false, "Require the JWT exp claim")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
}

// apply copies every flag the user set onto cfg.
func (f *serveFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("listen") {
		cfg.ListenAddresses = f.listen
	}
	if fs.Changed("pool-size") {
		cfg.PoolSize = f.poolSize
	}
	if fs.Changed("workers") {
		cfg.WorkerProcesses = f.workers
	}
	if fs.Changed("keep-alive") {
		cfg.KeepAlive = f.keepAlive
	}
	if fs.Changed("watch") {
		cfg.Watch = f.watch
	}
	if fs.Changed("rescan") {
		cfg.RescanSchedule = f.rescan
	}
	if fs.Changed("jwt") {
		cfg.JWT.Enabled = f.jwt
	}
	if fs.Changed("jwt-secret") {
		cfg.JWT.Secret = f.jwtSecret
	}
	if fs.Changed("jwt-algorithm") {
		cfg.JWT.Algorithm = f.jwtAlgorithm
	}
	if fs.Changed("jwt-check-exp") {
		cfg.JWT.CheckExp = f.jwtCheckExp
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve vector tiles over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &flags)
		},
	}
	addServeFlags(cmd.Flags(), &flags)
	return cmd
}

func runServe(cmd *cobra.Command, flags *serveFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	opts, err := clientOptions(cfg, flags.watchConfig)
	if err != nil {
		return err
	}
	opts = append(opts, tilehouse.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := tilehouse.New(ctx, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Serve(ctx, cfg.ListenAddresses, cfg.KeepAliveDuration())
}

// clientOptions translates a validated config into client options.
func clientOptions(cfg *config.Config, watchConfig bool) ([]tilehouse.Option, error) {
	timeout, err := cfg.AcquireTimeoutDuration()
	if err != nil {
		return nil, err
	}

	opts := []tilehouse.Option{
		tilehouse.WithDatabaseURL(cfg.ConnectionString),
		tilehouse.WithPoolSize(cfg.PoolSize),
		tilehouse.WithAcquireTimeout(timeout),
		tilehouse.WithLanes(cfg.WorkerProcesses),
	}

	if cfg.Watch {
		opts = append(opts, tilehouse.WithWatch())
		if cfg.RescanSchedule != "" {
			opts = append(opts, tilehouse.WithRescanSchedule(cfg.RescanSchedule))
		}
	}

	if cfg.HasStaticSources() {
		tables, err := cfg.StaticTables()
		if err != nil {
			return nil, err
		}
		functions, err := cfg.StaticFunctions()
		if err != nil {
			return nil, err
		}
		opts = append(opts, tilehouse.WithStaticSources(tables, functions))
	}

	if watchConfig {
		opts = append(opts, tilehouse.WithConfigWatch(configFile))
	}

	if cfg.JWT.Enabled {
		authn, err := auth.NewJWT(auth.JWTConfig{
			Secret:    cfg.JWT.Secret,
			Algorithm: cfg.JWT.Algorithm,
			CheckExp:  cfg.JWT.CheckExp,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, tilehouse.WithAuth(authn))
	}

	return opts, nil
}

// loadConfig reads the config file and applies the global --database-url.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if databaseURL != "" {
		cfg.ConnectionString = databaseURL
	}
	return cfg, nil
}
