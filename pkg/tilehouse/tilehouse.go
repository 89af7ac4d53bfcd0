// Package tilehouse is the public API of the tile server: it connects to
// PostGIS, builds the source catalogs and serves vector tiles over HTTP.
package tilehouse

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hlop3z/tilehouse/internal/config"
	"github.com/hlop3z/tilehouse/internal/coordinator"
	"github.com/hlop3z/tilehouse/internal/executor"
	"github.com/hlop3z/tilehouse/internal/pgpool"
	"github.com/hlop3z/tilehouse/internal/registry"
	"github.com/hlop3z/tilehouse/internal/server"
	"github.com/hlop3z/tilehouse/internal/source"
)

// Client runs one tile server.
//
// Example:
//
//	client, err := tilehouse.New(ctx,
//	    tilehouse.WithDatabaseURL("postgres://localhost/gis"),
//	    tilehouse.WithLanes(4),
//	    tilehouse.WithWatch(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	log.Fatal(client.Serve(ctx, "0.0.0.0:3000", 75*time.Second))
type Client struct {
	config *Config
	logger *slog.Logger

	pool  *pgpool.Pool
	exec  *executor.Executor
	lanes []*registry.Registry
	coord *coordinator.Coordinator
	srv   *server.Server

	closeOnce sync.Once
}

// New connects to the database and, unless WithScanOnly was given, loads
// the catalogs into every lane.
//
// Catalogs come from WithStaticSources when set; otherwise the database is
// scanned once. In watch mode (or with a config watch) every lane is
// registered with a coordinator so later scans reach all of them.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &Config{
		PoolSize:       pgpool.DefaultSize,
		AcquireTimeout: 30 * time.Second,
		Lanes:          1,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Lanes < 1 {
		cfg.Lanes = 1
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		logger: cfg.Logger,
		pool:   pool,
		exec:   executor.New(pool, cfg.Logger),
	}
	if cfg.ScanOnly {
		return c, nil
	}

	if err := c.start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func openPool(ctx context.Context, cfg *Config) (*pgpool.Pool, error) {
	poolOpts := []pgpool.Option{
		pgpool.WithSize(cfg.PoolSize),
		pgpool.WithAcquireTimeout(cfg.AcquireTimeout),
		pgpool.WithLogger(cfg.Logger),
	}

	if cfg.db != nil {
		return pgpool.New(cfg.db, poolOpts...), nil
	}
	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}

	pool, err := pgpool.Open(ctx, cfg.DatabaseURL, poolOpts...)
	if err != nil {
		return nil, &ConnectionError{URL: redactURL(cfg.DatabaseURL), Cause: err}
	}
	return pool, nil
}

func (c *Client) start(ctx context.Context) error {
	tables, functions, err := c.initialCatalogs(ctx)
	if err != nil {
		return err
	}

	c.lanes = make([]*registry.Registry, c.config.Lanes)
	for i := range c.lanes {
		c.lanes[i] = registry.New(
			registry.WithTables(tables),
			registry.WithFunctions(functions),
			registry.WithLogger(c.logger),
		)
	}

	if c.config.Watch || c.config.ConfigPath != "" {
		c.coord = coordinator.New(c.logger)
		for _, lane := range c.lanes {
			if err := c.coord.Register(lane); err != nil {
				return err
			}
		}
	}

	srvCfg := server.Config{
		Executor: c.exec,
		Lanes:    c.lanes,
		Watch:    c.config.Watch,
		Auth:     c.config.Auth,
		Logger:   c.logger,
	}
	if c.coord != nil {
		srvCfg.Publisher = c.coord
	}
	c.srv, err = server.New(srvCfg)
	if err != nil {
		return err
	}

	c.logger.Info("catalogs loaded",
		"tables", tables.Len(),
		"functions", functions.Len(),
		"lanes", len(c.lanes),
		"watch", c.config.Watch,
	)
	return nil
}

func (c *Client) initialCatalogs(ctx context.Context) (*source.Catalog, *source.Catalog, error) {
	if c.config.Tables != nil || c.config.Functions != nil {
		tables, functions := c.config.Tables, c.config.Functions
		if tables == nil {
			tables = source.EmptyCatalog(source.KindTable)
		}
		if functions == nil {
			functions = source.EmptyCatalog(source.KindFunction)
		}
		return tables, functions, nil
	}
	return c.Scan(ctx)
}

// Scan reads both catalogs from the database.
func (c *Client) Scan(ctx context.Context) (tables, functions *source.Catalog, err error) {
	tables, err = c.exec.ScanTableSources(ctx)
	if err != nil {
		return nil, nil, err
	}
	functions, err = c.exec.ScanFunctionSources(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tables, functions, nil
}

// Rescan scans the database and broadcasts both catalogs to every lane.
func (c *Client) Rescan(ctx context.Context) error {
	if c.coord == nil {
		return ErrNotWatching
	}
	tables, functions, err := c.Scan(ctx)
	if err != nil {
		return err
	}
	if _, err := c.coord.PublishTables(tables); err != nil {
		return err
	}
	_, err = c.coord.PublishFunctions(functions)
	return err
}

// Reload broadcasts the static catalogs of cfg to every lane. It is a no-op
// in watch mode, where the database is the source of truth.
func (c *Client) Reload(cfg *config.Config) error {
	if c.coord == nil {
		return ErrNotWatching
	}
	if c.config.Watch {
		c.logger.Info("config changed; sources come from the database in watch mode")
		return nil
	}

	tables, err := cfg.StaticTables()
	if err != nil {
		return err
	}
	functions, err := cfg.StaticFunctions()
	if err != nil {
		return err
	}
	if _, err := c.coord.PublishTables(tables); err != nil {
		return err
	}
	if _, err := c.coord.PublishFunctions(functions); err != nil {
		return err
	}
	c.logger.Info("static sources reloaded", "tables", tables.Len(), "functions", functions.Len())
	return nil
}

// Handler returns the HTTP handler, or nil for a scan-only client.
func (c *Client) Handler() http.Handler {
	if c.srv == nil {
		return nil
	}
	return c.srv.Handler()
}

// Lanes returns the number of request lanes.
func (c *Client) Lanes() int { return len(c.lanes) }

// Serve listens on addr until ctx ends. It also runs the scheduled rescan
// and the config watch when they are configured.
func (c *Client) Serve(ctx context.Context, addr string, keepAlive time.Duration) error {
	if c.srv == nil {
		return ErrScanOnly
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if spec := c.config.RescanSchedule; spec != "" {
		stop, err := c.scheduleRescan(ctx, spec)
		if err != nil {
			return err
		}
		defer stop()
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	if path := c.config.ConfigPath; path != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, path, c.logger, func(cfg *config.Config) {
				if err := c.Reload(cfg); err != nil {
					c.logger.Error("config reload not applied", "error", err)
				}
			})
			if err != nil {
				c.logger.Error("config watch stopped", "error", err)
			}
		}()
	}

	return c.srv.ListenAndServe(ctx, addr, keepAlive)
}

// scheduleRescan starts a cron job that calls Rescan. The returned func
// stops the job and waits for a running rescan to finish.
func (c *Client) scheduleRescan(ctx context.Context, spec string) (func(), error) {
	if !c.config.Watch {
		return nil, errors.New("tilehouse: rescan schedule requires watch mode")
	}

	sched := cron.New()
	_, err := sched.AddFunc(spec, func() {
		if err := c.Rescan(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("scheduled rescan failed", "error", err)
			return
		}
		c.logger.Debug("scheduled rescan done")
	})
	if err != nil {
		return nil, err
	}

	sched.Start()
	c.logger.Info("scheduled rescans", "schedule", spec)
	return func() { <-sched.Stop().Done() }, nil
}

// Close stops the coordinator, closes every lane, stops the executor
// workers and closes the pool.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.coord != nil {
			c.coord.Close()
		}
		for _, lane := range c.lanes {
			lane.Close()
		}
		c.exec.Close()
		err = c.pool.Close()
	})
	return err
}
