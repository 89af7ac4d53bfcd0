// Package config loads tilehouse configuration from YAML or TOML files and
// environment variables.
//
// Precedence: CLI flags > env vars > config file > defaults. Flags are
// applied by the caller after Load.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/validate"
)

// DefaultFile is the config file read when none is given.
const DefaultFile = "tilehouse.yaml"

// Defaults.
const (
	DefaultPoolSize        = 3
	DefaultAcquireTimeout  = "30s"
	DefaultKeepAlive       = 75
	DefaultListenAddresses = "0.0.0.0:3000"
	DefaultLogLevel        = "info"
)

// Config is the tilehouse.yaml (or .toml) file.
type Config struct {
	ConnectionString string `yaml:"connection_string" toml:"connection_string" json:"connection_string"`
	PoolSize         int    `yaml:"pool_size" toml:"pool_size" json:"pool_size"`
	AcquireTimeout   string `yaml:"acquire_timeout" toml:"acquire_timeout" json:"acquire_timeout"`
	KeepAlive        int    `yaml:"keep_alive" toml:"keep_alive" json:"keep_alive"`
	ListenAddresses  string `yaml:"listen_addresses" toml:"listen_addresses" json:"listen_addresses"`
	WorkerProcesses  int    `yaml:"worker_processes" toml:"worker_processes" json:"worker_processes"`
	Watch            bool   `yaml:"watch" toml:"watch" json:"watch"`
	RescanSchedule   string `yaml:"rescan_schedule,omitempty" toml:"rescan_schedule,omitempty" json:"rescan_schedule,omitempty"`
	LogLevel         string `yaml:"log_level" toml:"log_level" json:"log_level"`
	JWT              JWT    `yaml:"jwt" toml:"jwt" json:"jwt"`

	TableSources    map[string]*source.Table    `yaml:"table_sources,omitempty" toml:"table_sources,omitempty" json:"table_sources,omitempty"`
	FunctionSources map[string]*source.Function `yaml:"function_sources,omitempty" toml:"function_sources,omitempty" json:"function_sources,omitempty"`
}

// JWT configures bearer token validation.
type JWT struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Secret    string `yaml:"secret,omitempty" toml:"secret,omitempty" json:"-"`
	Algorithm string `yaml:"algorithm,omitempty" toml:"algorithm,omitempty" json:"algorithm,omitempty"`
	CheckExp  bool   `yaml:"check_exp" toml:"check_exp" json:"check_exp"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		PoolSize:        DefaultPoolSize,
		AcquireTimeout:  DefaultAcquireTimeout,
		KeepAlive:       DefaultKeepAlive,
		ListenAddresses: DefaultListenAddresses,
		WorkerProcesses: runtime.NumCPU(),
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads the file at path over the defaults, then applies environment
// variables. A missing file is not an error; a file that exists but does not
// parse is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := Unmarshal(path, data, cfg); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, alerr.Wrap(alerr.ErrConfig, err, "failed to read config file").With("path", path)
		}
	}

	cfg.ConnectionString = expandEnvVars(cfg.ConnectionString)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// Unmarshal decodes data into cfg. The format follows the file extension:
// .toml is TOML, anything else YAML.
func Unmarshal(path string, data []byte, cfg *Config) error {
	var err error
	if isTOML(path) {
		_, err = toml.Decode(string(data), cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return alerr.Wrap(alerr.ErrConfig, err, "failed to parse config file").With("path", path)
	}
	return nil
}

// Save writes cfg to path as TOML or YAML, following the extension.
func Save(path string, cfg *Config) error {
	var data []byte
	if isTOML(path) {
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
			return alerr.Wrap(alerr.ErrConfig, err, "failed to encode config").With("path", path)
		}
		data = []byte(b.String())
	} else {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return alerr.Wrap(alerr.ErrConfig, err, "failed to encode config").With("path", path)
		}
		data = out
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return alerr.Wrap(alerr.ErrConfig, err, "failed to write config file").With("path", path)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// expandEnvVars expands ${VAR} patterns in a string.
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

// applyEnv overrides file values with DATABASE_URL and TILEHOUSE_* variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.ConnectionString = v
	}

	strs := map[string]*string{
		"TILEHOUSE_ACQUIRE_TIMEOUT":  &cfg.AcquireTimeout,
		"TILEHOUSE_LISTEN_ADDRESSES": &cfg.ListenAddresses,
		"TILEHOUSE_RESCAN_SCHEDULE":  &cfg.RescanSchedule,
		"TILEHOUSE_LOG_LEVEL":        &cfg.LogLevel,
		"TILEHOUSE_JWT_SECRET":       &cfg.JWT.Secret,
		"TILEHOUSE_JWT_ALGORITHM":    &cfg.JWT.Algorithm,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TILEHOUSE_POOL_SIZE":        &cfg.PoolSize,
		"TILEHOUSE_KEEP_ALIVE":       &cfg.KeepAlive,
		"TILEHOUSE_WORKER_PROCESSES": &cfg.WorkerProcesses,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return alerr.Wrapf(alerr.ErrConfig, err, "%s must be an integer", key)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"TILEHOUSE_WATCH":         &cfg.Watch,
		"TILEHOUSE_JWT":           &cfg.JWT.Enabled,
		"TILEHOUSE_JWT_CHECK_EXP": &cfg.JWT.CheckExp,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return alerr.Wrapf(alerr.ErrConfig, err, "%s must be a boolean", key)
			}
			*dst = b
		}
	}
	return nil
}

// normalize fills zero values left by a sparse file and keys static sources
// by their map key.
func (c *Config) normalize() {
	def := Default()
	if c.PoolSize == 0 {
		c.PoolSize = def.PoolSize
	}
	if c.AcquireTimeout == "" {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.ListenAddresses == "" {
		c.ListenAddresses = def.ListenAddresses
	}
	if c.WorkerProcesses == 0 {
		c.WorkerProcesses = def.WorkerProcesses
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	for id, t := range c.TableSources {
		if t != nil {
			t.SourceID = id
		}
	}
	for id, f := range c.FunctionSources {
		if f != nil {
			f.SourceID = id
		}
	}
}

// AcquireTimeoutDuration parses acquire_timeout.
func (c *Config) AcquireTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.AcquireTimeout)
	if err != nil {
		return 0, alerr.Wrap(alerr.ErrConfig, err, "acquire_timeout is not a duration").With("value", c.AcquireTimeout)
	}
	return d, nil
}

// KeepAliveDuration returns keep_alive in seconds as a duration.
func (c *Config) KeepAliveDuration() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// Validate checks the configuration before the server starts.
func (c *Config) Validate() error {
	if c.ConnectionString == "" {
		return alerr.New(alerr.ErrConfig, "connection_string is required").
			With("hint", "set DATABASE_URL, connection_string or --database-url")
	}
	if c.PoolSize < 1 {
		return alerr.Newf(alerr.ErrConfig, "pool_size must be at least 1, got %d", c.PoolSize)
	}
	if c.WorkerProcesses < 1 {
		return alerr.Newf(alerr.ErrConfig, "worker_processes must be at least 1, got %d", c.WorkerProcesses)
	}
	if c.KeepAlive < 0 {
		return alerr.Newf(alerr.ErrConfig, "keep_alive must not be negative, got %d", c.KeepAlive)
	}
	if _, err := c.AcquireTimeoutDuration(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return alerr.Newf(alerr.ErrConfig, "unknown log_level %q", c.LogLevel).
			With("supported", "debug, info, warn, error")
	}
	if c.RescanSchedule != "" {
		if !c.Watch {
			return alerr.New(alerr.ErrConfig, "rescan_schedule requires watch mode")
		}
		if _, err := cron.ParseStandard(c.RescanSchedule); err != nil {
			return alerr.Wrap(alerr.ErrConfig, err, "rescan_schedule is not a cron spec").With("value", c.RescanSchedule)
		}
	}
	if c.JWT.Enabled && c.JWT.Secret == "" {
		return alerr.New(alerr.ErrConfig, "jwt.secret is required when jwt is enabled")
	}
	if _, err := c.StaticTables(); err != nil {
		return err
	}
	if _, err := c.StaticFunctions(); err != nil {
		return err
	}
	return nil
}

// HasStaticSources reports whether the file lists any sources. Static
// sources replace the startup scan.
func (c *Config) HasStaticSources() bool {
	return len(c.TableSources) > 0 || len(c.FunctionSources) > 0
}

// StaticTables builds a catalog from table_sources. It returns an empty
// catalog when none are configured.
func (c *Config) StaticTables() (*source.Catalog, error) {
	sources := make([]source.Source, 0, len(c.TableSources))
	for id, t := range c.TableSources {
		if t == nil {
			return nil, alerr.New(alerr.ErrConfig, "table source is empty").WithSource(id)
		}
		if err := t.Validate(); err != nil {
			return nil, alerr.Wrap(alerr.ErrConfig, err, "invalid table source").WithSource(id)
		}
		if err := validate.Table(t); err != nil {
			return nil, alerr.Wrap(alerr.ErrConfig, err, "invalid table source").WithSource(id)
		}
		sources = append(sources, t)
	}
	cat, err := source.NewCatalog(source.KindTable, sources...)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrConfig, err, "invalid table_sources")
	}
	return cat, nil
}

// StaticFunctions builds a catalog from function_sources. It returns an
// empty catalog when none are configured.
func (c *Config) StaticFunctions() (*source.Catalog, error) {
	sources := make([]source.Source, 0, len(c.FunctionSources))
	for id, f := range c.FunctionSources {
		if f == nil || f.FunctionName == "" {
			return nil, alerr.New(alerr.ErrConfig, "function source needs a function name").WithSource(id)
		}
		if err := validate.Function(f); err != nil {
			return nil, alerr.Wrap(alerr.ErrConfig, err, "invalid function source").WithSource(id)
		}
		sources = append(sources, f)
	}
	cat, err := source.NewCatalog(source.KindFunction, sources...)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrConfig, err, "invalid function_sources")
	}
	return cat, nil
}

// SetSources stores scanned catalogs as static sources, for Save.
func (c *Config) SetSources(tables, functions *source.Catalog) {
	if tables != nil {
		c.TableSources = make(map[string]*source.Table, tables.Len())
		for _, t := range tables.Tables() {
			c.TableSources[t.ID()] = t
		}
	}
	if functions != nil {
		c.FunctionSources = make(map[string]*source.Function, functions.Len())
		for _, f := range functions.Functions() {
			c.FunctionSources[f.ID()] = f
		}
	}
}
