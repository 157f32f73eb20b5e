// Package config loads tasksync settings from defaults, an optional config
// file, TASKSYNC_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// TASKSYNC_CLIENT_REMOTE_URL for client.remote_url.
const EnvPrefix = "TASKSYNC"

// Backends accepted by server.backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

// Config represents the full tasksync configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Neo4j  Neo4jConfig  `yaml:"neo4j" mapstructure:"neo4j"`
	Client ClientConfig `yaml:"client" mapstructure:"client"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures `tasksync serve`.
type ServerConfig struct {
	Addr    string `yaml:"addr" mapstructure:"addr"`
	Backend string `yaml:"backend" mapstructure:"backend"`
	DBPath  string `yaml:"db_path" mapstructure:"db_path"`
}

// Neo4jConfig configures the graph backend.
type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// ClientConfig configures the local device.
type ClientConfig struct {
	RemoteURL string `yaml:"remote_url" mapstructure:"remote_url"`
	DBPath    string `yaml:"db_path" mapstructure:"db_path"`
}

// SyncConfig configures the synchronizer and daemon.
type SyncConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
	Debounce   time.Duration `yaml:"debounce" mapstructure:"debounce"`
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// LogConfig selects the log destination. An empty File means stderr.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":3000",
			Backend: BackendMemory,
			DBPath:  filepath.Join(".tasksync", "server.db"),
		},
		Neo4j: Neo4jConfig{
			URI:  "neo4j://localhost:7687",
			User: "neo4j",
		},
		Client: ClientConfig{
			RemoteURL: "http://localhost:3000",
			DBPath:    filepath.Join(".tasksync", "tasks.db"),
		},
		Sync: SyncConfig{
			Timeout:    15 * time.Second,
			Interval:   30 * time.Second,
			Debounce:   500 * time.Millisecond,
			MaxBackoff: 5 * time.Minute,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Flags maps configuration keys to the command-line flags that override them.
// Flags absent from the set are ignored.
var Flags = map[string]string{
	"server.addr":       "addr",
	"server.backend":    "backend",
	"server.db_path":    "server-db",
	"client.remote_url": "remote",
	"client.db_path":    "db",
	"sync.timeout":      "timeout",
	"sync.interval":     "interval",
	"log.file":          "log-file",
}

// Load merges defaults, the config file, environment and flags.
//
// path names an explicit config file; when empty the first existing of
// $HOME/.tasksync/config.yaml and ./.tasksync/config.yaml is used, and a
// missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for key, name := range Flags {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.backend", d.Server.Backend)
	v.SetDefault("server.db_path", d.Server.DBPath)
	v.SetDefault("neo4j.uri", d.Neo4j.URI)
	v.SetDefault("neo4j.user", d.Neo4j.User)
	v.SetDefault("neo4j.password", d.Neo4j.Password)
	v.SetDefault("neo4j.database", d.Neo4j.Database)
	v.SetDefault("client.remote_url", d.Client.RemoteURL)
	v.SetDefault("client.db_path", d.Client.DBPath)
	v.SetDefault("sync.timeout", d.Sync.Timeout)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.max_backoff", d.Sync.MaxBackoff)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".tasksync", "config.yaml"))
	}
	candidates = append(candidates, filepath.Join(".tasksync", "config.yaml"))

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Backend {
	case BackendMemory, BackendSQLite, BackendNeo4j:
	default:
		errs = append(errs, fmt.Errorf("server.backend must be one of %s, %s, %s (got %q)",
			BackendMemory, BackendSQLite, BackendNeo4j, c.Server.Backend))
	}
	if c.Server.Backend == BackendSQLite && c.Server.DBPath == "" {
		errs = append(errs, errors.New("server.db_path is required for the sqlite backend"))
	}
	if c.Server.Backend == BackendNeo4j && c.Neo4j.URI == "" {
		errs = append(errs, errors.New("neo4j.uri is required for the neo4j backend"))
	}

	if c.Client.RemoteURL == "" {
		errs = append(errs, errors.New("client.remote_url is required"))
	} else if u, err := url.Parse(c.Client.RemoteURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("client.remote_url is not an absolute URL: %q", c.Client.RemoteURL))
	}
	if c.Client.DBPath == "" {
		errs = append(errs, errors.New("client.db_path is required"))
	}

	durations := []struct {
		key string
		d   time.Duration
	}{
		{"sync.timeout", c.Sync.Timeout},
		{"sync.interval", c.Sync.Interval},
		{"sync.debounce", c.Sync.Debounce},
		{"sync.max_backoff", c.Sync.MaxBackoff},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive (got %v)", d.key, d.d))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
