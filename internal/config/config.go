// Package config loads configuration for the weffo binaries.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/jacoelho/weffo"
)

// EnvPrefix selects the environment variables merged over the file.
// WEFFO__SERVER__ADDR sets server.addr.
const EnvPrefix = "WEFFO__"

// SchemaVersion is the only configuration schema understood.
const SchemaVersion = "v1"

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type LimitsConfig struct {
	MaxDepth int `koanf:"max_depth"`
	MaxAttrs int `koanf:"max_attrs"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	MetricsPath     string        `koanf:"metrics_path"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RedisConfig enables resolving documents stored in Redis when Addr is set.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// Route renders View against Model for requests matching Pattern.
type Route struct {
	Pattern    string            `koanf:"pattern"`
	View       string            `koanf:"view"`
	Model      string            `koanf:"model"`
	ParamsFile string            `koanf:"params_file"`
	Params     map[string]string `koanf:"params"`
}

type Config struct {
	SchemaVersion string       `koanf:"schema_version"`
	Log           LogConfig    `koanf:"log"`
	Meta          string       `koanf:"meta"`
	DocumentRoot  string       `koanf:"document_root"`
	Limits        LimitsConfig `koanf:"limits"`
	Server        ServerConfig `koanf:"server"`
	Redis         RedisConfig  `koanf:"redis"`
	Routes        []Route      `koanf:"routes"`
}

// Load merges the YAML file at path with WEFFO__ environment variables and
// applies defaults. An empty path loads the environment alone; a named file
// that does not exist is an error.
func Load(path string) (Config, error) {
	return load(path, false)
}

// LoadOptional is Load for an implicit default path: a missing file is
// treated as empty.
func LoadOptional(path string) (Config, error) {
	return load(path, true)
}

func load(path string, optional bool) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!(optional && errors.Is(err, fs.ErrNotExist)) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if sv := k.String("schema_version"); sv != "" && sv != SchemaVersion {
		return Config{}, fmt.Errorf("config schema_version %q not supported (want %s)", sv, SchemaVersion)
	}

	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SchemaVersion
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "weffo:doc:"
	}
}

func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if r.Pattern == "" || !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("routes[%d]: pattern must start with /", i)
		}
		if r.View == "" {
			return fmt.Errorf("routes[%d] %s: view is required", i, r.Pattern)
		}
		if seen[r.Pattern] {
			return fmt.Errorf("routes[%d]: duplicate pattern %s", i, r.Pattern)
		}
		seen[r.Pattern] = true
	}
	if c.Limits.MaxDepth < 0 || c.Limits.MaxAttrs < 0 {
		return fmt.Errorf("limits must be >= 0")
	}
	return nil
}

// LoadParams reads a YAML mapping of parameter names to scalar values.
func LoadParams(path string) (weffo.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params %s: %w", path, err)
	}
	return ParseParams(data)
}

// ParseParams decodes a YAML mapping of parameter names to scalar values.
func ParseParams(data []byte) (weffo.Params, error) {
	var raw map[string]any
	if err := yamlv3.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return weffo.ParamsFromMap(raw)
}

// RouteParams merges the params file of r, if any, with its inline
// string params. Inline params win.
func RouteParams(r Route) (weffo.Params, error) {
	params := weffo.Params{}
	if r.ParamsFile != "" {
		p, err := LoadParams(r.ParamsFile)
		if err != nil {
			return nil, err
		}
		params = p
	}
	for k, v := range r.Params {
		params[k] = weffo.String(v)
	}
	return params, nil
}
