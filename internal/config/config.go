package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "archdrift.yaml"

type Config struct {
	Project struct {
		Root   string   `yaml:"root"`
		ID     string   `yaml:"id"`
		Name   string   `yaml:"name"`
		Ignore []string `yaml:"ignore"`
	} `yaml:"project"`
	Storage struct {
		Driver string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
		Path   string `yaml:"path"`
	} `yaml:"storage"`
	Analysis struct {
		ComplexityThreshold int           `yaml:"complexity_threshold"`
		CriticalPathLimit   int           `yaml:"critical_path_limit"`
		ViolationWindow     time.Duration `yaml:"violation_window"`
		Timeout             time.Duration `yaml:"timeout"`
		Workers             int           `yaml:"workers"`
		PathQualifiedIDs    bool          `yaml:"path_qualified_ids"`
		MaxFileBytes        int64         `yaml:"max_file_bytes"`
		Hotspots            struct {
			Complexity  int     `yaml:"complexity"`
			Instability float64 `yaml:"instability"`
			MinAfferent int     `yaml:"min_afferent"`
		} `yaml:"hotspots"`
	} `yaml:"analysis"`
	Layers struct {
		Order   []LayerSpec         `yaml:"order"`
		Allowed map[string][]string `yaml:"allowed"`
	} `yaml:"layers"`
	Cache struct {
		Enabled  bool          `yaml:"enabled"`
		Path     string        `yaml:"path"`
		InMemory bool          `yaml:"in_memory"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Watch struct {
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"watch"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// LayerSpec names a layer and the path or module-name prefixes it owns.
// Layers are listed from the top (callers) to the bottom (dependencies).
type LayerSpec struct {
	Name     string   `yaml:"name"`
	Prefixes []string `yaml:"prefixes"`
}

// Default returns a configuration that works without any file.
func Default() *Config {
	var cfg Config
	cfg.Project.Root = "."
	cfg.Storage.Driver = "sqlite3"
	cfg.Storage.Path = ".archdrift/graph.db"
	cfg.Analysis.ComplexityThreshold = 10
	cfg.Analysis.CriticalPathLimit = 10
	cfg.Analysis.ViolationWindow = 30 * 24 * time.Hour
	cfg.Analysis.Timeout = 5 * time.Minute
	cfg.Analysis.MaxFileBytes = 2 << 20
	cfg.Analysis.Hotspots.Complexity = 15
	cfg.Analysis.Hotspots.Instability = 0.8
	cfg.Analysis.Hotspots.MinAfferent = 2
	cfg.Cache.Enabled = true
	cfg.Cache.Path = ".archdrift/cache"
	cfg.Watch.Debounce = 500 * time.Millisecond
	cfg.Log.Level = "info"
	return &cfg
}

// LoadConfig reads path on top of Default. A missing file is not an error
// when allowMissing is set. Environment variables (and a .env file) override
// file values.
func LoadConfig(path string, allowMissing bool) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && allowMissing:
	default:
		return nil, err
	}

	// 3. Override with Environment Variables if present
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("ARCHDRIFT_PROJECT_ID"); v != "" {
		cfg.Project.ID = v
	}
	if v := os.Getenv("ARCHDRIFT_PROJECT_ROOT"); v != "" {
		cfg.Project.Root = v
	}
	if v := os.Getenv("ARCHDRIFT_DB_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("ARCHDRIFT_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ARCHDRIFT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ARCHDRIFT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ARCHDRIFT_TIMEOUT: %w", err)
		}
		cfg.Analysis.Timeout = d
	}
	if v := os.Getenv("ARCHDRIFT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARCHDRIFT_WORKERS: %w", err)
		}
		cfg.Analysis.Workers = n
	}
	if v := os.Getenv("ARCHDRIFT_CACHE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ARCHDRIFT_CACHE: %w", err)
		}
		cfg.Cache.Enabled = b
	}
	return nil
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("storage.driver %q: want sqlite3 or sqlite", c.Storage.Driver)
	}
	if c.Analysis.Timeout < 0 {
		return errors.New("analysis.timeout must not be negative")
	}
	seen := map[string]bool{}
	for _, l := range c.Layers.Order {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return errors.New("layers.order: layer without a name")
		}
		if seen[name] {
			return fmt.Errorf("layers.order: duplicate layer %q", name)
		}
		seen[name] = true
	}
	for from, tos := range c.Layers.Allowed {
		if !seen[from] {
			return fmt.Errorf("layers.allowed: unknown layer %q", from)
		}
		for _, to := range tos {
			if !seen[to] {
				return fmt.Errorf("layers.allowed[%s]: unknown layer %q", from, to)
			}
		}
	}
	return nil
}
