package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"archdrift/internal/cache"
	"archdrift/internal/config"
	"archdrift/internal/crawler"
	"archdrift/internal/storage"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "archdrift",
		Short:         "Detect architectural drift in source repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}
	dbPath     string
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the graph database (SQLite); overrides storage.path")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(watchCmd)
}

// setup loads the config and builds the logger shared by every command.
func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = config.LoadConfig(configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// initStore opens the configured graph store, creating its directory.
func initStore() (*storage.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// initCache opens the parse cache for root, or returns nil when disabled.
func initCache(root string, disabled bool) (*cache.ParseCache, error) {
	if disabled || !cfg.Cache.Enabled {
		return nil, nil
	}
	modulePath, _ := crawler.GoModulePath(root)
	c, err := cache.Open(cache.Config{
		Path:      cfg.Cache.Path,
		InMemory:  cfg.Cache.InMemory,
		Namespace: modulePath,
		TTL:       cfg.Cache.TTL,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open parse cache: %w", err)
	}
	return c, nil
}

// projectID resolves the project id from the flag, the config or the
// directory name, in that order.
func projectID(flag, root string) string {
	if flag != "" {
		return flag
	}
	if cfg.Project.ID != "" {
		return cfg.Project.ID
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}

func projectRoot(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Project.Root
}
