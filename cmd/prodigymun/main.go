// Command prodigymun runs the MUN registration service and its admin tooling.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"prodigymun/internal/config"
	"prodigymun/internal/core"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const programName = "prodigymun"

type rootOptions struct {
	debug      bool
	configFile string
	storage    string
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: debug,
		Level:     level,
	}))
}

// commonRun installs the process logger and sizes GOMAXPROCS to the cgroup quota.
func commonRun(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	logger := newLogger(cmd.ErrOrStderr(), cfg.Debug)
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...), "component", programName)
	})); err != nil {
		return nil, fmt.Errorf("set maxprocs: %w", err)
	}
	return logger, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           programName,
		Short:         "Model United Nations registration service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveRun(cmd)
		},
	}
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to config file")
	root.PersistentFlags().StringVarP(&opts.storage, "storage", "s", "", "registration store driver (memory, sqlite, postgres)")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(opts.configFile, func(c *config.Config) {
			if opts.debug {
				c.Debug = true
			}
			if opts.storage != "" {
				c.StorageDriver = opts.storage
			}
		})
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	root.AddCommand(serveCommand())
	root.AddCommand(exportCommand())
	root.AddCommand(committeesCommand())
	root.AddCommand(hashPasswordCommand())
	return root
}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, fmt.Errorf("no config found in context")
	}
	return cfg, nil
}

// openStore opens the configured registration store.
func openStore(cmd *cobra.Command, cfg *config.Config) (core.RegistrationStore, error) {
	store, err := core.OpenPersistentStore(cmd.Context(), cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	return store, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
