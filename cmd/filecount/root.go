package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/pkg/config"
	"github.com/babblebase/filecount/pkg/logger"
	"github.com/babblebase/filecount/pkg/metrics"
)

// app carries the configuration loaded before any subcommand runs.
type app struct {
	cfg *config.Config
}

func NewRootCmd(version string) *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "filecount",
		Short: "Count documents against a translation memory",
		Long: `Count segments, words and characters of documents and classify them
into repetitions and translation memory matches.`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewCountCmd(a),
		NewMemoryCmd(a),
		NewServeCmd(a),
		NewWorkerCmd(a),
		NewSubmitCmd(a),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("log-format", "", "Log format (text|json)")
}

// setup loads the config, lets the logging flags override it and installs
// the default logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}

// engine builds a counter from the loaded config. m may be nil.
func (a *app) engine(m *metrics.Metrics) (*counter.Engine, error) {
	e, err := counter.NewEngine(a.cfg.Counter, m)
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	return e, nil
}
