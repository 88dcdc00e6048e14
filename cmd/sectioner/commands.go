package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nimendoza/B2023-R3X-07/pkg/config"
	"github.com/nimendoza/B2023-R3X-07/pkg/logger"
)

type rootOptions struct {
	logLevel string
	cfg      *config.Config
	logger   *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sectioner",
		Short:         "Assign students to course sections from ranked preferences",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Log.Format = "console"
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			l, err := logger.New(cfg)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newSolveCmd(opts), newTokenCmd(opts))
	return root
}
