package main

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/flagsync/pkg/config"
	"github.com/dmitrymomot/flagsync/pkg/logger"
)

// app is shared by all subcommands. It is populated in PersistentPreRunE.
type app struct {
	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var envFiles []string

	cmd := &cobra.Command{
		Use:           "flagsync",
		Short:         "Sync and evaluate feature flag configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			if len(envFiles) > 0 {
				if err := config.LoadEnv(envFiles...); err != nil {
					return err
				}
			}
			cfg, err := config.Parse[config.Config]()
			if err != nil {
				return err
			}
			a.cfg = cfg

			format, err := logger.ParseFormat(cfg.LogFormat)
			if err != nil {
				return err
			}
			a.log = logger.New(
				logger.WithEnvironment(cfg.Env, "flagsync"),
				logger.WithLevel(cfg.LogLevel),
				logger.WithFormat(format),
				logger.WithOutput(os.Stderr),
			)
			c.SetContext(logger.AppendCtx(c.Context(), slog.String("run_id", uuid.NewString())))
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "load variables from .env files before parsing the environment")

	cmd.AddCommand(
		newSyncCmd(a),
		newEvalCmd(a),
		newWatchCmd(a),
		newSnapshotsCmd(a),
	)
	return cmd
}
