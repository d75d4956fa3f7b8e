package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and list the active flags",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			s, err := a.buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			<-s.repo.Init(ctx)
			if err := s.repo.SyncFlags(ctx); err != nil {
				return err
			}

			out := c.OutOrStdout()
			if last, ok := s.repo.LastSync(ctx); ok {
				fmt.Fprintf(out, "configuration updated at %s\n", last.Format(time.RFC3339))
			}
			for _, key := range s.repo.Flags().Keys() {
				f, _ := s.repo.GetFlagConfig(key)
				state := "disabled"
				if f.Enabled {
					state = "enabled"
				}
				fmt.Fprintf(out, "%s\t%s\t%d rules\n", key, state, len(f.Rules))
			}
			return nil
		},
	}
}
