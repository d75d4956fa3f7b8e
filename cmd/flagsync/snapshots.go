package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSnapshotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect persisted configuration snapshots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List retained snapshots of the namespace, newest first",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			s, err := a.buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			history, err := s.snapshots.History(ctx, a.cfg.Namespace)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tACTIVE\tETAG\tVERSION\tBYTES")
			for _, snap := range history {
				fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\t%d\n",
					snap.ID,
					snap.CreatedAt.Format(time.RFC3339),
					snap.IsActive,
					deref(snap.ETag),
					deref(snap.Version),
					len(snap.JSON),
				)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active snapshot payload",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			s, err := a.buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.snapshots.Current(ctx, a.cfg.Namespace)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("no active snapshot in namespace %q", a.cfg.Namespace)
			}
			_, err = c.OutOrStdout().Write(append(snap.JSON, '\n'))
			return err
		},
	})

	return cmd
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
