package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/flagsync/pkg/client"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/value"
)

func newEvalCmd(a *app) *cobra.Command {
	var (
		targetingKey string
		attrs        []string
		def          string
	)

	cmd := &cobra.Command{
		Use:   "eval <flag>",
		Short: "Evaluate a flag for a context and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			attributes, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			fallback, err := parseScalar(def)
			if err != nil {
				return err
			}

			s, err := a.buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			fc := client.New(a.cfg.Namespace, s.repo, client.WithLogger(a.log), client.WithMetrics(s.metrics))
			if err := fc.Start(ctx); err != nil {
				return err
			}
			if err := s.repo.SyncFlags(ctx); err != nil {
				a.log.WarnContext(ctx, "sync failed, evaluating restored flags", logger.Error(err))
			}

			res := fc.GetValue(args[0], value.MustFromAny(fallback), targetingKey, attributes)
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVarP(&targetingKey, "targeting-key", "k", "", "targeting key of the evaluated subject")
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "context attribute as name=value; JSON values are decoded")
	cmd.Flags().StringVar(&def, "default", "null", "default value as JSON")
	return cmd
}

func parseAttributes(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("attribute %q: expected name=value", pair)
		}
		v, err := parseScalar(raw)
		if err != nil {
			v = raw
		}
		out[name] = v
	}
	return out, nil
}

// parseScalar decodes raw as JSON. Numbers stay json.Number so integers are
// not widened to floats.
func parseScalar(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", raw, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON value %q: trailing data", raw)
	}
	return v, nil
}
