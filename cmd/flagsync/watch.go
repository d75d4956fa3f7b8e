package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/flagsync/pkg/client"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/poller"
	"github.com/dmitrymomot/flagsync/pkg/repository"
)

const shutdownTimeout = 5 * time.Second

func newWatchCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the configuration source and print flag changes",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			s, err := a.buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			exhausted := make(chan error, 1)
			fc := client.New(a.cfg.Namespace, s.repo,
				client.WithLogger(a.log),
				client.WithMetrics(s.metrics),
				client.WithPolling(
					poller.WithInterval(a.cfg.PollInterval),
					poller.WithBackoff(a.cfg.BackoffStep),
					poller.WithMaxFailures(a.cfg.MaxFailures),
					poller.WithOnExhausted(func(err error) { exhausted <- err }),
				),
			)

			sub := s.repo.Subscribe(ctx)
			defer func() { _ = sub.Close() }()

			if listen != "" {
				srv := &http.Server{Addr: listen, Handler: a.router(s, fc), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.ErrorContext(ctx, "http server failed", logger.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			if err := fc.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := fc.ShutDown(context.WithoutCancel(ctx)); err != nil {
					a.log.ErrorContext(ctx, "shutdown failed", logger.Error(err))
				}
			}()

			enc := json.NewEncoder(c.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-exhausted:
					return err
				case ev, ok := <-sub.Receive():
					if !ok {
						return nil
					}
					if err := enc.Encode(changeView(ev)); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "serve /metrics, /healthz and /flags on this address")
	return cmd
}

type changeOutput struct {
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Added     []string  `json:"added,omitempty"`
	Updated   []string  `json:"updated,omitempty"`
	Removed   []string  `json:"removed,omitempty"`
}

func changeView(ev repository.ChangeEvent) changeOutput {
	return changeOutput{
		Source:    string(ev.Source),
		UpdatedAt: ev.UpdatedAt,
		Added:     ev.Changes.Added,
		Updated:   ev.Changes.Updated,
		Removed:   ev.Changes.Removed,
	}
}

func (a *app) router(s *stack, fc *client.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		for name, check := range s.checks {
			if err := check(req.Context()); err != nil {
				a.log.WarnContext(req.Context(), "health check failed", logger.Component(name), logger.Error(err))
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if sch := fc.Scheduler(); sch != nil && sch.State() != poller.StateRunning {
			http.Error(w, "poller "+sch.State().String(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/flags", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.repo.Flags().Keys())
	})

	r.Get("/flags/{key}", func(w http.ResponseWriter, req *http.Request) {
		f, ok := s.repo.GetFlagConfig(chi.URLParam(req, "key"))
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f)
	})

	return r
}
