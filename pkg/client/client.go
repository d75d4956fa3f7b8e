package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagsync/pkg/cache"
	"github.com/dmitrymomot/flagsync/pkg/feature"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/metrics"
	"github.com/dmitrymomot/flagsync/pkg/poller"
	"github.com/dmitrymomot/flagsync/pkg/repository"
	"github.com/dmitrymomot/flagsync/pkg/value"
)

// DefaultDomain is used when a client is created without a domain.
const DefaultDomain = "default"

// Client evaluates flags of one domain against the repository's active
// configuration. Getters never block on I/O and never panic.
type Client struct {
	id        string
	domain    string
	repo      *repository.Repository
	scheduler *poller.Scheduler
	log       *slog.Logger
	metrics   *metrics.Metrics

	polling  bool
	pollOpts []poller.Option
	shutdown sync.Once
	result   *poller.Result
	mu       sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPolling makes Start run repository syncs on a poller.Scheduler built
// with opts. Without it the caller drives SyncFlags.
func WithPolling(opts ...poller.Option) Option {
	return func(c *Client) {
		c.polling = true
		c.pollOpts = append(c.pollOpts, opts...)
	}
}

// New creates a client for domain. A nil repo yields a client whose getters
// report every flag as unknown.
func New(domain string, repo *repository.Repository, opts ...Option) *Client {
	if domain == "" {
		domain = DefaultDomain
	}
	c := &Client{
		id:     uuid.NewString(),
		domain: domain,
		repo:   repo,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("client"), logger.Domain(domain))

	if repo != nil && c.polling {
		opts := append([]poller.Option{poller.WithLogger(c.log), poller.WithMetrics(c.metrics)}, c.pollOpts...)
		if s, err := poller.New(repo.SyncFlags, opts...); err == nil {
			c.scheduler = s
		}
	}
	return c
}

// ID identifies this client instance.
func (c *Client) ID() string { return c.id }

func (c *Client) Domain() string { return c.domain }

// Scheduler returns the polling scheduler, or nil without WithPolling.
func (c *Client) Scheduler() *poller.Scheduler { return c.scheduler }

func (c *Client) Repository() *repository.Repository { return c.repo }

// Start warms the repository up from its snapshot and, with WithPolling,
// starts the sync scheduler. It returns once warm-up is over or ctx is done.
func (c *Client) Start(ctx context.Context) error {
	if c.repo == nil {
		return ErrNoRepository
	}

	select {
	case <-c.repo.Init(ctx):
	case <-ctx.Done():
		return ctx.Err()
	}

	if c.scheduler != nil {
		c.mu.Lock()
		c.result = c.scheduler.Start(ctx)
		c.mu.Unlock()
	}
	c.log.InfoContext(ctx, "client started", slog.Int("flags", c.repo.Flags().Len()))
	return nil
}

// PollResult returns the Result of the current polling run, if any.
func (c *Client) PollResult() *poller.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Client) GetBoolean(key string, def bool, targetingKey string, attrs map[string]any) feature.EvaluationResult[bool] {
	return evaluate(c, key, def, targetingKey, attrs)
}

func (c *Client) GetString(key, def, targetingKey string, attrs map[string]any) feature.EvaluationResult[string] {
	return evaluate(c, key, def, targetingKey, attrs)
}

func (c *Client) GetInt(key string, def int64, targetingKey string, attrs map[string]any) feature.EvaluationResult[int64] {
	return evaluate(c, key, def, targetingKey, attrs)
}

func (c *Client) GetDouble(key string, def float64, targetingKey string, attrs map[string]any) feature.EvaluationResult[float64] {
	return evaluate(c, key, def, targetingKey, attrs)
}

func (c *Client) GetObject(key string, def map[string]any, targetingKey string, attrs map[string]any) feature.EvaluationResult[map[string]any] {
	return evaluate(c, key, def, targetingKey, attrs)
}

// GetValue returns the variant value without conversion.
func (c *Client) GetValue(key string, def value.Value, targetingKey string, attrs map[string]any) feature.EvaluationResult[value.Value] {
	return evaluate(c, key, def, targetingKey, attrs)
}

func evaluate[T any](c *Client, key string, def T, targetingKey string, attrs map[string]any) feature.EvaluationResult[T] {
	if c.repo == nil {
		return observe(c, feature.Finish(feature.Resolution{
			Reason:    feature.ReasonUnknown,
			ErrorCode: feature.ErrorFlagNotFound,
			FlagKey:   key,
		}, def))
	}

	ec, err := feature.NewEvaluationContext(targetingKey, attrs)
	if err != nil {
		c.log.Debug("invalid evaluation context", logger.FlagKey(key), logger.Error(err))
		return observe(c, feature.EvaluationResult[T]{
			Value:     def,
			Reason:    feature.ReasonError,
			ErrorCode: feature.ErrorParse,
		})
	}

	return observe(c, feature.Finish(c.resolve(key, ec), def))
}

// resolve consults the result cache before evaluating. A resolution computed
// against a flag set that was replaced meanwhile is dropped again, so the
// cache never outlives the purge done by the repository.
func (c *Client) resolve(key string, ec feature.EvaluationContext) feature.Resolution {
	results := c.repo.Results()
	rk := cache.ResultKey{FlagKey: key, Fingerprint: ec.Fingerprint()}
	if r, ok := results.Get(rk); ok {
		c.metrics.CacheHit()
		return r
	}
	c.metrics.CacheMiss()

	set := c.repo.Flags()
	f, _ := set.Get(key)
	r := feature.Resolve(key, f, ec)

	results.Put(rk, r)
	if c.repo.Flags() != set {
		results.PurgeFlag(key)
	}
	return r
}

func observe[T any](c *Client, r feature.EvaluationResult[T]) feature.EvaluationResult[T] {
	c.metrics.Evaluation(string(r.Reason))
	return r
}

// OnContextChange tells the repository that the ambient evaluation context
// was replaced.
func (c *Client) OnContextChange(old, next feature.EvaluationContext) {
	if c.repo != nil {
		c.repo.OnContextChanged(old, next)
	}
}

// ShutDown kills the scheduler and shuts the repository down. Only the first
// call has an effect.
func (c *Client) ShutDown(ctx context.Context) error {
	var err error
	c.shutdown.Do(func() {
		if c.scheduler != nil {
			c.scheduler.Kill()
		}
		if c.repo != nil {
			err = c.repo.ShutDown(ctx)
		}
		if err != nil {
			err = fmt.Errorf("client %q: %w", c.domain, err)
		}
		c.log.InfoContext(ctx, "client shut down", logger.Error(err))
	})
	return err
}
