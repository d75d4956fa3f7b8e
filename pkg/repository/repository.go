package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/flagsync/pkg/broadcast"
	"github.com/dmitrymomot/flagsync/pkg/cache"
	"github.com/dmitrymomot/flagsync/pkg/feature"
	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/metrics"
	"github.com/dmitrymomot/flagsync/pkg/snapshot"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

// LastSyncKey is the persistent cache key holding the updated-at timestamp,
// in milliseconds, of the last configuration that was fully applied.
const LastSyncKey = "last_sync_ts"

// Repository owns the active flag set. It warms up from the latest
// snapshot, keeps the set current by syncing with a Transport, and persists
// every applied configuration.
type Repository struct {
	transport  transport.Transport
	snapshots  snapshot.Store
	persistent cache.Cache

	namespace       string
	log             *slog.Logger
	metrics         *metrics.Metrics
	resultCacheSize int
	now             func() time.Time

	flags   atomic.Pointer[feature.FlagSet]
	results *cache.ResultCache[feature.Resolution]

	// mu serializes installs of a new flag set with the result cache purge.
	mu     sync.Mutex
	synced bool
	closed atomic.Bool

	group    singleflight.Group
	events   *broadcast.MemoryBroadcaster[ChangeEvent]
	initOnce sync.Once
	initDone chan struct{}
}

// New creates a repository. The persistent cache should be scoped to the
// repository's namespace: ShutDown invalidates all of it.
func New(t transport.Transport, snaps snapshot.Store, persistent cache.Cache, opts ...Option) (*Repository, error) {
	if t == nil || snaps == nil || persistent == nil {
		return nil, ErrNilDependency
	}

	r := &Repository{
		transport:       t,
		snapshots:       snaps,
		persistent:      persistent,
		namespace:       persistent.Namespace(),
		log:             slog.Default(),
		resultCacheSize: DefaultResultCacheSize,
		now:             time.Now,
		initDone:        make(chan struct{}),
		events:          broadcast.NewMemoryBroadcaster[ChangeEvent](subscriberBuffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.namespace == "" {
		r.namespace = snapshot.DefaultNamespace
	}
	r.log = r.log.With(logger.Component("repository"), logger.Namespace(r.namespace))
	r.results = cache.NewResultCache[feature.Resolution](r.resultCacheSize)
	return r, nil
}

func (r *Repository) Namespace() string { return r.namespace }

// Init starts warming the flag set from the active snapshot in the background
// and returns a channel closed when warm-up is over. A missing or unreadable
// snapshot leaves the flag set empty and clears the stored sync timestamp, so
// the next sync fetches the full configuration. A flag set installed by a
// sync is never replaced by the snapshot. Calling Init again returns the same
// channel.
func (r *Repository) Init(ctx context.Context) <-chan struct{} {
	r.initOnce.Do(func() {
		go func() {
			defer close(r.initDone)
			r.warm(ctx)
		}()
	})
	return r.initDone
}

func (r *Repository) warm(ctx context.Context) {
	snap, err := r.snapshots.Current(ctx, r.namespace)
	if err != nil {
		r.log.WarnContext(ctx, "failed to load snapshot", logger.Error(err))
		r.forgetLastSync(ctx)
		return
	}
	if snap == nil {
		r.log.DebugContext(ctx, "no snapshot to warm up from")
		r.forgetLastSync(ctx)
		return
	}

	schema, err := feature.ParseSchema(snap.JSON)
	if err != nil {
		r.log.WarnContext(ctx, "discarding malformed snapshot", logger.SnapshotID(snap.ID), logger.Error(err))
		r.forgetLastSync(ctx)
		return
	}

	var updatedAt int64
	if snap.ETag != nil {
		updatedAt, _ = strconv.ParseInt(*snap.ETag, 10, 64)
	}

	r.mu.Lock()
	if r.synced || r.closed.Load() {
		r.mu.Unlock()
		r.log.DebugContext(ctx, "flags already synced, snapshot ignored", logger.SnapshotID(snap.ID))
		return
	}
	changes := r.install(schema)
	r.mu.Unlock()

	r.log.InfoContext(ctx, "flags restored from snapshot",
		logger.SnapshotID(snap.ID),
		slog.Int("flags", len(schema.Features)),
	)
	r.publish(ctx, ChangeEvent{Source: SourceSnapshot, Changes: changes, UpdatedAt: millisToTime(updatedAt)})
}

func (r *Repository) forgetLastSync(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.synced || r.closed.Load() {
		return
	}
	if err := r.persistent.Delete(ctx, LastSyncKey); err != nil {
		r.log.WarnContext(ctx, "failed to clear last sync timestamp", logger.Error(err))
	}
}

// SyncFlags runs one sync cycle. With a stored timestamp and a loaded flag
// set it first probes the server-side modification time and only fetches the
// full configuration when it differs. Concurrent calls share one cycle.
//
// Failures leave the active flag set untouched and are returned so that the
// caller can count them.
func (r *Repository) SyncFlags(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	_, err, _ := r.group.Do("sync", func() (any, error) {
		return nil, r.sync(ctx)
	})
	return err
}

func (r *Repository) sync(ctx context.Context) error {
	last, stored, err := cache.GetAs[int64](ctx, r.persistent, LastSyncKey)
	if err != nil {
		r.log.WarnContext(ctx, "failed to read last sync timestamp", logger.Error(err))
		stored = false
	}

	if stored && r.flags.Load() != nil {
		changed, err := r.probe(ctx, last)
		if err != nil || !changed {
			return err
		}
	}
	return r.fullSync(ctx)
}

// probe reports whether the remote configuration differs from last.
func (r *Repository) probe(ctx context.Context, last int64) (bool, error) {
	mode := string(transport.ModeTimeOnly)
	start := r.now()

	resp, err := r.transport.FetchConfig(ctx, transport.ModeTimeOnly)
	if err != nil {
		r.metrics.Sync(mode, metrics.OutcomeError, r.now().Sub(start))
		r.log.WarnContext(ctx, "probe failed", logger.SyncMode(mode), logger.Error(err))
		return false, errors.Join(ErrFetchFailed, err)
	}

	remote, ok := resp.UpdatedAtMillis()
	if !ok || remote == last {
		r.metrics.Sync(mode, metrics.OutcomeUnchanged, r.now().Sub(start))
		r.log.DebugContext(ctx, "configuration unchanged", logger.SyncMode(mode), logger.UpdatedAt(last))
		return false, nil
	}

	r.metrics.Sync(mode, metrics.OutcomeStale, r.now().Sub(start))
	r.log.DebugContext(ctx, "configuration changed", logger.SyncMode(mode), logger.UpdatedAt(remote))
	return true, nil
}

func (r *Repository) fullSync(ctx context.Context) error {
	mode := string(transport.ModeFull)
	start := r.now()

	resp, err := r.transport.FetchConfig(ctx, transport.ModeFull)
	if err != nil {
		r.metrics.Sync(mode, metrics.OutcomeError, r.now().Sub(start))
		r.log.WarnContext(ctx, "fetch failed", logger.SyncMode(mode), logger.Error(err))
		return errors.Join(ErrFetchFailed, err)
	}

	updatedAt, ok := resp.UpdatedAtMillis()
	if !ok {
		r.metrics.Sync(mode, metrics.OutcomeUnchanged, r.now().Sub(start))
		r.log.DebugContext(ctx, "response without updated-at, nothing applied", logger.SyncMode(mode))
		return nil
	}
	if resp.Schema == nil {
		r.metrics.Sync(mode, metrics.OutcomeError, r.now().Sub(start))
		return ErrInvalidPayload
	}

	raw := resp.Raw
	if len(raw) == 0 {
		if raw, err = json.Marshal(resp.Schema); err != nil {
			r.metrics.Sync(mode, metrics.OutcomeError, r.now().Sub(start))
			return errors.Join(ErrInvalidPayload, err)
		}
	}

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return ErrClosed
	}
	changes := r.install(resp.Schema)
	r.synced = true
	r.mu.Unlock()

	r.metrics.Sync(mode, metrics.OutcomeApplied, r.now().Sub(start))
	r.log.InfoContext(ctx, "flags synced",
		logger.SyncMode(mode),
		logger.UpdatedAt(updatedAt),
		slog.Int("added", len(changes.Added)),
		slog.Int("updated", len(changes.Updated)),
		slog.Int("removed", len(changes.Removed)),
		logger.Duration(r.now().Sub(start)),
	)
	r.publish(ctx, ChangeEvent{Source: SourceSync, Changes: changes, UpdatedAt: millisToTime(updatedAt)})

	return r.persist(ctx, resp.Schema, raw, updatedAt)
}

// persist stores the applied configuration. The sync timestamp is written
// last, so a failed snapshot write makes the next cycle fetch again. It runs
// under mu, so nothing is written once ShutDown has cleared the namespace.
func (r *Repository) persist(ctx context.Context, schema *feature.Schema, raw []byte, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}

	etag := strconv.FormatInt(updatedAt, 10)
	snap := snapshot.ConfigSnapshot{
		Namespace: r.namespace,
		ETag:      &etag,
		CreatedAt: r.now(),
		JSON:      raw,
	}
	if schema.UpdatedAt > 0 {
		version := strconv.FormatFloat(schema.UpdatedAt, 'f', -1, 64)
		snap.Version = &version
	}

	id, err := r.snapshots.Replace(ctx, snap)
	if err != nil {
		r.log.ErrorContext(ctx, "failed to persist snapshot", logger.Error(err))
		return errors.Join(ErrPersistFailed, err)
	}
	if err := r.persistent.Put(ctx, LastSyncKey, updatedAt); err != nil {
		r.log.ErrorContext(ctx, "failed to store last sync timestamp", logger.SnapshotID(id), logger.Error(err))
		return errors.Join(ErrPersistFailed, err)
	}
	return nil
}

// install swaps the active flag set. Must be called with mu held.
func (r *Repository) install(schema *feature.Schema) feature.Changes {
	next := feature.NewFlagSet(schema.Features)
	prev := r.flags.Swap(next)
	r.results.Purge()
	r.metrics.Flags(next.Len())
	return next.Diff(prev)
}

func (r *Repository) publish(ctx context.Context, ev ChangeEvent) {
	if ev.Changes.Empty() {
		return
	}
	if dropped := r.events.Broadcast(ctx, ev); dropped > 0 {
		r.log.WarnContext(ctx, "change event dropped for slow subscribers", slog.Int("subscribers", dropped))
	}
}

// GetFlagConfig returns the active configuration of key.
func (r *Repository) GetFlagConfig(key string) (*feature.Feature, bool) {
	return r.flags.Load().Get(key)
}

// Flags returns the active flag set. The result may be nil before the first
// install and after ShutDown; a nil set is empty.
func (r *Repository) Flags() *feature.FlagSet {
	return r.flags.Load()
}

// Results returns the evaluation result cache. It is purged whenever the
// flag set changes.
func (r *Repository) Results() *cache.ResultCache[feature.Resolution] {
	return r.results
}

// OnContextChanged drops cached results when the evaluation context changes.
func (r *Repository) OnContextChanged(old, next feature.EvaluationContext) {
	if old.Fingerprint() == next.Fingerprint() {
		return
	}
	r.results.Purge()
	r.log.Debug("evaluation context changed, results purged")
}

// LastSync returns when the last applied configuration was updated upstream.
func (r *Repository) LastSync(ctx context.Context) (time.Time, bool) {
	ms, ok, err := cache.GetAs[int64](ctx, r.persistent, LastSyncKey)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return millisToTime(ms), true
}

// Subscribe streams flag set changes until ctx is done, the subscriber is
// closed or the repository shuts down. Events are dropped for subscribers
// whose buffer is full.
func (r *Repository) Subscribe(ctx context.Context) broadcast.Subscriber[ChangeEvent] {
	return r.events.Subscribe(ctx)
}

// ShutDown clears the flag set, the result cache and the persistent
// namespace, and closes all subscriptions. Further syncs fail with
// ErrClosed. It is safe to call more than once.
func (r *Repository) ShutDown(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	r.flags.Store(nil)
	r.results.Purge()
	r.synced = false
	r.mu.Unlock()

	_ = r.events.Close()
	r.metrics.Flags(0)

	if err := r.persistent.InvalidateNamespace(ctx); err != nil {
		r.log.ErrorContext(ctx, "failed to invalidate persistent namespace", logger.Error(err))
		return err
	}
	r.log.InfoContext(ctx, "repository shut down")
	return nil
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
