// Package cache provides the namespaced caches used by the flag repository.
//
// Three implementations cover different lifetimes:
//
//   - MemoryCache keeps values in process (jellydator/ttlcache) and loses them
//     on restart. An optional TTL expires entries.
//   - PersistentCache stores values in a kv.Store, next to a type tag that lets
//     Get return the original scalar type after a restart.
//   - ResultCache is a bounded LRU of evaluation results keyed by flag key and
//     context fingerprint.
//
// MemoryCache and PersistentCache implement the Cache interface. Keys are
// stored as "<namespace>:<key>" and InvalidateNamespace removes exactly the
// keys of one namespace, leaving siblings that share the same store intact:
//
//	store := kv.NewMemoryStore()
//	flags := cache.NewPersistentCache("flags", store)
//	other := flags.WithNamespace("other")
//
//	_ = flags.Put(ctx, "last_sync_ts", int64(1700000000000))
//	ts, ok, err := cache.GetAs[int64](ctx, flags, "last_sync_ts")
//
//	_ = flags.InvalidateNamespace(ctx) // "other:*" keys survive
//
// PersistentCache narrows float64 values to float32 unless created with
// WithNativeDoubles. The narrowing is lossy and intentional for stores that
// have no double type.
package cache
