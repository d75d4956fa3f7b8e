// Package repository keeps the active feature flag configuration of one
// namespace in memory and in sync with a remote source.
//
// A Repository combines three collaborators:
//
//   - a transport.Transport that fetches the configuration, either fully or
//     as a time-only probe of its modification timestamp;
//   - a snapshot.Store that persists every applied configuration so the next
//     process start can warm up without network access;
//   - a cache.Cache holding the last applied timestamp under LastSyncKey.
//
// Sync cycle:
//
//	no stored timestamp          -> full fetch
//	stored timestamp             -> time-only probe
//	probe timestamp differs      -> full fetch
//	full response w/o updated-at -> nothing applied
//	full response                -> swap flag set, purge results,
//	                                store snapshot, store timestamp
//
// The flag set is an immutable feature.FlagSet behind an atomic pointer, so
// readers never block and never observe a partially applied configuration.
// Concurrent SyncFlags calls are coalesced into one cycle.
package repository
