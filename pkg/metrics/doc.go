// Package metrics exposes Prometheus instrumentation for the flag sync engine:
// sync cycles per fetch mode and outcome, fetch latency, evaluations per
// reason, result cache hit rate, consecutive poller failures and the size of
// the active flag set.
//
// All methods are safe on a nil *Metrics, so components accept an optional
// collector without branching:
//
//	m := metrics.New(prometheus.NewRegistry(), prometheus.Labels{"app": "checkout"})
//	repo, err := repository.New(t, snaps, cache, repository.WithMetrics(m))
package metrics
