package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cachedScopesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetmod_cached_scopes",
			Help: "Number of moderable scopes currently held in the scope cache.",
		},
	)

	scopeRefreshCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_scope_refreshes_total",
			Help: "Scope cache refresh attempts by result.",
		},
		[]string{"result"},
	)

	scopeProbeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_scope_probes_total",
			Help: "Per-scope permission probes during refresh, by result.",
		},
		[]string{"result"},
	)

	resolveCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_resolves_total",
			Help: "Racing resolver invocations by result.",
		},
		[]string{"result"},
	)

	resolveProbeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_resolve_probes_total",
			Help: "Per-scope resolver probes by path (membership or scan) and result.",
		},
		[]string{"path", "result"},
	)

	rightsChangeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_rights_changes_total",
			Help: "Rights change attempts by addressing strategy and result.",
		},
		[]string{"strategy", "result"},
	)

	historyPurgeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_history_purges_total",
			Help: "Best-effort history purges following full exclusions, by result.",
		},
		[]string{"result"},
	)

	dispatchResultCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_dispatch_scopes_total",
			Help: "Per-scope outcomes of fleet dispatches, by action and result.",
		},
		[]string{"action", "result"},
	)

	dispatchDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetmod_dispatch_duration_seconds",
			Help:    "Wall time of one fleet dispatch across all chunks.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"action"},
	)

	authResultCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmod_admin_auth_total",
			Help: "Admin API authentication attempts by result.",
		},
		[]string{"result"},
	)
)

// SetCachedScopes records the current scope cache size.
func SetCachedScopes(n int) {
	cachedScopesGauge.Set(float64(n))
}

// IncrementScopeRefresh counts one refresh attempt.
func IncrementScopeRefresh(result string) {
	scopeRefreshCounter.WithLabelValues(result).Inc()
}

// IncrementScopeProbe counts one permission probe.
func IncrementScopeProbe(result string) {
	scopeProbeCounter.WithLabelValues(result).Inc()
}

// IncrementResolve counts one resolver invocation.
func IncrementResolve(result string) {
	resolveCounter.WithLabelValues(result).Inc()
}

// IncrementResolveProbe counts one per-scope resolver probe.
func IncrementResolveProbe(path, result string) {
	resolveProbeCounter.WithLabelValues(path, result).Inc()
}

// IncrementRightsChange counts one rights change attempt.
func IncrementRightsChange(strategy, result string) {
	rightsChangeCounter.WithLabelValues(strategy, result).Inc()
}

// IncrementHistoryPurge counts one history purge attempt.
func IncrementHistoryPurge(result string) {
	historyPurgeCounter.WithLabelValues(result).Inc()
}

// AddDispatchResults records the per-scope tallies of one dispatch.
func AddDispatchResults(action string, succeeded, failed int) {
	dispatchResultCounter.WithLabelValues(action, "ok").Add(float64(succeeded))
	dispatchResultCounter.WithLabelValues(action, "failed").Add(float64(failed))
}

// ObserveDispatchDuration records the wall time of one dispatch.
func ObserveDispatchDuration(action string, d time.Duration) {
	dispatchDurationHistogram.WithLabelValues(action).Observe(d.Seconds())
}

// IncrementAuthSuccess counts one successful admin API authentication.
func IncrementAuthSuccess() {
	authResultCounter.WithLabelValues("ok").Inc()
}

// IncrementAuthFailure counts one failed admin API authentication.
func IncrementAuthFailure(reason string) {
	authResultCounter.WithLabelValues(reason).Inc()
}
