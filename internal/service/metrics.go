package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "configctx",
		Name:      "resolutions_total",
		Help:      "Number of config context renders that ran the resolver",
	})

	resolutionIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "configctx",
		Name:      "resolution_issues_total",
		Help:      "Issues reported while resolving, by kind",
	}, []string{"kind"})

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "configctx",
		Name:      "resolve_duration_seconds",
		Help:      "Time spent merging config contexts for one target",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "configctx",
		Name:      "cache_lookups_total",
		Help:      "Resolution cache lookups, by result",
	}, []string{"result"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "configctx",
		Name:      "sync_runs_total",
		Help:      "Directory sync runs, by result",
	}, []string{"result"})

	syncedContexts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "configctx",
		Name:      "synced_contexts",
		Help:      "Config contexts present after the last successful sync",
	})
)
