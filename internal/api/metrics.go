package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// localMapBuilds counts local map requests by mode and result
	localMapBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sectormap_local_map_builds_total",
		Help: "Local map requests by mode and result",
	}, []string{"mode", "result"})

	localMapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sectormap_local_map_duration_seconds",
		Help:    "Local map build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"mode"})

	localMapSectors = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sectormap_local_map_sectors",
		Help:    "Sectors per local map payload",
		Buckets: []float64{1, 5, 10, 28, 50, 100, 250},
	})

	pathFinds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sectormap_path_finds_total",
		Help: "Path finder requests by result",
	}, []string{"result"})

	pathDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sectormap_path_duration_seconds",
		Help:    "Path finder duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	visitsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sectormap_visits_total",
		Help: "Recorded visits by result",
	}, []string{"result"})

	// knowledgeConflicts counts optimistic write conflicts by scope kind
	knowledgeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sectormap_knowledge_conflicts_total",
		Help: "Knowledge version conflicts by scope kind",
	}, []string{"scope_kind"})

	eventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sectormap_event_subscribers",
		Help: "Open map event websocket connections",
	})
)
