package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	logFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_console_live_log_frames_total",
		Help: "Live log frames processed grouped by outcome",
	}, []string{"outcome"})

	streamReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_console_live_log_reconnects_total",
		Help: "Scheduled live log reconnects grouped by reason",
	}, []string{"reason"})

	streamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_console_live_log_connected",
		Help: "1 while the live log stream has an open response body",
	})

	logCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_console_live_log_cache_entries",
		Help: "Entries currently retained in the live log cache",
	})

	archiveBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_console_archive_write_duration_seconds",
		Help:    "Duration of archive writes performed by the worker",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	archiveEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_console_archive_entries_total",
		Help: "Log entries handled by the archive grouped by outcome",
	}, []string{"status"})
)

// ObserveLogFrame counts a processed frame ("accepted" or "malformed").
func ObserveLogFrame(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	logFramesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStreamReconnect counts a scheduled reconnect ("closed" or "error").
func ObserveStreamReconnect(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	streamReconnectsTotal.WithLabelValues(reason).Inc()
}

// SetStreamConnected records the connection flag.
func SetStreamConnected(connected bool) {
	if connected {
		streamConnected.Set(1)
		return
	}
	streamConnected.Set(0)
}

// SetLogCacheSize records the current cache length.
func SetLogCacheSize(n int) {
	logCacheSize.Set(float64(n))
}

// ObserveArchiveWrite records the duration and outcome of an archive write.
func ObserveArchiveWrite(duration time.Duration, inserted int, success bool) {
	archiveBatchDuration.Observe(duration.Seconds())
	if !success {
		archiveEntriesTotal.WithLabelValues("failed").Inc()
		return
	}
	archiveEntriesTotal.WithLabelValues("stored").Add(float64(inserted))
}
