// Package metrics provides Prometheus metrics for the storage core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filecore_writes_total",
			Help: "Total number of write attempts by result",
		},
		[]string{"result"},
	)

	writtenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filecore_written_bytes_total",
			Help: "Total bytes committed by successful writes",
		},
	)

	conflictsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filecore_conflicts_resolved_total",
			Help: "Total number of writes committed under a suffixed name",
		},
	)

	deletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filecore_deletes_total",
			Help: "Total number of deletes by mode",
		},
		[]string{"mode"},
	)

	walkSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filecore_walk_skipped_entries_total",
			Help: "Total number of entries skipped during walks because of errors",
		},
	)

	archiveEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filecore_archive_entries_total",
			Help: "Total number of files appended to archives",
		},
	)

	archivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filecore_archives_total",
			Help: "Total number of archives by result",
		},
		[]string{"result"},
	)

	analyzeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filecore_analyze_runs_total",
			Help: "Total number of analysis command runs by result",
		},
		[]string{"result"},
	)
)

// Result labels.
const (
	ResultOK      = "ok"
	ResultAborted = "aborted"
	ResultError   = "error"

	ModeRecycle   = "recycle"
	ModePermanent = "permanent"
)

// RecordWrite records the outcome of a write.
func RecordWrite(result string, bytes int64, renamed bool) {
	writesTotal.WithLabelValues(result).Inc()
	if result == ResultOK {
		writtenBytes.Add(float64(bytes))
		if renamed {
			conflictsResolved.Inc()
		}
	}
}

// RecordDelete records a delete in the given mode.
func RecordDelete(mode string) {
	deletesTotal.WithLabelValues(mode).Inc()
}

// RecordWalkSkip records an entry skipped during a walk.
func RecordWalkSkip() {
	walkSkipped.Inc()
}

// RecordArchiveEntry records a file appended to an archive.
func RecordArchiveEntry() {
	archiveEntries.Inc()
}

// RecordArchive records the outcome of an archive build.
func RecordArchive(result string) {
	archivesTotal.WithLabelValues(result).Inc()
}

// RecordAnalyze records the outcome of an analysis run.
func RecordAnalyze(result string) {
	analyzeRuns.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
