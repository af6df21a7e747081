// Package metrics holds the prometheus instruments. Everything registers
// through promauto at init, so importing a package that records a metric
// is enough to expose it on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photark_uploads_total",
		Help: "Asset uploads by outcome",
	}, []string{"status"}) // status=created|duplicate|replaced|rejected

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photark_upload_bytes_total",
		Help: "Original bytes accepted into the blob store",
	})

	SyncLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photark_sync_lines_total",
		Help: "Sync stream lines emitted by entity type",
	}, []string{"type"})

	SyncResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photark_sync_resets_total",
		Help: "Full-resync resets issued to stale or flagged sessions",
	})

	SyncStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photark_sync_streams_active",
		Help: "Sync streams currently being served",
	})

	BlobReadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photark_blob_read_bytes_total",
		Help: "Bytes served from the blob store",
	})

	AccessDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photark_access_denials_total",
		Help: "Entity ids filtered out by permission checks",
	}, []string{"permission"})

	TrashPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photark_trash_purged_total",
		Help: "Assets hard-deleted by trash empty",
	})
)
