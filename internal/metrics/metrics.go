// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_uploads_total",
		Help: "Number of successfully stored objects.",
	})

	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_upload_bytes_total",
		Help: "Payload bytes accepted across all uploads.",
	})

	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_downloads_total",
		Help: "Number of successfully served downloads.",
	})

	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_download_bytes_total",
		Help: "Payload bytes written to clients across all downloads.",
	})

	DeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_deletes_total",
		Help: "Number of objects removed by explicit delete requests.",
	})

	QuotaDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blobvault_quota_denied_total",
		Help: "Transfers denied by quota admission, by direction.",
	}, []string{"direction"})

	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_cleanup_sweeps_total",
		Help: "Number of completed eviction sweeps.",
	})

	SweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_cleanup_deleted_total",
		Help: "Objects deleted by eviction sweeps.",
	})

	SweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blobvault_cleanup_errors_total",
		Help: "Per-object errors recorded by eviction sweeps.",
	})
)
