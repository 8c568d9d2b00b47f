package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the pipeline packages.
const (
	ReasonMissingTextFields = "missing_text_fields"
	ReasonMissingRequired   = "missing_required"
	ReasonDuplicate         = "duplicate"
	ReasonEnrichmentFailed  = "enrichment_failed"
	ReasonCleanup           = "cleanup"

	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_messages_ingested_total",
		Help: "The total number of ingested chat messages",
	}, []string{"source"})

	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_messages_rejected_total",
		Help: "Inbound records dropped by validation",
	}, []string{"source"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_runs_total",
		Help: "Pipeline runs by trigger and final status",
	}, []string{"trigger", "status"})

	RunsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_runs_reclaimed_total",
		Help: "Stuck runs force-finalized as failed",
	})

	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_run_duration_seconds",
		Help:    "Duration of a pipeline run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	GroupsFormed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_groups_formed_total",
		Help: "Message groups emitted by provenance",
	}, []string{"provenance"})

	MessagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_messages_skipped_total",
		Help: "Messages consumed without becoming part of a product",
	})

	MessagesDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_messages_deferred_total",
		Help: "Messages left unconsumed as ungrouped tail",
	})

	ProductsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_products_created_total",
		Help: "Products activated by the assembly pipeline",
	})

	ProductsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_products_deleted_total",
		Help: "Products deleted by compensation or cleanup",
	}, []string{"reason"})

	EnrichmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_enrichment_request_duration_seconds",
		Help:    "Duration of enrichment adapter requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	EnrichmentRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_enrichment_retries_total",
		Help: "Enrichment attempts that were retried",
	}, []string{"operation"})

	MediaDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_media_downloads_total",
		Help: "Media downloads by status",
	}, []string{"status"})

	Backlog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_backlog_size",
		Help: "Unprocessed messages inside the lookback window",
	}, []string{"source"})
)
