package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videos_ms_uploads_total",
			Help: "Total number of uploads by terminal status or rejection code",
		},
		[]string{"status"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "videos_ms_upload_bytes_total",
			Help: "Total number of upload bytes written to disk",
		},
	)
)

// Transcode metrics
var (
	TranscodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videos_ms_transcode_jobs_total",
			Help: "Total number of transcode jobs by terminal status",
		},
		[]string{"status"},
	)

	TranscodeStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videos_ms_transcode_stage_duration_seconds",
			Help:    "Duration of one quality stage in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"quality", "status"},
	)

	TranscodeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videos_ms_transcode_retries_total",
			Help: "Total number of automatic retries after a transient failure",
		},
		[]string{"step"}, // "probe", "transcode"
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "videos_ms_probe_duration_seconds",
			Help:    "Duration of metadata extraction in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Lifecycle metrics
var (
	ActiveJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "videos_ms_active_jobs",
			Help: "Number of registered jobs by kind",
		},
		[]string{"kind"},
	)

	ProcessesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videos_ms_external_processes_in_flight",
			Help: "Number of ffmpeg/ffprobe processes holding a slot",
		},
	)

	ForcedTerminationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "videos_ms_forced_terminations_total",
			Help: "Total number of jobs cancelled because a drain timed out",
		},
	)

	StorageUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videos_ms_storage_usage_bytes",
			Help: "Combined uploads and streams usage measured by the last budget check",
		},
	)

	StorageFreedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videos_ms_storage_freed_bytes_total",
			Help: "Total bytes freed by cleanup sweeps",
		},
		[]string{"reason"}, // "orphan", "eviction"
	)
)

// Broadcast metrics
var (
	BroadcastPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videos_ms_broadcast_published_total",
			Help: "Total number of progress events handed to the sink",
		},
		[]string{"topic"},
	)

	BroadcastDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videos_ms_broadcast_dropped_total",
			Help: "Total number of progress events dropped because the buffer was full",
		},
		[]string{"topic"},
	)

	BroadcastErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videos_ms_broadcast_errors_total",
			Help: "Total number of sink publish failures",
		},
		[]string{"topic"},
	)
)
