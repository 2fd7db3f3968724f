// Package metrics holds the prometheus collectors for job outcomes and
// folder moves. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kiosksync"

type Collector struct {
	registry *prometheus.Registry

	UploadJobs     *prometheus.CounterVec
	UploadDuration *prometheus.HistogramVec
	FolderMoves    *prometheus.CounterVec
	SyncRuns       *prometheus.CounterVec
	FoldersCreated prometheus.Counter
	HaltedConfigs  prometheus.Counter
	QueueDepth     *prometheus.GaugeVec
}

// New creates a Collector on its own registry, including Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		UploadJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_jobs_total",
			Help:      "Upload jobs that reached a terminal state",
		}, []string{"status", "error_kind"}),
		UploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent uploading one asset to a kiosk folder",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		FolderMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "folder_moves_total",
			Help:      "Remote files moved between kiosk folders",
		}, []string{"direction"}),
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Kiosk sync jobs by sync type and outcome",
		}, []string{"sync_type", "status"}),
		FoldersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "folders_created_total",
			Help:      "Remote folders created while provisioning kiosk trees",
		}),
		HaltedConfigs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_config_halts_total",
			Help:      "Times a provider config was halted for the rest of a batch",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_queue_jobs",
			Help:      "Upload jobs currently stored, by status",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.UploadJobs,
		c.UploadDuration,
		c.FolderMoves,
		c.SyncRuns,
		c.FoldersCreated,
		c.HaltedConfigs,
		c.QueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveUpload(status, errorKind string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.UploadJobs.WithLabelValues(status, errorKind).Inc()
	c.UploadDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveMove counts a performed move; direction is the target folder type.
func (c *Collector) ObserveMove(direction string) {
	if c == nil {
		return
	}
	c.FolderMoves.WithLabelValues(direction).Inc()
}

func (c *Collector) ObserveSync(syncType, status string) {
	if c == nil {
		return
	}
	c.SyncRuns.WithLabelValues(syncType, status).Inc()
}

func (c *Collector) ObserveFoldersCreated(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.FoldersCreated.Add(float64(n))
}

func (c *Collector) ObserveHalt() {
	if c == nil {
		return
	}
	c.HaltedConfigs.Inc()
}

func (c *Collector) SetQueueDepth(status string, n int64) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(status).Set(float64(n))
}
