// Package metrics counts and times svcrunner operations. svcrunner is a
// short-lived CLI, so instead of serving /metrics it writes the registry to a
// node_exporter textfile collector file after each command.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the svcrunner metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	backupSize *prometheus.GaugeVec
	volumes    *prometheus.GaugeVec
}

// New returns a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcrunner_operations_total",
				Help: "Lifecycle and backup operations by outcome.",
			},
			[]string{"operation", "service", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "svcrunner_operation_duration_seconds",
				Help:    "Wall-clock duration of lifecycle and backup operations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800},
			},
			[]string{"operation", "service"},
		),
		backupSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "svcrunner_backup_size_bytes",
				Help: "Size of the most recent backup archive.",
			},
			[]string{"service"},
		),
		volumes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "svcrunner_service_volumes",
				Help: "Runtime volumes of a service as of its last provisioning.",
			},
			[]string{"service"},
		),
	}
	r.registry.MustRegister(r.operations, r.duration, r.backupSize, r.volumes)
	return r
}

// Observe records one finished operation. result is "success", "nochange",
// "notimplemented" or "error".
func (r *Recorder) Observe(operation, service, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, service, result).Inc()
	r.duration.WithLabelValues(operation, service).Observe(elapsed.Seconds())
}

// BackupSize records the size of a finished backup archive.
func (r *Recorder) BackupSize(service string, bytes int64) {
	if r == nil {
		return
	}
	r.backupSize.WithLabelValues(service).Set(float64(bytes))
}

// Volumes records how many runtime volumes a service has.
func (r *Recorder) Volumes(service string, n int) {
	if r == nil {
		return
	}
	r.volumes.WithLabelValues(service).Set(float64(n))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes the current metrics to path for the node_exporter
// textfile collector. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
