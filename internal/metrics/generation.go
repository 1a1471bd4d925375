// Package metrics exposes Prometheus collectors for the generation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aistudio_attempts_total",
		Help: "Generation attempts by result (succeeded, failed, open_failed, timed_out)",
	}, []string{"result"})

	classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aistudio_failure_classifications_total",
		Help: "Failed attempts by recovery class",
	}, []string{"class"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aistudio_payload_mutations_total",
		Help: "Payload degradations applied before a retry, by recovery class",
	}, []string{"class"})

	attemptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aistudio_attempt_duration_seconds",
		Help:    "Wall time of a single generation attempt",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	imagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aistudio_images_total",
		Help: "Images finished by the sequencer, by outcome (ok, failed)",
	}, []string{"outcome"})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aistudio_batches_total",
		Help: "Batch start requests by result (started, rejected)",
	}, []string{"result"})

	batchRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aistudio_batch_running",
		Help: "1 while a batch is in flight, 0 otherwise",
	})
)

// RecordAttempt counts one finished attempt and its duration.
func RecordAttempt(result string, seconds float64) {
	attemptsTotal.WithLabelValues(result).Inc()
	if seconds >= 0 {
		attemptDuration.Observe(seconds)
	}
}

// RecordClassification counts a failure mapped to a recovery class.
func RecordClassification(class string) {
	classificationsTotal.WithLabelValues(class).Inc()
}

// RecordMutation counts a degraded retry payload.
func RecordMutation(class string) {
	mutationsTotal.WithLabelValues(class).Inc()
}

// RecordImage counts an image whose attempt loop has finished.
func RecordImage(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	imagesTotal.WithLabelValues(outcome).Inc()
}

// RecordBatchStart counts accepted and rejected batch starts.
func RecordBatchStart(accepted bool) {
	result := "rejected"
	if accepted {
		result = "started"
	}
	batchesTotal.WithLabelValues(result).Inc()
}

// SetBatchRunning flips the in-flight gauge.
func SetBatchRunning(running bool) {
	v := 0.0
	if running {
		v = 1
	}
	batchRunning.Set(v)
}

var historyQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "aistudio_history_query_duration_seconds",
	Help:    "Batch history SQL statements by operation and result (ok, error)",
	Buckets: prometheus.DefBuckets,
}, []string{"op", "result"})

// RecordHistoryQuery observes one batch history statement.
func RecordHistoryQuery(op string, err error, seconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	historyQueryDuration.WithLabelValues(op, result).Observe(seconds)
}
