package lod

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel   = "error_type"
	queueLabel     = "queue"
	operationLabel = "operation"
	resultLabel    = "result"
	workerLabel    = "worker"

	resultOK    = "ok"
	resultError = "error"
)

var (
	lodStaleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_stale_requests_total",
		Help: "The number of requests discarded because their node was removed or changed.",
	}, []string{
		queueLabel,
	})

	lodDroppedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_dropped_requests_total",
		Help: "The number of requests dropped because their queue was full.",
	}, []string{
		queueLabel,
	})

	lodOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_operations_total",
		Help: "The number of structural operations applied to the quadtree.",
	}, []string{
		operationLabel,
	})

	lodMaterializations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_materializations_total",
		Help: "The number of patch materializations.",
	}, []string{
		resultLabel,
	})

	lodMaterializationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_materialization_errors_total",
		Help: "The errors that occurred while materializing a patch.",
	}, []string{
		errTypeLabel,
	})

	lodMaterializationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "lod_materialization_latency_seconds",
		Help: "The time to fetch the image and build the mesh of a patch.",
	})

	lodCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "lod_cycle_duration_seconds",
		Help: "The time spent in a worker cycle.",
	}, []string{
		workerLabel,
	})

	lodWorkerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_worker_errors_total",
		Help: "The number of failed or panicking worker iterations.",
	}, []string{
		workerLabel,
	})

	lodBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lod_batches_total",
		Help: "The number of decision batches fully applied.",
	})
)

func instrumentStaleRequest(queue string) {
	lodStaleRequests.With(prometheus.Labels{
		queueLabel: queue,
	}).Inc()
}

func instrumentDroppedRequest(queue string) {
	lodDroppedRequests.With(prometheus.Labels{
		queueLabel: queue,
	}).Inc()
}

func instrumentOperation(op string) {
	lodOperations.With(prometheus.Labels{
		operationLabel: op,
	}).Inc()
}

func instrumentMaterialization(duration time.Duration, err error) {
	if err != nil {
		lodMaterializations.With(prometheus.Labels{
			resultLabel: resultError,
		}).Inc()

		lodMaterializationErrors.With(prometheus.Labels{
			errTypeLabel: errors.Type(err),
		}).Inc()
		return
	}

	lodMaterializations.With(prometheus.Labels{
		resultLabel: resultOK,
	}).Inc()
	lodMaterializationLatency.Observe(duration.Seconds())
}

func instrumentCycle(worker string, start time.Time) {
	lodCycleDuration.With(prometheus.Labels{
		workerLabel: worker,
	}).Observe(time.Since(start).Seconds())
}

func instrumentWorkerError(worker string) {
	lodWorkerErrors.With(prometheus.Labels{
		workerLabel: worker,
	}).Inc()
}
