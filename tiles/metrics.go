package tiles

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	layerLabel   = "layer"
	sharedLabel  = "shared"
)

var (
	tileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_fetches_total",
		Help: "The number of tile images fetched from the imagery server.",
	}, []string{
		layerLabel,
		sharedLabel,
	})

	tileFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_fetch_errors_total",
		Help: "The errors that occurred while fetching a tile image.",
	}, []string{
		layerLabel,
		errTypeLabel,
	})

	tileFetchBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_fetch_bytes_total",
		Help: "The number of bytes received from the imagery server.",
	}, []string{
		layerLabel,
	})

	tileFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "tiles_fetch_latency_seconds",
		Help: "The time to fetch a tile image.",
	}, []string{
		layerLabel,
	})
)

func instrumentFetch(layer Layer, start time.Time, shared bool, size int, err error) {
	if err != nil {
		tileFetchErrors.With(prometheus.Labels{
			layerLabel:   layer.String(),
			errTypeLabel: errors.Type(err),
		}).Inc()
		return
	}

	sharedValue := "false"
	if shared {
		sharedValue = "true"
	}

	tileFetches.With(prometheus.Labels{
		layerLabel:  layer.String(),
		sharedLabel: sharedValue,
	}).Inc()

	if shared {
		return
	}

	tileFetchBytes.With(prometheus.Labels{
		layerLabel: layer.String(),
	}).Add(float64(size))

	tileFetchLatency.With(prometheus.Labels{
		layerLabel: layer.String(),
	}).Observe(time.Since(start).Seconds())
}
