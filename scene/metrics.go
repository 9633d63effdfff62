package scene

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sceneAttachedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_attached_nodes",
		Help: "The number of terrain patches attached to the scene.",
	})

	sceneVisibleNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_visible_nodes",
		Help: "The number of visible terrain patches.",
	})

	sceneAttachments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_attachments_total",
		Help: "The number of terrain patches attached to the scene since start.",
	})
)
