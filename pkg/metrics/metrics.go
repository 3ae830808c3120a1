package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreErrCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetings",
		Subsystem: "store",
		Name:      "store_err_count",
	}, []string{"method"})
	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meetings",
		Subsystem: "store",
		Name:      "store_duration",
	}, []string{"method"})
	HubSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "meetings",
		Subsystem: "hub",
		Name:      "hub_subscribers",
	}, []string{"stream"})
	HubPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetings",
		Subsystem: "hub",
		Name:      "hub_published_count",
	}, []string{"stream"})
	HubDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetings",
		Subsystem: "hub",
		Name:      "hub_dropped_count",
	}, []string{"stream"})
	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetings",
		Subsystem: "live",
		Name:      "location_updates_count",
	})
)
