package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages of a publish.
const (
	stageEncode = "encode"
	stageWrite  = "write"
)

var (
	messagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_activity_messages_published_total",
			Help: "Session activity messages written to Kafka",
		},
		[]string{"topic", "event_type"},
	)

	publishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_activity_publish_failures_total",
			Help: "Session activity messages that could not be published, by stage",
		},
		[]string{"topic", "stage"},
	)

	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_activity_publish_duration_seconds",
			Help:    "Time spent writing one activity message to Kafka",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"topic"},
	)
)
