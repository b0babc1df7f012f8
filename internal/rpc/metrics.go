package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_requests_total",
		Help: "Requests sent through the response waiter by outcome",
	}, []string{"event", "outcome"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpc_request_duration_seconds",
		Help:    "Time from publish to matching response",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"event"})

	consumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_consumer_messages_total",
		Help: "Requests processed by the work queue consumer",
	}, []string{"event", "status"})
	consumerMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpc_consumer_malformed_total",
		Help: "Undecodable messages dropped by the work queue consumer",
	})
	consumerPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpc_consumer_publish_errors_total",
		Help: "Responses that could not be published",
	})
	consumerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpc_consumer_reconnects_total",
		Help: "Times the consumer lost or failed to open its broker connection",
	})
)

const (
	outcomeOK          = "ok"
	outcomeTimeout     = "timeout"
	outcomeUnavailable = "unavailable"
	outcomeCanceled    = "canceled"
)
