package webhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubdesk_webhook_events_total",
			Help: "Webhook requests that reached verification, by outcome",
		},
		[]string{"status"},
	)

	sinkDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clubdesk_webhook_sink_dropped_total",
			Help: "Validated events dropped because the consumer was not keeping up",
		},
	)

	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubdesk_webhook_registrations_total",
			Help: "Registration attempts against the external server, by result",
		},
		[]string{"result"},
	)
)
