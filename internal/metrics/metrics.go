package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Topic keys are unbounded, so events are labelled by kind instead:
// "message" for container topics, "presence" for online-users.
var (
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connectly_live_connections",
		Help: "Number of open live channel connections",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connectly_online_users",
		Help: "Number of users in the presence registry",
	})

	LiveEventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connectly_live_events_sent_total",
		Help: "Events queued to live channel clients",
	}, []string{"kind"})

	LiveEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connectly_live_events_dropped_total",
		Help: "Events dropped because a client or the hub queue was full",
	}, []string{"kind"})

	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connectly_messages_ingested_total",
		Help: "Message submissions by container kind and outcome",
	}, []string{"container", "outcome"})

	UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connectly_upload_duration_seconds",
		Help:    "Attachment upload latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "outcome"})
)
