// ABOUTME: Prometheus counters for conversation orchestration
// ABOUTME: Exposed via the gateway's /metrics endpoint when enabled

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesIngested counts inbound patient messages by alert outcome
	// ("alert" or "ok").
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caregateway_messages_ingested_total",
		Help: "Inbound patient messages processed, labeled by alert outcome.",
	}, []string{"outcome"})

	// AutoRepliesSent counts automatic supportive replies delivered.
	AutoRepliesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caregateway_auto_replies_sent_total",
		Help: "Automatic supportive replies delivered to patients.",
	})

	// ViewersDropped counts live viewers torn down for not draining
	// their delivery channel.
	ViewersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caregateway_viewers_dropped_total",
		Help: "Live viewer subscriptions torn down as stalled.",
	})

	// ReminderSends counts scheduled reminder deliveries by result
	// ("ok" or "failed").
	ReminderSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caregateway_reminder_sends_total",
		Help: "Scheduled reminder messages, labeled by delivery result.",
	}, []string{"result"})
)
