package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of messages committed, by delivery mode",
		},
		[]string{"mode"},
	)

	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_send_failures_total",
			Help: "Total number of rejected or failed sends, by reason",
		},
		[]string{"reason"},
	)

	LedgerIncrements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ledger_increments_total",
			Help: "Total number of ledger rows incremented, by delivery mode",
		},
		[]string{"mode"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notifications_total",
			Help: "Notification events by outcome (published, failed, dropped)",
		},
		[]string{"outcome"},
	)

	WorkerProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total number of jobs processed by worker pools",
		},
		[]string{"pool"},
	)

	WorkerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_active_goroutines",
			Help: "Number of active worker goroutines per pool",
		},
		[]string{"pool"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current RabbitMQ notification queue depth per team",
		},
		[]string{"team"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(SendFailures)
	prometheus.MustRegister(LedgerIncrements)
	prometheus.MustRegister(Notifications)
	prometheus.MustRegister(WorkerProcessed)
	prometheus.MustRegister(WorkerActive)
	prometheus.MustRegister(QueueDepth)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
