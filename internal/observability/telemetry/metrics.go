package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_live_sessions",
		Help: "Number of stations with an open OCPP session",
	})

	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_transactions",
		Help: "Number of charging transactions currently active",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_energy_delivered_wh_total",
		Help: "Total energy delivered across completed transactions, in Wh",
	})

	// Infrastructure metrics
	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_total",
		Help: "Total OCPP messages by action and direction",
	}, []string{"action", "direction"})

	OCPPErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_errors_total",
		Help: "Total CALLERROR frames sent, by error code",
	}, []string{"code"})

	CommandLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "csms_command_latency_seconds",
		Help:    "Round-trip latency of CSMS-initiated commands",
		Buckets: prometheus.DefBuckets,
	})
)
