package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_open",
		Help: "Currently open client connections.",
	})

	sessionsAuthenticated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_authenticated",
		Help: "Currently authenticated sessions.",
	})

	messagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_routed_total",
		Help: "Messages accepted for routing, by route kind.",
	}, []string{"route"})

	filesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_files_relayed_total",
		Help: "File transfers stored and forwarded.",
	})

	commandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_command_errors_total",
		Help: "Command failures reported to clients, by error kind.",
	}, []string{"kind"})
)
