package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanskara_connection_states_total",
			Help: "Connection state transitions by state",
		},
		[]string{"state"},
	)

	reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sanskara_reconnect_attempts_total",
		Help: "Scheduled reconnection attempts",
	})

	heartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sanskara_heartbeats_total",
		Help: "Heartbeat pings sent",
	})

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanskara_messages_total",
			Help: "Realtime messages by direction and type",
		},
		[]string{"direction", "type"}, // in|out
	)

	historyCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanskara_history_cache_total",
			Help: "History cache lookups by result",
		},
		[]string{"result"}, // hit|miss
	)
)

func init() {
	prometheus.MustRegister(
		connectionStates,
		reconnectsTotal,
		heartbeatsTotal,
		messagesTotal,
		historyCacheTotal,
	)
}

func IncState(state string)           { connectionStates.WithLabelValues(state).Inc() }
func IncReconnect()                   { reconnectsTotal.Inc() }
func IncHeartbeat()                   { heartbeatsTotal.Inc() }
func IncMessage(dir, typ string)      { messagesTotal.WithLabelValues(dir, typ).Inc() }
func IncCacheLookup(result string)    { historyCacheTotal.WithLabelValues(result).Inc() }
