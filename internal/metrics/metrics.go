// Package metrics holds the Prometheus instruments exposed by repmgrd.
// The instruments themselves live here regardless of where the registry
// listener is wired up, as package-level promauto vars.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RoleGauge reports 1 for the role this node currently believes it holds
// (primary/standby/witness) and 0 for the others, labelled by node_name.
var RoleGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "repmgr",
		Subsystem: "monitor",
		Name:      "node_role",
	}, []string{"node_name", "role"},
)

// ElectionDuration observes the wall-clock time spent inside
// Engine.RunElection, from the initial jitter sleep to the final outcome.
var ElectionDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "repmgr",
		Subsystem: "election",
		Name:      "duration_seconds",
		Buckets:   prometheus.DefBuckets,
	},
)

// ReconnectAttempts counts consecutive upstream probe failures observed by
// the monitor loop, labelled by node_name.
var ReconnectAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "repmgr",
		Subsystem: "monitor",
		Name:      "reconnect_attempts_total",
	}, []string{"node_name"},
)

// ReplicationLagBytes is registered for the receive/replay LSN delta in
// bytes; no code in this module sets it, so it exports no samples.
var ReplicationLagBytes = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "repmgr",
		Subsystem: "monitor",
		Name:      "replication_lag_bytes",
	}, []string{"node_name"},
)

// SetRole updates RoleGauge so that exactly one of the three role labels
// for nodeName reads 1.
func SetRole(nodeName, currentRole string) {
	for _, role := range []string{"primary", "standby", "witness"} {
		value := 0.0
		if role == currentRole {
			value = 1.0
		}
		RoleGauge.WithLabelValues(nodeName, role).Set(value)
	}
}
