// Package store is the node metadata store (§4.B): CRUD over the node
// record and the append-only event log, both held in the primary's
// database rather than in any local file.
package store

import "time"

// NodeType distinguishes the three roles a node record can hold.
type NodeType string

const (
	NodeTypePrimary NodeType = "PRIMARY"
	NodeTypeStandby NodeType = "STANDBY"
	NodeTypeWitness NodeType = "WITNESS"
)

// Node is the identity and topology record for one managed node (§3).
type Node struct {
	NodeID              int
	Name                string
	Conninfo            string
	ReplicationUser     string
	ReplicationSlotName string
	Priority            int
	Location            string
	Type                NodeType
	UpstreamNodeID      int // 0 means none
	Active              bool
	ConfigFile          string
}

// IsPrimary reports whether this record currently holds the primary role.
func (n Node) IsPrimary() bool { return n.Type == NodeTypePrimary }

// EventKind enumerates the event kinds named in §3.
type EventKind string

const (
	EventNodeRegister           EventKind = "node_register"
	EventStandbyClone           EventKind = "standby_clone"
	EventStandbyPromote         EventKind = "standby_promote"
	EventRepmgrdStart           EventKind = "repmgrd_start"
	EventRepmgrdFailoverPromote EventKind = "repmgrd_failover_promote"
	EventRepmgrdFailoverFollow  EventKind = "repmgrd_failover_follow"
	EventStandbySwitchover      EventKind = "standby_switchover"
	EventClusterCreated         EventKind = "cluster_created"
	EventNodeRejoin             EventKind = "node_rejoin"
	EventNodeUnregister         EventKind = "node_unregister"
)

// Event is one row of the append-only event log (§3).
type Event struct {
	NodeID    int
	Kind      EventKind
	Timestamp time.Time
	Success   bool
	Detail    string
}

// RecordStatus is the explicit three-way result of a lookup (§4.B):
// absence is a value, not an exception.
type RecordStatus int

const (
	StatusFound RecordStatus = iota
	StatusNotFound
	StatusError
)

func (s RecordStatus) String() string {
	switch s {
	case StatusFound:
		return "FOUND"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
