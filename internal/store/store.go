package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/gateway"
)

// Notifier receives a best-effort copy of every event, independent of
// whether the write to the primary succeeded. §4.B: "on failure it still
// triggers external notifications so operators are not blinded when the
// primary is down."
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// noopNotifier is used when the caller wires no notifier.
type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) {}

// PGStore is the node metadata store backed by the primary's database. It
// talks to the primary through a gateway.Querier so it can be driven by the
// gateway's pooled connection or, in tests, by a fake.
type PGStore struct {
	q        gateway.Querier
	notifier Notifier
	log      logrus.FieldLogger
}

// New builds a PGStore over an already-open connection to the primary.
func New(q gateway.Querier, notifier Notifier, log logrus.FieldLogger) *PGStore {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &PGStore{q: q, notifier: notifier, log: log}
}

const nodeColumns = `node_id, node_name, conninfo, replication_user, replication_slot_name,
	priority, location, type, upstream_node_id, active, config_file`

func scanNode(row interface{ Scan(...interface{}) error }) (Node, error) {
	var n Node
	var replicationUser, replicationSlotName, configFile sql.NullString
	var upstream sql.NullInt64
	var typ string

	err := row.Scan(&n.NodeID, &n.Name, &n.Conninfo, &replicationUser, &replicationSlotName,
		&n.Priority, &n.Location, &typ, &upstream, &n.Active, &configFile)
	if err != nil {
		return Node{}, err
	}

	n.ReplicationUser = replicationUser.String
	n.ReplicationSlotName = replicationSlotName.String
	n.ConfigFile = configFile.String
	n.UpstreamNodeID = int(upstream.Int64)
	n.Type = NodeType(typ)

	return n, nil
}

// GetNode fetches a single node by id.
func (s *PGStore) GetNode(ctx context.Context, nodeID int) (Node, RecordStatus, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM repl_nodes WHERE node_id = $1`, nodeID)
	n, err := scanNode(row)
	switch {
	case err == sql.ErrNoRows:
		return Node{}, StatusNotFound, nil
	case err != nil:
		return Node{}, StatusError, fmt.Errorf("store: get node %d: %w", nodeID, err)
	default:
		return n, StatusFound, nil
	}
}

// GetNodeByName fetches a single node by its configured name.
func (s *PGStore) GetNodeByName(ctx context.Context, name string) (Node, RecordStatus, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM repl_nodes WHERE node_name = $1`, name)
	n, err := scanNode(row)
	switch {
	case err == sql.ErrNoRows:
		return Node{}, StatusNotFound, nil
	case err != nil:
		return Node{}, StatusError, fmt.Errorf("store: get node %q: %w", name, err)
	default:
		return n, StatusFound, nil
	}
}

// GetPrimaryNode returns the single active primary, or NOT_FOUND if none is
// registered (§4.B). Invariant §3: at most one row can ever match.
func (s *PGStore) GetPrimaryNode(ctx context.Context) (Node, RecordStatus, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM repl_nodes WHERE type = $1 AND active = true`,
		string(NodeTypePrimary))
	n, err := scanNode(row)
	switch {
	case err == sql.ErrNoRows:
		return Node{}, StatusNotFound, nil
	case err != nil:
		return Node{}, StatusError, fmt.Errorf("store: get primary node: %w", err)
	default:
		return n, StatusFound, nil
	}
}

// GetActiveSiblingNodes returns the active nodes sharing upstream,
// excluding self (§4.B), used to build the sibling snapshot for an
// election.
func (s *PGStore) GetActiveSiblingNodes(ctx context.Context, self, upstream int) ([]Node, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM repl_nodes
		 WHERE upstream_node_id = $1 AND active = true AND node_id != $2
		 ORDER BY node_id`,
		upstream, self)
	if err != nil {
		return nil, fmt.Errorf("store: get active siblings of %d: %w", upstream, err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan sibling row: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// RegisterNode inserts a new node record (§3 Lifecycle: "created at
// register").
func (s *PGStore) RegisterNode(ctx context.Context, n Node) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO repl_nodes (node_id, node_name, conninfo, replication_user, replication_slot_name,
			priority, location, type, upstream_node_id, active, config_file)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0), true, $10)
		ON CONFLICT (node_id) DO UPDATE SET
			node_name = EXCLUDED.node_name,
			conninfo = EXCLUDED.conninfo,
			replication_user = EXCLUDED.replication_user,
			replication_slot_name = EXCLUDED.replication_slot_name,
			priority = EXCLUDED.priority,
			location = EXCLUDED.location,
			type = EXCLUDED.type,
			upstream_node_id = EXCLUDED.upstream_node_id,
			active = true,
			config_file = EXCLUDED.config_file`,
		n.NodeID, n.Name, n.Conninfo, n.ReplicationUser, n.ReplicationSlotName,
		n.Priority, n.Location, string(n.Type), n.UpstreamNodeID, n.ConfigFile)
	if err != nil {
		return fmt.Errorf("store: register node %d: %w", n.NodeID, err)
	}
	return nil
}

// UpdateNode persists a mutated node record, as happens on promote/follow
// role changes (§3 Lifecycle).
func (s *PGStore) UpdateNode(ctx context.Context, n Node) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE repl_nodes SET
			node_name = $2, conninfo = $3, replication_user = $4, replication_slot_name = $5,
			priority = $6, location = $7, type = $8, upstream_node_id = NULLIF($9, 0), active = $10
		WHERE node_id = $1`,
		n.NodeID, n.Name, n.Conninfo, n.ReplicationUser, n.ReplicationSlotName,
		n.Priority, n.Location, string(n.Type), n.UpstreamNodeID, n.Active)
	if err != nil {
		return fmt.Errorf("store: update node %d: %w", n.NodeID, err)
	}
	return nil
}

// UnregisterNode marks a node inactive (§3 Lifecycle: "marked inactive on
// unregister; never reused"); it never deletes the row, so historical
// events stay attributable.
func (s *PGStore) UnregisterNode(ctx context.Context, nodeID int) error {
	_, err := s.q.ExecContext(ctx, `UPDATE repl_nodes SET active = false WHERE node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("store: unregister node %d: %w", nodeID, err)
	}
	return nil
}

// CreateEvent inserts an event row and, regardless of outcome, forwards it
// to the configured Notifier (§4.B, §6 event sink). A failed insert is
// logged, not returned, because losing a primary mid-event is exactly the
// condition the notifier exists to cover.
func (s *PGStore) CreateEvent(ctx context.Context, ev Event) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO repl_events (node_id, event_kind, event_timestamp, success, detail)
		VALUES ($1, $2, NOW(), $3, $4)`,
		ev.NodeID, string(ev.Kind), ev.Success, ev.Detail)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"node_id": ev.NodeID,
				"event":   ev.Kind,
			}).Warn("failed to write event to primary, relying on external notification")
		}
	}

	s.notifier.Notify(ctx, ev)
}

// ListEvents returns the most recent events, newest first, for `cluster
// event` (§6).
func (s *PGStore) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT node_id, event_kind, event_timestamp, success, detail
		FROM repl_events ORDER BY event_timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		if err := rows.Scan(&ev.NodeID, &kind, &ev.Timestamp, &ev.Success, &ev.Detail); err != nil {
			return nil, fmt.Errorf("store: scan event row: %w", err)
		}
		ev.Kind = EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// undefinedObject is the SQLSTATE raised by pg_drop_replication_slot when
// the slot does not exist.
const undefinedObject = "42704"

// DropReplicationSlot removes a standby's slot on the primary it was
// streaming from. §5: "an already-missing slot as success" — the drop is
// idempotent against concurrent unregisters racing on the same slot.
func (s *PGStore) DropReplicationSlot(ctx context.Context, slotName string) error {
	_, err := s.q.ExecContext(ctx, `SELECT pg_drop_replication_slot($1)`, slotName)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == undefinedObject {
		return nil
	}

	return fmt.Errorf("store: drop replication slot %q: %w", slotName, err)
}
