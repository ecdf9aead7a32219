package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/repmgr-go/repmgr/internal/store"
)

// firstPrimaryRegistration reports whether registering nodeType bootstraps
// a cluster that had no primary before (§3's cluster_created event), as
// opposed to registering a standby/witness onto an already-running one.
func firstPrimaryRegistration(nodeType store.NodeType, existingPrimaryStatus store.RecordStatus) bool {
	return nodeType == store.NodeTypePrimary && existingPrimaryStatus != store.StatusFound
}

func registerNode(ctx context.Context, deps Deps, out io.Writer, nodeType store.NodeType, eventKind store.EventKind) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	defer conn.Close()

	firstPrimary := false
	if nodeType == store.NodeTypePrimary {
		existing, status, err := deps.storeFor(conn).GetPrimaryNode(ctx)
		if err != nil {
			fmt.Fprintf(out, "repmgr: checking for an existing primary: %v\n", err)
			return DBQuery
		}
		if status == store.StatusFound && existing.NodeID != deps.Conf.NodeID {
			fmt.Fprintf(out, "repmgr: node %d is already registered as primary\n", existing.NodeID)
			return Internal
		}
		firstPrimary = firstPrimaryRegistration(nodeType, status)
	}

	n := store.Node{
		NodeID:              deps.Conf.NodeID,
		Name:                deps.Conf.NodeName,
		Conninfo:            deps.Conf.Conninfo,
		ReplicationUser:     deps.Conf.ReplicationUser,
		ReplicationSlotName: deps.Conf.ReplicationSlotName,
		Priority:            deps.Conf.Priority,
		Location:            deps.Conf.Location,
		Type:                nodeType,
		Active:              true,
		ConfigFile:          deps.ConfigPath,
	}

	s := deps.storeFor(conn)
	if err := s.RegisterNode(ctx, n); err != nil {
		fmt.Fprintf(out, "repmgr: registering node: %v\n", err)
		return DBQuery
	}
	s.CreateEvent(ctx, store.Event{NodeID: n.NodeID, Kind: eventKind, Success: true})
	if firstPrimary {
		// The cluster didn't have a primary before this call, so this
		// register also marks the cluster's creation (§3 event kinds),
		// distinct from the per-node node_register event above.
		s.CreateEvent(ctx, store.Event{NodeID: n.NodeID, Kind: store.EventClusterCreated, Success: true})
	}

	fmt.Fprintf(out, "node %d registered as %s\n", n.NodeID, nodeType)
	return Success
}

func actionPrimaryRegister(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	return registerNode(ctx, deps, out, store.NodeTypePrimary, store.EventNodeRegister)
}

func actionStandbyRegister(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	return registerNode(ctx, deps, out, store.NodeTypeStandby, store.EventNodeRegister)
}

func actionWitnessRegister(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	return registerNode(ctx, deps, out, store.NodeTypeWitness, store.EventNodeRegister)
}

func actionNodeUnregister(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	defer conn.Close()

	nodeID := opts.NodeID
	if nodeID == 0 {
		nodeID = deps.Conf.NodeID
	}

	s := deps.storeFor(conn)
	n, status, err := s.GetNode(ctx, nodeID)
	if err != nil {
		fmt.Fprintf(out, "repmgr: looking up node %d: %v\n", nodeID, err)
		return DBQuery
	}
	if status != store.StatusFound {
		fmt.Fprintf(out, "repmgr: node %d not found\n", nodeID)
		return Internal
	}

	if err := s.UnregisterNode(ctx, nodeID); err != nil {
		fmt.Fprintf(out, "repmgr: unregistering node %d: %v\n", nodeID, err)
		return DBQuery
	}

	if n.ReplicationSlotName != "" {
		if err := s.DropReplicationSlot(ctx, n.ReplicationSlotName); err != nil && deps.Log != nil {
			deps.Log.WithError(err).Warn("dropping replication slot during unregister")
		}
	}

	s.CreateEvent(ctx, store.Event{NodeID: nodeID, Kind: store.EventNodeUnregister, Success: true})
	fmt.Fprintf(out, "node %d unregistered\n", nodeID)
	return Success
}
