package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/repmgr-go/repmgr/internal/store"
)

// allActiveNodes lists the active primary and every active node whose
// upstream is that primary, primary first, the rest sorted by node_id,
// since store.Store has no single "list all" call. Nodes attached to a
// standby (cascaded standbys) and inactive nodes are not listed.
func allActiveNodes(ctx context.Context, s store.Store, self int) ([]store.Node, error) {
	primary, status, err := s.GetPrimaryNode(ctx)
	if err != nil {
		return nil, err
	}
	if status != store.StatusFound {
		return nil, nil
	}

	siblings, err := s.GetActiveSiblingNodes(ctx, primary.NodeID, primary.NodeID)
	if err != nil {
		return nil, err
	}

	nodes := append([]store.Node{primary}, siblings...)
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].IsPrimary() != nodes[j].IsPrimary() {
			return nodes[i].IsPrimary()
		}
		return nodes[i].NodeID < nodes[j].NodeID
	})
	return nodes, nil
}

// actionClusterShow renders the full cluster topology (§6): one row per
// registered node with its live reachability/role/lag.
func actionClusterShow(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	s := deps.storeFor(conn)
	nodes, err := allActiveNodes(ctx, s, deps.Conf.NodeID)
	conn.Close()
	if err != nil {
		fmt.Fprintf(out, "repmgr: listing nodes: %v\n", err)
		return DBQuery
	}

	primaryLSN, havePrimaryLSN := primaryLSNFor(ctx, deps)

	rows := make([]NodeReport, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, probeNode(ctx, deps, n, primaryLSN, havePrimaryLSN))
	}

	if err := RenderNodes(out, rows, opts.Mode()); err != nil {
		fmt.Fprintf(out, "repmgr: rendering report: %v\n", err)
		return Internal
	}
	return Success
}

// actionClusterEvent lists the append-only event log (§3), most recent
// first, bounded the way a CLI history view should be.
func actionClusterEvent(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	defer conn.Close()

	events, err := deps.storeFor(conn).ListEvents(ctx, 20)
	if err != nil {
		fmt.Fprintf(out, "repmgr: listing events: %v\n", err)
		return DBQuery
	}

	for _, ev := range events {
		fmt.Fprintf(out, "%s\tnode=%d\t%s\tsuccess=%t\t%s\n",
			ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ev.NodeID, ev.Kind, ev.Success, ev.Detail)
	}
	return Success
}

// actionClusterCrosscheck is the supplemented reachability/upstream-matrix
// diagnostic: for every registered node, probe it and compare its
// observed role and reported upstream against the node-metadata store's
// record of the same, flagging any that disagree (a fork, a stuck
// cascaded standby, or a manual repmgr.conf edit that never got applied).
func actionClusterCrosscheck(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	s := deps.storeFor(conn)
	nodes, err := allActiveNodes(ctx, s, deps.Conf.NodeID)
	conn.Close()
	if err != nil {
		fmt.Fprintf(out, "repmgr: listing nodes: %v\n", err)
		return DBQuery
	}

	primaryLSN, havePrimaryLSN := primaryLSNFor(ctx, deps)

	mismatches := 0
	for _, n := range nodes {
		report := probeNode(ctx, deps, n, primaryLSN, havePrimaryLSN)

		expectedRole := "standby"
		if n.IsPrimary() {
			expectedRole = "primary"
		}

		status := "ok"
		if !report.Reachable {
			status = "unreachable"
			mismatches++
		} else if report.Role != expectedRole {
			status = fmt.Sprintf("role mismatch: recorded=%s observed=%s", expectedRole, report.Role)
			mismatches++
		}

		fmt.Fprintf(out, "node %d (%s): %s\n", n.NodeID, n.Name, status)
	}

	if mismatches > 0 {
		fmt.Fprintf(out, "%d node(s) disagree with the stored topology\n", mismatches)
		return Internal
	}
	return Success
}
