package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/store"
)

// probeNode dials n and fills in the runtime facts a NodeReport needs:
// reachability, observed role, and replay lag behind the primary (§6
// `node status`/`node check`, §4.A probes).
func probeNode(ctx context.Context, deps Deps, n store.Node, primaryLSN gateway.LSN, havePrimaryLSN bool) NodeReport {
	report := NodeReport{Node: n}

	conn, err := deps.Open(ctx, n.Conninfo)
	if err != nil {
		return report
	}
	defer conn.Close()
	report.Reachable = true

	inRecovery, err := gateway.IsInRecovery(ctx, conn.DB())
	if err != nil {
		return report
	}

	if !inRecovery {
		report.Role = "primary"
		return report
	}
	report.Role = "standby"

	_, replay, err := gateway.WALPositions(ctx, conn.DB())
	if err != nil || !havePrimaryLSN {
		return report
	}
	if primaryLSN >= replay {
		report.LagBytes = int64(primaryLSN.Sub(replay))
		report.HasLag = true
	}
	return report
}

// resolveReportNode picks the node a `node status`/`node check` call
// targets: --node-id if given, otherwise the locally configured node.
func resolveReportNode(ctx context.Context, deps Deps, opts *Options) (store.Node, ExitCode, error) {
	conn, err := deps.localConn(ctx)
	if err != nil {
		return store.Node{}, DBConn, err
	}
	defer conn.Close()

	s := deps.storeFor(conn)
	nodeID := opts.NodeID
	if nodeID == 0 {
		nodeID = deps.Conf.NodeID
	}

	n, status, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return store.Node{}, DBQuery, err
	}
	if status != store.StatusFound {
		return store.Node{}, Internal, fmt.Errorf("node %d not found", nodeID)
	}
	return n, Success, nil
}

func primaryLSNFor(ctx context.Context, deps Deps) (gateway.LSN, bool) {
	conn, err := deps.localConn(ctx)
	if err != nil {
		return 0, false
	}
	defer conn.Close()

	primary, status, err := deps.storeFor(conn).GetPrimaryNode(ctx)
	if err != nil || status != store.StatusFound {
		return 0, false
	}

	pconn, err := deps.Open(ctx, primary.Conninfo)
	if err != nil {
		return 0, false
	}
	defer pconn.Close()

	lsn, err := gateway.CurrentLSN(ctx, pconn.DB())
	if err != nil {
		return 0, false
	}
	return lsn, true
}

// actionNodeStatus reports one node's topology record plus its live
// reachability/role/lag, in whichever output mode §6 selects.
func actionNodeStatus(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	n, code, err := resolveReportNode(ctx, deps, opts)
	if err != nil {
		fmt.Fprintf(out, "repmgr: %v\n", err)
		return code
	}

	primaryLSN, havePrimaryLSN := primaryLSNFor(ctx, deps)
	report := probeNode(ctx, deps, n, primaryLSN, havePrimaryLSN)

	if opts.Mode() == OutputNagios {
		RenderNagios(out, report)
		return Success
	}
	if err := RenderNodes(out, []NodeReport{report}, opts.Mode()); err != nil {
		fmt.Fprintf(out, "repmgr: rendering report: %v\n", err)
		return Internal
	}
	return Success
}

// actionNodeCheck is the Nagios-compatible health probe named in §6: its
// process exit code IS the Nagios severity (0/1/2), not one of the named
// ExitCode values used elsewhere, since that is the contract a Nagios
// check_command expects.
func actionNodeCheck(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	n, code, err := resolveReportNode(ctx, deps, opts)
	if err != nil {
		fmt.Fprintf(out, "UNKNOWN - %v\n", err)
		return code
	}

	primaryLSN, havePrimaryLSN := primaryLSNFor(ctx, deps)
	report := probeNode(ctx, deps, n, primaryLSN, havePrimaryLSN)

	severity := RenderNagios(out, report)
	return ExitCode(severity)
}

// actionNodeRejoin re-attaches a node that fell behind or forked, running
// the §4.F.1 timeline sanity check against the current primary the same
// way `standby follow` does, but always targeting the primary and logging
// the attempt as a rejoin rather than a follow (§6).
func actionNodeRejoin(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	s := deps.storeFor(conn)
	self, err := deps.selfNode(ctx, conn)
	if err != nil {
		conn.Close()
		fmt.Fprintf(out, "repmgr: %v\n", err)
		return BadConfig
	}

	primary, status, perr := s.GetPrimaryNode(ctx)
	conn.Close()
	if perr != nil || status != store.StatusFound {
		fmt.Fprintln(out, "repmgr: no primary found to rejoin against")
		return BadConfig
	}

	executor := deps.newExecutor(self)
	executor.Store = s

	result, err := executor.FollowNewPrimary(ctx, primary, opts.ForceRewindRequested(), deps.Conf.EngineSupportsRewind)
	if err != nil {
		fmt.Fprintf(out, "repmgr: node rejoin: %v\n", err)
		return FailoverFail
	}
	s.CreateEvent(ctx, store.Event{NodeID: self.NodeID, Kind: store.EventNodeRejoin, Success: true, Detail: fmt.Sprintf("upstream=%d", primary.NodeID)})

	fmt.Fprintf(out, "node rejoin: %s\n", result)
	return Success
}
