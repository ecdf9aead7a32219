package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/promote"
	"github.com/repmgr-go/repmgr/internal/sshutil"
	"github.com/repmgr-go/repmgr/internal/store"
	"github.com/repmgr-go/repmgr/internal/switchover"
)

// actionStandbyClone runs the external base-backup tool (out of scope per
// §1, invoked rather than reimplemented) and registers the resulting node.
func actionStandbyClone(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	if deps.Conf.RestoreCommand == "" {
		fmt.Fprintln(out, "repmgr: no restore_command configured for standby clone")
		return BadConfig
	}

	if err := deps.Runner.Run(ctx, deps.Conf.RestoreCommand); err != nil {
		fmt.Fprintf(out, "repmgr: restore_command failed: %v\n", err)
		return Internal
	}

	return registerNode(ctx, deps, out, store.NodeTypeStandby, store.EventStandbyClone)
}

func (deps Deps) newExecutor(self store.Node) *promote.Executor {
	return &promote.Executor{
		Self:        self,
		Store:       nil, // set by caller once the local store is built
		Runner:      deps.Runner,
		Opener:      promote.NewGatewayOpener(connectTimeout),
		Log:         deps.Log,
		PromoteCmd:  deps.Conf.PromoteCommand,
		FollowCmd:   deps.Conf.FollowCommand,
		OpenLocal:   func(ctx context.Context) (*gateway.Conn, error) { return deps.localConn(ctx) },
	}
}

func actionStandbyPromote(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	s := deps.storeFor(conn)
	self, err := deps.selfNode(ctx, conn)
	conn.Close()
	if err != nil {
		fmt.Fprintf(out, "repmgr: %v\n", err)
		return BadConfig
	}

	formerPrimary, _, _ := s.GetPrimaryNode(ctx)

	executor := deps.newExecutor(self)
	executor.Store = s

	result, err := executor.PromoteSelf(ctx, formerPrimary)
	if err != nil {
		fmt.Fprintf(out, "repmgr: standby promote: %v\n", err)
		return FailoverFail
	}

	fmt.Fprintf(out, "standby promote: %s\n", result)
	return Success
}

func actionStandbyFollow(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
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

	upstreamID := opts.UpstreamNodeID
	if upstreamID == 0 {
		primary, status, perr := s.GetPrimaryNode(ctx)
		if perr != nil || status != store.StatusFound {
			conn.Close()
			fmt.Fprintln(out, "repmgr: no primary found and --upstream-node-id not given")
			return BadConfig
		}
		upstreamID = primary.NodeID
	}
	upstream, status, err := s.GetNode(ctx, upstreamID)
	conn.Close()
	if err != nil || status != store.StatusFound {
		fmt.Fprintf(out, "repmgr: upstream node %d not found\n", upstreamID)
		return BadConfig
	}

	executor := deps.newExecutor(self)
	executor.Store = s

	result, err := executor.FollowNewPrimary(ctx, upstream, opts.ForceRewindRequested(), deps.Conf.EngineSupportsRewind)
	if err != nil {
		fmt.Fprintf(out, "repmgr: standby follow: %v\n", err)
		return FailoverFail
	}

	fmt.Fprintf(out, "standby follow: %s\n", result)
	return Success
}

func actionStandbySwitchover(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	s := deps.storeFor(conn)
	candidate, err := deps.selfNode(ctx, conn)
	if err != nil {
		conn.Close()
		fmt.Fprintf(out, "repmgr: %v\n", err)
		return BadConfig
	}
	localState := deps.sharedStateFor(conn)

	executor := deps.newExecutor(candidate)
	executor.Store = s

	remote := switchover.SSHRemote{
		Runner:    sshutil.Runner{SSHOptions: deps.Conf.SSHOptions, User: deps.Conf.ReplicationUser},
		RepmgrBin: deps.Conf.RepmgrBindir + "/repmgr",
	}

	orch := &switchover.Orchestrator{
		Candidate:  candidate,
		Store:      s,
		LocalState: localState,
		Opener:     promote.NewGatewayOpener(connectTimeout),
		Remote:     remote,
		Executor:   executor,
		Log:        deps.Log,
		LocalReplayLSN: func(ctx context.Context) (gateway.LSN, error) {
			_, replay, err := gateway.WALPositions(ctx, conn.DB())
			return replay, err
		},
		PrimaryCurrentLSN: func(ctx context.Context, primary store.Node) (gateway.LSN, error) {
			pconn, err := promote.NewGatewayOpener(connectTimeout).Open(ctx, primary)
			if err != nil {
				return 0, err
			}
			defer pconn.Close()
			return gateway.CurrentLSN(ctx, pconn.DB())
		},
	}
	defer conn.Close()

	result, err := orch.Run(ctx, switchover.Options{
		Force:           opts.Force,
		DryRun:          opts.DryRun,
		RepmgrdNoPause:  opts.RepmgrdNoPause,
		ForceRewindPath: opts.ForceRewindPath,
		ShutdownTimeout: deps.Conf.NodeRejoinTimeoutDuration(),
	})
	if err != nil {
		fmt.Fprintf(out, "repmgr: switchover: %v\n", err)
		return FailoverFail
	}

	fmt.Fprintf(out, "switchover completed: %v\n", result.Completed)
	if result.OldPrimaryHint != "" {
		fmt.Fprintln(out, result.OldPrimaryHint)
	}
	return Success
}
