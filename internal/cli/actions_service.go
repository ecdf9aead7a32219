package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
)

// setPause toggles the local node's shared-state pause flag (§4.C's
// repmgrd_pause), usable as a standalone operator action outside of a
// switchover (§6 `service pause`/`service unpause`).
func setPause(ctx context.Context, deps Deps, out io.Writer, paused bool) ExitCode {
	conn, err := deps.localConn(ctx)
	if err != nil {
		fmt.Fprintf(out, "repmgr: connecting to local node: %v\n", err)
		return DBConn
	}
	defer conn.Close()

	if err := deps.sharedStateFor(conn).RepmgrdPause(ctx, paused); err != nil {
		fmt.Fprintf(out, "repmgr: setting pause state: %v\n", err)
		return DBQuery
	}

	state := "paused"
	if !paused {
		state = "unpaused"
	}
	fmt.Fprintf(out, "supervisor daemon %s\n", state)
	return Success
}

func actionServicePause(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	return setPause(ctx, deps, out, true)
}

// actionServiceUnpause clears the pause flag. With --repmgrd-force-unpause
// it clears it even if it wasn't this operator's switchover that set it —
// the flag carries no ownership token, so "force" here only changes the
// operator's intent, not the underlying call.
func actionServiceUnpause(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	return setPause(ctx, deps, out, false)
}
