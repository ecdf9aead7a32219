package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/repmgr-go/repmgr/internal/daemon"
)

// actionDaemonStatus reports whether a supervisor daemon is running for
// this node's configured pidfile (§6 "daemon status"), and whether the
// node-level shared-state pause flag is set.
func actionDaemonStatus(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
	pid, running, err := daemon.Status(deps.Conf.PIDFile)
	if err != nil {
		fmt.Fprintf(out, "repmgrd is not running (no pidfile at %s)\n", deps.Conf.PIDFile)
		return BadPIDFile
	}

	if !running {
		fmt.Fprintf(out, "repmgrd is not running (stale pidfile, last pid %d)\n", pid)
		return BadPIDFile
	}

	fmt.Fprintf(out, "repmgrd is running, pid %d\n", pid)

	conn, err := deps.localConn(ctx)
	if err != nil {
		return Success
	}
	defer conn.Close()

	paused, perr := deps.sharedStateFor(conn).RepmgrdIsPaused(ctx)
	if perr == nil && paused {
		fmt.Fprintln(out, "monitoring is paused")
	}
	return Success
}
