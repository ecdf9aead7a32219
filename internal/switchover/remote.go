package switchover

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/sshutil"
	"github.com/repmgr-go/repmgr/internal/store"
)

// SSHRemote is the production Remote, issuing every step over OpenSSH
// batch mode (§6 "SSH to peers") against each node's configured host.
type SSHRemote struct {
	Runner    sshutil.Runner
	RepmgrBin string // e.g. "/usr/bin/repmgr"

	// PollInterval controls how often ShutdownPrimary re-checks the
	// remote control file state.
	PollInterval time.Duration
}

func (r SSHRemote) repmgrBin() string {
	if r.RepmgrBin == "" {
		return "repmgr"
	}
	return r.RepmgrBin
}

func (r SSHRemote) pollInterval() time.Duration {
	if r.PollInterval <= 0 {
		return time.Second
	}
	return r.PollInterval
}

// ShutdownPrimary runs a checkpointed pg_ctl stop on primary's host and
// polls pg_controldata's "Database cluster state" line until it reports a
// shut-down state, bounded by timeout (§4.G step 4).
func (r SSHRemote) ShutdownPrimary(ctx context.Context, primary store.Node, timeout time.Duration) error {
	host := hostOf(primary)
	shutdownCmd := "pg_ctl stop -m fast -D \"$PGDATA\""
	if _, err := r.Runner.Run(ctx, host, shutdownCmd); err != nil {
		return fmt.Errorf("remote shutdown: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		out, err := r.Runner.Run(ctx, host, "pg_controldata \"$PGDATA\"")
		if err == nil && strings.Contains(out, "shut down") {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("remote shutdown: primary did not reach shut-down state within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval()):
		}
	}
}

// PrimaryFinalLSN parses pg_controldata's "Latest checkpoint location"
// line from the (now shut down) primary's control file.
func (r SSHRemote) PrimaryFinalLSN(ctx context.Context, primary store.Node) (gateway.LSN, error) {
	out, err := r.Runner.Run(ctx, hostOf(primary), "pg_controldata \"$PGDATA\"")
	if err != nil {
		return 0, fmt.Errorf("reading control file: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Latest checkpoint location") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) != 2 {
				continue
			}
			return gateway.ParseLSN(strings.TrimSpace(parts[1]))
		}
	}
	return 0, fmt.Errorf("latest checkpoint location not found in control file output")
}

// RunFollow invokes the remote operator binary's `standby follow` action
// against node so it re-parents to newPrimary (§4.G step 7).
func (r SSHRemote) RunFollow(ctx context.Context, node store.Node, newPrimary store.Node) error {
	cmd := fmt.Sprintf("%s standby follow -f %s --upstream-node-id=%d", r.repmgrBin(), node.ConfigFile, newPrimary.NodeID)
	_, err := r.Runner.Run(ctx, hostOf(node), cmd)
	return err
}

// RunRewindAndFollow performs pg_rewind against newPrimary before
// re-parenting node (§4.G step 8a).
func (r SSHRemote) RunRewindAndFollow(ctx context.Context, node store.Node, newPrimary store.Node, rewindPath string) error {
	rewindBin := rewindPath
	if rewindBin == "" {
		rewindBin = "pg_rewind"
	}
	rewindCmd := fmt.Sprintf("%s --target-pgdata=\"$PGDATA\" --source-server=%q", rewindBin, newPrimary.Conninfo)
	if _, err := r.Runner.Run(ctx, hostOf(node), rewindCmd); err != nil {
		return fmt.Errorf("pg_rewind: %w", err)
	}
	return r.RunFollow(ctx, node, newPrimary)
}

// hostOf extracts a usable SSH target from a node's conninfo. Real conninfo
// strings carry a host=... component; this is a best-effort parse since
// §6 doesn't define a separate ssh-host field per node.
func hostOf(n store.Node) string {
	for _, field := range strings.Fields(n.Conninfo) {
		if strings.HasPrefix(field, "host=") {
			return strings.TrimPrefix(field, "host=")
		}
	}
	return n.Name
}
