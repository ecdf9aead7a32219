// Package switchover implements the operator-initiated switchover
// orchestrator (§4.G): the nine-step sequence that promotes a standby to
// primary in a planned, coordinated way rather than through an election.
package switchover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/promote"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

// Step names one of the nine ordered actions, used both for dry-run
// reporting and for the executed-steps trail returned on success.
type Step string

const (
	StepDiscover       Step = "discover"
	StepVerifySync     Step = "verify_sync"
	StepPauseDaemons   Step = "pause_daemons"
	StepShutdownPrimary Step = "shutdown_primary"
	StepVerifyFinalLSN Step = "verify_final_lsn"
	StepPromoteSelf    Step = "promote_self"
	StepReparentSiblings Step = "reparent_siblings"
	StepReparentOldPrimary Step = "reparent_old_primary"
	StepUnpauseDaemons Step = "unpause_daemons"
)

var (
	// ErrNotInSync means the candidate's replay LSN trails the primary by
	// more than the configured staleness threshold and --force was not
	// given.
	ErrNotInSync = errors.New("switchover: candidate is not in sync with the primary")
	// ErrDaemonUnreachable means a node's supervisor daemon could not be
	// paused and --force was not given.
	ErrDaemonUnreachable = errors.New("switchover: could not pause a node's supervisor daemon")
	// ErrPrimaryAheadOfCandidate means the shut-down primary's final LSN
	// is ahead of what the candidate had replayed; promoting would lose
	// data.
	ErrPrimaryAheadOfCandidate = errors.New("switchover: primary's final LSN is ahead of the candidate")
)

// Remote is the SSH-driven half of the orchestrator: every step that acts
// on a host other than the candidate goes through this interface so the
// orchestration logic can be exercised without a real network.
type Remote interface {
	// ShutdownPrimary performs a clean, checkpointed shutdown of primary
	// and blocks until the engine reports a shut-down-in-recovery
	// compatible state or timeout elapses.
	ShutdownPrimary(ctx context.Context, primary store.Node, timeout time.Duration) error
	// PrimaryFinalLSN reads the shut-down primary's last checkpoint LSN
	// from its control file.
	PrimaryFinalLSN(ctx context.Context, primary store.Node) (gateway.LSN, error)
	// RunFollow invokes the remote operator command that makes node
	// follow newPrimary (§4.F at the sibling).
	RunFollow(ctx context.Context, node store.Node, newPrimary store.Node) error
	// RunRewindAndFollow performs a rewind of node against newPrimary
	// before following, for the old primary's re-parent step (§4.F.1).
	RunRewindAndFollow(ctx context.Context, node store.Node, newPrimary store.Node, rewindPath string) error
}

// PeerOpener opens a connection to a node so its shared-state pause flag
// can be set or read, and so the candidate's own WAL position can be
// sampled. Satisfied by promote.PeerOpener implementations.
type PeerOpener = promote.PeerOpener

// Promoter is the local half of §4.F needed by step 6; satisfied by
// *promote.Executor. Kept as a narrow interface so the orchestration
// logic around promote_self can be exercised without a real gateway
// connection.
type Promoter interface {
	PromoteSelf(ctx context.Context, formerPrimary store.Node) (promote.Result, error)
}

// Options configures one switchover run (§6 operator modifiers).
type Options struct {
	Force              bool
	DryRun             bool
	RepmgrdNoPause     bool
	ForceRewindPath    string // empty means rewind not granted
	StalenessThreshold gateway.LSN
	ShutdownTimeout    time.Duration
}

// Orchestrator runs the switchover sequence with the candidate acting as
// the local node (§4.G: "runs on the standby that is the promotion
// candidate").
type Orchestrator struct {
	Candidate store.Node

	Store      store.Store
	LocalState sharedstate.SharedState
	Opener     PeerOpener
	Remote     Remote
	Executor   Promoter
	Log        logrus.FieldLogger

	// LocalReplayLSN reports the candidate's own current replay LSN.
	LocalReplayLSN func(ctx context.Context) (gateway.LSN, error)
	// PrimaryCurrentLSN reports the live primary's current LSN, used for
	// the pre-shutdown sync check.
	PrimaryCurrentLSN func(ctx context.Context, primary store.Node) (gateway.LSN, error)
}

// Result records what ran (or, in dry-run mode, what would have run).
type Result struct {
	Completed []Step
	DryRun    bool
	// OldPrimaryHint is set when the old primary was left down because a
	// rewind was needed but not granted (§4.G step 8b).
	OldPrimaryHint string
}

// Run executes the nine-step sequence described in §4.G.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	result := Result{DryRun: opts.DryRun}
	record := func(s Step) { result.Completed = append(result.Completed, s) }

	o.emitEvent(ctx, store.EventStandbySwitchover, true, "phase=start")

	primary, siblings, witness, err := o.discover(ctx)
	if err != nil {
		return result, fmt.Errorf("switchover: %s: %w", StepDiscover, err)
	}
	record(StepDiscover)

	inSync, err := o.verifySync(ctx, primary, opts.StalenessThreshold)
	if err != nil {
		return result, fmt.Errorf("switchover: %s: %w", StepVerifySync, err)
	}
	if !inSync && !opts.Force {
		return result, fmt.Errorf("switchover: %s: %w", StepVerifySync, ErrNotInSync)
	}
	record(StepVerifySync)

	pausable := append(append([]store.Node{}, siblings...), primary)
	if witness.NodeID != 0 {
		pausable = append(pausable, witness)
	}

	if !opts.RepmgrdNoPause {
		if opts.DryRun {
			record(StepPauseDaemons)
		} else {
			if err := o.pauseAll(ctx, pausable); err != nil && !opts.Force {
				return result, fmt.Errorf("switchover: %s: %w", StepPauseDaemons, err)
			}
			record(StepPauseDaemons)
		}
	}

	if opts.DryRun {
		result.Completed = append(result.Completed,
			StepShutdownPrimary, StepVerifyFinalLSN, StepPromoteSelf,
			StepReparentSiblings, StepReparentOldPrimary, StepUnpauseDaemons)
		return result, nil
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if err := o.Remote.ShutdownPrimary(ctx, primary, timeout); err != nil {
		o.unpauseAll(ctx, pausable)
		return result, fmt.Errorf("switchover: %s: %w", StepShutdownPrimary, err)
	}
	record(StepShutdownPrimary)

	finalLSN, err := o.Remote.PrimaryFinalLSN(ctx, primary)
	if err != nil {
		o.unpauseAll(ctx, pausable)
		return result, fmt.Errorf("switchover: %s: %w", StepVerifyFinalLSN, err)
	}
	candidateLSN, err := o.LocalReplayLSN(ctx)
	if err != nil {
		o.unpauseAll(ctx, pausable)
		return result, fmt.Errorf("switchover: %s: %w", StepVerifyFinalLSN, err)
	}
	if finalLSN > candidateLSN {
		o.unpauseAll(ctx, pausable)
		return result, fmt.Errorf("switchover: %s: %w", StepVerifyFinalLSN, ErrPrimaryAheadOfCandidate)
	}
	record(StepVerifyFinalLSN)

	if _, err := o.Executor.PromoteSelf(ctx, primary); err != nil {
		o.unpauseAll(ctx, pausable)
		return result, fmt.Errorf("switchover: %s: %w", StepPromoteSelf, err)
	}
	record(StepPromoteSelf)

	for _, sib := range siblings {
		if err := o.Remote.RunFollow(ctx, sib, o.Candidate); err != nil && o.Log != nil {
			o.Log.WithField("node_id", sib.NodeID).WithError(err).Warn("sibling re-parent failed")
		}
	}
	record(StepReparentSiblings)

	if opts.ForceRewindPath != "" {
		if err := o.Remote.RunRewindAndFollow(ctx, primary, o.Candidate, opts.ForceRewindPath); err != nil {
			if o.Log != nil {
				o.Log.WithError(err).Warn("old primary rewind-and-follow failed")
			}
			result.OldPrimaryHint = fmt.Sprintf("old primary %d left down: rewind failed: %v", primary.NodeID, err)
		}
	} else {
		result.OldPrimaryHint = fmt.Sprintf("old primary %d left down: rerun with --force-rewind to re-parent it", primary.NodeID)
	}
	record(StepReparentOldPrimary)

	if !opts.RepmgrdNoPause {
		o.unpauseAll(ctx, pausable)
	}
	record(StepUnpauseDaemons)

	o.emitEvent(ctx, store.EventStandbySwitchover, true, "phase=complete")

	return result, nil
}

func (o *Orchestrator) discover(ctx context.Context) (primary store.Node, siblings []store.Node, witness store.Node, err error) {
	primary, status, err := o.Store.GetPrimaryNode(ctx)
	if err != nil {
		return store.Node{}, nil, store.Node{}, err
	}
	if status != store.StatusFound {
		return store.Node{}, nil, store.Node{}, fmt.Errorf("switchover: no active primary found")
	}

	all, err := o.Store.GetActiveSiblingNodes(ctx, o.Candidate.NodeID, primary.NodeID)
	if err != nil {
		return store.Node{}, nil, store.Node{}, err
	}

	for _, n := range all {
		if n.NodeID == primary.NodeID {
			continue
		}
		if n.Type == store.NodeTypeWitness {
			witness = n
			continue
		}
		siblings = append(siblings, n)
	}

	return primary, siblings, witness, nil
}

func (o *Orchestrator) verifySync(ctx context.Context, primary store.Node, staleness gateway.LSN) (bool, error) {
	candidateLSN, err := o.LocalReplayLSN(ctx)
	if err != nil {
		return false, err
	}
	primaryLSN, err := o.PrimaryCurrentLSN(ctx, primary)
	if err != nil {
		return false, err
	}
	if primaryLSN <= candidateLSN {
		return true, nil
	}
	return primaryLSN-candidateLSN <= staleness, nil
}

func (o *Orchestrator) pauseAll(ctx context.Context, nodes []store.Node) error {
	for _, n := range nodes {
		if n.NodeID == o.Candidate.NodeID {
			if err := o.LocalState.RepmgrdPause(ctx, true); err != nil {
				return fmt.Errorf("pausing local daemon: %w", err)
			}
			continue
		}
		conn, err := o.Opener.Open(ctx, n)
		if err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrDaemonUnreachable, n.NodeID, err)
		}
		err = sharedstate.New(conn.DB()).RepmgrdPause(ctx, true)
		conn.Close()
		if err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrDaemonUnreachable, n.NodeID, err)
		}
	}
	return nil
}

func (o *Orchestrator) unpauseAll(ctx context.Context, nodes []store.Node) {
	for _, n := range nodes {
		if n.NodeID == o.Candidate.NodeID {
			_ = o.LocalState.RepmgrdPause(ctx, false)
			continue
		}
		conn, err := o.Opener.Open(ctx, n)
		if err != nil {
			if o.Log != nil {
				o.Log.WithField("node_id", n.NodeID).WithError(err).Warn("could not reach node to unpause")
			}
			continue
		}
		if err := sharedstate.New(conn.DB()).RepmgrdPause(ctx, false); err != nil && o.Log != nil {
			o.Log.WithField("node_id", n.NodeID).WithError(err).Warn("unpause failed")
		}
		conn.Close()
	}
}

func (o *Orchestrator) emitEvent(ctx context.Context, kind store.EventKind, success bool, detail string) {
	o.Store.CreateEvent(ctx, store.Event{
		NodeID:  o.Candidate.NodeID,
		Kind:    kind,
		Success: success,
		Detail:  detail,
	})
}
