package promote

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

// Result is the terminal outcome of a promote_self or follow_new_primary
// call.
type Result int

const (
	Promoted Result = iota
	PrimaryReappeared
	Followed
	FollowFail
)

func (r Result) String() string {
	switch r {
	case Promoted:
		return "PROMOTED"
	case PrimaryReappeared:
		return "PRIMARY_REAPPEARED"
	case Followed:
		return "FOLLOWED"
	case FollowFail:
		return "FOLLOW_FAIL"
	default:
		return "UNKNOWN"
	}
}

// PeerOpener opens a connection to a node for the siblings-notification
// and follow-verification steps. election.GatewayDialer satisfies a
// narrower version of this same need; promote keeps its own small
// interface to avoid an import of the election package.
type PeerOpener interface {
	Open(ctx context.Context, n store.Node) (*gateway.Conn, error)
}

type gatewayOpener struct{ timeout time.Duration }

func (o gatewayOpener) Open(ctx context.Context, n store.Node) (*gateway.Conn, error) {
	timeout := o.timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return gateway.Open(ctx, n.Conninfo, timeout)
}

// NewGatewayOpener returns the production PeerOpener.
func NewGatewayOpener(timeout time.Duration) PeerOpener { return gatewayOpener{timeout: timeout} }

// Executor runs the local half of promotion and following (§4.F). The
// local connection is supplied as a factory because promote_self and
// follow_new_primary both close and re-open it around the configured
// subprocess.
type Executor struct {
	Self        store.Node
	Store       store.Store
	LocalState  sharedstate.SharedState
	Runner      CommandRunner
	Opener      PeerOpener
	Log         logrus.FieldLogger
	PromoteCmd  string
	FollowCmd   string
	PromoteDelay time.Duration

	// OpenLocal opens (or re-opens) the local node's own connection.
	OpenLocal func(ctx context.Context) (*gateway.Conn, error)
}

// PromoteSelf executes the configured promotion command and, if the
// former primary hasn't reappeared, completes the role change (§4.F).
func (e *Executor) PromoteSelf(ctx context.Context, formerPrimary store.Node) (Result, error) {
	if e.PromoteDelay > 0 {
		time.Sleep(e.PromoteDelay)
	}

	if err := e.Runner.Run(ctx, e.PromoteCmd); err != nil {
		return 0, fmt.Errorf("promote: promote_command failed: %w", err)
	}

	conn, err := e.OpenLocal(ctx)
	if err != nil {
		return 0, fmt.Errorf("promote: reopening local connection: %w", err)
	}
	defer conn.Close()

	if formerPrimaryConn, derr := e.Opener.Open(ctx, formerPrimary); derr == nil {
		defer formerPrimaryConn.Close()
		if inRecovery, rerr := gateway.IsInRecovery(ctx, formerPrimaryConn.DB()); rerr == nil && !inRecovery {
			siblings, _ := e.Store.GetActiveSiblingNodes(ctx, e.Self.NodeID, formerPrimary.NodeID)
			e.NotifyFollowers(ctx, formerPrimary.NodeID, siblings)
			return PrimaryReappeared, nil
		}
	}

	inRecovery, err := gateway.IsInRecovery(ctx, conn.DB())
	if err != nil {
		return 0, fmt.Errorf("promote: checking recovery state: %w", err)
	}
	if inRecovery {
		return 0, fmt.Errorf("promote: node is still in recovery after promote_command")
	}

	self := e.Self
	self.Type = store.NodeTypePrimary
	self.UpstreamNodeID = 0
	if err := e.Store.UpdateNode(ctx, self); err != nil {
		return 0, fmt.Errorf("promote: refreshing local node record: %w", err)
	}
	e.Self = self

	e.Store.CreateEvent(ctx, store.Event{
		NodeID:  self.NodeID,
		Kind:    store.EventRepmgrdFailoverPromote,
		Success: true,
	})

	return Promoted, nil
}

// NotifyFollowers best-effort tells every sibling in the last snapshot to
// re-parent to newPrimaryID (§4.F). Failures are logged, never fatal: an
// unreachable sibling converges on its own monitor loop's next cycle.
func (e *Executor) NotifyFollowers(ctx context.Context, newPrimaryID int, siblings []store.Node) {
	for _, sib := range siblings {
		conn, err := e.Opener.Open(ctx, sib)
		if err != nil {
			if e.Log != nil {
				e.Log.WithField("node_id", sib.NodeID).WithError(err).Warn("could not reach sibling to notify of new primary")
			}
			continue
		}

		state := sharedstate.New(conn.DB())
		if err := state.NotifyFollowPrimary(ctx, newPrimaryID); err != nil && e.Log != nil {
			e.Log.WithField("node_id", sib.NodeID).WithError(err).Warn("notify_follow_primary failed")
		}
		conn.Close()
	}
}

// FollowNewPrimary attaches the local node to newPrimary after the §4.F.1
// timeline checks pass (§4.F).
func (e *Executor) FollowNewPrimary(ctx context.Context, newPrimary store.Node, forceRewind, engineSupportsRewind bool) (Result, error) {
	targetConn, err := e.Opener.Open(ctx, newPrimary)
	if err != nil {
		return FollowFail, fmt.Errorf("promote: opening connection to new primary: %w", err)
	}
	defer targetConn.Close()

	inRecovery, err := gateway.IsInRecovery(ctx, targetConn.DB())
	if err != nil {
		return FollowFail, fmt.Errorf("promote: checking new primary recovery state: %w", err)
	}
	if inRecovery {
		return FollowFail, fmt.Errorf("promote: new primary %d is still in recovery", newPrimary.NodeID)
	}

	localConn, err := e.OpenLocal(ctx)
	if err != nil {
		return FollowFail, fmt.Errorf("promote: opening local connection: %w", err)
	}

	localIdentifier, localTLI, err := gateway.SystemInfo(ctx, localConn.DB())
	if err != nil {
		localConn.Close()
		return FollowFail, fmt.Errorf("promote: fetching local system info: %w", err)
	}
	localReceive, localReplay, err := gateway.WALPositions(ctx, localConn.DB())
	if err != nil {
		localConn.Close()
		return FollowFail, fmt.Errorf("promote: fetching local WAL position: %w", err)
	}
	localLSN := localReceive
	if localLSN == 0 {
		localLSN = localReplay
	}
	localConn.Close()

	targetIdentifier, targetTLI, err := gateway.SystemInfo(ctx, targetConn.DB())
	if err != nil {
		return FollowFail, fmt.Errorf("promote: fetching target system info: %w", err)
	}
	targetLSN, err := gateway.CurrentLSN(ctx, targetConn.DB())
	if err != nil {
		return FollowFail, fmt.Errorf("promote: fetching target LSN: %w", err)
	}

	var history []gateway.TimelineHistoryEntry
	if targetTLI > localTLI {
		history, err = gateway.TimelineHistory(ctx, targetConn.DB(), localTLI+1)
		if err != nil {
			return FollowFail, fmt.Errorf("promote: fetching timeline history: %w", err)
		}
	}

	check := CheckTimelineSanity(TimelineCheckInput{
		LocalSystemIdentifier:  localIdentifier,
		TargetSystemIdentifier: targetIdentifier,
		LocalTLI:               localTLI,
		LocalLSN:               localLSN,
		TargetTLI:              targetTLI,
		TargetLSN:              targetLSN,
		ForceRewind:            forceRewind,
		EngineSupportsRewind:   engineSupportsRewind,
		History:                history,
	})
	if !check.Safe {
		return FollowFail, check.FailureReason
	}

	if err := e.Runner.Run(ctx, e.FollowCmd); err != nil {
		return FollowFail, fmt.Errorf("promote: follow_command failed: %w", err)
	}

	newLocalConn, err := e.OpenLocal(ctx)
	if err != nil {
		return FollowFail, fmt.Errorf("promote: reopening local connection after follow: %w", err)
	}
	defer newLocalConn.Close()

	self := e.Self
	self.UpstreamNodeID = newPrimary.NodeID
	self.Type = store.NodeTypeStandby
	if err := e.Store.UpdateNode(ctx, self); err != nil {
		return FollowFail, fmt.Errorf("promote: refreshing local node record: %w", err)
	}
	e.Self = self

	e.Store.CreateEvent(ctx, store.Event{
		NodeID:  self.NodeID,
		Kind:    store.EventRepmgrdFailoverFollow,
		Success: true,
		Detail:  fmt.Sprintf("new_upstream=%d", newPrimary.NodeID),
	})

	return Followed, nil
}
