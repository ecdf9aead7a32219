// Package election implements the election engine (§4.E): the five-phase
// protocol a standby runs when its primary upstream is declared down.
package election

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/metrics"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

// waitForNewPrimaryTimeout is the bound on §4.E.2's wait-for-notification
// poll. The source hard-codes this at 60s; whether to expose it as a
// config key is an open question this module does not resolve (§9).
const waitForNewPrimaryTimeout = 60 * time.Second

// OutcomeKind is the terminal result of one RunElection call.
type OutcomeKind int

const (
	// NotCandidate means this node withdrew in Phase 2: it is a voter for
	// this term, not a candidate.
	NotCandidate OutcomeKind = iota
	// Cancelled means the witness-location heuristic fired in Phase 4.
	Cancelled
	// Won means this node received a non-NULL vote from every visible peer.
	Won
	// PromoteAsBestCandidate means this node lost the vote but the
	// deterministic best-candidate rule (§4.E.1) selected it anyway once a
	// fresh sibling snapshot was taken.
	PromoteAsBestCandidate
	// NotifyBestCandidate means another node was selected; BestCandidateID
	// names it, and the caller should wait for its own shared state to be
	// notified (§4.E.2).
	NotifyBestCandidate
	// PrimaryReappeared means the lost upstream became reachable again
	// during Phase 5, before any promotion happened.
	PrimaryReappeared
)

func (k OutcomeKind) String() string {
	switch k {
	case NotCandidate:
		return "NOT_CANDIDATE"
	case Cancelled:
		return "CANCELLED"
	case Won:
		return "WON"
	case PromoteAsBestCandidate:
		return "PROMOTE_AS_BEST_CANDIDATE"
	case NotifyBestCandidate:
		return "NOTIFY_BEST_CANDIDATE"
	case PrimaryReappeared:
		return "PRIMARY_REAPPEARED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the full result of a RunElection call.
type Outcome struct {
	Kind            OutcomeKind
	Term            int64
	BestCandidateID int
}

// Peer is what the election engine needs from one reachable sibling: its
// shared-state function set, and its current WAL receive LSN (§3 sibling
// snapshot).
type Peer interface {
	SharedState() sharedstate.SharedState
	WALReceiveLSN(ctx context.Context) (gateway.LSN, error)
	Close() error
}

// Dialer opens a Peer for a node record. Implementations: GatewayDialer
// for production (dials the node's conninfo), a fake for tests.
type Dialer interface {
	Dial(ctx context.Context, n store.Node) (Peer, error)
}

// Engine runs elections for one local node.
type Engine struct {
	Self         store.Node
	LocalState   sharedstate.SharedState
	Store        store.Store
	Dialer       Dialer
	Log          logrus.FieldLogger
	Rand         *rand.Rand
	WaitTimeout  time.Duration
	Sleep        func(time.Duration)
	PollInterval time.Duration

	// LocalWALReceiveLSN returns this node's current receive position,
	// supplied by the monitor loop's own gateway connection.
	LocalWALReceiveLSN func(ctx context.Context) (gateway.LSN, error)

	// IsUpstreamReachable re-probes the lost upstream; used by Phase 5's
	// reappearance check and by WaitForNotification's caller.
	IsUpstreamReachable func(ctx context.Context, upstream store.Node) bool
}

func (e *Engine) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (e *Engine) jitter() time.Duration {
	r := e.Rand
	if r == nil {
		r = rand.New(rand.NewSource(1))
	}
	return 100*time.Millisecond + time.Duration(r.Intn(251))*time.Millisecond
}

// RunElection drives the five phases (§4.E) for the loss of upstream U.
func (e *Engine) RunElection(ctx context.Context, lostUpstream store.Node) (Outcome, error) {
	start := time.Now()
	defer func() { metrics.ElectionDuration.Observe(time.Since(start).Seconds()) }()

	// Phase 1 — jitter.
	e.sleep(e.jitter())

	// Phase 2 — self-nomination.
	status, err := e.LocalState.GetVotingStatus(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if status == sharedstate.VoteRequestReceived {
		return Outcome{Kind: NotCandidate}, nil
	}

	term, err := e.LocalState.SetVotingStatusInitiated(ctx)
	if err != nil {
		if errors.Is(err, sharedstate.ErrAlreadyVoting) {
			return Outcome{Kind: NotCandidate}, nil
		}
		return Outcome{}, err
	}

	siblings, err := e.Store.GetActiveSiblingNodes(ctx, e.Self.NodeID, lostUpstream.NodeID)
	if err != nil {
		return Outcome{}, err
	}

	// Phase 3 — peer discovery and candidature broadcast.
	visible := map[int]Peer{}
	anyPeerInUpstreamLocation := false

	for _, sib := range siblings {
		peer, derr := e.Dialer.Dial(ctx, sib)
		if derr != nil {
			if e.Log != nil {
				e.Log.WithField("peer", sib.NodeID).WithError(derr).Warn("peer unreachable during candidature broadcast")
			}
			continue
		}

		ok, aerr := peer.SharedState().AnnounceCandidature(ctx, e.Self.NodeID, term)
		if aerr != nil {
			peer.Close()
			if e.Log != nil {
				e.Log.WithField("peer", sib.NodeID).WithError(aerr).Warn("announce_candidature failed")
			}
			continue
		}
		if !ok {
			peer.Close()
			for _, p := range visible {
				p.Close()
			}
			_ = e.LocalState.ResetVotingStatus(ctx)
			return Outcome{Kind: NotCandidate, Term: term}, nil
		}

		if sib.Location == lostUpstream.Location {
			anyPeerInUpstreamLocation = true
		}
		visible[sib.NodeID] = peer
	}
	defer func() {
		for _, p := range visible {
			p.Close()
		}
	}()

	// Phase 4 — primary-location witness check.
	if !anyPeerInUpstreamLocation {
		_ = e.LocalState.ResetVotingStatus(ctx)
		return Outcome{Kind: Cancelled, Term: term}, nil
	}

	// Phase 5 — vote collection.
	selfLSN := gateway.LSN(0)
	if e.LocalWALReceiveLSN != nil {
		selfLSN, err = e.LocalWALReceiveLSN(ctx)
		if err != nil {
			return Outcome{}, err
		}
	}

	votes := 0
	otherNodeIsAhead := false

	for nodeID, peer := range visible {
		lsn, ok, verr := peer.SharedState().RequestVote(ctx, e.Self.NodeID, term)
		if verr != nil {
			if e.Log != nil {
				e.Log.WithField("peer", nodeID).WithError(verr).Warn("request_vote failed")
			}
			continue
		}
		if !ok {
			continue
		}
		if lsn > selfLSN {
			otherNodeIsAhead = true
			continue
		}
		votes++
	}

	if e.IsUpstreamReachable != nil && e.IsUpstreamReachable(ctx, lostUpstream) {
		_ = e.LocalState.ResetVotingStatus(ctx)
		return Outcome{Kind: PrimaryReappeared, Term: term}, nil
	}

	if !otherNodeIsAhead {
		votes++ // self-vote
	}

	visibleCount := len(visible) + 1 // + self

	if votes == visibleCount {
		return Outcome{Kind: Won, Term: term}, nil
	}

	// Lost: recompute the best candidate from a fresh snapshot.
	freshSiblings, err := e.Store.GetActiveSiblingNodes(ctx, e.Self.NodeID, lostUpstream.NodeID)
	if err != nil {
		return Outcome{}, err
	}

	snapshot := make([]Candidate, 0, len(freshSiblings)+1)
	snapshot = append(snapshot, Candidate{NodeID: e.Self.NodeID, Priority: e.Self.Priority, LSN: selfLSN})
	for _, sib := range freshSiblings {
		if sib.Type == store.NodeTypeWitness {
			continue
		}
		peer, ok := visible[sib.NodeID]
		if !ok {
			continue
		}
		lsn, lerr := peer.WALReceiveLSN(ctx)
		if lerr != nil {
			continue
		}
		snapshot = append(snapshot, Candidate{NodeID: sib.NodeID, Priority: sib.Priority, LSN: lsn})
	}

	best := BestCandidate(snapshot)

	if best == e.Self.NodeID {
		return Outcome{Kind: PromoteAsBestCandidate, Term: term}, nil
	}

	if peer, ok := visible[best]; ok {
		_ = peer.SharedState().NotifyFollowPrimary(ctx, best)
	}
	_ = e.LocalState.ResetVotingStatus(ctx)

	return Outcome{Kind: NotifyBestCandidate, Term: term, BestCandidateID: best}, nil
}

// WaitForNotification polls get_new_primary locally once per second up to
// WaitTimeout (default waitForNewPrimaryTimeout), per §4.E.2.
func (e *Engine) WaitForNotification(ctx context.Context) (int, bool) {
	timeout := e.WaitTimeout
	if timeout == 0 {
		timeout = waitForNewPrimaryTimeout
	}
	interval := e.PollInterval
	if interval == 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if nodeID, ok, err := e.LocalState.GetNewPrimary(ctx); err == nil && ok {
			return nodeID, true
		}

		select {
		case <-ctx.Done():
			return 0, false
		default:
		}

		e.sleep(interval)
	}
	return 0, false
}
