package sharedstate

import (
	"context"
	"sync"

	"github.com/repmgr-go/repmgr/internal/gateway"
)

// Fake is an in-memory SharedState for tests: one instance models one
// node's state block, with the same locking discipline described in §4.C
// ("acquire an exclusive writer lock over the shared block for the
// duration of the call") implemented as a plain mutex.
type Fake struct {
	mu sync.Mutex

	localNodeID     int
	electoralTerm   int64
	votingStatus    VotingStatus
	candidateNodeID int
	hasCandidate    bool
	followNewPrimary bool
	paused          bool

	// LastWALReceiveLSN is read by RequestVote; tests set it directly to
	// model the node's current position.
	LastWALReceiveLSN gateway.LSN
}

// NewFake returns a state block in NO_VOTE with no candidate.
func NewFake() *Fake {
	return &Fake{votingStatus: NoVote}
}

func (f *Fake) RequestVote(ctx context.Context, requestingNodeID int, term int64) (gateway.LSN, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.votingStatus != NoVote {
		return 0, false, nil
	}
	f.votingStatus = VoteRequestReceived
	f.electoralTerm = term
	return f.LastWALReceiveLSN, true, nil
}

func (f *Fake) GetVotingStatus(ctx context.Context) (VotingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.votingStatus, nil
}

func (f *Fake) SetVotingStatusInitiated(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.votingStatus != NoVote {
		return 0, ErrAlreadyVoting
	}
	f.votingStatus = VoteInitiated
	f.electoralTerm++
	return f.electoralTerm, nil
}

func (f *Fake) AnnounceCandidature(ctx context.Context, requester int, term int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hasCandidate && f.electoralTerm == term {
		return false, nil
	}
	f.candidateNodeID = requester
	f.hasCandidate = true
	f.electoralTerm = term
	return true, nil
}

func (f *Fake) NotifyFollowPrimary(ctx context.Context, newPrimaryID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidateNodeID = newPrimaryID
	f.hasCandidate = true
	f.followNewPrimary = true
	return nil
}

func (f *Fake) GetNewPrimary(ctx context.Context) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.followNewPrimary || !f.hasCandidate {
		return 0, false, nil
	}
	return f.candidateNodeID, true, nil
}

func (f *Fake) ResetVotingStatus(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votingStatus = NoVote
	f.hasCandidate = false
	f.candidateNodeID = 0
	f.followNewPrimary = false
	return nil
}

func (f *Fake) SetLocalNodeID(ctx context.Context, nodeID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localNodeID = nodeID
	return nil
}

func (f *Fake) StandbySetLastUpdated(ctx context.Context) error {
	return nil
}

func (f *Fake) RepmgrdPause(ctx context.Context, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = paused
	return nil
}

func (f *Fake) RepmgrdIsPaused(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, nil
}

// Term exposes the current electoral_term for assertions (§8 invariant 2:
// monotone term).
func (f *Fake) Term() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.electoralTerm
}
