package sharedstate

import (
	"context"

	"github.com/repmgr-go/repmgr/internal/gateway"
)

// SharedState is the interface the election engine and monitor loop
// program against, so tests can substitute an in-memory Fake per
// simulated node instead of dialing a real database per peer.
type SharedState interface {
	RequestVote(ctx context.Context, requestingNodeID int, term int64) (lsn gateway.LSN, ok bool, err error)
	GetVotingStatus(ctx context.Context) (VotingStatus, error)
	SetVotingStatusInitiated(ctx context.Context) (int64, error)
	AnnounceCandidature(ctx context.Context, requester int, term int64) (bool, error)
	NotifyFollowPrimary(ctx context.Context, newPrimaryID int) error
	GetNewPrimary(ctx context.Context) (int, bool, error)
	ResetVotingStatus(ctx context.Context) error
	SetLocalNodeID(ctx context.Context, nodeID int) error
	StandbySetLastUpdated(ctx context.Context) error
	RepmgrdPause(ctx context.Context, paused bool) error
	RepmgrdIsPaused(ctx context.Context) (bool, error)
}

var (
	_ SharedState = (*Store)(nil)
	_ SharedState = (*Fake)(nil)
)
