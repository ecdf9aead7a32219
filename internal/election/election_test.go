package election

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

func mustLSN(t *testing.T, s string) gateway.LSN {
	t.Helper()
	lsn, err := gateway.ParseLSN(s)
	require.NoError(t, err)
	return lsn
}

func noSleep(time.Duration) {}

// TestBestCandidate_TieOnLSNAndPriority covers §8's boundary behaviour:
// exactly two siblings tied on LSN and priority, lower node_id wins.
func TestBestCandidate_TieOnLSNAndPriority(t *testing.T) {
	lsn := mustLSN(t, "0/1000")
	candidates := []Candidate{
		{NodeID: 5, Priority: 100, LSN: lsn},
		{NodeID: 2, Priority: 100, LSN: lsn},
	}
	require.Equal(t, 2, BestCandidate(candidates))
}

func TestBestCandidate_HighestLSNWinsRegardlessOfPriority(t *testing.T) {
	candidates := []Candidate{
		{NodeID: 2, Priority: 100, LSN: mustLSN(t, "0/900")},
		{NodeID: 3, Priority: 50, LSN: mustLSN(t, "0/1000")},
	}
	require.Equal(t, 3, BestCandidate(candidates))
}

// TestRunElection_S1_EqualLSNUnanimousWin models §8 scenario S1: A=1
// primary, B=2 and C=3 standbys in the same location, both caught up to
// the same LSN. Node B initiates and wins outright because no visible
// peer is ahead of it.
func TestRunElection_S1_EqualLSNUnanimousWin(t *testing.T) {
	ctx := context.Background()
	lsn := mustLSN(t, "0/1000")

	upstream := store.Node{NodeID: 1, Location: "dc1"}
	self := store.Node{NodeID: 2, Priority: 100, Location: "dc1"}

	str := store.NewFake()
	str.Seed(store.Node{NodeID: 1, Name: "a", Type: store.NodeTypePrimary, Active: true, Location: "dc1"})
	str.Seed(store.Node{NodeID: 2, Name: "b", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true, Location: "dc1", Priority: 100})
	str.Seed(store.Node{NodeID: 3, Name: "c", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true, Location: "dc1", Priority: 50})

	cState := sharedstate.NewFake()
	cState.LastWALReceiveLSN = lsn

	dialer := NewFakeDialer()
	dialer.Add(3, &FakeNode{State: cState, LSN: lsn})

	engine := &Engine{
		Self:               self,
		LocalState:         sharedstate.NewFake(),
		Store:              str,
		Dialer:             dialer,
		Sleep:              noSleep,
		LocalWALReceiveLSN: func(context.Context) (gateway.LSN, error) { return lsn, nil },
	}

	outcome, err := engine.RunElection(ctx, upstream)
	require.NoError(t, err)
	require.Equal(t, Won, outcome.Kind)
}

// TestRunElection_S2_LaggingInitiatorDefersToAheadPeer models §8 scenario
// S2: B's LSN is behind C's when A fails; C is selected as best candidate
// regardless of B's higher priority.
func TestRunElection_S2_LaggingInitiatorDefersToAheadPeer(t *testing.T) {
	ctx := context.Background()
	selfLSN := mustLSN(t, "0/900")
	peerLSN := mustLSN(t, "0/1000")

	upstream := store.Node{NodeID: 1, Location: "dc1"}
	self := store.Node{NodeID: 2, Priority: 100, Location: "dc1"}

	str := store.NewFake()
	str.Seed(store.Node{NodeID: 1, Name: "a", Type: store.NodeTypePrimary, Active: true, Location: "dc1"})
	str.Seed(store.Node{NodeID: 2, Name: "b", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true, Location: "dc1", Priority: 100})
	str.Seed(store.Node{NodeID: 3, Name: "c", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true, Location: "dc1", Priority: 50})

	cState := sharedstate.NewFake()
	cState.LastWALReceiveLSN = peerLSN

	dialer := NewFakeDialer()
	dialer.Add(3, &FakeNode{State: cState, LSN: peerLSN})

	engine := &Engine{
		Self:               self,
		LocalState:         sharedstate.NewFake(),
		Store:              str,
		Dialer:             dialer,
		Sleep:              noSleep,
		LocalWALReceiveLSN: func(context.Context) (gateway.LSN, error) { return selfLSN, nil },
	}

	outcome, err := engine.RunElection(ctx, upstream)
	require.NoError(t, err)
	require.Equal(t, NotifyBestCandidate, outcome.Kind)
	require.Equal(t, 3, outcome.BestCandidateID)
}

// TestRunElection_S3_NoWitnessInPrimaryLocationCancels models §8 scenario
// S3: two nodes, standby in a different location from the primary, no
// witness configured in the primary's location. The election is
// CANCELLED by the witness-location heuristic.
func TestRunElection_S3_NoWitnessInPrimaryLocationCancels(t *testing.T) {
	ctx := context.Background()

	upstream := store.Node{NodeID: 1, Location: "dc1"}
	self := store.Node{NodeID: 2, Priority: 100, Location: "dc2"}

	str := store.NewFake()
	str.Seed(store.Node{NodeID: 1, Name: "a", Type: store.NodeTypePrimary, Active: true, Location: "dc1"})
	str.Seed(store.Node{NodeID: 2, Name: "b", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true, Location: "dc2"})

	engine := &Engine{
		Self:       self,
		LocalState: sharedstate.NewFake(),
		Store:      str,
		Dialer:     NewFakeDialer(),
		Sleep:      noSleep,
	}

	outcome, err := engine.RunElection(ctx, upstream)
	require.NoError(t, err)
	require.Equal(t, Cancelled, outcome.Kind)
}

// TestRunElection_WitnessNeverSelectedAsBestCandidate guards §9's invariant
// that a witness is never a promotion candidate: the witness sibling here
// has both the highest LSN and the highest priority, so an unfiltered
// snapshot would pick it, but the real standby must win instead.
func TestRunElection_WitnessNeverSelectedAsBestCandidate(t *testing.T) {
	ctx := context.Background()
	selfLSN := mustLSN(t, "0/900")
	standbyLSN := mustLSN(t, "0/950")
	witnessLSN := mustLSN(t, "0/1000")

	upstream := store.Node{NodeID: 1, Location: "dc1"}
	self := store.Node{NodeID: 2, Priority: 100, Location: "dc1"}

	str := store.NewFake()
	str.Seed(store.Node{NodeID: 1, Name: "a", Type: store.NodeTypePrimary, Active: true, Location: "dc1"})
	str.Seed(store.Node{NodeID: 2, Name: "b", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true, Location: "dc1", Priority: 100})
	str.Seed(store.Node{NodeID: 3, Name: "c", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true, Location: "dc1", Priority: 50})
	str.Seed(store.Node{NodeID: 4, Name: "w", Type: store.NodeTypeWitness, UpstreamNodeID: 1, Active: true, Location: "dc1", Priority: 200})

	standbyState := sharedstate.NewFake()
	standbyState.LastWALReceiveLSN = standbyLSN
	witnessState := sharedstate.NewFake()
	witnessState.LastWALReceiveLSN = witnessLSN

	dialer := NewFakeDialer()
	dialer.Add(3, &FakeNode{State: standbyState, LSN: standbyLSN})
	dialer.Add(4, &FakeNode{State: witnessState, LSN: witnessLSN})

	engine := &Engine{
		Self:               self,
		LocalState:         sharedstate.NewFake(),
		Store:              str,
		Dialer:             dialer,
		Sleep:              noSleep,
		LocalWALReceiveLSN: func(context.Context) (gateway.LSN, error) { return selfLSN, nil },
	}

	outcome, err := engine.RunElection(ctx, upstream)
	require.NoError(t, err)
	require.Equal(t, NotifyBestCandidate, outcome.Kind)
	require.Equal(t, 3, outcome.BestCandidateID)
}

func TestWaitForNotification_ReturnsOnNotify(t *testing.T) {
	ctx := context.Background()
	state := sharedstate.NewFake()

	engine := &Engine{
		LocalState:   state,
		Sleep:        noSleep,
		WaitTimeout:  time.Second,
		PollInterval: time.Millisecond,
	}

	require.NoError(t, state.NotifyFollowPrimary(ctx, 9))

	nodeID, ok := engine.WaitForNotification(ctx)
	require.True(t, ok)
	require.Equal(t, 9, nodeID)
}

func TestWaitForNotification_TimesOut(t *testing.T) {
	ctx := context.Background()
	state := sharedstate.NewFake()

	engine := &Engine{
		LocalState:   state,
		Sleep:        noSleep,
		WaitTimeout:  5 * time.Millisecond,
		PollInterval: time.Millisecond,
	}

	_, ok := engine.WaitForNotification(ctx)
	require.False(t, ok)
}
