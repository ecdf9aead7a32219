package switchover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/promote"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

type fakeRemote struct {
	shutdownErr  error
	finalLSN     gateway.LSN
	finalLSNErr  error
	followed     []int
	rewound      []int
}

func (f *fakeRemote) ShutdownPrimary(ctx context.Context, primary store.Node, timeout time.Duration) error {
	return f.shutdownErr
}
func (f *fakeRemote) PrimaryFinalLSN(ctx context.Context, primary store.Node) (gateway.LSN, error) {
	return f.finalLSN, f.finalLSNErr
}
func (f *fakeRemote) RunFollow(ctx context.Context, node store.Node, newPrimary store.Node) error {
	f.followed = append(f.followed, node.NodeID)
	return nil
}
func (f *fakeRemote) RunRewindAndFollow(ctx context.Context, node store.Node, newPrimary store.Node, rewindPath string) error {
	f.rewound = append(f.rewound, node.NodeID)
	return nil
}

// fakeOpener opens a sharedstate.Fake-backed connection is not possible
// (gateway.Conn is a concrete sql wrapper); pauseAll/unpauseAll are
// exercised only for the local-candidate branch here, matching the
// project-wide pattern of leaving real-connection paths to integration
// coverage.
type fakeOpener struct{}

func (fakeOpener) Open(ctx context.Context, n store.Node) (*gateway.Conn, error) {
	return nil, context.DeadlineExceeded
}

func lsn(t *testing.T, s string) gateway.LSN {
	t.Helper()
	l, err := gateway.ParseLSN(s)
	require.NoError(t, err)
	return l
}

// fakePromoter stands in for *promote.Executor so the orchestration logic
// around promote_self can be exercised without a real *gateway.Conn; the
// executor's own promotion logic is covered in internal/promote.
type fakePromoter struct {
	result promote.Result
	err    error
}

func (f fakePromoter) PromoteSelf(ctx context.Context, formerPrimary store.Node) (promote.Result, error) {
	return f.result, f.err
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Fake, *fakeRemote) {
	t.Helper()
	fs := store.NewFake()
	candidate := store.Node{NodeID: 2, Name: "node2", Type: store.NodeTypeStandby, Active: true, UpstreamNodeID: 1}
	primary := store.Node{NodeID: 1, Name: "node1", Type: store.NodeTypePrimary, Active: true, Conninfo: "host=node1"}
	sibling := store.Node{NodeID: 3, Name: "node3", Type: store.NodeTypeStandby, Active: true, Conninfo: "host=node3", UpstreamNodeID: 1}
	fs.Seed(primary)
	fs.Seed(candidate)
	fs.Seed(sibling)

	remote := &fakeRemote{finalLSN: lsn(t, "0/1000")}

	o := &Orchestrator{
		Candidate:  candidate,
		Store:      fs,
		LocalState: sharedstate.NewFake(),
		Opener:     fakeOpener{},
		Remote:     remote,
		Executor:   fakePromoter{result: promote.Promoted},
		LocalReplayLSN:    func(context.Context) (gateway.LSN, error) { return lsn(t, "0/1000"), nil },
		PrimaryCurrentLSN: func(context.Context, store.Node) (gateway.LSN, error) { return lsn(t, "0/1000"), nil },
	}
	return o, fs, remote
}

func TestRun_DryRunReplacesMutatingSteps(t *testing.T) {
	o, _, remote := newTestOrchestrator(t)

	result, err := o.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.Contains(t, result.Completed, StepShutdownPrimary)
	require.Contains(t, result.Completed, StepPromoteSelf)
	require.Empty(t, remote.followed, "dry-run must not actually reparent siblings")
}

func TestRun_AbortsWhenCandidateNotInSyncWithoutForce(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.PrimaryCurrentLSN = func(context.Context, store.Node) (gateway.LSN, error) {
		return lsn(t, "0/5000"), nil
	}

	_, err := o.Run(context.Background(), Options{StalenessThreshold: 0})
	require.ErrorIs(t, err, ErrNotInSync)
}

func TestRun_StalenessThresholdAllowsSmallLag(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.PrimaryCurrentLSN = func(context.Context, store.Node) (gateway.LSN, error) {
		return lsn(t, "0/1100"), nil
	}
	o.Opener = fakeOpener{}
	// promote_self and shutdown still run against fakes that error on real
	// connections, so bound the assertion to what verifySync decided.
	inSync, err := o.verifySync(context.Background(), store.Node{}, lsn(t, "0/100"))
	require.NoError(t, err)
	require.True(t, inSync)
}

func TestRun_AbortsWhenPrimaryAheadOfCandidate(t *testing.T) {
	o, _, remote := newTestOrchestrator(t)
	remote.finalLSN = lsn(t, "0/9999")

	_, err := o.Run(context.Background(), Options{RepmgrdNoPause: true})
	require.ErrorIs(t, err, ErrPrimaryAheadOfCandidate)
}

func TestRun_OldPrimaryLeftDownWithHintWhenRewindNotGranted(t *testing.T) {
	o, _, remote := newTestOrchestrator(t)

	result, err := o.Run(context.Background(), Options{RepmgrdNoPause: true})
	require.NoError(t, err)
	require.Contains(t, result.OldPrimaryHint, "force-rewind")
	require.Empty(t, remote.rewound)
}

func TestRun_RewindGrantedReparentsOldPrimary(t *testing.T) {
	o, _, remote := newTestOrchestrator(t)

	result, err := o.Run(context.Background(), Options{RepmgrdNoPause: true, ForceRewindPath: "/usr/bin/pg_rewind"})
	require.NoError(t, err)
	require.Empty(t, result.OldPrimaryHint)
	require.Contains(t, remote.rewound, 1)
}
