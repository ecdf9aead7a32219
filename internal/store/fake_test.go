package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFake_GetPrimaryNode_NotFound(t *testing.T) {
	f := NewFake()
	_, status, err := f.GetPrimaryNode(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, status)
}

func TestFake_GetActiveSiblingNodes_ExcludesSelfAndInactive(t *testing.T) {
	f := NewFake()
	f.Seed(Node{NodeID: 1, Name: "a", Type: NodeTypePrimary, Active: true})
	f.Seed(Node{NodeID: 2, Name: "b", Type: NodeTypeStandby, UpstreamNodeID: 1, Active: true})
	f.Seed(Node{NodeID: 3, Name: "c", Type: NodeTypeStandby, UpstreamNodeID: 1, Active: true})
	f.Seed(Node{NodeID: 4, Name: "d", Type: NodeTypeStandby, UpstreamNodeID: 1, Active: false})

	siblings, err := f.GetActiveSiblingNodes(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	require.Equal(t, 3, siblings[0].NodeID)
}

func TestFake_UnregisterNode_MarksInactiveNotDeleted(t *testing.T) {
	f := NewFake()
	f.Seed(Node{NodeID: 1, Name: "a", Type: NodeTypeStandby, Active: true})

	require.NoError(t, f.UnregisterNode(context.Background(), 1))

	n, status, err := f.GetNode(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusFound, status)
	require.False(t, n.Active)
}

func TestFake_CreateEvent_RecordsEvenWithoutAPrimary(t *testing.T) {
	f := NewFake()
	f.CreateEvent(context.Background(), Event{NodeID: 2, Kind: EventRepmgrdFailoverPromote, Success: true})

	events := f.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventRepmgrdFailoverPromote, events[0].Kind)
	require.Len(t, f.Notified, 1, "CreateEvent must still notify when there's no primary to write through")
}

// TestFake_SinglePrimaryInvariant exercises §8 invariant 1 over a small
// trace of registrations and a promotion.
func TestFake_SinglePrimaryInvariant(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.RegisterNode(ctx, Node{NodeID: 1, Name: "a", Type: NodeTypePrimary}))
	require.NoError(t, f.RegisterNode(ctx, Node{NodeID: 2, Name: "b", Type: NodeTypeStandby, UpstreamNodeID: 1}))

	assertAtMostOnePrimary(t, f)

	// promote node 2, demote node 1 out of primary status
	require.NoError(t, f.UnregisterNode(ctx, 1))
	require.NoError(t, f.UpdateNode(ctx, Node{NodeID: 2, Name: "b", Type: NodeTypePrimary, Active: true}))

	assertAtMostOnePrimary(t, f)
}

func assertAtMostOnePrimary(t *testing.T, f *Fake) {
	t.Helper()
	count := 0
	for _, n := range f.Nodes() {
		if n.Active && n.Type == NodeTypePrimary {
			count++
		}
	}
	require.LessOrEqual(t, count, 1)
}
