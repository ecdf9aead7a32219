package election

import (
	"context"
	"fmt"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

// FakeNode is one simulated peer in a FakeDialer-driven test cluster: its
// shared-state block plus a settable WAL receive position.
type FakeNode struct {
	State      *sharedstate.Fake
	LSN        gateway.LSN
	Unreachable bool
}

type fakePeer struct {
	node *FakeNode
}

func (p *fakePeer) SharedState() sharedstate.SharedState { return p.node.State }
func (p *fakePeer) WALReceiveLSN(context.Context) (gateway.LSN, error) {
	return p.node.LSN, nil
}
func (p *fakePeer) Close() error { return nil }

// FakeDialer resolves peers from an in-memory registry keyed by node_id,
// for election tests (§8's S1-S6 scenarios) without a real database.
type FakeDialer struct {
	Nodes map[int]*FakeNode
}

// NewFakeDialer builds an empty registry.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{Nodes: map[int]*FakeNode{}}
}

// Add registers a simulated peer.
func (d *FakeDialer) Add(nodeID int, n *FakeNode) {
	d.Nodes[nodeID] = n
}

func (d *FakeDialer) Dial(ctx context.Context, n store.Node) (Peer, error) {
	node, ok := d.Nodes[n.NodeID]
	if !ok || node.Unreachable {
		return nil, fmt.Errorf("election: node %d unreachable", n.NodeID)
	}
	return &fakePeer{node: node}, nil
}

var _ Dialer = (*FakeDialer)(nil)
