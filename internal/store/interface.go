package store

import "context"

// Store is the interface the rest of the module programs against, so
// tests can substitute a Fake for a real database-backed PGStore.
type Store interface {
	GetNode(ctx context.Context, nodeID int) (Node, RecordStatus, error)
	GetNodeByName(ctx context.Context, name string) (Node, RecordStatus, error)
	GetPrimaryNode(ctx context.Context) (Node, RecordStatus, error)
	GetActiveSiblingNodes(ctx context.Context, self, upstream int) ([]Node, error)
	RegisterNode(ctx context.Context, n Node) error
	UpdateNode(ctx context.Context, n Node) error
	UnregisterNode(ctx context.Context, nodeID int) error
	CreateEvent(ctx context.Context, ev Event)
	ListEvents(ctx context.Context, limit int) ([]Event, error)
	DropReplicationSlot(ctx context.Context, slotName string) error
}

var (
	_ Store = (*PGStore)(nil)
	_ Store = (*Fake)(nil)
)
