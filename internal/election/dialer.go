package election

import (
	"context"
	"time"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

// GatewayDialer opens a real connection to a sibling's conninfo and
// exposes it as a Peer, for production use. §5: "connections to peers are
// opened per-phase and closed before the next phase."
type GatewayDialer struct {
	ConnectTimeout time.Duration
}

type gatewayPeer struct {
	conn  *gateway.Conn
	state *sharedstate.Store
}

func (p *gatewayPeer) SharedState() sharedstate.SharedState { return p.state }

func (p *gatewayPeer) WALReceiveLSN(ctx context.Context) (gateway.LSN, error) {
	receive, _, err := gateway.WALPositions(ctx, p.conn.DB())
	return receive, err
}

func (p *gatewayPeer) Close() error { return p.conn.Close() }

// Dial opens a connection to n.Conninfo and wraps it as a Peer.
func (d *GatewayDialer) Dial(ctx context.Context, n store.Node) (Peer, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	conn, err := gateway.Open(ctx, n.Conninfo, timeout)
	if err != nil {
		return nil, err
	}

	return &gatewayPeer{conn: conn, state: sharedstate.New(conn.DB())}, nil
}

var _ Dialer = (*GatewayDialer)(nil)
