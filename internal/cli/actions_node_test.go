package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/store"
)

func TestProbeNode_UnreachableWhenOpenFails(t *testing.T) {
	deps := Deps{
		Open: func(ctx context.Context, conninfo string) (*gateway.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	report := probeNode(context.Background(), deps, store.Node{NodeID: 1, Name: "node1"}, 0, false)
	require.False(t, report.Reachable)
	require.Equal(t, "", report.Role)
}
