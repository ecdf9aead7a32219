package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/store"
)

func sampleRows() []NodeReport {
	return []NodeReport{
		{
			Node:      store.Node{NodeID: 1, Name: "node1", Type: store.NodeTypePrimary, Active: true},
			Reachable: true,
			Role:      "primary",
		},
		{
			Node:      store.Node{NodeID: 2, Name: "node2", Type: store.NodeTypeStandby, UpstreamNodeID: 1, Active: true},
			Reachable: true,
			Role:      "standby",
			LagBytes:  4096,
			HasLag:    true,
		},
	}
}

func TestRenderNodes_CSVIncludesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderNodes(&buf, sampleRows(), OutputCSV))

	out := buf.String()
	require.Contains(t, out, "id,name,role,upstream,location,active,reachable,lag_bytes")
	require.Contains(t, out, "2,node2,standby,1,,true,true,4096")
}

func TestRenderNodes_OptFormatIsKeyValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderNodes(&buf, sampleRows(), OutputOptFormat))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "node_id=1")
	require.Contains(t, lines[1], "upstream_node_id=1")
}

func TestRenderNodes_DetailTableAddsPriorityAndLagColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderNodes(&buf, sampleRows(), OutputDetail))

	out := buf.String()
	require.Contains(t, out, "PRIORITY")
	require.Contains(t, out, "LAG BYTES")
}

func TestRenderNagios_UnreachableIsCritical(t *testing.T) {
	var buf bytes.Buffer
	sev := RenderNagios(&buf, NodeReport{Node: store.Node{NodeID: 3}, Reachable: false})
	require.Equal(t, NagiosCritical, sev)
	require.Contains(t, buf.String(), "CRITICAL")
}

func TestRenderNagios_LargeLagIsWarning(t *testing.T) {
	var buf bytes.Buffer
	sev := RenderNagios(&buf, NodeReport{Node: store.Node{NodeID: 3}, Reachable: true, HasLag: true, LagBytes: 32 * 1024 * 1024})
	require.Equal(t, NagiosWarning, sev)
}

func TestRenderNagios_InSyncIsOK(t *testing.T) {
	var buf bytes.Buffer
	sev := RenderNagios(&buf, NodeReport{Node: store.Node{NodeID: 3}, Reachable: true, HasLag: true, LagBytes: 10})
	require.Equal(t, NagiosOK, sev)
	require.Contains(t, buf.String(), "OK")
}
