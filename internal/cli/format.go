package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/repmgr-go/repmgr/internal/store"
)

// NodeReport is one row of a `cluster show` / `node status` report: a node
// record plus the runtime facts only a live probe can supply.
type NodeReport struct {
	Node        store.Node
	Reachable   bool
	Role        string // observed role, which may differ from the stored record during a failover
	LagBytes    int64
	HasLag      bool
}

// RenderNodes writes a multi-node report in the mode selected by opts,
// following §6's `--csv`/`--nagios`/`--optformat`/`--compact`/`--detail`
// output modes.
func RenderNodes(w io.Writer, rows []NodeReport, mode OutputMode) error {
	switch mode {
	case OutputCSV:
		return renderCSV(w, rows)
	case OutputOptFormat:
		return renderOptFormat(w, rows)
	case OutputCompact:
		return renderTable(w, rows, false)
	case OutputDetail:
		return renderTable(w, rows, true)
	default:
		return renderTable(w, rows, false)
	}
}

func renderTable(w io.Writer, rows []NodeReport, detail bool) error {
	table := tablewriter.NewWriter(w)
	header := []string{"id", "name", "role", "upstream", "location", "active", "reachable"}
	if detail {
		header = append(header, "priority", "lag_bytes")
	}
	table.SetHeader(header)

	for _, r := range rows {
		row := []string{
			strconv.Itoa(r.Node.NodeID),
			r.Node.Name,
			r.Role,
			strconv.Itoa(r.Node.UpstreamNodeID),
			r.Node.Location,
			strconv.FormatBool(r.Node.Active),
			strconv.FormatBool(r.Reachable),
		}
		if detail {
			lag := "?"
			if r.HasLag {
				lag = strconv.FormatInt(r.LagBytes, 10)
			}
			row = append(row, strconv.Itoa(r.Node.Priority), lag)
		}
		table.Append(row)
	}
	table.Render()
	return nil
}

func renderCSV(w io.Writer, rows []NodeReport) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"id", "name", "role", "upstream", "location", "active", "reachable", "lag_bytes"}); err != nil {
		return err
	}
	for _, r := range rows {
		lag := ""
		if r.HasLag {
			lag = strconv.FormatInt(r.LagBytes, 10)
		}
		record := []string{
			strconv.Itoa(r.Node.NodeID),
			r.Node.Name,
			r.Role,
			strconv.Itoa(r.Node.UpstreamNodeID),
			r.Node.Location,
			strconv.FormatBool(r.Node.Active),
			strconv.FormatBool(r.Reachable),
			lag,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func renderOptFormat(w io.Writer, rows []NodeReport) error {
	for _, r := range rows {
		_, err := fmt.Fprintf(w, "node_id=%d node_name=%s role=%s upstream_node_id=%d location=%s active=%t reachable=%t\n",
			r.Node.NodeID, r.Node.Name, r.Role, r.Node.UpstreamNodeID, r.Node.Location, r.Node.Active, r.Reachable)
		if err != nil {
			return err
		}
	}
	return nil
}

// NagiosSeverity is the standard Nagios plugin exit-code/label scale.
type NagiosSeverity int

const (
	NagiosOK NagiosSeverity = iota
	NagiosWarning
	NagiosCritical
)

func (s NagiosSeverity) label() string {
	switch s {
	case NagiosOK:
		return "OK"
	case NagiosWarning:
		return "WARNING"
	default:
		return "CRITICAL"
	}
}

// RenderNagios writes a single Nagios-plugin-compatible line and returns
// the severity as the process exit code the caller should use.
func RenderNagios(w io.Writer, r NodeReport) NagiosSeverity {
	severity := NagiosOK
	switch {
	case !r.Reachable:
		severity = NagiosCritical
	case r.HasLag && r.LagBytes > 16*1024*1024:
		severity = NagiosWarning
	}

	fmt.Fprintf(w, "%s - node %d (%s) role=%s reachable=%t lag_bytes=%d\n",
		severity.label(), r.Node.NodeID, r.Node.Name, r.Role, r.Reachable, r.LagBytes)
	return severity
}
