// Package events implements the external half of the event sink (§6): on
// every significant action an event is inserted into the primary's event
// log (internal/store) and, if configured, an external command is invoked
// with the event's fields as positional arguments.
package events

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/store"
)

// Sink runs the configured notification command for every event. It
// satisfies store.Notifier, so a store.PGStore can be wired directly to
// it: CreateEvent always calls Notify, independent of whether the primary
// write succeeded (§4.B).
type Sink struct {
	command string
	log     logrus.FieldLogger
}

// NewSink builds a Sink. An empty command disables the external
// notification half of the sink entirely; the event still lands in the
// primary's event log.
func NewSink(command string, log logrus.FieldLogger) *Sink {
	return &Sink{command: command, log: log}
}

var _ store.Notifier = (*Sink)(nil)

// Notify invokes the configured command with positional arguments
// (node_id, kind, success, timestamp, detail), per §6. It runs the command
// in the background relative to the caller's event-write path: a slow or
// hanging notification command must not stall the monitor loop, so the
// command is launched and its exit is reaped asynchronously, logged but
// never propagated as an error.
func (s *Sink) Notify(ctx context.Context, ev store.Event) {
	if s.command == "" {
		return
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	args := []string{
		strconv.Itoa(ev.NodeID),
		string(ev.Kind),
		strconv.FormatBool(ev.Success),
		ts.Format(time.RFC3339),
		ev.Detail,
	}

	// Detached from ctx deliberately: the caller's context may be scoped to
	// the single event-write call, but the notification command must be
	// allowed to run to completion in the background.
	cmd := exec.CommandContext(context.Background(), s.command, args...)

	go func() {
		if err := cmd.Run(); err != nil {
			if s.log != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"node_id": ev.NodeID,
					"event":   ev.Kind,
				}).Warn("event notification command failed")
			}
		}
	}()
}
