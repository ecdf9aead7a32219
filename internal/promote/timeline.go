// Package promote implements the promotion/follow executor (§4.F): the
// local command that turns a standby into a primary, the best-effort
// fan-out that tells siblings to re-parent, and the follow path a standby
// takes to attach to a new upstream — including the timeline sanity
// checks that decide whether an attach is even possible.
package promote

import (
	"errors"
	"fmt"

	"github.com/repmgr-go/repmgr/internal/gateway"
)

// ErrDifferentCluster is returned when the target's system_identifier
// does not match the local one (§4.F.1): the candidate belongs to a
// different database cluster entirely.
var ErrDifferentCluster = errors.New("promote: target system_identifier does not match local cluster")

// ErrRewindRequired is returned when attaching is only possible via a
// forced rewind and the caller did not opt in.
var ErrRewindRequired = errors.New("promote: attach requires a forced rewind")

// ErrLocalAheadOnSharedTimeline is returned when local_lsn exceeds
// target_lsn on a timeline both nodes share: no fork point exists, so a
// rewind cannot help.
var ErrLocalAheadOnSharedTimeline = errors.New("promote: local node is ahead of target on the shared timeline")

// TimelineCheckInput carries the facts §4.F.1 reasons over.
type TimelineCheckInput struct {
	LocalSystemIdentifier  string
	TargetSystemIdentifier string
	LocalTLI               int
	LocalLSN               gateway.LSN
	TargetTLI              int
	TargetLSN              gateway.LSN

	// ForceRewind opts into a rewind when one would otherwise be required.
	// The caller is responsible for actually invoking the rewind tool;
	// this check only decides whether doing so is sanctioned.
	ForceRewind bool

	// EngineSupportsRewind reflects whether the connected engine version
	// is new enough (≥ 9.6) to support a forced rewind at all (§4.F.1).
	EngineSupportsRewind bool

	// History is the target's timeline history, used to find the fork
	// point when TargetTLI > LocalTLI.
	History []gateway.TimelineHistoryEntry
}

// CheckResult is the outcome of a timeline sanity check.
type CheckResult struct {
	Safe          bool
	RewindNeeded  bool
	FailureReason error
}

// CheckTimelineSanity applies §4.F.1 in order: system-identifier match,
// then the three TLI/LSN comparisons.
func CheckTimelineSanity(in TimelineCheckInput) CheckResult {
	if in.LocalSystemIdentifier != in.TargetSystemIdentifier {
		return CheckResult{FailureReason: ErrDifferentCluster}
	}

	switch {
	case in.TargetTLI < in.LocalTLI:
		if !in.ForceRewind || !in.EngineSupportsRewind {
			return CheckResult{FailureReason: fmt.Errorf("%w: target timeline %d is behind local timeline %d",
				ErrRewindRequired, in.TargetTLI, in.LocalTLI)}
		}
		return CheckResult{Safe: true, RewindNeeded: true}

	case in.TargetTLI == in.LocalTLI:
		if in.LocalLSN > in.TargetLSN {
			return CheckResult{FailureReason: ErrLocalAheadOnSharedTimeline}
		}
		return CheckResult{Safe: true}

	default: // TargetTLI > LocalTLI
		forkEnd, ok := gateway.ForkLSNForTimeline(in.History, in.LocalTLI)
		if !ok {
			return CheckResult{FailureReason: fmt.Errorf("promote: no timeline history entry for the fork from timeline %d", in.LocalTLI)}
		}

		if in.LocalLSN > forkEnd {
			if !in.ForceRewind || !in.EngineSupportsRewind {
				return CheckResult{FailureReason: fmt.Errorf("%w: local proceeded past the fork point %s on timeline %d",
					ErrRewindRequired, forkEnd, in.LocalTLI+1)}
			}
			return CheckResult{Safe: true, RewindNeeded: true}
		}

		return CheckResult{Safe: true}
	}
}
