// Package monitor implements the per-node supervisor loop (§4.D): the
// state machine that watches the local node's upstream (or, for a
// primary, itself) and drives elections and follows on failure.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/election"
	"github.com/repmgr-go/repmgr/internal/metrics"
	"github.com/repmgr-go/repmgr/internal/promote"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

// State is one of the five monitor states (§4.D).
type State int

const (
	MonitorPrimary State = iota
	MonitorStandby
	Degraded
	Electing
	CascadedReattach
)

func (s State) String() string {
	switch s {
	case MonitorPrimary:
		return "MONITOR_PRIMARY"
	case MonitorStandby:
		return "MONITOR_STANDBY"
	case Degraded:
		return "DEGRADED"
	case Electing:
		return "ELECTING"
	case CascadedReattach:
		return "CASCADED_REATTACH"
	default:
		return "UNKNOWN"
	}
}

// Loop is the per-loop state struct (§9: "naturally represented as an
// explicit per-loop state struct passed by reference; no singletons
// required").
type Loop struct {
	Self     store.Node
	Upstream store.Node

	Store      store.Store
	LocalState sharedstate.SharedState
	Engine     *election.Engine
	Executor   *promote.Executor

	UpstreamProber func(ctx context.Context) error

	MonitorInterval       time.Duration
	LogStatusInterval     time.Duration
	ReconnectAttempts     int
	ReconnectInterval     time.Duration
	DegradedTimeout       time.Duration

	Log logrus.FieldLogger

	state           State
	degradedFrom    State
	consecutiveFail int
	degradedSince   time.Time
	lastLogStatus   time.Time

	reloadRequested int32
	exitRequested   int32
}

// RequestReload records a reload request (SIGHUP). Run consumes the flag
// at the top of its next iteration and logs it; the loop holds no
// configuration source, so no setting is re-read and the loop keeps the
// values it was built with. Safe to call from a signal handler.
func (l *Loop) RequestReload() { atomic.StoreInt32(&l.reloadRequested, 1) }

// RequestExit marks that the loop should exit cleanly at the next
// iteration (§4.D: SIGINT/SIGTERM).
func (l *Loop) RequestExit() { atomic.StoreInt32(&l.exitRequested, 1) }

func (l *Loop) exitRequestedFlag() bool { return atomic.LoadInt32(&l.exitRequested) == 1 }

func (l *Loop) consumeReloadFlag() bool {
	return atomic.CompareAndSwapInt32(&l.reloadRequested, 1, 0)
}

// DegradedTimeoutExitCode is returned by Run when the loop terminates on its own (the
// degraded timeout expiring), distinct from a clean operator-requested
// shutdown.
const DegradedTimeoutExitCode = 3

// Run drives the state machine until RequestExit is observed or the
// degraded timeout expires. sleep is injectable so tests don't wait on
// real wall-clock time.
func (l *Loop) Run(ctx context.Context, sleep func(time.Duration)) int {
	if sleep == nil {
		sleep = time.Sleep
	}

	if l.Self.IsPrimary() {
		l.state = MonitorPrimary
	} else {
		l.state = MonitorStandby
	}

	for {
		if l.exitRequestedFlag() {
			return 0
		}
		if l.consumeReloadFlag() && l.Log != nil {
			l.Log.Info("configuration reload requested; the loop keeps the settings it started with")
		}

		if time.Since(l.lastLogStatus) >= l.logInterval() {
			if l.Log != nil {
				l.Log.WithField("state", l.state.String()).Info("monitor alive")
			}
			l.lastLogStatus = time.Now()
		}

		switch l.state {
		case MonitorPrimary:
			l.tickPrimary(ctx)
		case MonitorStandby:
			l.tickStandby(ctx)
		case Degraded:
			if exitCode, exit := l.tickDegraded(ctx); exit {
				return exitCode
			}
		case Electing:
			l.tickElecting(ctx)
		case CascadedReattach:
			l.tickCascadedReattach(ctx)
		}

		if l.exitRequestedFlag() {
			return 0
		}
		interval := l.monitorInterval()
		if l.consecutiveFail > 0 && (l.state == MonitorPrimary || l.state == MonitorStandby) {
			interval = l.reconnectInterval()
		}
		sleep(interval)
	}
}

func (l *Loop) monitorInterval() time.Duration {
	if l.MonitorInterval <= 0 {
		return 2 * time.Second
	}
	return l.MonitorInterval
}

func (l *Loop) logInterval() time.Duration {
	if l.LogStatusInterval <= 0 {
		return 5 * time.Minute
	}
	return l.LogStatusInterval
}

func (l *Loop) reconnectInterval() time.Duration {
	if l.ReconnectInterval <= 0 {
		return 5 * time.Second
	}
	return l.ReconnectInterval
}

// probe runs a single liveness check against whatever this state watches.
func (l *Loop) probe(ctx context.Context) error {
	if l.UpstreamProber != nil {
		err := l.UpstreamProber(ctx)
		if err != nil {
			metrics.ReconnectAttempts.WithLabelValues(l.Self.Name).Inc()
		}
		return err
	}
	return nil
}

func (l *Loop) tickPrimary(ctx context.Context) {
	if err := l.probe(ctx); err != nil {
		l.consecutiveFail++
		if l.declaredUnreachable() {
			l.enterDegraded()
		}
		return
	}
	l.consecutiveFail = 0
}

func (l *Loop) tickStandby(ctx context.Context) {
	if err := l.probe(ctx); err != nil {
		l.consecutiveFail++
		if l.declaredUnreachable() {
			if l.Upstream.IsPrimary() {
				if paused, perr := l.LocalState.RepmgrdIsPaused(ctx); perr == nil && paused {
					if l.Log != nil {
						l.Log.Warn("upstream declared unreachable while monitoring is paused; not starting an election")
					}
					return
				}
				l.state = Electing
			} else {
				l.state = CascadedReattach
			}
			l.consecutiveFail = 0
		}
		return
	}
	l.consecutiveFail = 0
	_ = l.LocalState.StandbySetLastUpdated(ctx)
}

// declaredUnreachable implements §4.D's reconnection policy: the first
// probe failure plus `reconnect_attempts` further consecutive failures
// (N+1 in all), which Run spaces `reconnect_interval` apart, qualify.
// reconnect_attempts=0 is the boundary case (§8): any single failure
// declares immediately.
func (l *Loop) declaredUnreachable() bool {
	return l.consecutiveFail > l.ReconnectAttempts
}

// enterDegraded transitions into Degraded, remembering the state it was
// entered from so tickDegraded can restore the node's actual role on
// recovery instead of assuming primary (§4.D: "reachability of the former
// upstream causes a return to normal" — normal being whatever state this
// came from, not always MonitorPrimary).
func (l *Loop) enterDegraded() {
	if l.state != Degraded {
		l.degradedFrom = l.state
	}
	l.state = Degraded
	l.degradedSince = time.Now()
}

func (l *Loop) tickDegraded(ctx context.Context) (exitCode int, exit bool) {
	if err := l.probe(ctx); err == nil {
		l.state = l.recoveryState()
		l.consecutiveFail = 0
		return 0, false
	}

	if time.Since(l.degradedSince) >= l.degradedTimeout() {
		return DegradedTimeoutExitCode, true
	}
	return 0, false
}

// recoveryState resolves the state tickDegraded should return to once the
// former upstream becomes reachable again. Degraded is reached either from
// tickPrimary (a genuine primary-liveness failure) or from standby
// contexts (tickElecting's Cancelled/failed-promote/failed-follow cases,
// tickCascadedReattach's failure case); none of the standby-originated
// paths change the node's actual role, so they all resume standby
// monitoring rather than being treated as a primary.
func (l *Loop) recoveryState() State {
	if l.degradedFrom == MonitorPrimary {
		return MonitorPrimary
	}
	return MonitorStandby
}

func (l *Loop) degradedTimeout() time.Duration {
	if l.DegradedTimeout <= 0 {
		return 300 * time.Second
	}
	return l.DegradedTimeout
}

func (l *Loop) tickElecting(ctx context.Context) {
	outcome, err := l.Engine.RunElection(ctx, l.Upstream)
	if err != nil {
		if l.Log != nil {
			l.Log.WithError(err).Warn("election failed")
		}
		l.enterDegraded()
		return
	}

	switch outcome.Kind {
	case election.Won, election.PromoteAsBestCandidate:
		result, perr := l.Executor.PromoteSelf(ctx, l.Upstream)
		if perr != nil {
			if l.Log != nil {
				l.Log.WithError(perr).Error("promote_self failed")
			}
			l.enterDegraded()
			return
		}
		if result == promote.PrimaryReappeared {
			l.state = MonitorStandby
			return
		}
		l.state = MonitorPrimary
		metrics.SetRole(l.Self.Name, "primary")

	case election.NotifyBestCandidate:
		newPrimaryID, ok := l.Engine.WaitForNotification(ctx)
		if !ok {
			// §4.E.2: on timeout the monitor loop may re-initiate the
			// election on its next cycle; staying in Electing does that.
			return
		}
		newPrimary, status, gerr := l.Store.GetNode(ctx, newPrimaryID)
		if gerr != nil || status != store.StatusFound {
			l.enterDegraded()
			return
		}
		result, ferr := l.Executor.FollowNewPrimary(ctx, newPrimary, false, false)
		if ferr != nil || result == promote.FollowFail {
			if l.Log != nil {
				l.Log.WithError(ferr).Error("follow_new_primary failed")
			}
			l.enterDegraded()
			return
		}
		l.Upstream = newPrimary
		l.state = MonitorStandby

	case election.Cancelled:
		l.enterDegraded()

	case election.NotCandidate:
		// became a voter instead of a candidate this cycle; keep electing
		// so the next cycle can retry once reset_voting_status clears us.

	case election.PrimaryReappeared:
		l.state = MonitorStandby
	}
}

func (l *Loop) tickCascadedReattach(ctx context.Context) {
	primary, status, err := l.Store.GetPrimaryNode(ctx)
	if err != nil || status != store.StatusFound {
		l.enterDegraded()
		return
	}

	result, err := l.Executor.FollowNewPrimary(ctx, primary, false, false)
	if err != nil || result == promote.FollowFail {
		if l.Log != nil {
			l.Log.WithError(err).Error("cascaded reattach failed")
		}
		l.enterDegraded()
		return
	}
	l.Upstream = primary
	l.state = MonitorStandby
}

// CurrentState exposes the state for status reporting (`node status`,
// `cluster show`).
func (l *Loop) CurrentState() State { return l.state }
