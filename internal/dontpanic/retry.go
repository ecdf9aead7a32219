// Package dontpanic provides function wrappers and supervisors to ensure
// that wrapped code does not panic and cause program crashes.
//
// When should you use this package? Anytime you are running a function or
// goroutine where it isn't obvious whether it can or can't panic. This may
// be a higher risk in long running goroutines and functions or ones that are
// difficult to test completely. The supervisor daemon uses this to run its
// signal-handling goroutine (daemon.WatchSignals): a panic while handling a
// signal must not take down the process that is supposed to be detecting
// failures.
package dontpanic

import (
	"time"

	"github.com/repmgr-go/repmgr/internal/log"
)

var logger = log.Default()

// Try will wrap the provided function with a panic recovery, logging any
// recovered value as an error. Returns `true` if no panic and `false`
// otherwise.
func Try(fn func()) bool {
	normal := true

	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				normal = false
				logger.Errorf("dontpanic: recovered value: %+v", recovered)
			}
		}()
		fn()
	}()

	return normal
}

// Go will run the provided function in a goroutine and recover from any
// panics. Go is best used in fire-and-forget goroutines where observability
// is lost.
func Go(fn func()) { go Try(fn) }

// GoForever will keep retrying a function fn in a goroutine forever in the
// background (until the process exits) while recovering from panics. The
// provided backoff delays retries to give the process "breathing" room
// after a panic rather than spinning.
func GoForever(backoff time.Duration, fn func()) {
	go func() {
		for {
			if Try(fn) {
				continue
			}

			if backoff <= 0 {
				continue
			}

			logger.Infof("dontpanic: backing off %s before retrying", backoff)
			time.Sleep(backoff)
		}
	}()
}
