package daemon

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/dontpanic"
)

// Reloader is the subset of monitor.Loop that signal handling drives.
type Reloader interface {
	RequestReload()
	RequestExit()
}

// RunID returns a new random UUID string on every call. repmgrd records one
// as the detail of its repmgrd_start event; it is not attached to log
// fields and is not shared between nodes.
func RunID() string { return uuid.New().String() }

// WatchSignals installs handlers for SIGHUP (config reload, §4.H) and
// SIGINT/SIGTERM (clean exit, §4.H) against l, logging each delivery. It
// returns a stop function that restores default signal handling.
func WatchSignals(l Reloader, log logrus.FieldLogger) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	dontpanic.Go(func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGHUP:
					if log != nil {
						log.Info("received SIGHUP, scheduling configuration reload")
					}
					l.RequestReload()
				case syscall.SIGINT, syscall.SIGTERM:
					if log != nil {
						log.WithField("signal", sig.String()).Info("received shutdown signal")
					}
					l.RequestExit()
				}
			case <-done:
				return
			}
		}
	})

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
