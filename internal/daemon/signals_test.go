package daemon

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingReloader struct {
	reloads int32
	exits   int32
}

func (c *countingReloader) RequestReload() { atomic.AddInt32(&c.reloads, 1) }
func (c *countingReloader) RequestExit()   { atomic.AddInt32(&c.exits, 1) }

func TestWatchSignals_SIGHUPTriggersReload(t *testing.T) {
	r := &countingReloader{}
	stop := WatchSignals(r, nil)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&r.reloads) == 1
	}, time.Second, time.Millisecond*10)
}

func TestWatchSignals_SIGTERMTriggersExit(t *testing.T) {
	r := &countingReloader{}
	stop := WatchSignals(r, nil)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&r.exits) == 1
	}, time.Second, time.Millisecond*10)
}

func TestRunID_ProducesDistinctValues(t *testing.T) {
	a, b := RunID(), RunID()
	require.NotEqual(t, a, b)
}
