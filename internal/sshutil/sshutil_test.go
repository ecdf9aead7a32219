package sshutil

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

// exitErrAs is the pure exit-code classifier behind RunRsync's
// vanished-files special case (§6); it's the only part of this package
// that doesn't require a real ssh/rsync binary on PATH.
func TestExitErrAs_NonExitError(t *testing.T) {
	var target *exec.ExitError
	require.False(t, exitErrAs(context.DeadlineExceeded, &target))
}

func TestExitErrAs_ExitError(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 24")
	err := cmd.Run()
	require.Error(t, err)

	var target *exec.ExitError
	require.True(t, exitErrAs(err, &target))
	require.Equal(t, 24, target.ExitCode())
}
