package events

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/store"
)

func TestSink_Notify_InvokesCommandWithPositionalArgs(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.txt")

	script := filepath.Join(dir, "notify.sh")
	require.NoError(t, ioutil.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > \""+outFile+"\"\n"), 0o755))

	sink := NewSink(script, nil)
	sink.Notify(context.Background(), store.Event{
		NodeID:    2,
		Kind:      store.EventRepmgrdFailoverPromote,
		Success:   true,
		Timestamp: time.Unix(0, 0).UTC(),
		Detail:    "promoted after primary loss",
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(outFile)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	content, err := ioutil.ReadFile(outFile)
	require.NoError(t, err)
	require.Contains(t, string(content), "2 repmgrd_failover_promote true")
	require.Contains(t, string(content), "promoted after primary loss")
}

func TestSink_Notify_NoCommandConfigured_DoesNothing(t *testing.T) {
	sink := NewSink("", nil)
	// Must not panic or block.
	sink.Notify(context.Background(), store.Event{NodeID: 1})
}
