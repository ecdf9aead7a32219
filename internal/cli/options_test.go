package cli

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMode_PrecedenceCSVBeatsEverything(t *testing.T) {
	o := &Options{CSV: true, Nagios: true, Detail: true}
	require.Equal(t, OutputCSV, o.Mode())
}

func TestMode_NagiosBeatsOptFormatAndBelow(t *testing.T) {
	o := &Options{Nagios: true, OptFormat: true, Compact: true}
	require.Equal(t, OutputNagios, o.Mode())
}

func TestMode_DefaultsToTable(t *testing.T) {
	o := &Options{}
	require.Equal(t, OutputTable, o.Mode())
}

func TestForceRewindRequested_FalseUntilFlagSeen(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := BindGlobalFlags(fs)
	require.False(t, o.ForceRewindRequested())

	require.NoError(t, fs.Parse([]string{"--force-rewind=/usr/lib/postgresql/bin"}))
	require.True(t, o.ForceRewindRequested())
	require.Equal(t, "/usr/lib/postgresql/bin", o.ForceRewindPath)
}

func TestForceRewindRequested_TrueWithEmptyPath(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := BindGlobalFlags(fs)

	require.NoError(t, fs.Parse([]string{"--force-rewind="}))
	require.True(t, o.ForceRewindRequested())
	require.Equal(t, "", o.ForceRewindPath)
}

func TestBindGlobalFlags_ForceAndShorthandShareOneBool(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := BindGlobalFlags(fs)

	require.NoError(t, fs.Parse([]string{"-F"}))
	require.True(t, o.Force)
}
