package cli

import (
	"bytes"
	"context"
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatch_UnknownComponent(t *testing.T) {
	var buf bytes.Buffer
	code := Dispatch(context.Background(), []string{"spaceship", "launch"}, Deps{}, &buf)
	require.Equal(t, BadConfig, code)
	require.Contains(t, buf.String(), `unknown component "spaceship"`)
}

func TestDispatch_UnknownAction(t *testing.T) {
	var buf bytes.Buffer
	code := Dispatch(context.Background(), []string{"standby", "teleport"}, Deps{}, &buf)
	require.Equal(t, BadConfig, code)
	require.Contains(t, buf.String(), `unknown action "teleport"`)
}

func TestDispatch_TooFewArgs(t *testing.T) {
	var buf bytes.Buffer
	code := Dispatch(context.Background(), []string{"standby"}, Deps{}, &buf)
	require.Equal(t, BadConfig, code)
}

func TestDispatch_RoutesToRegisteredActionWithParsedFlags(t *testing.T) {
	var gotNodeID int
	orig := registry["node"]["status"]
	registry["node"]["status"] = func(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode {
		gotNodeID = opts.NodeID
		return Success
	}
	defer func() { registry["node"]["status"] = orig }()

	var buf bytes.Buffer
	code := Dispatch(context.Background(), []string{"node", "status", "--node-id", "7"}, Deps{}, &buf)
	require.Equal(t, Success, code)
	require.Equal(t, 7, gotNodeID)
}

func TestDispatch_ClusterMatrixAliasesCrosscheck(t *testing.T) {
	require.NotNil(t, registry["cluster"]["matrix"])
}
