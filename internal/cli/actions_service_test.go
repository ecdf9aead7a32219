package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/gateway"
)

func TestActionServicePause_ConnectionFailureIsDBConn(t *testing.T) {
	deps := Deps{
		Open: func(ctx context.Context, conninfo string) (*gateway.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	var buf bytes.Buffer
	code := actionServicePause(context.Background(), nil, &Options{}, deps, &buf)
	require.Equal(t, DBConn, code)
}

func TestActionServiceUnpause_ConnectionFailureIsDBConn(t *testing.T) {
	deps := Deps{
		Open: func(ctx context.Context, conninfo string) (*gateway.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	var buf bytes.Buffer
	code := actionServiceUnpause(context.Background(), nil, &Options{}, deps, &buf)
	require.Equal(t, DBConn, code)
}
