package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/config"
	"github.com/repmgr-go/repmgr/internal/daemon"
	"github.com/repmgr-go/repmgr/internal/gateway"
	"github.com/repmgr-go/repmgr/internal/promote"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

// Deps carries everything an Action needs to reach the database and the
// rest of the module; cmd/repmgr builds one real Deps from the loaded
// config, tests build one from fakes.
type Deps struct {
	Conf       config.Config
	ConfigPath string
	Log        logrus.FieldLogger

	// Open opens a gateway connection to the given conninfo. It does no
	// defaulting; localConn passes the configured conninfo explicitly.
	Open func(ctx context.Context, conninfo string) (*gateway.Conn, error)

	Runner promote.CommandRunner
}

// localConn opens a connection to the node this process is configured
// for.
func (d Deps) localConn(ctx context.Context) (*gateway.Conn, error) {
	return d.Open(ctx, d.Conf.Conninfo)
}

// storeFor builds a Store bound to conn's connection.
func (d Deps) storeFor(conn *gateway.Conn) store.Store {
	return store.New(conn.DB(), nil, d.Log)
}

// sharedStateFor builds a SharedState bound to conn's connection.
func (d Deps) sharedStateFor(conn *gateway.Conn) sharedstate.SharedState {
	return sharedstate.New(conn.DB())
}

// selfNode resolves the local node record by the configured node_id.
func (d Deps) selfNode(ctx context.Context, conn *gateway.Conn) (store.Node, error) {
	n, status, err := d.storeFor(conn).GetNode(ctx, d.Conf.NodeID)
	if err != nil {
		return store.Node{}, err
	}
	if status != store.StatusFound {
		return store.Node{}, errNodeNotRegistered(d.Conf.NodeID)
	}
	return n, nil
}

func errNodeNotRegistered(id int) error {
	return &notRegisteredError{id: id}
}

type notRegisteredError struct{ id int }

func (e *notRegisteredError) Error() string {
	return fmt.Sprintf("cli: node_id %d is not registered: run the register action first", e.id)
}

// connectTimeout is the default peer-connection bound (§5).
const connectTimeout = 10 * time.Second

// RunID surfaces daemon.RunID for actions that log a correlation id
// (e.g. a manually triggered switchover).
func RunID() string { return daemon.RunID() }
