// Package gateway is the typed wrapper over SQL and replication-protocol
// calls to the managed database engine (§4.A). It owns dialing, error
// classification and the engine-level queries; store and sharedstate issue
// their own SQL through the Querier interface over a Conn's DB handle.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	// the postgres driver registers itself under the name "postgres"
	_ "github.com/lib/pq"
)

// Querier is the subset of *sql.DB / *sql.Tx this package needs. Exposing
// it lets every operation below be exercised against a hand-rolled fake in
// tests without a real server.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Conn is a single owned connection to a managed node. §4.A: "connections
// are owned by a single caller at a time".
type Conn struct {
	db   *sql.DB
	name string // for logging/error context only

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// Open dials conninfo and returns an owned Conn. The dial itself is bounded
// by timeout so that a server that accepts TCP but stalls during the auth
// handshake cannot block the caller forever — §4.A: "test server reachable
// without blocking on authentication beyond a configurable timeout".
func Open(ctx context.Context, conninfo string, timeout time.Duration) (*Conn, error) {
	db, err := sql.Open("postgres", conninfo)
	if err != nil {
		return nil, classify("open", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(dialCtx); err != nil {
		db.Close()
		return nil, classify("ping", err)
	}

	return &Conn{db: db}, nil
}

// Close releases the connection. Safe to call more than once.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB returns the underlying Querier, for callers (the node metadata store,
// the election engine's peer queries) that need to issue their own SQL.
func (c *Conn) DB() Querier { return c.db }

// Ping tests whether the server is still reachable, bounded by timeout.
func (c *Conn) Ping(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.db.PingContext(pingCtx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// CancelQuery delivers a best-effort cancel to the server for whatever
// query is currently in flight on this connection, by canceling the
// context that query was issued under. §4.A: "cancellation delivers a
// best-effort cancel to the server"; §5: cancellation is cooperative, not
// guaranteed.
func (c *Conn) CancelQuery() {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// trackCancel wraps ctx with a cancel func this Conn remembers, so a
// concurrent CancelQuery call can abort it.
func (c *Conn) trackCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	return cctx, cancel
}

// Query runs a parameterised query and returns the result rows, the
// general escape hatch referenced in §4.A ("run a parameterised query
// returning rows").
func (c *Conn) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	cctx, cancel := c.trackCancel(ctx)
	defer cancel()

	rows, err := c.db.QueryContext(cctx, query, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	return rows, nil
}

// IsInRecovery distinguishes PRIMARY from STANDBY: true means the server is
// replaying WAL from an upstream (§4.A).
func IsInRecovery(ctx context.Context, q Querier) (bool, error) {
	var inRecovery bool
	if err := q.QueryRowContext(ctx, `SELECT pg_is_in_recovery()`).Scan(&inRecovery); err != nil {
		return false, classify("is_in_recovery", err)
	}
	return inRecovery, nil
}

// WALPositions fetches the server's WAL receive and replay positions
// (§4.A). On a primary both functions return NULL; callers should use
// CurrentLSN for primaries instead.
func WALPositions(ctx context.Context, q Querier) (receive, replay LSN, err error) {
	var receiveStr, replayStr sql.NullString
	row := q.QueryRowContext(ctx, `SELECT pg_last_wal_receive_lsn()::text, pg_last_wal_replay_lsn()::text`)
	if err := row.Scan(&receiveStr, &replayStr); err != nil {
		return 0, 0, classify("wal_positions", err)
	}

	if receiveStr.Valid {
		if receive, err = ParseLSN(receiveStr.String); err != nil {
			return 0, 0, &ProtocolError{Op: "wal_positions", Err: err}
		}
	}
	if replayStr.Valid {
		if replay, err = ParseLSN(replayStr.String); err != nil {
			return 0, 0, &ProtocolError{Op: "wal_positions", Err: err}
		}
	}

	return receive, replay, nil
}

// CurrentLSN fetches the write position of a node that is not in recovery
// (i.e. a primary).
func CurrentLSN(ctx context.Context, q Querier) (LSN, error) {
	var lsnStr string
	if err := q.QueryRowContext(ctx, `SELECT pg_current_wal_lsn()::text`).Scan(&lsnStr); err != nil {
		return 0, classify("current_lsn", err)
	}

	lsn, err := ParseLSN(lsnStr)
	if err != nil {
		return 0, &ProtocolError{Op: "current_lsn", Err: err}
	}
	return lsn, nil
}

// SystemInfo fetches the cluster's system_identifier and current timeline
// (§4.A), used by §4.F.1's system-identifier match check.
func SystemInfo(ctx context.Context, q Querier) (identifier string, timeline int, err error) {
	row := q.QueryRowContext(ctx, `SELECT system_identifier::text FROM pg_control_system()`)
	if err := row.Scan(&identifier); err != nil {
		return "", 0, classify("system_identifier", err)
	}

	row = q.QueryRowContext(ctx, `SELECT timeline_id FROM pg_control_checkpoint()`)
	if err := row.Scan(&timeline); err != nil {
		return "", 0, classify("current_timeline", err)
	}

	return identifier, timeline, nil
}

// TimelineHistoryEntry is one line of a timeline history file: the
// timeline it was forked from, and the LSN at which the fork happened.
type TimelineHistoryEntry struct {
	TLI     int
	ForkLSN LSN
}

// TimelineHistory fetches the timeline history file starting at timeline
// tli (§4.A), used by §4.F.1 to find the LSN a candidate timeline forked
// from. The engine exposes this over the replication protocol as the
// `TIMELINE_HISTORY` command, which returns a single row with a `content`
// column holding the file's text; this parses that text.
func TimelineHistory(ctx context.Context, q Querier, tli int) ([]TimelineHistoryEntry, error) {
	var fileName string
	var content []byte
	row := q.QueryRowContext(ctx, fmt.Sprintf(`TIMELINE_HISTORY %d`, tli))
	if err := row.Scan(&fileName, &content); err != nil {
		return nil, classify("timeline_history", err)
	}

	return parseTimelineHistory(content)
}

func parseTimelineHistory(content []byte) ([]TimelineHistoryEntry, error) {
	var entries []TimelineHistoryEntry

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, &ProtocolError{Op: "timeline_history", Err: fmt.Errorf("malformed history line %q", line)}
		}

		tli, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, &ProtocolError{Op: "timeline_history", Err: fmt.Errorf("malformed timeline in %q: %w", line, err)}
		}

		lsn, err := ParseLSN(fields[1])
		if err != nil {
			return nil, &ProtocolError{Op: "timeline_history", Err: fmt.Errorf("malformed LSN in %q: %w", line, err)}
		}

		entries = append(entries, TimelineHistoryEntry{TLI: tli, ForkLSN: lsn})
	}

	return entries, nil
}

// ForkLSNForTimeline finds the LSN at which tli+1 forked from tli, i.e. the
// "fork_end" referenced throughout §4.F.1.
func ForkLSNForTimeline(entries []TimelineHistoryEntry, tli int) (LSN, bool) {
	for _, e := range entries {
		if e.TLI == tli {
			return e.ForkLSN, true
		}
	}
	return 0, false
}

// DownstreamState describes what a named downstream reports about its
// replication connection to us, as seen in pg_stat_replication.
type DownstreamState struct {
	Connected bool
	State     string // e.g. "streaming", "catchup", "startup"
	SentLSN   LSN
}

// DownstreamReplicationState determines whether a named downstream node is
// currently streaming from us and, if so, its replication state (§4.A).
// applicationName is the downstream's configured `application_name`, which
// this module sets to the node's name when opening its replication
// connection.
func DownstreamReplicationState(ctx context.Context, q Querier, applicationName string) (DownstreamState, error) {
	var state string
	var sentLSNStr sql.NullString

	row := q.QueryRowContext(ctx,
		`SELECT state, sent_lsn::text FROM pg_stat_replication WHERE application_name = $1`,
		applicationName)

	switch err := row.Scan(&state, &sentLSNStr); err {
	case nil:
		var sent LSN
		if sentLSNStr.Valid {
			var perr error
			if sent, perr = ParseLSN(sentLSNStr.String); perr != nil {
				return DownstreamState{}, &ProtocolError{Op: "downstream_state", Err: perr}
			}
		}
		return DownstreamState{Connected: true, State: state, SentLSN: sent}, nil
	case sql.ErrNoRows:
		return DownstreamState{Connected: false}, nil
	default:
		return DownstreamState{}, classify("downstream_state", err)
	}
}
