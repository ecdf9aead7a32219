// Package sharedstate is the per-node election state block (§4.C): the
// repmgr_shared_state table in this node's own database, read and updated
// with plain SQL statements (no server-side functions are defined), that
// local and remote callers use as the sole cross-process synchronisation
// primitive during an election. There is no other fence.
package sharedstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/repmgr-go/repmgr/internal/gateway"
)

// VotingStatus is the state block's voting_status column (§3).
type VotingStatus string

const (
	NoVote               VotingStatus = "NO_VOTE"
	VoteRequestReceived  VotingStatus = "VOTE_REQUEST_RECEIVED"
	VoteInitiated        VotingStatus = "VOTE_INITIATED"
)

// ErrAlreadyVoting is returned by local callers attempting to initiate a
// vote while the state block is not in NO_VOTE; it is not returned over
// the wire, where the functions instead reply NULL/false per §4.C.
var ErrAlreadyVoting = errors.New("sharedstate: voting already in progress")

// Store exposes the §4.C function set against one node's database. Every
// method maps 1:1 onto a SQL-callable function so a peer issuing the same
// SQL statement observes identical semantics, whether the caller is this
// process (calling its own loopback connection) or a remote peer.
type Store struct {
	q gateway.Querier
}

// New wraps an already-open connection to a node's database with the
// shared-state function set. The schema (`repmgr_shared_state`) is
// provisioned once, at cluster-create time, the same way the function set
// itself would be installed as part of node registration.
func New(q gateway.Querier) *Store {
	return &Store{q: q}
}

// RequestVote records that this node has been asked to vote in term. If
// voting_status is NO_VOTE, it transitions to VOTE_REQUEST_RECEIVED, stores
// term, and returns the local WAL receive LSN. Otherwise it returns
// (0, false) — the wire equivalent of NULL (§4.C).
func (s *Store) RequestVote(ctx context.Context, requestingNodeID int, term int64) (gateway.LSN, bool, error) {
	var lsnStr sql.NullString

	row := s.q.QueryRowContext(ctx, `
		UPDATE repmgr_shared_state
		SET voting_status = $1, electoral_term = $2
		WHERE voting_status = $3 AND electoral_term <= $2
		RETURNING last_wal_receive_lsn::text`,
		string(VoteRequestReceived), term, string(NoVote))

	switch err := row.Scan(&lsnStr); err {
	case nil:
		if !lsnStr.Valid {
			return 0, true, nil
		}
		lsn, perr := gateway.ParseLSN(lsnStr.String)
		if perr != nil {
			return 0, false, fmt.Errorf("sharedstate: request_vote: %w", perr)
		}
		return lsn, true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("sharedstate: request_vote: %w", err)
	}
}

// GetVotingStatus reads the local voting_status.
func (s *Store) GetVotingStatus(ctx context.Context) (VotingStatus, error) {
	var status string
	err := s.q.QueryRowContext(ctx, `SELECT voting_status FROM repmgr_shared_state`).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("sharedstate: get_voting_status: %w", err)
	}
	return VotingStatus(status), nil
}

// SetVotingStatusInitiated atomically transitions NO_VOTE → VOTE_INITIATED
// and returns the new electoral_term (§4.C). It fails with
// ErrAlreadyVoting if the block is not currently NO_VOTE — this is how
// Phase 2 of the election engine (§4.E) distinguishes candidate from
// voter.
func (s *Store) SetVotingStatusInitiated(ctx context.Context) (int64, error) {
	var term int64
	row := s.q.QueryRowContext(ctx, `
		UPDATE repmgr_shared_state
		SET voting_status = $1, electoral_term = electoral_term + 1
		WHERE voting_status = $2
		RETURNING electoral_term`,
		string(VoteInitiated), string(NoVote))

	switch err := row.Scan(&term); err {
	case nil:
		return term, nil
	case sql.ErrNoRows:
		return 0, ErrAlreadyVoting
	default:
		return 0, fmt.Errorf("sharedstate: set_voting_status_initiated: %w", err)
	}
}

// AnnounceCandidature is called on peers to claim candidacy for term. It
// returns true iff candidate_node_id was unset for this term, in which
// case it is now set to requester — first-writer-wins (§4.C, §4.E.3).
func (s *Store) AnnounceCandidature(ctx context.Context, requester int, term int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE repmgr_shared_state
		SET candidate_node_id = $1
		WHERE electoral_term = $2 AND candidate_node_id IS NULL`,
		requester, term)
	if err != nil {
		return false, fmt.Errorf("sharedstate: announce_candidature: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sharedstate: announce_candidature: %w", err)
	}
	return n == 1, nil
}

// NotifyFollowPrimary sets candidate_node_id and follow_new_primary so the
// local monitor loop re-parents to the new primary on its next iteration
// (§4.C).
func (s *Store) NotifyFollowPrimary(ctx context.Context, newPrimaryID int) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE repmgr_shared_state SET candidate_node_id = $1, follow_new_primary = true`,
		newPrimaryID)
	if err != nil {
		return fmt.Errorf("sharedstate: notify_follow_primary: %w", err)
	}
	return nil
}

// GetNewPrimary returns candidate_node_id iff follow_new_primary is set
// (§4.C); (0, false) otherwise. Polled by §4.E.2's wait-for-notification.
func (s *Store) GetNewPrimary(ctx context.Context) (int, bool, error) {
	var candidate sql.NullInt64
	var follow bool

	err := s.q.QueryRowContext(ctx,
		`SELECT candidate_node_id, follow_new_primary FROM repmgr_shared_state`).
		Scan(&candidate, &follow)
	if err != nil {
		return 0, false, fmt.Errorf("sharedstate: get_new_primary: %w", err)
	}
	if !follow || !candidate.Valid {
		return 0, false, nil
	}
	return int(candidate.Int64), true, nil
}

// ResetVotingStatus returns the state block to NO_VOTE at the end of an
// election cycle (§4.C), clearing candidate_node_id and
// follow_new_primary so the next election starts clean.
func (s *Store) ResetVotingStatus(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE repmgr_shared_state
		SET voting_status = $1, candidate_node_id = NULL, follow_new_primary = false`,
		string(NoVote))
	if err != nil {
		return fmt.Errorf("sharedstate: reset_voting_status: %w", err)
	}
	return nil
}

// SetLocalNodeID is called once at process start (§3: "set once at
// startup").
func (s *Store) SetLocalNodeID(ctx context.Context, nodeID int) error {
	_, err := s.q.ExecContext(ctx, `UPDATE repmgr_shared_state SET local_node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("sharedstate: set_local_node_id: %w", err)
	}
	return nil
}

// StandbySetLastUpdated stamps the monitoring heartbeat (§3 last_updated),
// called once per monitor-loop iteration.
func (s *Store) StandbySetLastUpdated(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, `UPDATE repmgr_shared_state SET last_updated = NOW()`)
	if err != nil {
		return fmt.Errorf("sharedstate: standby_set_last_updated: %w", err)
	}
	return nil
}

// RepmgrdPause sets or clears the pause flag consulted by the monitor loop
// before it will initiate an automatic failover (§4.G step 3).
func (s *Store) RepmgrdPause(ctx context.Context, paused bool) error {
	_, err := s.q.ExecContext(ctx, `UPDATE repmgr_shared_state SET paused = $1`, paused)
	if err != nil {
		return fmt.Errorf("sharedstate: repmgrd_pause: %w", err)
	}
	return nil
}

// RepmgrdIsPaused reports the current pause flag.
func (s *Store) RepmgrdIsPaused(ctx context.Context) (bool, error) {
	var paused bool
	if err := s.q.QueryRowContext(ctx, `SELECT paused FROM repmgr_shared_state`).Scan(&paused); err != nil {
		return false, fmt.Errorf("sharedstate: repmgrd_is_paused: %w", err)
	}
	return paused, nil
}
