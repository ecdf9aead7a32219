package election

import "github.com/repmgr-go/repmgr/internal/gateway"

// Candidate is one entry of a sibling snapshot (§3), reduced to the three
// fields the best-candidate rule ranks on.
type Candidate struct {
	NodeID   int
	Priority int
	LSN      gateway.LSN
}

// BestCandidate applies the deterministic tie-break of §4.E.1: highest
// LSN, then highest priority, then lowest node_id. It is a total order, so
// every node evaluating the same snapshot picks the same winner (§8
// invariant 4).
func BestCandidate(candidates []Candidate) int {
	if len(candidates) == 0 {
		return 0
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best.NodeID
}

func better(a, b Candidate) bool {
	if a.LSN != b.LSN {
		return a.LSN > b.LSN
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.NodeID < b.NodeID
}
