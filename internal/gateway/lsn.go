package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// LSN is a 64-bit write-ahead-log position. The engine's wire format writes
// it as two hex words separated by a slash ("16/B374D848"); §4.A requires
// that "position comparisons use the server's 64-bit LSN ordering, never a
// string comparison", so LSN is always decoded to a uint64 before it is
// compared, stored, or ranked.
type LSN uint64

// ParseLSN decodes the "XXXXXXXX/XXXXXXXX" wire format into an LSN.
func ParseLSN(s string) (LSN, error) {
	hi, lo, ok := strings.Cut(s, "/")
	if !ok {
		return 0, fmt.Errorf("gateway: malformed LSN %q", s)
	}

	hiVal, err := strconv.ParseUint(hi, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("gateway: malformed LSN %q: %w", s, err)
	}

	loVal, err := strconv.ParseUint(lo, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("gateway: malformed LSN %q: %w", s, err)
	}

	return LSN(hiVal<<32 | loVal), nil
}

// String renders the LSN back into the engine's wire format.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint64(l)>>32, uint64(l)&0xFFFFFFFF)
}

// Sub returns the byte distance between two LSNs, l - other, saturating at
// zero if other is ahead of l. Used for replication-lag sampling (§4.D).
func (l LSN) Sub(other LSN) uint64 {
	if l < other {
		return 0
	}
	return uint64(l - other)
}
