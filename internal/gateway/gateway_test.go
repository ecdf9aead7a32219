package gateway

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/require"
)

// *sql.Row cannot be constructed outside database/sql, so the
// query-issuing methods (IsInRecovery, WALPositions, ...) are left to
// integration coverage against a real server. What's tested here directly
// is everything that doesn't require one: LSN parsing/ordering, timeline
// history parsing, and error classification.

func TestParseLSN(t *testing.T) {
	lsn, err := ParseLSN("16/B374D848")
	require.NoError(t, err)
	require.Equal(t, "16/B374D848", lsn.String())
}

func TestParseLSN_Malformed(t *testing.T) {
	_, err := ParseLSN("not-an-lsn")
	require.Error(t, err)
}

func TestLSN_Sub(t *testing.T) {
	a, _ := ParseLSN("0/3000000")
	b, _ := ParseLSN("0/1000000")

	require.Equal(t, uint64(0x2000000), a.Sub(b))
	// a behind b saturates at zero rather than wrapping.
	require.Equal(t, uint64(0), b.Sub(a))
}

func TestLSN_Ordering(t *testing.T) {
	a, _ := ParseLSN("0/1000000")
	b, _ := ParseLSN("1/1000000")

	require.True(t, a < b, "LSN comparison must use 64-bit integer ordering, not string ordering")
}

func TestParseTimelineHistory(t *testing.T) {
	content := []byte("1\t0/3000000\tno recovery target specified\n" +
		"# a comment line\n\n" +
		"2\t0/5000000\tno recovery target specified\n")

	entries, err := parseTimelineHistory(content)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 1, entries[0].TLI)
	require.Equal(t, 2, entries[1].TLI)

	forkLSN, ok := ForkLSNForTimeline(entries, 2)
	require.True(t, ok)
	expected, _ := ParseLSN("0/5000000")
	require.Equal(t, expected, forkLSN)

	_, ok = ForkLSNForTimeline(entries, 99)
	require.False(t, ok)
}

func TestParseTimelineHistory_Malformed(t *testing.T) {
	_, err := parseTimelineHistory([]byte("not-a-timeline not-an-lsn\n"))
	require.Error(t, err)
	require.True(t, IsProtocolError(err))
}

func TestClassify_ConnectionRefused(t *testing.T) {
	err := classify("ping", driver.ErrBadConn)
	require.True(t, IsConnectionError(err))
	require.False(t, IsPermissionError(err))
}

func TestClassify_Nil(t *testing.T) {
	require.Nil(t, classify("ping", nil))
}
