package promote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/gateway"
)

func lsn(t *testing.T, s string) gateway.LSN {
	t.Helper()
	l, err := gateway.ParseLSN(s)
	require.NoError(t, err)
	return l
}

// TestCheckTimelineSanity_S5 models §8 scenario S5: local timeline 7,
// target timeline 8, fork_end 0/5000, local_lsn 0/4800 — passes without
// rewind.
func TestCheckTimelineSanity_S5(t *testing.T) {
	result := CheckTimelineSanity(TimelineCheckInput{
		LocalSystemIdentifier:  "123",
		TargetSystemIdentifier: "123",
		LocalTLI:               7,
		LocalLSN:               lsn(t, "0/4800"),
		TargetTLI:              8,
		TargetLSN:              lsn(t, "0/6000"),
		History: []gateway.TimelineHistoryEntry{
			{TLI: 7, ForkLSN: lsn(t, "0/5000")},
		},
	})

	require.True(t, result.Safe)
	require.False(t, result.RewindNeeded)
	require.NoError(t, result.FailureReason)
}

// TestCheckTimelineSanity_S6 models §8 scenario S6: local timeline 7,
// target timeline 8, fork_end 0/5000, local_lsn 0/6000 — refuses without
// --force-rewind; with force-rewind and engine support, proceeds.
func TestCheckTimelineSanity_S6(t *testing.T) {
	input := TimelineCheckInput{
		LocalSystemIdentifier:  "123",
		TargetSystemIdentifier: "123",
		LocalTLI:               7,
		LocalLSN:               lsn(t, "0/6000"),
		TargetTLI:              8,
		TargetLSN:              lsn(t, "0/7000"),
		History: []gateway.TimelineHistoryEntry{
			{TLI: 7, ForkLSN: lsn(t, "0/5000")},
		},
	}

	result := CheckTimelineSanity(input)
	require.False(t, result.Safe)
	require.True(t, errors.Is(result.FailureReason, ErrRewindRequired))

	input.ForceRewind = true
	input.EngineSupportsRewind = true
	result = CheckTimelineSanity(input)
	require.True(t, result.Safe)
	require.True(t, result.RewindNeeded)
}

func TestCheckTimelineSanity_SystemIdentifierMismatch(t *testing.T) {
	result := CheckTimelineSanity(TimelineCheckInput{
		LocalSystemIdentifier:  "123",
		TargetSystemIdentifier: "456",
	})
	require.False(t, result.Safe)
	require.True(t, errors.Is(result.FailureReason, ErrDifferentCluster))
}

func TestCheckTimelineSanity_SameTimelineLocalAhead(t *testing.T) {
	result := CheckTimelineSanity(TimelineCheckInput{
		LocalSystemIdentifier:  "123",
		TargetSystemIdentifier: "123",
		LocalTLI:               5,
		TargetTLI:              5,
		LocalLSN:               lsn(t, "0/2000"),
		TargetLSN:               lsn(t, "0/1000"),
	})
	require.False(t, result.Safe)
	require.True(t, errors.Is(result.FailureReason, ErrLocalAheadOnSharedTimeline))
}

func TestCheckTimelineSanity_TargetBehindWithoutRewind(t *testing.T) {
	result := CheckTimelineSanity(TimelineCheckInput{
		LocalSystemIdentifier:  "123",
		TargetSystemIdentifier: "123",
		LocalTLI:               9,
		TargetTLI:              8,
	})
	require.False(t, result.Safe)
	require.True(t, errors.Is(result.FailureReason, ErrRewindRequired))
}
