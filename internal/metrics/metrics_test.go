package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSetRole_OnlyCurrentRoleReadsOne(t *testing.T) {
	SetRole("node2", "standby")

	require.Equal(t, 0.0, testutil.ToFloat64(RoleGauge.WithLabelValues("node2", "primary")))
	require.Equal(t, 1.0, testutil.ToFloat64(RoleGauge.WithLabelValues("node2", "standby")))
	require.Equal(t, 0.0, testutil.ToFloat64(RoleGauge.WithLabelValues("node2", "witness")))

	SetRole("node2", "primary")
	require.Equal(t, 1.0, testutil.ToFloat64(RoleGauge.WithLabelValues("node2", "primary")))
	require.Equal(t, 0.0, testutil.ToFloat64(RoleGauge.WithLabelValues("node2", "standby")))
}
