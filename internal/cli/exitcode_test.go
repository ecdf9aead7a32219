package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode_String(t *testing.T) {
	cases := map[ExitCode]string{
		Success:           "SUCCESS",
		BadConfig:         "BAD_CONFIG",
		DBConn:            "DB_CONN",
		DBQuery:           "DB_QUERY",
		BadPIDFile:        "BAD_PIDFILE",
		MonitoringTimeout: "MONITORING_TIMEOUT",
		FailoverFail:      "FAILOVER_FAIL",
		Internal:          "INTERNAL",
		ExitCode(99):      "UNKNOWN",
	}
	for code, want := range cases {
		require.Equal(t, want, code.String())
	}
}
