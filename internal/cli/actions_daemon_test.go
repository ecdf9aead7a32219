package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repmgr-go/repmgr/internal/config"
)

func TestActionDaemonStatus_MissingPIDFileIsBadPIDFile(t *testing.T) {
	deps := Deps{Conf: config.Config{PIDFile: filepath.Join(t.TempDir(), "gone.pid")}}
	var buf bytes.Buffer
	code := actionDaemonStatus(context.Background(), nil, &Options{}, deps, &buf)
	require.Equal(t, BadPIDFile, code)
	require.Contains(t, buf.String(), "not running")
}
