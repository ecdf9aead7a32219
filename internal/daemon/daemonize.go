package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// daemonizedEnv marks a re-exec'd child so it doesn't daemonize again.
const daemonizedEnv = "REPMGRD_DAEMONIZED"

// Daemonize implements §4.H's fork/setsid/chdir/reopen-stdio sequence.
// Go cannot fork a running multi-threaded process safely, so the
// conventional substitute (used by e.g. sevlyar/go-daemon) is applied: the
// current binary is re-executed with the same argv in a new session, its
// working directory set to configDir, and stdio reopened to /dev/null
// (stderr stays attached when keepStderr is set, matching a daemon
// configured to log to stderr). The parent then exits 0, leaving the
// child to run detached.
func Daemonize(configDir string, keepStderr bool) error {
	if os.Getenv(daemonizedEnv) == "1" {
		return nil
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemon: resolving executable path: %w", err)
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return fmt.Errorf("daemon: resolving executable path: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	stderr := devNull
	if keepStderr {
		stderr = os.Stderr
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Dir = configDir
	cmd.Env = append(os.Environ(), daemonizedEnv+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: re-exec for daemonization: %w", err)
	}

	os.Exit(0)
	return nil
}
