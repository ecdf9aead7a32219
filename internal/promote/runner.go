package promote

import (
	"context"
	"os/exec"
)

// CommandRunner executes one of the operator-configured shell commands
// (promote_command, follow_command, service_* commands). §9: "modelled as
// scoped acquisition of a child process with guaranteed reap on all exit
// paths."
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}

// ShellRunner runs commands through /bin/sh -c, the same invocation style
// repmgr.conf's *_command keys document (arbitrary shell, not an argv
// list).
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, command string) error {
	if command == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	return cmd.Run()
}

var _ CommandRunner = ShellRunner{}
