// Package sshutil wraps OpenSSH batch-mode invocations for the
// switchover orchestrator's remote steps (§6 "SSH to peers").
package sshutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// rsyncVanishedFiles is the exit status rsync uses when some source files
// disappeared during the transfer; §6 treats it as success.
const rsyncVanishedFiles = 24

// Runner issues commands on a remote host over SSH in batch mode (no
// interactive prompts, so a misconfigured peer fails fast instead of
// hanging on a password prompt).
type Runner struct {
	SSHOptions string
	User       string
}

// Run executes command on host and returns its combined stdout+stderr.
func (r Runner) Run(ctx context.Context, host, command string) (string, error) {
	args := []string{"-o", "BatchMode=yes"}
	if r.SSHOptions != "" {
		args = append(args, strings.Fields(r.SSHOptions)...)
	}

	target := host
	if r.User != "" {
		target = fmt.Sprintf("%s@%s", r.User, host)
	}
	args = append(args, target, command)

	cmd := exec.CommandContext(ctx, "ssh", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("sshutil: ssh %s %q: %w", host, command, err)
	}
	return out.String(), nil
}

// RunRsync runs rsync against the given arguments, treating exit status 24
// (vanished source files) as success per §6.
func (r Runner) RunRsync(ctx context.Context, args ...string) (string, error) {
	fullArgs := args
	if r.SSHOptions != "" {
		fullArgs = append([]string{"-e", "ssh " + r.SSHOptions}, fullArgs...)
	}

	cmd := exec.CommandContext(ctx, "rsync", fullArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return out.String(), nil
	}

	var exitErr *exec.ExitError
	if exitErrAs(err, &exitErr) && exitErr.ExitCode() == rsyncVanishedFiles {
		return out.String(), nil
	}

	return out.String(), fmt.Errorf("sshutil: rsync %v: %w", args, err)
}

func exitErrAs(err error, target **exec.ExitError) bool {
	if e, ok := err.(*exec.ExitError); ok {
		*target = e
		return true
	}
	return false
}
