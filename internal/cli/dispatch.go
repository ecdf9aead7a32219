package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
)

// Action is one component/action pair (e.g. "standby promote").
type Action func(ctx context.Context, fs *flag.FlagSet, opts *Options, deps Deps, out io.Writer) ExitCode

var registry = map[string]map[string]Action{
	"primary": {
		"register": actionPrimaryRegister,
	},
	"standby": {
		"register":   actionStandbyRegister,
		"clone":      actionStandbyClone,
		"promote":    actionStandbyPromote,
		"follow":     actionStandbyFollow,
		"switchover": actionStandbySwitchover,
	},
	"witness": {
		"register": actionWitnessRegister,
	},
	"node": {
		"status":     actionNodeStatus,
		"check":      actionNodeCheck,
		"rejoin":     actionNodeRejoin,
		"unregister": actionNodeUnregister,
	},
	"cluster": {
		"show":       actionClusterShow,
		"event":      actionClusterEvent,
		"crosscheck": actionClusterCrosscheck,
		"matrix":     actionClusterCrosscheck, // §6 names both; same diagnostic report
	},
	"service": {
		"pause":   actionServicePause,
		"unpause": actionServiceUnpause,
	},
	"daemon": {
		"status": actionDaemonStatus,
	},
}

// Dispatch parses `<component> <action> [flags...]` out of args and runs
// the matching Action, per §6's "Operator command surface".
func Dispatch(ctx context.Context, args []string, deps Deps, out io.Writer) ExitCode {
	if len(args) < 2 {
		fmt.Fprintln(out, "usage: repmgr [options] <component> <action>")
		return BadConfig
	}

	component, action := args[0], args[1]
	actions, ok := registry[component]
	if !ok {
		fmt.Fprintf(out, "repmgr: unknown component %q\n", component)
		return BadConfig
	}
	fn, ok := actions[action]
	if !ok {
		fmt.Fprintf(out, "repmgr: unknown action %q for component %q\n", action, component)
		return BadConfig
	}

	fs := flag.NewFlagSet(component+" "+action, flag.ContinueOnError)
	opts := BindGlobalFlags(fs)
	if err := fs.Parse(args[2:]); err != nil {
		return BadConfig
	}

	return fn(ctx, fs, opts, deps, out)
}
