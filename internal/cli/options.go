package cli

import "flag"

// OutputMode selects how a report-producing action renders its result
// (§6 output modes).
type OutputMode int

const (
	OutputTable OutputMode = iota
	OutputCSV
	OutputNagios
	OutputOptFormat
	OutputCompact
	OutputDetail
)

// Options holds every flag named in §6's "Operator command surface",
// parsed once per invocation and threaded into the selected action.
type Options struct {
	Host     string
	Port     string
	DBName   string
	User     string

	NodeID         int
	NodeName       string
	UpstreamNodeID int

	DryRun             bool
	Force              bool
	SiblingsFollow     bool
	ForceRewindPath    string
	forceRewindSet     bool
	AlwaysPromote      bool
	RepmgrdNoPause     bool
	RepmgrdForceUnpause bool
	Wait               bool
	NoWait             bool

	CSV       bool
	Nagios    bool
	OptFormat bool
	Compact   bool
	Detail    bool

	ConfigFile string
}

// Mode resolves the output-mode flags into a single OutputMode, applying
// the precedence CSV > Nagios > OptFormat > Detail > Compact > Table.
func (o *Options) Mode() OutputMode {
	switch {
	case o.CSV:
		return OutputCSV
	case o.Nagios:
		return OutputNagios
	case o.OptFormat:
		return OutputOptFormat
	case o.Detail:
		return OutputDetail
	case o.Compact:
		return OutputCompact
	default:
		return OutputTable
	}
}

// ForceRewindRequested reports whether --force-rewind was passed at all
// (with or without a path argument).
func (o *Options) ForceRewindRequested() bool { return o.forceRewindSet }

// BindGlobalFlags registers every §6 flag onto fs and returns the Options
// it will populate once fs.Parse runs.
func BindGlobalFlags(fs *flag.FlagSet) *Options {
	o := &Options{}

	fs.StringVar(&o.Host, "h", "", "database host")
	fs.StringVar(&o.Port, "p", "", "database port")
	fs.StringVar(&o.DBName, "d", "", "database name")
	fs.StringVar(&o.User, "U", "", "database user")

	fs.IntVar(&o.NodeID, "node-id", 0, "target node id")
	fs.StringVar(&o.NodeName, "node-name", "", "target node name")
	fs.IntVar(&o.UpstreamNodeID, "upstream-node-id", 0, "upstream node id")

	fs.BoolVar(&o.DryRun, "dry-run", false, "preflight-check only, no mutating action")
	fs.BoolVar(&o.Force, "force", false, "override a safety check")
	fs.BoolVar(&o.Force, "F", false, "override a safety check (shorthand)")
	fs.BoolVar(&o.SiblingsFollow, "siblings-follow", false, "reparent sibling standbys after promotion")
	fs.Func("force-rewind", "allow a rewind, optionally at PATH", func(v string) error {
		o.forceRewindSet = true
		o.ForceRewindPath = v
		return nil
	})
	fs.BoolVar(&o.AlwaysPromote, "always-promote", false, "promote even if not the best candidate")
	fs.BoolVar(&o.RepmgrdNoPause, "repmgrd-no-pause", false, "skip pausing supervisor daemons")
	fs.BoolVar(&o.RepmgrdForceUnpause, "repmgrd-force-unpause", false, "force-clear the pause flag")
	fs.BoolVar(&o.Wait, "wait", false, "wait for the action's effect to be observed")
	fs.BoolVar(&o.NoWait, "no-wait", false, "return immediately without waiting")

	fs.BoolVar(&o.CSV, "csv", false, "render output as CSV")
	fs.BoolVar(&o.Nagios, "nagios", false, "render output as a Nagios-plugin line")
	fs.BoolVar(&o.OptFormat, "optformat", false, "render output as key=value pairs")
	fs.BoolVar(&o.Compact, "compact", false, "render a compact table")
	fs.BoolVar(&o.Detail, "detail", false, "render an expanded table")

	fs.StringVar(&o.ConfigFile, "f", "", "path to repmgr.conf")

	return o
}
