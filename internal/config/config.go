// Package config loads and validates the per-node repmgr.conf file (§6).
// It describes only the local node: its identity, its connection, and its
// local behaviour. The rest of the cluster's topology is discovered from
// the node metadata store (§4.B) at runtime, not from a config file.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

// FailoverMode is the failover_mode setting, "automatic" or "manual". It
// is checked by Validate; repmgrd's monitor loop does not read it and
// drives an election on upstream loss in either mode.
type FailoverMode string

const (
	// FailoverAutomatic is the default failover_mode.
	FailoverAutomatic FailoverMode = "automatic"
	// FailoverManual is accepted by Validate; the monitor loop treats it
	// the same as FailoverAutomatic.
	FailoverManual FailoverMode = "manual"
)

func (m FailoverMode) validate() error {
	switch m {
	case FailoverAutomatic, FailoverManual, "":
		return nil
	default:
		return fmt.Errorf("invalid failover_mode: %q", m)
	}
}

// Log holds the logging configuration needed to wire internal/log.
type Log struct {
	Format              string `toml:"format"`
	Level               string `toml:"level"`
	StatusIntervalSecs  int    `toml:"log_status_interval"`
	Facility            string `toml:"facility"`
}

// Prometheus holds the ambient metrics listener configuration.
type Prometheus struct {
	BindAddr      string `toml:"bind_addr"`
	ScrapeTimeout int    `toml:"scrape_timeout"`
}

// Config is the decoded contents of repmgr.conf (§6).
type Config struct {
	NodeID   int    `toml:"node_id"`
	NodeName string `toml:"node_name"`
	Conninfo string `toml:"conninfo"`
	Location string `toml:"location"`
	Priority int    `toml:"priority"`

	DataDirectory       string `toml:"data_directory"`
	ReplicationUser     string `toml:"replication_user"`
	ReplicationSlotName string `toml:"replication_slot_name"`
	UseReplicationSlots bool   `toml:"use_replication_slots"`

	FailoverMode FailoverMode `toml:"failover_mode"`

	PromoteCommand        string `toml:"promote_command"`
	FollowCommand          string `toml:"follow_command"`
	ServiceStartCommand    string `toml:"service_start_command"`
	ServiceStopCommand     string `toml:"service_stop_command"`
	ServiceRestartCommand  string `toml:"service_restart_command"`
	ServiceReloadCommand   string `toml:"service_reload_command"`
	ServicePromoteCommand  string `toml:"service_promote_command"`
	PgCtlOptions           string `toml:"pg_ctl_options"`

	SSHOptions   string `toml:"ssh_options"`
	RsyncOptions string `toml:"rsync_options"`
	BarmanHost   string `toml:"barman_host"`
	RestoreCommand string `toml:"restore_command"`

	// EventNotificationCommand, if set, is run once per logged event with
	// the event's fields as positional arguments (§6 event notification).
	EventNotificationCommand string `toml:"event_notification_command"`
	// Daemonize detaches repmgrd from its controlling terminal at startup
	// (§4.H); false runs it in the foreground, the way tests and systemd
	// units that set Type=simple want it to behave.
	Daemonize bool `toml:"daemonize"`

	MonitorIntervalSecs        int `toml:"monitor_interval_secs"`
	ReconnectAttempts          int `toml:"reconnect_attempts"`
	ReconnectInterval          int `toml:"reconnect_interval"`
	PrimaryResponseTimeout     int `toml:"primary_response_timeout"`
	DegradedMonitoringTimeout  int `toml:"degraded_monitoring_timeout"`
	NodeRejoinTimeout          int `toml:"node_rejoin_timeout"`
	StandbyReconnectTimeout    int `toml:"standby_reconnect_timeout"`
	ConnectionTimeoutSecs      int `toml:"connection_timeout"`

	MonitoringHistory bool   `toml:"monitoring_history"`
	RepmgrBindir      string `toml:"repmgr_bindir"`
	PIDFile           string `toml:"pid_file"`

	// EngineSupportsRewind gates the forced-rewind path in §4.F.1; the
	// underlying engine must be >= v9.6 for a rewind tool to exist at all.
	EngineSupportsRewind bool `toml:"engine_supports_rewind"`

	Log        Log        `toml:"log"`
	Prometheus Prometheus `toml:"prometheus"`
}

// FromFile loads the config for the passed file path, seeding defaults
// before decoding and filling any still-zero fields afterward.
func FromFile(filePath string) (Config, error) {
	b, err := ioutil.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}

	conf := defaultConfig()
	if err := toml.Unmarshal(b, &conf); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", filePath, err)
	}

	conf.setDefaults()

	return conf, nil
}

func defaultConfig() Config {
	return Config{
		FailoverMode: FailoverAutomatic,
		Log: Log{
			Format: "text",
			Level:  "info",
		},
	}
}

func (c *Config) setDefaults() {
	if c.MonitorIntervalSecs == 0 {
		c.MonitorIntervalSecs = 2
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = 5
	}
	// ReconnectAttempts is deliberately left at its zero value when unset
	// in the file: per §8's boundary behaviour, reconnect_attempts=0 means
	// any single probe failure triggers an election immediately, and that
	// is also toml's natural zero value, so no override is needed here.
	if c.PrimaryResponseTimeout == 0 {
		c.PrimaryResponseTimeout = 60
	}
	if c.DegradedMonitoringTimeout == 0 {
		c.DegradedMonitoringTimeout = 300
	}
	if c.NodeRejoinTimeout == 0 {
		c.NodeRejoinTimeout = 60
	}
	if c.StandbyReconnectTimeout == 0 {
		c.StandbyReconnectTimeout = 60
	}
	if c.ConnectionTimeoutSecs == 0 {
		c.ConnectionTimeoutSecs = 10
	}
	if c.Log.StatusIntervalSecs == 0 {
		c.Log.StatusIntervalSecs = 300
	}
	if c.PIDFile == "" {
		c.PIDFile = "/var/run/repmgrd.pid"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

var (
	errNoNodeID   = errors.New("node_id must be set")
	errNoNodeName = errors.New("node_name must be set")
	errNoConninfo = errors.New("conninfo must be set")
	errNoDataDir  = errors.New("data_directory must be set")
)

// Validate establishes if the config is valid.
func (c *Config) Validate() error {
	if c.NodeID == 0 {
		return errNoNodeID
	}
	if c.NodeName == "" {
		return errNoNodeName
	}
	if c.Conninfo == "" {
		return errNoConninfo
	}
	if c.DataDirectory == "" {
		return errNoDataDir
	}
	if err := c.FailoverMode.validate(); err != nil {
		return err
	}
	if c.ReconnectAttempts < 0 {
		return errors.New("reconnect_attempts must be >= 0")
	}
	if c.Priority < 0 {
		return errors.New("priority must be >= 0")
	}

	return nil
}

func (c Config) MonitorInterval() time.Duration { return time.Duration(c.MonitorIntervalSecs) * time.Second }
func (c Config) ReconnectIntervalDuration() time.Duration {
	return time.Duration(c.ReconnectInterval) * time.Second
}
func (c Config) PrimaryResponseTimeoutDuration() time.Duration {
	return time.Duration(c.PrimaryResponseTimeout) * time.Second
}
func (c Config) DegradedMonitoringTimeoutDuration() time.Duration {
	return time.Duration(c.DegradedMonitoringTimeout) * time.Second
}
func (c Config) NodeRejoinTimeoutDuration() time.Duration {
	return time.Duration(c.NodeRejoinTimeout) * time.Second
}
func (c Config) StandbyReconnectTimeoutDuration() time.Duration {
	return time.Duration(c.StandbyReconnectTimeout) * time.Second
}
func (c Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutSecs) * time.Second
}
func (c Config) LogStatusInterval() time.Duration {
	return time.Duration(c.Log.StatusIntervalSecs) * time.Second
}

// ToPQString augments the raw conninfo string with a connection timeout if
// one isn't already present. conninfo is mostly operator-authored free
// text (standard libpq `key=value` syntax) rather than assembled from
// individual TOML keys, since §3 models it as an opaque "textual
// connection string" per node.
func (c Config) ToPQString() string {
	info := strings.TrimSpace(c.Conninfo)
	if strings.Contains(info, "connect_timeout=") {
		return info
	}

	timeout := c.ConnectionTimeoutSecs
	if timeout == 0 {
		timeout = 10
	}

	if info == "" {
		return fmt.Sprintf("connect_timeout=%d", timeout)
	}

	return fmt.Sprintf("%s connect_timeout=%d", info, timeout)
}
