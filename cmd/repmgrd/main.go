// Command repmgrd is the supervisor daemon (§4.D/§4.H): one instance runs
// alongside each managed node's database engine, watching its upstream (or
// itself, for a primary) and driving elections and follows on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/repmgr-go/repmgr/internal/cli"
	"github.com/repmgr-go/repmgr/internal/config"
	"github.com/repmgr-go/repmgr/internal/daemon"
	"github.com/repmgr-go/repmgr/internal/election"
	"github.com/repmgr-go/repmgr/internal/events"
	"github.com/repmgr-go/repmgr/internal/gateway"
	applog "github.com/repmgr-go/repmgr/internal/log"
	"github.com/repmgr-go/repmgr/internal/metrics"
	"github.com/repmgr-go/repmgr/internal/monitor"
	"github.com/repmgr-go/repmgr/internal/promote"
	"github.com/repmgr-go/repmgr/internal/sharedstate"
	"github.com/repmgr-go/repmgr/internal/store"
)

const progname = "repmgrd"

var (
	flagConfig     = flag.String("f", "", "path to repmgr.conf")
	flagForeground = flag.Bool("no-daemonize", false, "run in the foreground, ignoring daemonize = true")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", progname)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *flagConfig == "" {
		fmt.Fprintf(os.Stderr, "%s: -f PATH_TO_CONFIG is required\n", progname)
		os.Exit(int(cli.BadConfig))
	}

	conf, err := config.FromFile(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: configuration error: %v\n", progname, err)
		os.Exit(int(cli.BadConfig))
	}
	if err := conf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: configuration error: %v\n", progname, err)
		os.Exit(int(cli.BadConfig))
	}

	applog.Configure(applog.Loggers, conf.Log.Format, conf.Log.Level)
	logger := logrus.WithField("node_id", conf.NodeID)

	if conf.Daemonize && !*flagForeground {
		if err := daemon.Daemonize(filepath.Dir(*flagConfig), conf.Log.Format != "json" && conf.Log.Facility == ""); err != nil {
			logger.WithError(err).Fatal("daemonize failed")
		}
	}

	pidfile, err := daemon.Acquire(conf.PIDFile)
	if err != nil {
		logger.WithError(err).Error("could not acquire pidfile")
		os.Exit(int(cli.BadPIDFile))
	}
	defer pidfile.Release()

	os.Exit(run(conf, logger))
}

func run(conf config.Config, logger *logrus.Entry) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := gateway.Open(ctx, conf.ToPQString(), conf.ConnectionTimeout())
	if err != nil {
		logger.WithError(err).Error("could not connect to local node")
		return int(cli.DBConn)
	}
	defer conn.Close()

	var notifier store.Notifier
	if conf.EventNotificationCommand != "" {
		notifier = events.NewSink(conf.EventNotificationCommand, logger)
	}
	s := store.New(conn.DB(), notifier, logger)

	self, status, err := s.GetNode(ctx, conf.NodeID)
	if err != nil || status != store.StatusFound {
		logger.WithError(err).Error("local node is not registered; run the register action first")
		return int(cli.BadConfig)
	}

	var upstream store.Node
	if !self.IsPrimary() {
		upstream, status, err = s.GetNode(ctx, self.UpstreamNodeID)
		if err != nil || status != store.StatusFound {
			logger.WithError(err).Error("configured upstream node is not registered")
			return int(cli.BadConfig)
		}
	}

	localState := sharedstate.New(conn.DB())
	opener := promote.NewGatewayOpener(conf.ConnectionTimeout())

	executor := &promote.Executor{
		Self:       self,
		Store:      s,
		LocalState: localState,
		Runner:     promote.ShellRunner{},
		Opener:     opener,
		Log:        logger,
		PromoteCmd: conf.PromoteCommand,
		FollowCmd:  conf.FollowCommand,
		OpenLocal: func(ctx context.Context) (*gateway.Conn, error) {
			return gateway.Open(ctx, conf.ToPQString(), conf.ConnectionTimeout())
		},
	}

	engine := &election.Engine{
		Self:        self,
		LocalState:  localState,
		Store:       s,
		Dialer:      &election.GatewayDialer{ConnectTimeout: conf.ConnectionTimeout()},
		Log:         logger,
		LocalWALReceiveLSN: func(ctx context.Context) (gateway.LSN, error) {
			receive, _, err := gateway.WALPositions(ctx, conn.DB())
			return receive, err
		},
		IsUpstreamReachable: func(ctx context.Context, n store.Node) bool {
			return probeNode(ctx, n, conf.PrimaryResponseTimeoutDuration()) == nil
		},
	}

	loop := &monitor.Loop{
		Self:       self,
		Upstream:   upstream,
		Store:      s,
		LocalState: localState,
		Engine:     engine,
		Executor:   executor,
		UpstreamProber: func(ctx context.Context) error {
			if self.IsPrimary() {
				return conn.Ping(ctx, conf.PrimaryResponseTimeoutDuration())
			}
			return probeNode(ctx, upstream, conf.PrimaryResponseTimeoutDuration())
		},
		MonitorInterval:   conf.MonitorInterval(),
		LogStatusInterval: conf.LogStatusInterval(),
		ReconnectAttempts: conf.ReconnectAttempts,
		ReconnectInterval: conf.ReconnectIntervalDuration(),
		DegradedTimeout:   conf.DegradedMonitoringTimeoutDuration(),
		Log:               logger,
	}

	stop := daemon.WatchSignals(loop, logger)
	defer stop()

	role := "standby"
	if self.IsPrimary() {
		role = "primary"
	}
	metrics.SetRole(self.Name, role)

	if conf.Prometheus.BindAddr != "" {
		go serveMetrics(conf.Prometheus.BindAddr, logger)
	}

	s.CreateEvent(ctx, store.Event{NodeID: self.NodeID, Kind: store.EventRepmgrdStart, Success: true, Detail: daemon.RunID()})
	logger.WithField("state", loop.CurrentState().String()).Info("repmgrd started")

	return loop.Run(ctx, nil)
}

func probeNode(ctx context.Context, n store.Node, timeout time.Duration) error {
	conn, err := gateway.Open(ctx, n.Conninfo, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Ping(ctx, timeout)
}

func serveMetrics(addr string, logger *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Error("prometheus listener exited")
	}
}
