// Command repmgr is the operator command surface (§6): registers nodes,
// clones standbys, promotes and follows, and drives a planned switchover,
// dispatching `<prog> [options] <component> <action>` onto internal/cli.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/repmgr-go/repmgr/internal/cli"
	"github.com/repmgr-go/repmgr/internal/config"
	"github.com/repmgr-go/repmgr/internal/gateway"
	applog "github.com/repmgr-go/repmgr/internal/log"
	"github.com/repmgr-go/repmgr/internal/promote"
)

const progname = "repmgr"

var flagConfig = flag.String("f", "", "path to repmgr.conf")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", progname)
		fmt.Fprintln(os.Stderr, "  "+progname+" [-f PATH_TO_CONFIG] <component> <action> [options]")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(int(cli.BadConfig))
	}

	var conf config.Config
	if *flagConfig != "" {
		var err error
		conf, err = config.FromFile(*flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: configuration error: %v\n", progname, err)
			os.Exit(int(cli.BadConfig))
		}
	}

	applog.Configure(applog.Loggers, conf.Log.Format, conf.Log.Level)

	deps := cli.Deps{
		Conf:       conf,
		ConfigPath: *flagConfig,
		Log:        applog.Default(),
		Open: func(ctx context.Context, conninfo string) (*gateway.Conn, error) {
			return gateway.Open(ctx, conninfo, 10*time.Second)
		},
		Runner: promote.ShellRunner{},
	}

	code := cli.Dispatch(context.Background(), args, deps, os.Stdout)
	os.Exit(int(code))
}
