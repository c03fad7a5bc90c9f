// bytectl manages a playbyte data root from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/sirupsen/logrus"

	"playbyte/config"
	"playbyte/engine"
	"playbyte/util"
)

// include these core drivers:
import (
	_ "playbyte/core/libretro"
	_ "playbyte/core/mock"
	_ "playbyte/core/refsnes"
)

type env struct {
	e   *engine.Engine
	cfg *config.Config
	log *logrus.Entry
	out io.Writer
}

type runFunc func(ctx context.Context, env *env, args []string) error

var commands = map[string]runFunc{
	"scan":      runScan,
	"resolve":   runResolve,
	"list":      runList,
	"cores":     runCores,
	"create":    runCreate,
	"load":      runLoad,
	"rename":    runRename,
	"delete":    runDelete,
	"override":  runOverride,
	"reconcile": runReconcile,
}

var usages = map[string]string{
	"scan":      "scan                      hash every ROM under the roots and resolve it",
	"resolve":   "resolve PATH...           identify ROM files",
	"list":      "list                      list Bytes, newest first",
	"cores":     "cores                     list discovered cores",
	"create":    "create [flags] ROM        play ROM headlessly and save a Byte",
	"load":      "load [flags] ID           resume a Byte and report the frames it produces",
	"rename":    "rename ID TITLE           retitle a Byte",
	"delete":    "delete ID...              delete Bytes",
	"override":  "override [-clear] HASH [TITLE]  set or clear a title override",
	"reconcile": "reconcile                 rebuild the Byte index and purge abandoned writes",
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: bytectl [-config FILE] [-log LEVEL] COMMAND [ARGS]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", usages[name])
	}
	fmt.Fprintln(w)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to playbyte.toml (default: user config dir)")
	logLevel := flag.String("log", "", "log level, overriding the config")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	util.SetupLogging("bytectl", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, flag.Args(), os.Stdout)
	stop()
	_ = util.FlushLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bytectl: %v\n", err)
		os.Exit(1)
	}
}

// run opens the engine for cfg and executes one command.
func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}

	log := util.Component(nil, "bytectl")
	e, err := engine.Open(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	return cmd(ctx, &env{e: e, cfg: cfg, log: log, out: out}, args[1:])
}
