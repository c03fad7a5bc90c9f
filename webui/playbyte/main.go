package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/sync/errgroup"

	"playbyte/config"
	"playbyte/engine"
	"playbyte/rom"
	"playbyte/util"
)

// include these core drivers:
import (
	_ "playbyte/core/libretro"
	_ "playbyte/core/mock"
	_ "playbyte/core/refsnes"
)

var (
	configPath = flag.String("config", "", "path to playbyte.toml (default: user config dir)")
	listen     = flag.String("listen", "", "host:port to serve the feed on, overriding the config")
	noBrowser  = flag.Bool("no-browser", false, "do not open the feed in a browser")
)

func main() {
	flag.Parse()

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			logrus.WithError(err).Fatal("could not find configuration directory")
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logrus.WithError(err).Fatal("could not load configuration")
	}

	util.SetupLogging("playbyte", cfg.Log.Level)
	defer util.FlushLogger()
	log := logrus.NewEntry(logrus.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, log, cfg); err != nil {
		log.WithError(err).Error("playbyte stopped")
		_ = util.FlushLogger()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logrus.Entry, cfg *config.Config) error {
	e, err := engine.Open(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	listenAddr := cfg.ListenAddr()
	if *listen != "" {
		listenAddr = *listen
	}

	// construct our viewModel and web server:
	viewModel := engine.NewViewModel(ctx, log, e)
	webServer := NewWebServer(log, listenAddr, e)

	// inform viewModel of web server and vice versa:
	viewModel.ProvideViewNotifier(webServer)
	webServer.ProvideViewCommandHandler(viewModel)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return webServer.Serve(ctx) })

	// initialize viewModel now that all dependencies are set up:
	viewModel.Init()

	g.Go(func() error {
		if err := viewModel.Library().Rescan(); err != nil {
			log.WithError(err).Warn("initial library scan failed")
		}
		return nil
	})

	if cfg.Scan.Watch {
		w, err := rom.NewWatcher(log, e.Library, rom.DefaultSettle)
		if err != nil {
			log.WithError(err).Warn("rom folders will not be watched")
		} else {
			w.Changed = func(path string, _ rom.Record, removed bool) {
				log.WithFields(logrus.Fields{"path": path, "removed": removed}).Debug("rom changed")
				viewModel.Library().Invalidate()
				viewModel.UpdateAndNotifyView()
			}
			g.Go(func() error {
				if err := w.Run(ctx); err != nil {
					log.WithError(err).Warn("rom watcher stopped")
				}
				return nil
			})
		}
	}

	if cfg.Match.WatchOverrides {
		g.Go(func() error {
			if err := e.Matcher.WatchOverrides(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("override file will not be watched")
			}
			return nil
		})
	}

	if cfg.Web.OpenBrowser && !*noBrowser {
		if err := open.Start(cfg.BrowserURL()); err != nil {
			log.WithError(err).Warn("could not open browser")
		}
	}

	return g.Wait()
}
