package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skeinhq/skein/config"
	"github.com/skeinhq/skein/db"
	"github.com/skeinhq/skein/destinations/apidest"
	"github.com/skeinhq/skein/destinations/fsdest"
	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
	"github.com/skeinhq/skein/logger"
	"github.com/skeinhq/skein/server"
	"github.com/skeinhq/skein/sources/gitrepo"
	"github.com/skeinhq/skein/sources/web"
	"github.com/skeinhq/skein/taskfile"
)

// ServeCmd starts the skein API server and scheduler.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the skein server and cron scheduler",
	Long: `Launch the HTTP API, webhook receiver, WebSocket event stream,
and the cron evaluation loop. Tasks declared in the configured task file
are applied at startup and, when watching is enabled, on every change.`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveAddr       string
	serveDBPath     string
	serveTaskFile   string
)

func init() {
	ServeCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to config file (optional)")
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Execution history database path (overrides config)")
	ServeCmd.Flags().StringVar(&serveTaskFile, "task-file", "", "Declarative task file (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveDBPath != "" {
		cfg.Database.Path = serveDBPath
	}
	if serveTaskFile != "" {
		cfg.Ingest.TaskFile = serveTaskFile
	}

	if err := logger.Initialize(cfg.Log.JSON); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	log := logger.ComponentLogger("serve")

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	manager := ingest.NewManager(
		logger.ComponentLogger("ingest"),
		ingest.WithExecutionStore(ingest.NewExecutionStore(database)),
		ingest.WithCronTolerance(cfg.Ingest.CronTolerance()),
	)
	registerBuiltinPlugins(manager, cfg)

	if cfg.Ingest.TaskFile != "" {
		applied, err := taskfile.LoadAndApply(cfg.Ingest.TaskFile, manager, log)
		if err != nil {
			return errors.Wrapf(err, "failed to apply task file %s", cfg.Ingest.TaskFile)
		}
		log.Infow("Task file applied", "path", cfg.Ingest.TaskFile, "tasks", applied)
	}

	var watcher *taskfile.Watcher
	if cfg.Ingest.TaskFile != "" && cfg.Ingest.WatchTaskFile {
		watcher, err = taskfile.NewWatcher(cfg.Ingest.TaskFile, manager, logger.ComponentLogger("taskfile.watcher"))
		if err != nil {
			return errors.Wrap(err, "failed to watch task file")
		}
		watcher.Start()
	}

	manager.Start()

	tickerCfg := ingest.DefaultTickerConfig()
	if cfg.Ingest.TickerInterval() > 0 {
		tickerCfg.Interval = cfg.Ingest.TickerInterval()
	}
	ticker := ingest.NewTicker(manager, tickerCfg, logger.ComponentLogger("ingest.ticker"))
	ticker.Start()

	srv := server.New(cfg.Server.Addr, manager, logger.ComponentLogger("server"))
	srv.Start()
	log.Infow("skein serving", "addr", cfg.Server.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Infow("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Server shutdown incomplete", "error", err)
	}

	ticker.Stop()
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Warnw("Task file watcher stop failed", "error", err)
		}
	}
	manager.Stop()

	return nil
}

// registerBuiltinPlugins wires the bundled source and destination
// connectors with config-derived politeness settings.
func registerBuiltinPlugins(manager *ingest.Manager, cfg *config.Config) {
	webOpts := web.DefaultOptions()
	if cfg.Ingest.HTTPMaxRequestsPerMinute > 0 {
		webOpts.RequestsPerMinute = cfg.Ingest.HTTPMaxRequestsPerMinute
	}
	if cfg.Ingest.HTTPTimeout() > 0 {
		webOpts.Timeout = cfg.Ingest.HTTPTimeout()
	}

	manager.RegisterSource(web.PluginType,
		web.Factory(webOpts, logger.ComponentLogger("sources.web")),
		web.Transform,
	)
	manager.RegisterSource(gitrepo.PluginType,
		gitrepo.Factory(logger.ComponentLogger("sources.git")),
		gitrepo.Transform,
	)
	manager.RegisterDestination(fsdest.PluginType,
		fsdest.Factory(logger.ComponentLogger("destinations.filesystem")),
	)
	manager.RegisterDestination(apidest.PluginType,
		apidest.Factory(apidest.Options{Timeout: cfg.Ingest.HTTPTimeout()}, logger.ComponentLogger("destinations.api")),
	)
}
