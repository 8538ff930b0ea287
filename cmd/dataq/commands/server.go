package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dataq/ai/provider"
	"github.com/teranos/dataq/ai/tracker"
	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/pipeline"
	"github.com/teranos/dataq/pulse/async"
	"github.com/teranos/dataq/quality/explain"
	"github.com/teranos/dataq/server"
	"github.com/teranos/dataq/storage"
)

// ServerCmd starts the dataq HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the dataq API server",
	Long: `Launch the dataq HTTP API with async processing workers and the /ws event stream.

The owner of every request is taken from the configured owner header
(server.owner_header), which an upstream auth proxy is expected to set.`,
	RunE: runServer,
}

var (
	serverDBPath string
	serverPort   int
)

func init() {
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Custom database path (overrides config)")
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides server.port)")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Server defaults to Info so startup and job activity are visible
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}
	jsonLog, _ := cmd.Flags().GetBool("json-log")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Initialize(jsonLog || cfg.Log.JSON, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	log := logger.Logger

	if serverDBPath != "" {
		cfg.Database.Path = serverDBPath
	}
	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	blobs, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return errors.Wrap(err, "failed to open blob storage")
	}

	usage := tracker.NewUsageTracker(database, log)
	gen, err := provider.Build(cfg, usage, log)
	if err != nil {
		return errors.Wrap(err, "failed to configure LLM provider")
	}
	explainer := explain.New(gen, explain.Options{
		MaxPromptBytes: cfg.LLM.MaxPromptBytes,
		Timeout:        cfg.LLM.Timeout(),
	}, log)

	var pool *async.WorkerPool
	var queue *async.Queue
	if cfg.Pulse.Workers > 0 {
		pool = async.NewWorkerPool(ctx, database, async.WorkerPoolConfig{
			Workers:      cfg.Pulse.Workers,
			PollInterval: cfg.Pulse.PollInterval(),
			StopTimeout:  async.DefaultWorkerPoolConfig().StopTimeout,
		}, log)
		queue = pool.Queue()
	}

	svc := pipeline.NewService(database, blobs, queue, explainer, pipeline.OptionsFromConfig(cfg), log)
	if pool != nil {
		pipeline.Register(pool.Registry(), svc)
	}

	srv, err := server.New(server.Deps{
		Service: svc,
		Pool:    pool,
		Usage:   usage,
		Config:  cfg.Server,
		Logger:  log,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	port := cfg.Server.Port
	if serverPort > 0 {
		port = serverPort
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to listen on %s", addr),
			"pick another port with --port or server.port")
	}

	printStartupBanner(verbosity, addr, cfg, explainer.Online())

	// Workers requeue orphaned jobs on start; only then are stale datasets known
	srv.Start()
	if n, err := svc.RecoverStale(ctx); err != nil {
		log.Warnw("Failed to recover stale datasets", "error", err)
	} else if n > 0 {
		pterm.Warning.Printfln("Marked %d interrupted dataset(s) as failed", n)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	if watcher := startConfigWatcher(usage, explainer); watcher != nil {
		defer watcher.Stop()
	}

	// GRACE: Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server stopped unexpectedly")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop(context.Background())
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// startConfigWatcher hot-reloads the LLM provider when the project am.toml
// changes. Returns nil when there is no project config to watch.
func startConfigWatcher(usage *tracker.UsageTracker, explainer *explain.Explainer) *am.ConfigWatcher {
	path := am.FindProjectConfig()
	if path == "" {
		return nil
	}
	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config hot reload disabled", "path", path, "error", err)
		return nil
	}

	watcher.OnReload(func(cfg *am.Config) error {
		gen, err := provider.Build(cfg, usage, logger.Logger)
		if err != nil {
			return errors.Wrap(err, "keeping previous LLM provider")
		}
		explainer.SetGenerator(gen)
		logger.Infow("LLM provider reloaded", "online", explainer.Online())
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()
	return watcher
}
