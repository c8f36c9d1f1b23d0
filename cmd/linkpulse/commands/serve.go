package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/linkpulse/am"
	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/server/wslogs"
	"github.com/teranos/linkpulse/sym"
	"github.com/teranos/linkpulse/version"
)

// ServeCmd runs the executor process
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   sym.Pulse + " Run the executor (command channel, scheduler, jobs)",
	Long: sym.Pulse + ` Run the long-lived executor process.

The executor:
- Serves the command channel on POST /api/command and /ws
- Pushes durable-store changes and schedule countdowns to connected UIs
- Fires enabled schedules once per day at their HH:MM
- Runs jobs item by item, enforcing plan quotas and the hourly ceiling
- Hot-reloads plan limits when am.toml changes
- Stops running jobs at the next item boundary on Ctrl+C`,
	RunE: runServe,
}

var (
	serveDBPath  string
	servePort    int
	serveNoWatch bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Database path (overrides database.path)")
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port (overrides server.port)")
	ServeCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not hot-reload config files")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = logger.VerbosityInfo
	}
	logger.SetVerbosity(verbosity)

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if serveDBPath != "" {
		cfg.Database.Path = serveDBPath
	}
	port := cfg.GetServerPort()
	if servePort > 0 {
		port = servePort
	}

	// Run log lines also stream to connected UIs
	transport := wslogs.NewTransport()
	base := logger.Logger.Desugar()
	logger.Logger = zap.New(zapcore.NewTee(
		base.Core(),
		wslogs.NewWebSocketCore(zapcore.InfoLevel, transport),
	)).Sugar()

	rt, err := buildRuntime(cfg, nil, transport)
	if err != nil {
		return err
	}
	defer rt.Close()

	printBanner(cfg, port, rt.location.String())

	if !serveNoWatch {
		if files := am.ConfigFiles(); len(files) > 0 {
			watcher, err := am.NewConfigWatcher(files, nil, logger.ComponentLogger("am"))
			if err != nil {
				rt.logger.Warnw("Config hot reload disabled", logger.FieldError, err.Error())
			} else {
				watcher.OnReload(rt.applyConfig)
				am.SetGlobalWatcher(watcher)
				watcher.Start()
				defer watcher.Stop()
			}
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- rt.server.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully, running items finish first (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- rt.server.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown")
			}
			pterm.Success.Println(sym.PulseClose + " Executor stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

func printBanner(cfg *am.Config, port int, zone string) {
	pterm.DefaultHeader.WithFullWidth().Printf("%s linkpulse %s", sym.Pulse, version.Get().Version)
	pterm.Info.Printf("Command channel: http://localhost:%d/api/command\n", port)
	pterm.Info.Printf("Database: %s\n", cfg.GetDatabasePath())
	pterm.Info.Printf("Executor: %s\n", executorLabel(cfg))
	pterm.Info.Printf("Timezone: %s\n", zone)
	if path := am.ActiveConfigPath(); path != "" {
		pterm.Info.Printf("Config: %s\n", path)
	}
	pterm.Println()
}

func executorLabel(cfg *am.Config) string {
	if cfg.Executor.Mode == am.ExecutorRemote {
		return fmt.Sprintf("remote (%s)", cfg.Executor.URL)
	}
	return "simulated (dry run)"
}
